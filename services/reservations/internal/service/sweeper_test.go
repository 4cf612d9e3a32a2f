package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingService struct {
	ReservationService
	calls atomic.Int32
}

func (c *countingService) MarkOverdue(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestOverdueSweeper_RunsUntilCancelled(t *testing.T) {
	svc := &countingService{}
	idem := newMockIdempotencyRepo(newMockReservationRepo())
	idem.purged = 2
	sweeper := NewOverdueSweeper(svc, idem, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	assert.Eventually(t, func() bool { return svc.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestOverdueSweeper_SweepMarksRows(t *testing.T) {
	f := newFixture()
	res := f.create(t, member)
	f.repo.rows[res.ID].ReturnDate = fixedNow.Add(-time.Hour)
	f.repo.rows[res.ID].PickupDate = fixedNow.AddDate(0, 0, -3)

	NewOverdueSweeper(f.svc, nil, 0).Sweep(context.Background())

	got, err := f.svc.Get(context.Background(), member, res.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, got.Status)
}
