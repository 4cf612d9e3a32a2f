package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

func TestEstimateWaitlist(t *testing.T) {
	v := newValidator()

	est, err := v.EstimateWaitlist(3, 14)
	require.NoError(t, err)
	assert.Equal(t, 3, est.Position)
	assert.Equal(t, 42, est.EstimatedDays)

	got, err := rules.ParseDate(est.EstimatedDate)
	require.NoError(t, err)
	want := fixedNow.AddDate(0, 0, 42)
	assert.Equal(t, want.Format("2006-01-02"), got.Format("2006-01-02"))
}

func TestEstimateWaitlist_UsesWallClockWhenUnset(t *testing.T) {
	v := rules.NewValidator(rules.DefaultPolicy(), nil)

	est, err := v.EstimateWaitlist(1, 14)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), est.At, time.Minute)
}

func TestEstimateWaitlist_RejectsBadInput(t *testing.T) {
	v := newValidator()

	_, err := v.EstimateWaitlist(0, 14)
	assert.ErrorIs(t, err, rules.ErrInvalidPosition)

	_, err = v.EstimateWaitlist(-2, 14)
	assert.ErrorIs(t, err, rules.ErrInvalidPosition)

	_, err = v.EstimateWaitlist(1, -1)
	assert.ErrorIs(t, err, rules.ErrInvalidLoanDays)

	est, err := v.EstimateWaitlist(4, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, est.EstimatedDays)
}

func TestExpandRecurrence(t *testing.T) {
	pickup := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)
	ret := pickup.AddDate(0, 0, 5)

	tests := []struct {
		name    string
		pattern domain.RecurrencePattern
		end     time.Time
		want    []time.Time
	}{
		{
			name:    "weekly includes end date",
			pattern: domain.RecurWeekly,
			end:     pickup.AddDate(0, 0, 21),
			want: []time.Time{
				pickup,
				pickup.AddDate(0, 0, 7),
				pickup.AddDate(0, 0, 14),
				pickup.AddDate(0, 0, 21),
			},
		},
		{
			name:    "biweekly",
			pattern: domain.RecurBiweekly,
			end:     pickup.AddDate(0, 0, 30),
			want: []time.Time{
				pickup,
				pickup.AddDate(0, 0, 14),
				pickup.AddDate(0, 0, 28),
			},
		},
		{
			name:    "monthly",
			pattern: domain.RecurMonthly,
			end:     pickup.AddDate(0, 0, 89),
			want: []time.Time{
				pickup,
				pickup.AddDate(0, 1, 0),
				pickup.AddDate(0, 2, 0),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, err := rules.ExpandRecurrence(pickup, ret, domain.Recurrence{
				Pattern: tt.pattern,
				EndDate: rules.FormatDate(tt.end),
			})
			require.NoError(t, err)
			require.Len(t, occ, len(tt.want))
			for i, o := range occ {
				assert.True(t, tt.want[i].Equal(o.PickupDate), "occurrence %d pickup", i)
				assert.Equal(t, 5*24*time.Hour, o.ReturnDate.Sub(o.PickupDate))
			}
		})
	}
}

func TestExpandRecurrence_RejectsBadInput(t *testing.T) {
	pickup := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)

	_, err := rules.ExpandRecurrence(pickup, pickup.AddDate(0, 0, 1), domain.Recurrence{Pattern: domain.RecurWeekly, EndDate: "never"})
	assert.Error(t, err)

	_, err = rules.ExpandRecurrence(pickup, pickup.AddDate(0, 0, 1), domain.Recurrence{Pattern: "yearly", EndDate: "2025-05-01"})
	assert.Error(t, err)
}
