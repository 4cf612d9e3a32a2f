package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/diagnosis/library-reservations/pkg/events"
	"github.com/diagnosis/library-reservations/pkg/logger"
	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/repository"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

type WaitlistService interface {
	Position(ctx context.Context, actor Actor, bookID string) (*domain.WaitlistEntry, error)
	Join(ctx context.Context, actor Actor, bookID string) (*domain.WaitlistEntry, error)
	Leave(ctx context.Context, actor Actor, bookID string) error
}

type waitlistService struct {
	waitlist  repository.WaitlistRepository
	validator *rules.Validator
	publisher events.Publisher
}

func NewWaitlistService(waitlist repository.WaitlistRepository, validator *rules.Validator, publisher events.Publisher) WaitlistService {
	return &waitlistService{
		waitlist:  waitlist,
		validator: validator,
		publisher: publisher,
	}
}

func requireBook(bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return invalid([]rules.ValidationError{{Field: rules.FieldBookID, Message: "Book ID is required"}})
	}
	return nil
}

func (s *waitlistService) Position(ctx context.Context, actor Actor, bookID string) (*domain.WaitlistEntry, error) {
	if err := requireBook(bookID); err != nil {
		return nil, err
	}
	entry, err := s.waitlist.Position(ctx, bookID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load waitlist position: %w", err)
	}
	if entry == nil {
		return nil, ErrNotOnWaitlist
	}
	return s.estimate(entry)
}

func (s *waitlistService) Join(ctx context.Context, actor Actor, bookID string) (*domain.WaitlistEntry, error) {
	if err := requireBook(bookID); err != nil {
		return nil, err
	}
	entry, created, err := s.waitlist.Join(ctx, bookID, actor.UserID, actor.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to join waitlist: %w", err)
	}
	entry, err = s.estimate(entry)
	if err != nil {
		return nil, err
	}

	if created {
		logger.InfoContext(ctx, "Joined waitlist", "book_id", bookID, "position", entry.Position)
		s.publish(ctx, events.WaitlistJoined, actor, entry)
	}
	return entry, nil
}

func (s *waitlistService) Leave(ctx context.Context, actor Actor, bookID string) error {
	if err := requireBook(bookID); err != nil {
		return err
	}
	removed, err := s.waitlist.Leave(ctx, bookID, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to leave waitlist: %w", err)
	}
	if !removed {
		return ErrNotOnWaitlist
	}
	s.publish(ctx, events.WaitlistLeft, actor, &domain.WaitlistEntry{BookID: bookID, UserID: actor.UserID})
	return nil
}

func (s *waitlistService) estimate(entry *domain.WaitlistEntry) (*domain.WaitlistEntry, error) {
	est, err := s.validator.EstimateWaitlist(entry.Position, s.validator.Policy().AverageLoanDays)
	if err != nil {
		return nil, err
	}
	entry.EstimatedAvailability = est.EstimatedDate
	return entry, nil
}

func (s *waitlistService) publish(ctx context.Context, subject string, actor Actor, entry *domain.WaitlistEntry) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, subject, events.WaitlistEvent{
		BookID:                entry.BookID,
		UserID:                actor.UserID,
		UserEmail:             actor.Email,
		Position:              entry.Position,
		EstimatedAvailability: entry.EstimatedAvailability,
		OccurredAt:            s.validator.Now(),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
