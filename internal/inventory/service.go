// Package inventory manages per-show seat counters with optimistic
// concurrency control.
package inventory

import (
	"context"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/retry"
	"go.uber.org/zap"
)

type Service struct {
	shows  domain.ShowRepository
	retry  *retry.Executor
	logger *zap.Logger
}

func NewService(shows domain.ShowRepository, executor *retry.Executor, logger *zap.Logger) *Service {
	return &Service{
		shows:  shows,
		retry:  executor,
		logger: logger.With(zap.String("component", "inventory")),
	}
}

func (s *Service) CreateShow(ctx context.Context, totalSeats int, startsAt, endsAt time.Time) (*domain.Show, error) {
	show, err := domain.NewShow(totalSeats, startsAt, endsAt)
	if err != nil {
		return nil, err
	}

	if err := s.shows.CreateShow(ctx, &show); err != nil {
		return nil, err
	}

	s.logger.Info("show created", zap.Int64("show_id", show.ID), zap.Int("total_seats", totalSeats))
	return &show, nil
}

func (s *Service) GetShow(ctx context.Context, showID int64) (*domain.Show, error) {
	return s.shows.GetShow(ctx, showID)
}

// BookSeats takes n seats out of the show's available pool.
func (s *Service) BookSeats(ctx context.Context, showID int64, n int) (*domain.Show, error) {
	return s.mutate(ctx, "book seats", showID, func(show domain.Show) (domain.Show, error) {
		return domain.BookSeats(show, n)
	})
}

// ReleaseSeats returns n booked seats to the show's available pool.
func (s *Service) ReleaseSeats(ctx context.Context, showID int64, n int) (*domain.Show, error) {
	return s.mutate(ctx, "release seats", showID, func(show domain.Show) (domain.Show, error) {
		return domain.ReleaseSeats(show, n)
	})
}

// mutate reads the show, applies change and writes the result guarded by the
// version that was read. The whole unit is retried on a version conflict.
func (s *Service) mutate(
	ctx context.Context,
	operation string,
	showID int64,
	change func(domain.Show) (domain.Show, error),
) (*domain.Show, error) {
	return retry.Do(ctx, s.retry, operation, func(ctx context.Context) (*domain.Show, error) {
		current, err := s.shows.GetShow(ctx, showID)
		if err != nil {
			return nil, err
		}

		next, err := change(*current)
		if err != nil {
			return nil, err
		}

		if err := s.shows.WriteShow(ctx, next, current.Version); err != nil {
			return nil, err
		}

		s.logger.Debug("seat inventory updated",
			zap.String("operation", operation),
			zap.Int64("show_id", showID),
			zap.Int("available", next.AvailableSeats),
			zap.Int("version", next.Version))

		return &next, nil
	})
}
