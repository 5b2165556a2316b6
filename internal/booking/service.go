// Package booking implements the booking use cases on top of the pure state
// machine in the domain package. Every state change is a conditional write
// retried on version conflicts.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Dependencies struct {
	Bookings domain.BookingRepository
	Shows    domain.ShowRepository
	Payments domain.PaymentProvider
	Retry    *retry.Executor
	Locks    *lock.Guard
	Notifier *Notifier
	Logger   *zap.Logger
}

type Service struct {
	bookings domain.BookingRepository
	shows    domain.ShowRepository
	payments domain.PaymentProvider
	retry    *retry.Executor
	locks    *lock.Guard
	notifier *Notifier
	logger   *zap.Logger

	lockOpts lock.Options
	currency string
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithCurrency(currency string) Option {
	return func(s *Service) {
		s.currency = currency
	}
}

// WithLockOptions sets how long Initiate waits for the per-show lock and how
// long it may hold it.
func WithLockOptions(opts lock.Options) Option {
	return func(s *Service) {
		s.lockOpts = opts
	}
}

func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		bookings: deps.Bookings,
		shows:    deps.Shows,
		payments: deps.Payments,
		retry:    deps.Retry,
		locks:    deps.Locks,
		notifier: deps.Notifier,
		logger:   deps.Logger.With(zap.String("component", "booking")),
		lockOpts: lock.DefaultOptions(),
		currency: "usd",
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type InitiateCommand struct {
	ShowID int64
	UserID int64
	Seats  []domain.SeatSnapshot
}

// Initiate holds seats for a new pending booking. Only one initiation per
// show runs at a time across instances; a busy show fails with
// domain.ErrResourceBusy.
func (s *Service) Initiate(ctx context.Context, cmd InitiateCommand) (*domain.Booking, error) {
	b, err := lock.WithLock(ctx, s.locks, lock.BookingKey(cmd.ShowID), s.lockOpts,
		func(ctx context.Context) (*domain.Booking, error) {
			return retry.Do(ctx, s.retry, "initiate booking", func(ctx context.Context) (*domain.Booking, error) {
				show, err := s.shows.GetShow(ctx, cmd.ShowID)
				if err != nil {
					return nil, err
				}

				b, _, err := domain.NewBooking(*show, cmd.UserID, cmd.Seats, s.now())
				if err != nil {
					return nil, err
				}

				held, err := s.bookings.HeldSeatIDs(ctx, show.ID)
				if err != nil {
					return nil, err
				}

				if err := domain.CheckSeatsFree(cmd.Seats, held); err != nil {
					return nil, err
				}

				next, err := domain.BookSeats(*show, b.NumberOfSeats)
				if err != nil {
					return nil, err
				}

				if err := s.bookings.CreateBooking(ctx, &b, next, show.Version); err != nil {
					return nil, err
				}

				return &b, nil
			})
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking initiated",
		zap.String("reference", b.Reference),
		zap.Int64("show_id", b.ShowID),
		zap.Int("seats", b.NumberOfSeats),
		zap.Time("expires_at", b.ExpiresAt))

	return b, nil
}

func (s *Service) Get(ctx context.Context, reference string) (*domain.Booking, error) {
	return s.bookings.GetBookingByReference(ctx, reference)
}

type PayCommand struct {
	Reference string
	Amount    decimal.Decimal
	Method    string
}

// Pay charges a pending booking and applies the outcome. A booking whose hold
// elapsed is expired on the spot. A successful charge that can no longer be
// applied is refunded.
func (s *Service) Pay(ctx context.Context, cmd PayCommand) (*domain.Booking, error) {
	b, err := s.bookings.GetBookingByReference(ctx, cmd.Reference)
	if err != nil {
		return nil, err
	}

	if b.IsExpired(s.now()) {
		if _, err := s.ExpireBooking(ctx, b.ID); err != nil {
			s.logger.Warn("failed to expire overdue booking", zap.String("reference", b.Reference), zap.Error(err))
		}
		return nil, domain.ErrBookingExpired
	}

	if b.Status != domain.BookingStatusPending {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrInvalidStateTransition, b.Status)
	}

	if !cmd.Amount.Equal(b.TotalAmount) {
		return nil, fmt.Errorf("%w: expected %s, got %s", domain.ErrPaymentAmountMismatch, b.TotalAmount, cmd.Amount)
	}

	result, err := s.payments.Charge(ctx, domain.PaymentRequest{
		BookingReference: b.Reference,
		Amount:           b.TotalAmount,
		Currency:         s.currency,
		Method:           cmd.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("charge booking %s: %w", b.Reference, err)
	}

	updated, err := s.ApplyPaymentResult(ctx, b.Reference, result)
	if err != nil {
		if result.Status == domain.PaymentStatusCompleted {
			s.refundUnapplied(ctx, *b, result)
		}
		return nil, err
	}

	return updated, nil
}

// ApplyPaymentResult records a provider outcome on the booking. Redelivering
// the result that already confirmed the booking is a no-op.
func (s *Service) ApplyPaymentResult(ctx context.Context, reference string, result domain.PaymentResult) (*domain.Booking, error) {
	var ev domain.Event

	b, err := retry.Do(ctx, s.retry, "apply payment", func(ctx context.Context) (*domain.Booking, error) {
		current, err := s.bookings.GetBookingByReference(ctx, reference)
		if err != nil {
			return nil, err
		}

		next, e, err := domain.ApplyPayment(*current, result, s.now())
		if err != nil {
			return nil, err
		}

		ev = e
		if !e.Changed() {
			return &next, nil
		}

		if err := s.bookings.UpdateBooking(ctx, next, current.Version, nil); err != nil {
			return nil, err
		}

		return &next, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment applied",
		zap.String("reference", b.Reference),
		zap.String("payment_status", string(b.PaymentStatus)),
		zap.String("status", string(b.Status)))

	if ev.Kind == domain.EventConfirmed {
		s.notifier.BookingConfirmed(*b)
	}

	return b, nil
}

func (s *Service) refundUnapplied(ctx context.Context, b domain.Booking, result domain.PaymentResult) {
	refund, err := s.payments.Refund(ctx, result.Reference, b.TotalAmount)
	if err != nil || !refund.Success {
		s.logger.Error("failed to refund unapplied payment",
			zap.String("reference", b.Reference),
			zap.String("payment_reference", result.Reference),
			zap.Error(err))
		return
	}

	s.logger.Warn("refunded payment that could not be applied",
		zap.String("reference", b.Reference),
		zap.String("payment_reference", result.Reference),
		zap.String("refund_reference", refund.Reference))
}

// Cancel cancels the booking, returns its seats to the show and refunds what
// the refund policy allows.
func (s *Service) Cancel(ctx context.Context, reference string, cmd domain.CancelCommand) (*domain.Booking, error) {
	var ev domain.Event

	b, err := retry.Do(ctx, s.retry, "cancel booking", func(ctx context.Context) (*domain.Booking, error) {
		current, err := s.bookings.GetBookingByReference(ctx, reference)
		if err != nil {
			return nil, err
		}

		show, err := s.shows.GetShow(ctx, current.ShowID)
		if err != nil {
			return nil, err
		}

		next, e, err := domain.Cancel(*current, *show, cmd, s.now())
		if err != nil {
			return nil, err
		}

		released, err := domain.ReleaseSeats(*show, e.SeatsReleased)
		if err != nil {
			return nil, err
		}

		err = s.bookings.UpdateBooking(ctx, next, current.Version, &domain.ShowWrite{
			Next:            released,
			ExpectedVersion: show.Version,
		})
		if err != nil {
			return nil, err
		}

		ev = e
		return &next, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled",
		zap.String("reference", b.Reference),
		zap.Int("seats_released", ev.SeatsReleased),
		zap.String("refund", ev.RefundAmount.StringFixed(2)))

	if ev.RefundAmount.IsPositive() {
		b = s.refund(ctx, b)
	}

	s.notifier.BookingCancelled(*b)

	return b, nil
}

// refund issues the refund owed by a cancelled booking. On failure the
// payment status stays COMPLETED so the refund can be retried.
func (s *Service) refund(ctx context.Context, b *domain.Booking) *domain.Booking {
	res, err := s.payments.Refund(ctx, b.PaymentReference, b.RefundAmount)
	if err == nil && !res.Success {
		err = errors.New("refund declined by provider")
	}
	if err != nil {
		s.logger.Error("refund failed", zap.String("reference", b.Reference), zap.Error(err))
		return b
	}

	refunded, err := retry.Do(ctx, s.retry, "record refund", func(ctx context.Context) (*domain.Booking, error) {
		current, err := s.bookings.GetBookingByReference(ctx, b.Reference)
		if err != nil {
			return nil, err
		}

		next, ev, err := domain.ApplyRefund(*current)
		if err != nil || !ev.Changed() {
			return &next, err
		}

		if err := s.bookings.UpdateBooking(ctx, next, current.Version, nil); err != nil {
			return nil, err
		}

		return &next, nil
	})
	if err != nil {
		s.logger.Error("failed to record refund",
			zap.String("reference", b.Reference),
			zap.String("refund_reference", res.Reference),
			zap.Error(err))
		return b
	}

	return refunded
}

// MarkNoShow records that the customer of a confirmed booking did not attend.
func (s *Service) MarkNoShow(ctx context.Context, reference string) (*domain.Booking, error) {
	return retry.Do(ctx, s.retry, "mark no-show", func(ctx context.Context) (*domain.Booking, error) {
		current, err := s.bookings.GetBookingByReference(ctx, reference)
		if err != nil {
			return nil, err
		}

		next, ev, err := domain.MarkNoShow(*current)
		if err != nil || !ev.Changed() {
			return &next, err
		}

		if err := s.bookings.UpdateBooking(ctx, next, current.Version, nil); err != nil {
			return nil, err
		}

		return &next, nil
	})
}

// ExpireBooking expires an overdue pending booking and releases its seats in
// the same write. It reports false when the booking was no longer pending.
func (s *Service) ExpireBooking(ctx context.Context, id int64) (bool, error) {
	return retry.Do(ctx, s.retry, "expire booking", func(ctx context.Context) (bool, error) {
		current, err := s.bookings.GetBooking(ctx, id)
		if err != nil {
			return false, err
		}

		next, ev, err := domain.Expire(*current, s.now())
		if err != nil || !ev.Changed() {
			return false, err
		}

		show, err := s.shows.GetShow(ctx, current.ShowID)
		if err != nil {
			return false, err
		}

		released, err := domain.ReleaseSeats(*show, ev.SeatsReleased)
		if err != nil {
			return false, err
		}

		err = s.bookings.UpdateBooking(ctx, next, current.Version, &domain.ShowWrite{
			Next:            released,
			ExpectedVersion: show.Version,
		})
		if err != nil {
			return false, err
		}

		s.logger.Info("booking expired",
			zap.String("reference", current.Reference),
			zap.Int("seats_released", ev.SeatsReleased))

		return true, nil
	})
}

// CompleteBooking completes a confirmed booking whose show has ended. It
// reports false when there was nothing to do.
func (s *Service) CompleteBooking(ctx context.Context, id int64) (bool, error) {
	return retry.Do(ctx, s.retry, "complete booking", func(ctx context.Context) (bool, error) {
		current, err := s.bookings.GetBooking(ctx, id)
		if err != nil {
			return false, err
		}

		show, err := s.shows.GetShow(ctx, current.ShowID)
		if err != nil {
			return false, err
		}

		next, ev, err := domain.Complete(*current, *show, s.now())
		if err != nil || !ev.Changed() {
			return false, err
		}

		if err := s.bookings.UpdateBooking(ctx, next, current.Version, nil); err != nil {
			return false, err
		}

		return true, nil
	})
}
