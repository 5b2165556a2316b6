package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
)

const (
	// BookingHoldDuration is how long a pending booking holds its seats.
	BookingHoldDuration = 15 * time.Minute
	// CancellationCutoff is the minimum time before the show at which a booking can still be cancelled.
	CancellationCutoff = 2 * time.Hour
	// FullRefundWindow is the minimum time before the show for a full refund.
	FullRefundWindow = 24 * time.Hour
)

var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted, BookingStatusNoShow},
}

// CanTransition reports whether the state machine allows moving from one
// status to another.
func CanTransition(from, to BookingStatus) bool {
	return lo.Contains(transitions[from], to)
}

var seatCategories = []string{"REGULAR", "PREMIUM", "VIP", "EXECUTIVE", "BALCONY", "BOX", "WHEELCHAIR"}

func IsSeatCategory(category string) bool {
	return lo.Contains(seatCategories, category)
}

// SeatSnapshot is a copy of a seat's identity and price taken when the
// booking was made. It does not change when the seat layout does.
type SeatSnapshot struct {
	SeatID   int64
	Row      string
	Number   int
	Category string
	Price    decimal.Decimal
}

type Booking struct {
	ID                 int64
	Reference          string
	ShowID             int64
	UserID             int64
	NumberOfSeats      int
	Seats              []SeatSnapshot
	Status             BookingStatus
	PaymentStatus      PaymentStatus
	PaymentReference   string
	TotalAmount        decimal.Decimal
	RefundAmount       decimal.Decimal
	CreatedAt          time.Time
	ExpiresAt          time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	Version            int
}

// IsExpired reports whether a pending booking has outlived its hold.
func (b Booking) IsExpired(now time.Time) bool {
	return b.Status == BookingStatusPending && now.After(b.ExpiresAt)
}

// HoldsSeats reports whether the booking still occupies its seats. Cancelled
// and expired bookings have returned them to the show.
func (b Booking) HoldsSeats() bool {
	return b.Status != BookingStatusCancelled && b.Status != BookingStatusExpired
}

// SeatIDs returns the ids of the booked seats.
func (b Booking) SeatIDs() []int64 {
	return lo.Map(b.Seats, func(s SeatSnapshot, _ int) int64 { return s.SeatID })
}

// CheckSeatsFree fails with ErrSeatAlreadyBooked when any requested seat is
// among held.
func CheckSeatsFree(seats []SeatSnapshot, held []int64) error {
	requested := lo.Map(seats, func(s SeatSnapshot, _ int) int64 { return s.SeatID })

	taken := lo.Intersect(held, requested)
	if len(taken) > 0 {
		return fmt.Errorf("%w: %v", ErrSeatAlreadyBooked, taken)
	}

	return nil
}

type EventKind string

const (
	EventNone            EventKind = ""
	EventCreated         EventKind = "booking.created"
	EventPaymentRecorded EventKind = "booking.payment_recorded"
	EventConfirmed       EventKind = "booking.confirmed"
	EventCancelled       EventKind = "booking.cancelled"
	EventExpired         EventKind = "booking.expired"
	EventCompleted       EventKind = "booking.completed"
	EventNoShow          EventKind = "booking.no_show"
	EventRefunded        EventKind = "booking.refunded"
)

// Event describes the effect of a transition. SeatsReleased is non-zero when
// the caller must return seats to the show's inventory in the same write.
type Event struct {
	Kind          EventKind
	BookingID     int64
	From          BookingStatus
	To            BookingStatus
	SeatsReleased int
	RefundAmount  decimal.Decimal
}

// Changed reports whether the transition produced a new state that must be persisted.
func (e Event) Changed() bool {
	return e.Kind != EventNone
}

func NewBookingReference() string {
	return "BK" + strings.ToUpper(shortuuid.New()[:12])
}

// NewBooking creates a pending booking for the given seats. The caller is
// responsible for booking the seats on the show in the same write.
func NewBooking(show Show, userID int64, seats []SeatSnapshot, now time.Time) (Booking, Event, error) {
	if len(seats) == 0 {
		return Booking{}, Event{}, ErrInvalidSeatCount
	}

	unique := lo.UniqBy(seats, func(s SeatSnapshot) int64 { return s.SeatID })
	if len(unique) != len(seats) {
		return Booking{}, Event{}, ErrDuplicateSeatInBooking
	}

	if !now.Before(show.StartsAt) {
		return Booking{}, Event{}, ErrShowNotAcceptingBooking
	}

	total := lo.Reduce(seats, func(sum decimal.Decimal, s SeatSnapshot, _ int) decimal.Decimal {
		return sum.Add(s.Price)
	}, decimal.Zero)

	b := Booking{
		Reference:     NewBookingReference(),
		ShowID:        show.ID,
		UserID:        userID,
		NumberOfSeats: len(seats),
		Seats:         append([]SeatSnapshot(nil), seats...),
		Status:        BookingStatusPending,
		PaymentStatus: PaymentStatusPending,
		TotalAmount:   total.Round(2),
		RefundAmount:  decimal.Zero,
		CreatedAt:     now,
		ExpiresAt:     now.Add(BookingHoldDuration),
		Version:       1,
	}

	return b, Event{Kind: EventCreated, To: BookingStatusPending}, nil
}

func (b Booking) moveTo(to BookingStatus, kind EventKind) (Booking, Event) {
	ev := Event{Kind: kind, BookingID: b.ID, From: b.Status, To: to}
	b.Status = to
	b.Version++
	return b, ev
}

func invalidTransition(from, to BookingStatus, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return fmt.Errorf("%w: %s -> %s: %s", ErrInvalidStateTransition, from, to, reason)
}

// ApplyPayment records a payment outcome on a pending booking and confirms it
// when the payment completed. Re-applying the result that confirmed the
// booking is a no-op.
func ApplyPayment(b Booking, result PaymentResult, now time.Time) (Booking, Event, error) {
	if b.Status == BookingStatusConfirmed &&
		result.Status == PaymentStatusCompleted &&
		b.PaymentReference == result.Reference {
		return b, Event{}, nil
	}

	if b.Status != BookingStatusPending {
		return b, Event{}, invalidTransition(b.Status, BookingStatusConfirmed, "booking is not awaiting payment")
	}

	if b.IsExpired(now) {
		return b, Event{}, ErrBookingExpired
	}

	b.PaymentReference = result.Reference
	switch result.Status {
	case PaymentStatusCompleted:
		b.PaymentStatus = PaymentStatusCompleted
	case PaymentStatusFailed:
		b.PaymentStatus = PaymentStatusFailed
	default:
		b.PaymentStatus = PaymentStatusProcessing
	}

	if b.PaymentStatus == PaymentStatusCompleted {
		// Version is bumped once for the whole write.
		confirmed, ev, err := Confirm(b, now)
		if err != nil {
			return b, Event{}, err
		}
		return confirmed, ev, nil
	}

	b.Version++
	return b, Event{Kind: EventPaymentRecorded, BookingID: b.ID, From: b.Status, To: b.Status}, nil
}

// Confirm moves a paid pending booking to CONFIRMED. Confirming an already
// confirmed booking is a no-op.
func Confirm(b Booking, now time.Time) (Booking, Event, error) {
	if b.Status == BookingStatusConfirmed {
		return b, Event{}, nil
	}

	if b.Status != BookingStatusPending {
		return b, Event{}, invalidTransition(b.Status, BookingStatusConfirmed, "")
	}

	if b.PaymentStatus != PaymentStatusCompleted {
		return b, Event{}, invalidTransition(b.Status, BookingStatusConfirmed, "payment is not completed")
	}

	b.ConfirmedAt = &now
	next, ev := b.moveTo(BookingStatusConfirmed, EventConfirmed)
	return next, ev, nil
}

// CancelCommand describes a cancellation. A paid booking is refunded per the
// policy unless the customer waives it.
type CancelCommand struct {
	Reason      string
	WaiveRefund bool
}

// Cancel cancels a pending or confirmed booking at least CancellationCutoff
// before the show starts, releasing its seats and computing the refund owed.
func Cancel(b Booking, show Show, cmd CancelCommand, now time.Time) (Booking, Event, error) {
	if b.Status != BookingStatusPending && b.Status != BookingStatusConfirmed {
		return b, Event{}, fmt.Errorf("%w: booking is %s", ErrBookingNotCancellable, b.Status)
	}

	if b.IsExpired(now) {
		return b, Event{}, ErrBookingExpired
	}

	untilShow := show.StartsAt.Sub(now)
	if untilShow < CancellationCutoff {
		return b, Event{}, fmt.Errorf("%w: less than %s before the show", ErrBookingNotCancellable, CancellationCutoff)
	}

	refund := decimal.Zero
	if !cmd.WaiveRefund && b.PaymentStatus == PaymentStatusCompleted {
		refund = RefundAmount(b.TotalAmount, untilShow)
	}

	b.CancelledAt = &now
	b.CancellationReason = cmd.Reason
	b.RefundAmount = refund

	next, ev := b.moveTo(BookingStatusCancelled, EventCancelled)
	ev.SeatsReleased = b.NumberOfSeats
	ev.RefundAmount = refund

	return next, ev, nil
}

// ApplyRefund records a refund issued for a cancelled booking.
func ApplyRefund(b Booking) (Booking, Event, error) {
	if b.Status != BookingStatusCancelled {
		return b, Event{}, invalidTransition(b.Status, b.Status, "only cancelled bookings can be refunded")
	}

	if !b.RefundAmount.IsPositive() {
		return b, Event{}, nil
	}

	if b.RefundAmount.Equal(b.TotalAmount) {
		b.PaymentStatus = PaymentStatusRefunded
	} else {
		b.PaymentStatus = PaymentStatusPartialRefund
	}
	b.Version++

	return b, Event{
		Kind:         EventRefunded,
		BookingID:    b.ID,
		From:         b.Status,
		To:           b.Status,
		RefundAmount: b.RefundAmount,
	}, nil
}

// Expire moves an overdue pending booking to EXPIRED. It is a no-op on any
// booking that is no longer pending.
func Expire(b Booking, now time.Time) (Booking, Event, error) {
	if b.Status != BookingStatusPending {
		return b, Event{}, nil
	}

	if !now.After(b.ExpiresAt) {
		return b, Event{}, invalidTransition(b.Status, BookingStatusExpired, "hold has not elapsed")
	}

	next, ev := b.moveTo(BookingStatusExpired, EventExpired)
	ev.SeatsReleased = b.NumberOfSeats

	return next, ev, nil
}

// Complete moves a confirmed booking to COMPLETED once its show has ended.
// Seats stay booked.
func Complete(b Booking, show Show, now time.Time) (Booking, Event, error) {
	if b.Status == BookingStatusCompleted {
		return b, Event{}, nil
	}

	if b.Status != BookingStatusConfirmed {
		return b, Event{}, invalidTransition(b.Status, BookingStatusCompleted, "")
	}

	if !now.After(show.EndsAt) {
		return b, Event{}, invalidTransition(b.Status, BookingStatusCompleted, "show has not ended")
	}

	next, ev := b.moveTo(BookingStatusCompleted, EventCompleted)
	return next, ev, nil
}

// MarkNoShow records that the customer of a confirmed booking did not attend.
func MarkNoShow(b Booking) (Booking, Event, error) {
	if b.Status == BookingStatusNoShow {
		return b, Event{}, nil
	}

	if b.Status != BookingStatusConfirmed {
		return b, Event{}, invalidTransition(b.Status, BookingStatusNoShow, "")
	}

	next, ev := b.moveTo(BookingStatusNoShow, EventNoShow)
	return next, ev, nil
}

// ShowWrite is a conditional write of a show made in the same unit as a
// booking update.
type ShowWrite struct {
	Next            Show
	ExpectedVersion int
}

type BookingRepository interface {
	// CreateBooking inserts b and writes show, guarded by expectedShowVersion,
	// as a single unit. On success b.ID is set.
	CreateBooking(ctx context.Context, b *Booking, show Show, expectedShowVersion int) error
	GetBooking(ctx context.Context, id int64) (*Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*Booking, error)
	// UpdateBooking stores next only if the persisted booking version equals
	// expectedVersion. A non-nil show write is applied in the same unit.
	UpdateBooking(ctx context.Context, next Booking, expectedVersion int, show *ShowWrite) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]Booking, error)
	ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]Booking, error)
	// HeldSeatIDs returns the seat ids taken by bookings of the show that
	// still hold their seats.
	HeldSeatIDs(ctx context.Context, showID int64) ([]int64, error)
}
