package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/worker"
	"go.uber.org/zap"
)

// Tasks runs work outside the request that triggered it.
type Tasks interface {
	Submit(name string, task worker.Task) error
}

// Notifier e-mails customers about booking changes in the background. A nil
// Notifier sends nothing.
type Notifier struct {
	tasks  Tasks
	mailer mailer.Mailer
	users  domain.UserRepository
	shows  domain.ShowRepository
	logger *zap.Logger
}

func NewNotifier(tasks Tasks, m mailer.Mailer, users domain.UserRepository, shows domain.ShowRepository, logger *zap.Logger) *Notifier {
	return &Notifier{
		tasks:  tasks,
		mailer: m,
		users:  users,
		shows:  shows,
		logger: logger.With(zap.String("component", "notifier")),
	}
}

type bookingEmail struct {
	Reference     string
	NumberOfSeats int
	TotalAmount   string
	RefundAmount  string
	StartsAt      time.Time
}

func (n *Notifier) BookingConfirmed(b domain.Booking) {
	n.submit("booking confirmed email", b, mailer.BookingConfirmedTemplate)
}

func (n *Notifier) BookingCancelled(b domain.Booking) {
	n.submit("booking cancelled email", b, mailer.BookingCancelledTemplate)
}

func (n *Notifier) submit(name string, b domain.Booking, template string) {
	if n == nil {
		return
	}

	err := n.tasks.Submit(name, func(ctx context.Context) error {
		return n.send(ctx, b, template)
	})
	if err != nil {
		n.logger.Warn("notification not scheduled", zap.String("reference", b.Reference), zap.Error(err))
	}
}

func (n *Notifier) send(ctx context.Context, b domain.Booking, template string) error {
	user, err := n.users.GetByID(ctx, b.UserID)
	if err != nil {
		return fmt.Errorf("look up customer of %s: %w", b.Reference, err)
	}

	show, err := n.shows.GetShow(ctx, b.ShowID)
	if err != nil {
		return fmt.Errorf("look up show of %s: %w", b.Reference, err)
	}

	data := bookingEmail{
		Reference:     b.Reference,
		NumberOfSeats: b.NumberOfSeats,
		TotalAmount:   b.TotalAmount.StringFixed(2),
		StartsAt:      show.StartsAt,
	}
	if b.RefundAmount.IsPositive() {
		data.RefundAmount = b.RefundAmount.StringFixed(2)
	}

	return n.mailer.Send(user.Email, template, data)
}
