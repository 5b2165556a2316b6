package payment

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

// SimulatedPaymentProvider approves a configurable share of charges without
// talking to a payment network. Refunds always succeed.
type SimulatedPaymentProvider struct {
	successRate float64

	mu   sync.Mutex
	roll func() float64
}

type SimulatedOption func(*SimulatedPaymentProvider)

// WithRoll replaces the random source. roll must return values in [0, 1).
func WithRoll(roll func() float64) SimulatedOption {
	return func(p *SimulatedPaymentProvider) {
		p.roll = roll
	}
}

func NewSimulatedPaymentProvider(successRate float64, opts ...SimulatedOption) *SimulatedPaymentProvider {
	p := &SimulatedPaymentProvider{
		successRate: successRate,
		roll:        rand.Float64,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *SimulatedPaymentProvider) Charge(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentResult{}, err
	}

	p.mu.Lock()
	roll := p.roll()
	p.mu.Unlock()

	reference := "pay_" + uuid.NewString()

	if roll >= p.successRate {
		return domain.PaymentResult{
			Reference:     reference,
			Status:        domain.PaymentStatusFailed,
			FailureReason: "card declined",
		}, nil
	}

	return domain.PaymentResult{
		Success:   true,
		Reference: reference,
		Status:    domain.PaymentStatusCompleted,
	}, nil
}

func (p *SimulatedPaymentProvider) Refund(ctx context.Context, paymentReference string, amount decimal.Decimal) (domain.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RefundResult{}, err
	}

	return domain.RefundResult{
		Success:   true,
		Reference: "re_" + uuid.NewString(),
		Amount:    amount,
	}, nil
}
