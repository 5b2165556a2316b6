package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripePaymentProvider charges bookings with confirmed PaymentIntents. The
// package-level stripe.Key must be set before use.
type StripePaymentProvider struct {
	currency string
}

func NewStripePaymentProvider(currency string) *StripePaymentProvider {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripePaymentProvider{
		currency: strings.ToLower(currency),
	}
}

func (s *StripePaymentProvider) Charge(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	currency := s.currency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toCents(req.Amount)),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(req.Method),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_reference", req.BookingReference)
	params.SetIdempotencyKey("charge-" + req.BookingReference)

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return domain.PaymentResult{
				Status:        domain.PaymentStatusFailed,
				FailureReason: stripeErr.Msg,
			}, nil
		}

		return domain.PaymentResult{}, fmt.Errorf("stripe charge for %s: %w", req.BookingReference, err)
	}

	return resultFromIntent(pi), nil
}

func (s *StripePaymentProvider) Refund(ctx context.Context, paymentReference string, amount decimal.Decimal) (domain.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentReference),
		Amount:        stripe.Int64(toCents(amount)),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return domain.RefundResult{}, fmt.Errorf("stripe refund for %s: %w", paymentReference, err)
	}

	return domain.RefundResult{
		Success:   r.Status != stripe.RefundStatusFailed && r.Status != stripe.RefundStatusCanceled,
		Reference: r.ID,
		Amount:    fromCents(r.Amount),
	}, nil
}

func resultFromIntent(pi *stripe.PaymentIntent) domain.PaymentResult {
	result := domain.PaymentResult{Reference: pi.ID}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
		result.Status = domain.PaymentStatusCompleted
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		result.Status = domain.PaymentStatusFailed
		if pi.LastPaymentError != nil {
			result.FailureReason = pi.LastPaymentError.Msg
		}
	default:
		result.Status = domain.PaymentStatusProcessing
	}

	return result
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
