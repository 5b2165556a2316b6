package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "PENDING"
	PaymentStatusProcessing    PaymentStatus = "PROCESSING"
	PaymentStatusCompleted     PaymentStatus = "COMPLETED"
	PaymentStatusFailed        PaymentStatus = "FAILED"
	PaymentStatusRefunded      PaymentStatus = "REFUNDED"
	PaymentStatusPartialRefund PaymentStatus = "PARTIAL_REFUND"
)

type PaymentRequest struct {
	BookingReference string
	Amount           decimal.Decimal
	Currency         string
	// Method is the provider specific payment method, e.g. a card token.
	Method string
}

// PaymentResult is what a payment provider reports for a charge. Status is
// one of PaymentStatusCompleted, PaymentStatusFailed or PaymentStatusPending.
type PaymentResult struct {
	Success       bool
	Reference     string
	Status        PaymentStatus
	FailureReason string
}

type RefundResult struct {
	Success   bool
	Reference string
	Amount    decimal.Decimal
}

type PaymentProvider interface {
	Charge(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	Refund(ctx context.Context, paymentReference string, amount decimal.Decimal) (RefundResult, error)
}
