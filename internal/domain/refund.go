package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var partialRefundRate = decimal.NewFromFloat(0.8)

// RefundAmount returns the share of total refunded when a booking is
// cancelled untilShow before the show starts.
func RefundAmount(total decimal.Decimal, untilShow time.Duration) decimal.Decimal {
	switch {
	case untilShow >= FullRefundWindow:
		return total
	case untilShow >= CancellationCutoff:
		return total.Mul(partialRefundRate).Round(2)
	default:
		return decimal.Zero
	}
}
