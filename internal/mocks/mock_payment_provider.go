package mocks

import (
	"context"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) Charge(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PaymentResult), args.Error(1)
}

func (m *MockPaymentProvider) Refund(ctx context.Context, paymentReference string, amount decimal.Decimal) (domain.RefundResult, error) {
	args := m.Called(ctx, paymentReference, amount)
	return args.Get(0).(domain.RefundResult), args.Error(1)
}
