// Package api holds the JSON request and response bodies of the HTTP API.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

type SystemInfo struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,alpha,min=2,max=50"`
	LastName  string `json:"lastName" validate:"required,alpha,min=2,max=50"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,password"`
}

type UserResponse struct {
	Id        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateShowRequest struct {
	TotalSeats int       `json:"totalSeats" validate:"required,min=1,max=1000"`
	StartsAt   time.Time `json:"startsAt" validate:"required,future"`
	EndsAt     time.Time `json:"endsAt" validate:"required,gtfield=StartsAt"`
}

type ShowResponse struct {
	Id             int64     `json:"id"`
	TotalSeats     int       `json:"totalSeats"`
	BookedSeats    int       `json:"bookedSeats"`
	AvailableSeats int       `json:"availableSeats"`
	StartsAt       time.Time `json:"startsAt"`
	EndsAt         time.Time `json:"endsAt"`
	Version        int       `json:"version"`
}

type AvailabilityResponse struct {
	ShowId         int64 `json:"showId"`
	AvailableSeats int   `json:"availableSeats"`
	SoldOut        bool  `json:"soldOut"`
}

// SeatCountRequest blocks or unblocks a number of seats on a show.
type SeatCountRequest struct {
	Count int `json:"count" validate:"required,min=1"`
}

type SeatRequest struct {
	SeatId   int64           `json:"seatId" validate:"required,min=1"`
	Row      string          `json:"row" validate:"required,max=3"`
	Number   int             `json:"number" validate:"required,min=1"`
	Category string          `json:"category" validate:"required,seat_category"`
	Price    decimal.Decimal `json:"price" validate:"positive_amount"`
}

type InitiateBookingRequest struct {
	ShowId int64         `json:"showId" validate:"required,min=1"`
	UserId int64         `json:"userId" validate:"required,min=1"`
	Seats  []SeatRequest `json:"seats" validate:"required,min=1,max=10,dive"`
}

type SeatResponse struct {
	SeatId   int64           `json:"seatId"`
	Row      string          `json:"row"`
	Number   int             `json:"number"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

type BookingResponse struct {
	Reference          string          `json:"reference"`
	ShowId             int64           `json:"showId"`
	UserId             int64           `json:"userId"`
	NumberOfSeats      int             `json:"numberOfSeats"`
	Seats              []SeatResponse  `json:"seats"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"paymentStatus"`
	PaymentReference   string          `json:"paymentReference,omitempty"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	RefundAmount       decimal.Decimal `json:"refundAmount"`
	CreatedAt          time.Time       `json:"createdAt"`
	ExpiresAt          time.Time       `json:"expiresAt"`
	ConfirmedAt        *time.Time      `json:"confirmedAt,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	Version            int             `json:"version"`
}

type PayRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"positive_amount"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,max=100"`
}

type CancelRequest struct {
	Reason        string `json:"reason" validate:"max=500"`
	RequestRefund *bool  `json:"requestRefund,omitempty"`
}
