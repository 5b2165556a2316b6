package domain

import "errors"

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrVersionConflict         = errors.New("version conflict")
	ErrHighContention          = errors.New("high contention")
	ErrInsufficientSeats       = errors.New("not enough seats available")
	ErrOverRelease             = errors.New("cannot release more seats than are booked")
	ErrInvalidSeatCount        = errors.New("number of seats must be greater than zero")
	ErrResourceBusy            = errors.New("resource is currently being processed, please try again")
	ErrBookingExpired          = errors.New("booking has expired")
	ErrInvalidStateTransition  = errors.New("invalid booking state transition")
	ErrBookingNotCancellable   = errors.New("booking cannot be cancelled")
	ErrRateLimited             = errors.New("too many requests")
	ErrPaymentAmountMismatch   = errors.New("payment amount does not match booking amount")
	ErrUserAlreadyExists       = errors.New("user already exists with this email")
	ErrRegistrationInProgress  = errors.New("registration is already in progress for this email")
	ErrDuplicateSeatInBooking  = errors.New("a seat can only appear once in a booking")
	ErrShowNotAcceptingBooking = errors.New("show has already started")
	ErrSeatAlreadyBooked       = errors.New("some seats are already booked")
)

// Code is a stable, machine readable identifier for an error returned by the core.
type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeVersionConflict        Code = "VERSION_CONFLICT"
	CodeHighContention         Code = "HIGH_CONTENTION"
	CodeInsufficientSeats      Code = "INSUFFICIENT_SEATS"
	CodeOverRelease            Code = "OVER_RELEASE"
	CodeInvalidSeatCount       Code = "INVALID_SEAT_COUNT"
	CodeResourceBusy           Code = "RESOURCE_BUSY"
	CodeRegistrationInProgress Code = "REGISTRATION_IN_PROGRESS"
	CodeBookingExpired         Code = "BOOKING_EXPIRED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeBookingNotCancellable  Code = "BOOKING_NOT_CANCELLABLE"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodePaymentAmountMismatch  Code = "PAYMENT_AMOUNT_MISMATCH"
	CodeUserAlreadyExists      Code = "USER_ALREADY_EXISTS"
	CodeDuplicateSeat          Code = "DUPLICATE_SEAT"
	CodeShowStarted            Code = "SHOW_STARTED"
	CodeSeatAlreadyBooked      Code = "SEAT_ALREADY_BOOKED"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Order matters: more specific errors that wrap a broader sentinel come first.
var errorCodes = []struct {
	err  error
	code Code
}{
	{ErrRecordNotFound, CodeNotFound},
	{ErrHighContention, CodeHighContention},
	{ErrVersionConflict, CodeVersionConflict},
	{ErrInsufficientSeats, CodeInsufficientSeats},
	{ErrOverRelease, CodeOverRelease},
	{ErrInvalidSeatCount, CodeInvalidSeatCount},
	{ErrRegistrationInProgress, CodeRegistrationInProgress},
	{ErrResourceBusy, CodeResourceBusy},
	{ErrBookingExpired, CodeBookingExpired},
	{ErrInvalidStateTransition, CodeInvalidStateTransition},
	{ErrBookingNotCancellable, CodeBookingNotCancellable},
	{ErrRateLimited, CodeRateLimited},
	{ErrPaymentAmountMismatch, CodePaymentAmountMismatch},
	{ErrUserAlreadyExists, CodeUserAlreadyExists},
	{ErrDuplicateSeatInBooking, CodeDuplicateSeat},
	{ErrShowNotAcceptingBooking, CodeShowStarted},
	{ErrSeatAlreadyBooked, CodeSeatAlreadyBooked},
}

// ErrorCode returns the stable code for err, or CodeInternal when err is not
// part of the domain taxonomy.
func ErrorCode(err error) Code {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}
