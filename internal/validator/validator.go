package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	ErrRequired     = "is required"
	ErrEmail        = "must be a valid email address"
	ErrAlpha        = "must contain only letters"
	ErrMinLength    = "must be at least %s characters long"
	ErrMaxLength    = "must be at most %s characters long"
	ErrMinItems     = "must contain at least %s items"
	ErrMaxItems     = "must contain at most %s items"
	ErrMinValue     = "must be at least %s"
	ErrMaxValue     = "must be at most %s"
	ErrFuture       = "must be in the future"
	ErrAfterField   = "must be after %s"
	ErrSeatCategory = "must be one of REGULAR PREMIUM VIP EXECUTIVE BALCONY BOX WHEELCHAIR"
	ErrAmount       = "must be a positive amount with at most two decimal places"
	ErrPassword     = "must be at least 8 characters long and include at least one uppercase letter, one lowercase letter, " +
		"one number, and one special character (!@#$%^&*)."
	ErrInvalid = "is invalid"
)

var hasSpecialRgx = regexp.MustCompile(`[!@#$%^&*]`)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	// Amounts are validated as their string form so that tags apply to the
	// value rather than to the decimal's internal fields.
	validator.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	validator.RegisterValidation("password", validatePassword)
	validator.RegisterValidation("future", validateFuture)
	validator.RegisterValidation("seat_category", validateSeatCategory)
	validator.RegisterValidation("positive_amount", validatePositiveAmount)

	return validator
}

func decimalValue(v reflect.Value) any {
	if d, ok := v.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func validateFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}

	return t.After(time.Now())
}

func validateSeatCategory(fl validator.FieldLevel) bool {
	return domain.IsSeatCategory(fl.Field().String())
}

func validatePositiveAmount(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}

	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 || len(password) > 25 {
		return false
	}

	containsUpper, containsLower, containsDigit, containsSpecial := false, false, false, false

	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			containsUpper = true
		case unicode.IsLower(ch):
			containsLower = true
		case unicode.IsDigit(ch):
			containsDigit = true
		case hasSpecialRgx.MatchString(string(ch)):
			containsSpecial = true
		}
	}

	return containsUpper && containsLower && containsDigit && containsSpecial
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return ErrRequired
	case "email":
		return ErrEmail
	case "alpha":
		return ErrAlpha
	case "min":
		return boundMessage(err, ErrMinLength, ErrMinItems, ErrMinValue)
	case "max":
		return boundMessage(err, ErrMaxLength, ErrMaxItems, ErrMaxValue)
	case "future":
		return ErrFuture
	case "gtfield":
		return fmt.Sprintf(ErrAfterField, err.Param())
	case "seat_category":
		return ErrSeatCategory
	case "positive_amount":
		return ErrAmount
	case "password":
		return ErrPassword
	default:
		return ErrInvalid
	}
}

func boundMessage(err validator.FieldError, length, items, value string) string {
	switch err.Kind() {
	case reflect.String:
		return fmt.Sprintf(length, err.Param())
	case reflect.Slice, reflect.Map, reflect.Array:
		return fmt.Sprintf(items, err.Param())
	default:
		return fmt.Sprintf(value, err.Param())
	}
}
