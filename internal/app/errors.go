package app

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/ratelimit"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"go.uber.org/zap"
)

const (
	ErrInternalServer   = "The server encountered a problem and could not process your request"
	ErrNotFound         = "The requested resource not found"
	ErrMethodNotAllowed = "The %s method is not supported for this resource"
	ErrValidation       = "One or more fields are invalid"
)

var statusByCode = map[domain.Code]int{
	domain.CodeNotFound:               http.StatusNotFound,
	domain.CodeVersionConflict:        http.StatusConflict,
	domain.CodeHighContention:         http.StatusConflict,
	domain.CodeResourceBusy:           http.StatusConflict,
	domain.CodeRegistrationInProgress: http.StatusConflict,
	domain.CodeInsufficientSeats:      http.StatusConflict,
	domain.CodeOverRelease:            http.StatusConflict,
	domain.CodeBookingNotCancellable:  http.StatusConflict,
	domain.CodeUserAlreadyExists:      http.StatusConflict,
	domain.CodeShowStarted:            http.StatusConflict,
	domain.CodeSeatAlreadyBooked:      http.StatusConflict,
	domain.CodeBookingExpired:         http.StatusGone,
	domain.CodeInvalidStateTransition: http.StatusUnprocessableEntity,
	domain.CodeRateLimited:            http.StatusTooManyRequests,
	domain.CodeInvalidSeatCount:       http.StatusBadRequest,
	domain.CodeDuplicateSeat:          http.StatusBadRequest,
	domain.CodePaymentAmountMismatch:  http.StatusBadRequest,
}

func statusFor(code domain.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (app *Application) logError(r *http.Request, err error) {
	app.logger.Error(err.Error(),
		zap.String("method", r.Method),
		zap.String("uri", r.URL.RequestURI()),
		zap.String("request_id", middleware.GetReqID(r.Context())))
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, code domain.Code, message string) {
	resp := api.ErrorResponse{
		Code:      string(code),
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)

	app.errorResponse(w, r, http.StatusInternalServerError, domain.CodeInternal, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, domain.CodeNotFound, ErrNotFound)
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf(ErrMethodNotAllowed, r.Method)
	app.errorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", message)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		app.badRequestResponse(w, r, err)
		return
	}

	resp := api.ValidationErrorResponse{
		Message:          ErrValidation,
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
		ValidationErrors: make([]api.ValidationError, 0, len(validationErrs)),
	}

	for _, e := range validationErrs {
		resp.ValidationErrors = append(resp.ValidationErrors, api.ValidationError{
			Field: e.Field(),
			Issue: appvalidator.ValidationMessage(e),
		})
	}

	err = app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// domainErrorResponse maps an error from the core to its status and stable
// code. Errors outside the taxonomy are reported as internal errors.
func (app *Application) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	if code == domain.CodeInternal {
		app.serverErrorResponse(w, r, err)
		return
	}

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	}

	status := statusFor(code)
	if status == http.StatusConflict {
		app.logger.Info("request conflicted",
			zap.String("code", string(code)),
			zap.String("uri", r.URL.RequestURI()),
			zap.Error(err))
	}

	app.errorResponse(w, r, status, code, err.Error())
}
