package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/samber/lo"
)

func (app *Application) InitiateBooking(w http.ResponseWriter, r *http.Request) {
	var input api.InitiateBookingRequest
	if !app.readAndValidate(w, r, &input) {
		return
	}

	b, err := app.bookings.Initiate(r.Context(), booking.InitiateCommand{
		ShowID: input.ShowId,
		UserID: input.UserId,
		Seats: lo.Map(input.Seats, func(s api.SeatRequest, _ int) domain.SeatSnapshot {
			return domain.SeatSnapshot{
				SeatID:   s.SeatId,
				Row:      s.Row,
				Number:   s.Number,
				Category: s.Category,
				Price:    s.Price,
			}
		}),
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", "/bookings/"+b.Reference)

	err = app.writeJSON(w, http.StatusCreated, toBookingResponse(b), headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := app.bookings.Get(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.bookingResponse(w, r, b)
}

// PayBooking charges the booking. A declined charge is not an error: the
// booking stays pending and the response carries the FAILED payment status.
func (app *Application) PayBooking(w http.ResponseWriter, r *http.Request) {
	var input api.PayRequest
	if !app.readAndValidate(w, r, &input) {
		return
	}

	b, err := app.bookings.Pay(r.Context(), booking.PayCommand{
		Reference: chi.URLParam(r, "reference"),
		Amount:    input.Amount,
		Method:    input.PaymentMethod,
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.bookingResponse(w, r, b)
}

func (app *Application) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var input api.CancelRequest
	if !app.readAndValidate(w, r, &input) {
		return
	}

	b, err := app.bookings.Cancel(r.Context(), chi.URLParam(r, "reference"), domain.CancelCommand{
		Reason:      input.Reason,
		WaiveRefund: input.RequestRefund != nil && !*input.RequestRefund,
	})
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.bookingResponse(w, r, b)
}

func (app *Application) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	b, err := app.bookings.MarkNoShow(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.bookingResponse(w, r, b)
}

func (app *Application) bookingResponse(w http.ResponseWriter, r *http.Request, b *domain.Booking) {
	err := app.writeJSON(w, http.StatusOK, toBookingResponse(b), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toBookingResponse(b *domain.Booking) api.BookingResponse {
	return api.BookingResponse{
		Reference:     b.Reference,
		ShowId:        b.ShowID,
		UserId:        b.UserID,
		NumberOfSeats: b.NumberOfSeats,
		Seats: lo.Map(b.Seats, func(s domain.SeatSnapshot, _ int) api.SeatResponse {
			return api.SeatResponse{
				SeatId:   s.SeatID,
				Row:      s.Row,
				Number:   s.Number,
				Category: s.Category,
				Price:    s.Price,
			}
		}),
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		PaymentReference:   b.PaymentReference,
		TotalAmount:        b.TotalAmount,
		RefundAmount:       b.RefundAmount,
		CreatedAt:          b.CreatedAt,
		ExpiresAt:          b.ExpiresAt,
		ConfirmedAt:        b.ConfirmedAt,
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		Version:            b.Version,
	}
}
