package app

import (
	"context"
	"net/http"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

func (app *Application) CreateShow(w http.ResponseWriter, r *http.Request) {
	var input api.CreateShowRequest
	if !app.readAndValidate(w, r, &input) {
		return
	}

	show, err := app.inventory.CreateShow(r.Context(), input.TotalSeats, input.StartsAt, input.EndsAt)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusCreated, toShowResponse(show), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetShow(w http.ResponseWriter, r *http.Request) {
	showID, err := readIDParam(r, "showId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	show, err := app.inventory.GetShow(r.Context(), showID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toShowResponse(show), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetAvailability(w http.ResponseWriter, r *http.Request) {
	showID, err := readIDParam(r, "showId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	show, err := app.inventory.GetShow(r.Context(), showID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	resp := api.AvailabilityResponse{
		ShowId:         show.ID,
		AvailableSeats: show.AvailableSeats,
		SoldOut:        show.AvailableSeats == 0,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// BlockSeats takes seats out of sale without a booking, e.g. for a damaged row.
func (app *Application) BlockSeats(w http.ResponseWriter, r *http.Request) {
	app.adjustSeats(w, r, app.inventory.BookSeats)
}

func (app *Application) UnblockSeats(w http.ResponseWriter, r *http.Request) {
	app.adjustSeats(w, r, app.inventory.ReleaseSeats)
}

func (app *Application) adjustSeats(
	w http.ResponseWriter,
	r *http.Request,
	adjust func(ctx context.Context, showID int64, n int) (*domain.Show, error),
) {
	showID, err := readIDParam(r, "showId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.SeatCountRequest
	if !app.readAndValidate(w, r, &input) {
		return
	}

	show, err := adjust(r.Context(), showID, input.Count)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toShowResponse(show), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toShowResponse(show *domain.Show) api.ShowResponse {
	return api.ShowResponse{
		Id:             show.ID,
		TotalSeats:     show.TotalSeats,
		BookedSeats:    show.BookedSeats,
		AvailableSeats: show.AvailableSeats,
		StartsAt:       show.StartsAt,
		EndsAt:         show.EndsAt,
		Version:        show.Version,
	}
}
