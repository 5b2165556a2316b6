package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(app.logRequests)
	r.Use(app.recoverPanic)

	r.Get("/health", app.GetHealth)

	r.Post("/users", app.RegisterUser)

	r.Route("/shows", func(r chi.Router) {
		r.Post("/", app.CreateShow)
		r.Get("/{showId}", app.GetShow)
		r.Get("/{showId}/availability", app.GetAvailability)
	})

	r.Route("/admin/shows/{showId}/seats", func(r chi.Router) {
		r.Post("/block", app.BlockSeats)
		r.Post("/unblock", app.UnblockSeats)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", app.InitiateBooking)
		r.Get("/{reference}", app.GetBooking)
		r.Post("/{reference}/payment", app.PayBooking)
		r.Post("/{reference}/cancellation", app.CancelBooking)
		r.Post("/{reference}/no-show", app.MarkNoShow)
	})

	return r
}
