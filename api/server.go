/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/resources/*      Generic resource catalog
  /api/reservations/*   Ledger queries and lifecycle operations
  /api/rooms/*          Room registration and bed booking
  /api/blood/*          Blood bank inventory and matching
  /api/dispatch/*       Ambulance + driver assignment
  /api/dashboards       Occupancy snapshots
  /api/charges/*        Billing
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Resource catalog. IDs contain a slash ("room/101"), hence the
		// wildcard routes.
		r.Route("/resources", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Get("/*", h.GetResource)
			r.Delete("/*", h.DeleteResource)
		})
		r.Get("/availability/*", h.ResourceAvailability)

		// Reservation ledger
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/confirm", h.ConfirmReservation)
			r.Post("/{id}/complete", h.CompleteReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/reopen", h.ReopenReservation)
		})

		// Rooms
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Post("/book", h.BookRoom)
			r.Post("/bookings/{id}/admit", h.AdmitPatient)
			r.Post("/bookings/{id}/discharge", h.DischargePatient)
			r.Get("/{number}/availability", h.RoomAvailability)
		})

		// Blood bank
		r.Route("/blood", func(r chi.Router) {
			r.Post("/bags", h.RegisterBag)
			r.Post("/reserve", h.ReserveBlood)
			r.Post("/reservations/{id}/use", h.UseBag)
			r.Post("/reservations/{id}/release", h.ReleaseBag)
			r.Get("/stats", h.BloodStats)
			r.Post("/sweep", h.SweepExpiredBags)
		})

		// Dispatch
		r.Route("/dispatch", func(r chi.Router) {
			r.Post("/ambulances", h.RegisterAmbulance)
			r.Post("/ambulances/{plate}/serviced", h.AmbulanceServiced)
			r.Post("/drivers", h.RegisterDriver)
			r.Post("/runs", h.DispatchRun)
			r.Post("/runs/{id}/complete", h.CompleteRun)
			r.Post("/runs/{id}/cancel", h.CancelRun)
			r.Post("/maintenance/sweep", h.SweepMaintenance)
		})

		// Dashboards & billing
		r.Get("/dashboards", h.GetDashboard)
		r.Get("/charges/{requester}", h.ListCharges)

		// Demo scenarios
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/{name}", h.LoadScenario)
		})

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
