package routes

import (
	"github.com/waveforge/storefront/internal/router"
)

// RegisterAPIRoutes registers the order lifecycle JSON API plus the
// operational endpoints.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	h := deps.OrderHandler

	r.Post("/api/orders", h.PlaceOrder)
	r.Get("/api/orders", h.ListOrders)
	r.Get("/api/orders/{id}", h.GetOrder)
	r.Get("/api/users/{id}/orders", h.ListUserOrders)
	r.Patch("/api/orders/{id}/status", h.UpdateStatus)
	r.Post("/api/orders/{id}/payment", h.RecordPayment)
	r.Patch("/api/orders/{id}/tracking", h.SetTracking)
	r.Patch("/api/orders/{id}/notes", h.SetNotes)

	if deps.HealthHandler != nil {
		r.Get("/healthz", deps.HealthHandler)
	}
	if deps.MetricsHandler != nil {
		r.Handle("GET", "/metrics", deps.MetricsHandler)
	}
}
