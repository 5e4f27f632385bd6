package routes

import (
	"net/http"

	"github.com/waveforge/storefront/internal/handler"
)

// APIDeps contains dependencies for the order API routes
type APIDeps struct {
	OrderHandler *handler.OrderHandler

	// HealthHandler serves readiness checks for load balancers
	HealthHandler http.HandlerFunc

	// MetricsHandler serves the Prometheus scrape endpoint
	MetricsHandler http.Handler
}
