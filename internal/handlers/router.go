package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Brownie44l1/vision-api/internal/metrics"
)

// NewRouter wires the gateway operations plus health, metrics and API docs.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use([]func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		CORS,
		metrics.Middleware,
	}...)

	r.Get("/", h.Index)
	r.Get("/health", h.Health)
	r.Post("/predict", h.Predict)
	r.Post("/caption", h.Caption)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Handle("/metrics", promhttp.Handler())

	return r
}
