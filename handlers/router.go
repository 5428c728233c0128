package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Service is everything the HTTP API needs from the line service
type Service interface {
	LineService
	StationService
	ChangeSource
}

// RouterConfig wires the API routes
type RouterConfig struct {
	Service        Service
	DB             Pinger
	Metrics        http.Handler // optional
	AllowedOrigins []string
	ChangeLogLimit int
}

// NewRouter builds the chi router serving the registry API
func NewRouter(cfg RouterConfig) http.Handler {
	lineHandler := NewLineHandler(cfg.Service)
	stationHandler := NewStationHandler(cfg.Service)
	alertsHandler := NewAlertsHandler(cfg.Service, cfg.ChangeLogLimit)
	healthHandler := NewHealthHandler(cfg.DB)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/healthz", healthHandler.Live)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", healthHandler.Live)
		r.Get("/alerts.pb", alertsHandler.GetAlerts)

		r.Route("/stations", func(r chi.Router) {
			r.Post("/", stationHandler.CreateStation)
			r.Get("/", stationHandler.ListStations)
			r.Delete("/{stationId}", stationHandler.DeleteStation)
		})

		r.Route("/lines", func(r chi.Router) {
			r.Post("/", lineHandler.CreateLine)
			r.Get("/", lineHandler.ListLines)
			r.Get("/{lineId}", lineHandler.GetLine)
			r.Put("/{lineId}", lineHandler.UpdateLine)
			r.Delete("/{lineId}", lineHandler.DeleteLine)
			r.Post("/{lineId}/sections", lineHandler.AddSection)
			r.Delete("/{lineId}/sections", lineHandler.RemoveStation)
		})
	})

	return r
}
