package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairpad/internal/api"
	"pairpad/internal/metrics"
)

func New(h *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(metrics.Middleware)

	r.Get("/api/v1/healthz", h.Health)
	r.Get("/api/v1/languages", h.ListLanguages)

	r.Post("/api/v1/sessions", h.CreateSession)
	r.Get("/api/v1/sessions/{id}", h.GetSession)
	r.Patch("/api/v1/sessions/{id}", h.UpdateSession)
	r.Delete("/api/v1/sessions/{id}", h.DeleteSession)

	r.Get("/api/v1/sessions/{id}/code", h.GetCode)
	r.Put("/api/v1/sessions/{id}/code", h.SaveCode)
	r.Get("/api/v1/sessions/{id}/participants", h.GetParticipants)
	r.Get("/api/v1/sessions/{id}/history", h.GetHistory)

	r.Get("/ws/sessions/{id}", h.CollabWS)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
