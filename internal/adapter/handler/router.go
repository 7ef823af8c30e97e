package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/items/restock", h.Restock)
		r.Get("/items", h.ListItems)
		r.Get("/items/{name}/balance", h.Balance)
		r.Post("/workers", h.RegisterWorker)
		r.Get("/workers", h.ListWorkers)
		r.Get("/workers/{name}", h.GetWorker)
		r.Post("/handovers", h.Handover)
		r.Post("/returns", h.Return)
		r.Post("/waste", h.Waste)
		r.Get("/movements", h.Movements)
		r.Get("/custody", h.OpenCustody)
		r.Post("/import", h.Import)
	})
	return r
}
