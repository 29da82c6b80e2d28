// Package httpapi assembles the public HTTP surface.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"citygate/internal/platform/metrics"
	"citygate/internal/platform/middleware"
	dErrors "citygate/pkg/domain-errors"
	"citygate/pkg/platform/httputil"
)

// Registrar mounts routes on a chi router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the shared middleware chain, every registrar and /metrics.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(m))
	r.Use(chimw.CleanPath)

	for _, reg := range registrars {
		reg.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.ErrorResponse{Error: "method not allowed"})
	})
	return r
}
