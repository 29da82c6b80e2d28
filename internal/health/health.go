// Package health reports backend reachability to orchestrators.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"citygate/internal/platform/middleware"
	"citygate/pkg/platform/httputil"
)

// Status is the health check outcome.
type Status string

const (
	Healthy   Status = "healthy"
	Unhealthy Status = "unhealthy"
)

// Pinger is the liveness check. *storage.Client bounds it by its per-operation
// timeout.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reporter maps Ping to a Status. It never writes and never touches the
// collection.
type Reporter struct {
	pinger Pinger
	logger *slog.Logger
}

func NewReporter(pinger Pinger, logger *slog.Logger) *Reporter {
	return &Reporter{pinger: pinger, logger: logger}
}

func (r *Reporter) CheckHealth(ctx context.Context) Status {
	if err := r.pinger.Ping(ctx); err != nil {
		r.logger.WarnContext(ctx, "health check failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		return Unhealthy
	}
	return Healthy
}

// Response is the GET /health body.
type Response struct {
	Status Status `json:"status"`
}

type Handler struct {
	reporter *Reporter
}

func NewHandler(reporter *Reporter) *Handler {
	return &Handler{reporter: reporter}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.reporter.CheckHealth(r.Context())
	code := http.StatusOK
	if status != Healthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, Response{Status: status})
}
