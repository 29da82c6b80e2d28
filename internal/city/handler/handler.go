package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"citygate/internal/city/models"
	"citygate/internal/platform/middleware"
	dErrors "citygate/pkg/domain-errors"
	"citygate/pkg/platform/httputil"
)

// maxBodyBytes bounds POST /city bodies.
const maxBodyBytes = 1 << 16

// Service is the city domain surface the handler needs.
type Service interface {
	Upsert(ctx context.Context, req *models.UpsertCityRequest) (*models.City, error)
	Fetch(ctx context.Context, rawKey string) (*models.City, error)
}

// Handler serves the city endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the city routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/city", h.handleUpsert)
	r.Get("/city/{name}", h.handleFetch)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.UpsertCityRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.DebugContext(ctx, "invalid city request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	city, err := h.service.Upsert(ctx, &req)
	if err != nil {
		h.logFailure(ctx, "city upsert failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.NewUpsertCityResponse(city))
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	name, err := cityParam(r)
	if err != nil {
		h.logger.DebugContext(ctx, "invalid city path", "request_id", requestID, "error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid city name"))
		return
	}

	city, err := h.service.Fetch(ctx, name)
	if err != nil {
		h.logFailure(ctx, "city fetch failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, city)
}

// logFailure keeps expected client outcomes out of the error log.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeNotFound:
		h.logger.DebugContext(ctx, msg, "request_id", requestID, "error", err.Error())
	default:
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}
}

// decodeBody reads exactly one JSON value; trailing data is an error.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after request body")
	}
	return nil
}

// cityParam returns the decoded {name} segment. chi matches on RawPath when
// the client's encoding differs from Go's default, and the param is then still
// percent-encoded.
func cityParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, nil
	}
	return url.PathUnescape(name)
}
