// Package httputil writes JSON responses and translates coded domain errors
// into HTTP status codes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "citygate/pkg/domain-errors"
)

// ErrorResponse is the envelope for every non-2xx body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON encodes v with the given status. Encoding failures after the header
// is written cannot be reported to the client and are dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code. Internal errors without a code never
// leak their description.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) || de.Code == dErrors.CodeInternal {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	WriteJSON(w, StatusFor(de.Code), ErrorResponse{Error: de.Error()})
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
