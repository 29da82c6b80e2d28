package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this project. WriteTimeout
// stays above the storage operation timeout so a slow backend still produces a
// response instead of a dropped connection.
func New(addr string, handler http.Handler, storageTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      storageTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
