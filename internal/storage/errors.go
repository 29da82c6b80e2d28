package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"citygate/pkg/platform/sentinel"
)

var (
	// ErrNotFound means the backend confirmed the document is absent.
	ErrNotFound = sentinel.ErrNotFound
	// ErrAlreadyExists is returned by create-only writes and collection creation
	// when the target is already present.
	ErrAlreadyExists = sentinel.ErrAlreadyExists
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindTimeout
	KindConnectionRefused
	KindAuthRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection_refused"
	case KindAuthRejected:
		return "auth_rejected"
	default:
		return "error"
	}
}

// TransportError reports a backend that could not be reached or failed to
// answer. It matches sentinel.ErrUnavailable with errors.Is.
type TransportError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewTransportError builds a TransportError for a driver-detected failure.
func NewTransportError(kind ErrorKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

func (e *TransportError) Error() string {
	op := e.Op
	if op == "" {
		op = "request"
	}
	if e.Err == nil {
		return fmt.Sprintf("storage %s: %s", op, e.Kind)
	}
	return fmt.Sprintf("storage %s: %s: %v", op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == sentinel.ErrUnavailable
}

// KindOf returns the transport kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return KindOther, false
}

// IsAuthRejected reports whether the backend refused the configured credentials.
func IsAuthRejected(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindAuthRejected
}

// classify turns a raw driver error into the storage taxonomy. Sentinels pass
// through unchanged; everything else becomes a *TransportError tagged with op.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		if te.Op != "" {
			return te
		}
		return &TransportError{Kind: te.Kind, Op: op, Err: te.Err}
	}
	return &TransportError{Kind: kindFor(err), Op: op, Err: err}
}

func kindFor(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	return KindOther
}

// outcome is the metric label for a classified result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	}
	kind, _ := KindOf(err)
	return kind.String()
}
