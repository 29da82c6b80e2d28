package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Storage drivers return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about documents and backends, not validation failures:
// - ErrNotFound: the backend confirmed the document does not exist
// - ErrAlreadyExists: a create-only write found an existing document
// - ErrUnavailable: the backend could not be reached or answered with a failure
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
)
