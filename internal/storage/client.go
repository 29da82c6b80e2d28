package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"citygate/internal/platform/metrics"
)

// DefaultTimeout bounds every backend operation.
const DefaultTimeout = 10 * time.Second

const tracerName = "citygate/internal/storage"

// Schema describes collection fields as name → backend type (for example
// "keyword" or "long"). Drivers without a schema notion ignore it.
type Schema map[string]string

// EnsureResult reports what EnsureCollection found.
type EnsureResult int

const (
	Created EnsureResult = iota + 1
	AlreadyPresent
)

func (r EnsureResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// Backend is the driver contract. Implementations return ErrNotFound and
// ErrAlreadyExists for the matching facts, a *TransportError when they can
// classify a failure themselves (credential rejection), and any other error
// for transport failures left to the Client to classify.
type Backend interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error
	CollectionExists(ctx context.Context, collection string) (bool, error)
	// CreateCollection returns ErrAlreadyExists when the collection is present.
	CreateCollection(ctx context.Context, collection string, schema Schema) error
	Ping(ctx context.Context) error
	Close() error
}

// Client is the process-wide handle to the document backend. It is safe for
// concurrent use as long as the Backend is.
//
// Every call runs under its own deadline and is detached from the caller's
// cancellation: once dispatched, an operation completes or times out even if
// the originating request goes away.
type Client struct {
	backend Backend
	driver  string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Client)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithDriverName labels log lines with the configured driver.
func WithDriverName(name string) Option {
	return func(c *Client) {
		c.driver = name
	}
}

// New wraps backend in a Client.
func New(backend Backend, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	c := &Client{
		backend: backend,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Timeout returns the per-operation deadline.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get returns the stored document or ErrNotFound.
func (c *Client) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var doc []byte
	err := c.run(ctx, "get", func(ctx context.Context) error {
		var err error
		doc, err = c.backend.Get(ctx, collection, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Put replaces the document at key. With createOnly it returns
// ErrAlreadyExists instead of overwriting.
func (c *Client) Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error {
	return c.run(ctx, "put", func(ctx context.Context) error {
		return c.backend.Put(ctx, collection, key, doc, createOnly)
	})
}

// Exists reports whether collection is present.
func (c *Client) Exists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := c.run(ctx, "exists", func(ctx context.Context) error {
		var err error
		exists, err = c.backend.CollectionExists(ctx, collection)
		return err
	})
	return exists, err
}

// EnsureCollection creates collection when it is missing. A concurrent creator
// winning the race is reported as AlreadyPresent.
func (c *Client) EnsureCollection(ctx context.Context, collection string, schema Schema) (EnsureResult, error) {
	exists, err := c.Exists(ctx, collection)
	if err != nil {
		return 0, err
	}
	if exists {
		return AlreadyPresent, nil
	}
	err = c.run(ctx, "create_collection", func(ctx context.Context) error {
		return c.backend.CreateCollection(ctx, collection, schema)
	})
	switch {
	case err == nil:
		return Created, nil
	case errors.Is(err, ErrAlreadyExists):
		return AlreadyPresent, nil
	default:
		return 0, err
	}
}

// Ping checks backend liveness without touching any collection.
func (c *Client) Ping(ctx context.Context) error {
	return c.run(ctx, "ping", c.backend.Ping)
}

// Close releases the backend connection pool.
func (c *Client) Close() error {
	if err := c.backend.Close(); err != nil {
		return fmt.Errorf("close storage backend: %w", err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	opCtx, span := c.tracer.Start(opCtx, "storage."+op)
	defer span.End()
	span.SetAttributes(attribute.String("storage.driver", c.driver))

	start := time.Now()
	err := fn(opCtx)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyExists) {
		err = &TransportError{Kind: KindTimeout, Op: op, Err: err}
	}
	err = classify(op, err)
	c.metrics.ObserveStorageOp(op, outcome(err), start)
	span.SetAttributes(attribute.String("storage.outcome", outcome(err)))

	if _, isTransport := KindOf(err); isTransport {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.DebugContext(ctx, "storage operation failed",
			"driver", c.driver,
			"operation", op,
			"duration", time.Since(start),
			"error", err,
		)
	}
	return err
}
