// Package readiness blocks process startup until the storage backend answers
// its liveness check.
//
// The gate is a small state machine:
//
//	Polling ──ping ok──────────────▶ Ready
//	   │
//	   ├──credentials rejected─────▶ Failed
//	   └──attempts exhausted───────▶ Failed
//
// Failed is terminal. Callers must not start serving traffic after Wait
// returns an error.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"citygate/internal/platform/metrics"
	"citygate/internal/storage"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// ErrStartupFailed matches every error returned by Wait.
var ErrStartupFailed = errors.New("storage backend did not become ready")

// State is the gate's position in the startup protocol.
type State int32

const (
	Polling State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pinger is the liveness check the gate polls.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Clock abstracts waiting between attempts.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// StartupError describes why the gate failed.
type StartupError struct {
	Attempts int
	Reason   string
	Err      error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s after %d attempt(s)", ErrStartupFailed, e.Reason, e.Attempts)
	}
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", ErrStartupFailed, e.Reason, e.Attempts, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

func (e *StartupError) Is(target error) bool { return target == ErrStartupFailed }

// Gate polls a Pinger with a fixed interval and attempt budget.
type Gate struct {
	pinger      Pinger
	interval    time.Duration
	maxAttempts int
	clock       Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
	state       atomic.Int32
	failure     atomic.Pointer[StartupError]
}

type Option func(*Gate)

func WithInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithClock(c Clock) Option {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// New constructs a gate in the Polling state.
func New(pinger Pinger, opts ...Option) (*Gate, error) {
	if pinger == nil {
		return nil, errors.New("pinger is required")
	}
	g := &Gate{
		pinger:      pinger,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		clock:       realClock{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.metrics.SetReadinessState(int(Polling))
	return g, nil
}

// State returns the current gate state. Safe for concurrent use.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// Wait blocks until the backend is reachable or the gate fails. It runs the
// protocol once; later calls report the settled outcome.
func (g *Gate) Wait(ctx context.Context) error {
	switch g.State() {
	case Ready:
		return nil
	case Failed:
		return g.failure.Load()
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err := g.pinger.Ping(ctx)
		if err == nil {
			g.metrics.IncrementReadinessAttempt("reachable")
			g.logger.InfoContext(ctx, "storage backend reachable", "attempt", attempt)
			g.settle(Ready)
			return nil
		}
		lastErr = err

		kind, _ := storage.KindOf(err)
		g.metrics.IncrementReadinessAttempt(kind.String())
		g.logger.WarnContext(ctx, "storage backend not ready",
			"attempt", attempt,
			"max_attempts", g.maxAttempts,
			"kind", kind.String(),
			"error", err,
		)

		if storage.IsAuthRejected(err) {
			return g.fail(ctx, &StartupError{Attempts: attempt, Reason: "credentials rejected", Err: err})
		}
		if attempt == g.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return g.fail(ctx, &StartupError{Attempts: attempt, Reason: "startup cancelled", Err: ctx.Err()})
		case <-g.clock.After(g.interval):
		}
	}
	return g.fail(ctx, &StartupError{Attempts: g.maxAttempts, Reason: "attempts exhausted", Err: lastErr})
}

func (g *Gate) fail(ctx context.Context, err *StartupError) error {
	g.failure.Store(err)
	g.settle(Failed)
	g.logger.ErrorContext(ctx, "storage backend readiness failed",
		"attempts", err.Attempts,
		"reason", err.Reason,
		"error", err.Err,
	)
	return err
}

func (g *Gate) settle(s State) {
	g.state.Store(int32(s))
	g.metrics.SetReadinessState(int(s))
}
