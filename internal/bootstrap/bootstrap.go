// Package bootstrap prepares a freshly reachable backend: it makes sure the
// city collection exists and seeds it only when this process created it.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"citygate/internal/city/models"
	"citygate/internal/platform/metrics"
	"citygate/internal/storage"
)

// Schema is the field layout requested for the city collection.
var Schema = storage.Schema{
	"city":       "keyword",
	"population": "long",
}

// DefaultSeeds are written once, into a collection that did not exist before.
func DefaultSeeds() []models.City {
	return []models.City{
		{Name: "Baku", Population: 2200000},
		{Name: "London", Population: 9000000},
		{Name: "New York", Population: 8500000},
		{Name: "Paris", Population: 2100000},
	}
}

// Store is the slice of the storage client bootstrap needs.
type Store interface {
	EnsureCollection(ctx context.Context, collection string, schema storage.Schema) (storage.EnsureResult, error)
	Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error
}

// Result summarises one Run for logs and tests.
type Result struct {
	CollectionCreated bool
	Seeded            int
	AlreadyPresent    int
	Failed            int
	Err               error
}

// Initializer runs the one-time setup.
type Initializer struct {
	store      Store
	collection string
	seeds      []models.City
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Initializer)

func WithSeeds(seeds []models.City) Option {
	return func(i *Initializer) {
		i.seeds = seeds
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Initializer) {
		i.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Initializer) {
		i.metrics = m
	}
}

func New(store Store, collection string, opts ...Option) *Initializer {
	i := &Initializer{
		store:      store,
		collection: collection,
		seeds:      DefaultSeeds(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run ensures the collection and, when it was just created, writes the seeds
// with create-only semantics. Failures are logged and reported in Result; Run
// never aborts startup.
func (i *Initializer) Run(ctx context.Context) Result {
	var res Result

	ensured, err := i.store.EnsureCollection(ctx, i.collection, Schema)
	if err != nil {
		i.logger.ErrorContext(ctx, "ensure collection failed",
			"collection", i.collection,
			"error", err,
		)
		res.Err = fmt.Errorf("ensure collection %s: %w", i.collection, err)
		return res
	}
	if ensured == storage.AlreadyPresent {
		i.logger.InfoContext(ctx, "collection already present, skipping seed",
			"collection", i.collection,
		)
		return res
	}
	res.CollectionCreated = true

	for _, seed := range i.seeds {
		i.seed(ctx, seed, &res)
	}

	i.logger.InfoContext(ctx, "collection created and seeded",
		"collection", i.collection,
		"seeded", res.Seeded,
		"already_present", res.AlreadyPresent,
		"failed", res.Failed,
	)
	return res
}

func (i *Initializer) seed(ctx context.Context, seed models.City, res *Result) {
	city, err := models.NewCity(seed.Name, seed.Population)
	if err != nil {
		i.record(ctx, res, seed.Name, "invalid", err)
		return
	}
	doc, err := json.Marshal(city)
	if err != nil {
		i.record(ctx, res, seed.Name, "invalid", err)
		return
	}

	err = i.store.Put(ctx, i.collection, city.Key(), doc, true)
	switch {
	case err == nil:
		res.Seeded++
		i.metrics.IncrementBootstrapSeed("seeded")
	case errors.Is(err, storage.ErrAlreadyExists):
		res.AlreadyPresent++
		i.metrics.IncrementBootstrapSeed("already_present")
		i.logger.DebugContext(ctx, "seed already present", "city", city.Name)
	default:
		i.record(ctx, res, city.Name, "failed", err)
	}
}

func (i *Initializer) record(ctx context.Context, res *Result, name, outcome string, err error) {
	res.Failed++
	res.Err = errors.Join(res.Err, fmt.Errorf("seed %s: %w", name, err))
	i.metrics.IncrementBootstrapSeed(outcome)
	i.logger.ErrorContext(ctx, "seed write failed", "city", name, "error", err)
}
