package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks DocumentStore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"citygate/internal/city/models"
	"citygate/internal/platform/metrics"
	"citygate/internal/storage"
	dErrors "citygate/pkg/domain-errors"
)

// DocumentStore is the storage port. *storage.Client satisfies it.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error
}

// Service implements city upsert and fetch on top of a DocumentStore.
// Writes to the same key are not coordinated; the backend decides which
// concurrent write lands last.
type Service struct {
	store      DocumentStore
	collection string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store DocumentStore, collection string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if collection == "" {
		return nil, errors.New("collection is required")
	}
	s := &Service{store: store, collection: collection, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Upsert validates req and replaces the whole stored record under its
// canonical key. Invalid input never reaches the store.
func (s *Service) Upsert(ctx context.Context, req *models.UpsertCityRequest) (*models.City, error) {
	req.Normalize()
	city, err := req.ToCity()
	if err != nil {
		s.metrics.IncrementCityOperation("upsert", "invalid")
		s.logger.DebugContext(ctx, "rejected city upsert", "error", err)
		return nil, err
	}

	doc, err := json.Marshal(city)
	if err != nil {
		s.metrics.IncrementCityOperation("upsert", "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode city")
	}

	if err := s.store.Put(ctx, s.collection, city.Key(), doc, false); err != nil {
		s.metrics.IncrementCityOperation("upsert", "error")
		s.logger.ErrorContext(ctx, "city upsert failed",
			"key", city.Key(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to upsert city")
	}

	s.metrics.IncrementCityOperation("upsert", "ok")
	s.logger.InfoContext(ctx, "city upserted", "key", city.Key(), "population", city.Population)
	return city, nil
}

// Fetch loads the record for rawKey in any letter case.
func (s *Service) Fetch(ctx context.Context, rawKey string) (*models.City, error) {
	key := models.Key(rawKey)
	if key == "" {
		s.metrics.IncrementCityOperation("fetch", "invalid")
		return nil, dErrors.New(dErrors.CodeValidation, "city is required")
	}

	doc, err := s.store.Get(ctx, s.collection, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.IncrementCityOperation("fetch", "not_found")
			s.logger.DebugContext(ctx, "city not found", "key", key)
			return nil, dErrors.New(dErrors.CodeNotFound, "City not found")
		}
		s.metrics.IncrementCityOperation("fetch", "error")
		s.logger.ErrorContext(ctx, "city fetch failed", "key", key, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to fetch city")
	}

	var city models.City
	if err := json.Unmarshal(doc, &city); err != nil {
		s.metrics.IncrementCityOperation("fetch", "error")
		s.logger.ErrorContext(ctx, "stored city is malformed", "key", key, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "stored city is malformed")
	}

	s.metrics.IncrementCityOperation("fetch", "ok")
	return &city, nil
}
