package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citygate/internal/bootstrap"
	cityhandler "citygate/internal/city/handler"
	"citygate/internal/city/models"
	"citygate/internal/city/service"
	"citygate/internal/health"
	"citygate/internal/platform/metrics"
	"citygate/internal/storage"
	"citygate/internal/storage/memory"
	"citygate/pkg/testutil"
)

// toggleBackend lets the scenario take the backend down without touching data.
type toggleBackend struct {
	*memory.Backend
	down bool
}

func (b *toggleBackend) Ping(ctx context.Context) error {
	if b.down {
		return errors.New("connection reset")
	}
	return b.Backend.Ping(ctx)
}

func TestSeededServiceScenario(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	backend := &toggleBackend{Backend: memory.New()}
	client, err := storage.New(backend, storage.WithMetrics(m))
	require.NoError(t, err)
	svc, err := service.New(client, "cities", service.WithLogger(logger))
	require.NoError(t, err)
	router := NewRouter(logger, m, reg,
		cityhandler.New(svc, logger),
		health.NewHandler(health.NewReporter(client, logger)),
	)

	testutil.Given(t, "a freshly bootstrapped backend", func(t *testing.T) {
		res := bootstrap.New(client, "cities", bootstrap.WithLogger(logger)).Run(context.Background())
		require.True(t, res.CollectionCreated)

		rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodGet, "/city/london", nil))
		assert.Equal(t, models.City{Name: "London", Population: 9000000}, testutil.Decode[models.City](t, rr))

		testutil.When(t, "Baku is upserted with a new population", func(t *testing.T) {
			rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodPost, "/city",
				map[string]any{"city": "Baku", "population": 2300000}))
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "Baku upserted", testutil.Decode[models.UpsertCityResponse](t, rr).Message)

			testutil.Then(t, "fetching BAKU returns the new value", func(t *testing.T) {
				rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodGet, "/city/BAKU", nil))
				assert.Equal(t, models.City{Name: "Baku", Population: 2300000}, testutil.Decode[models.City](t, rr))
			})

			testutil.Then(t, "a second bootstrap leaves it untouched", func(t *testing.T) {
				bootstrap.New(client, "cities", bootstrap.WithLogger(logger)).Run(context.Background())
				rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodGet, "/city/baku", nil))
				assert.Equal(t, int64(2300000), testutil.Decode[models.City](t, rr).Population)
			})
		})

		testutil.When(t, "the population is missing", func(t *testing.T) {
			rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodPost, "/city", `{"city":"Oslo"}`))

			testutil.Then(t, "the request is rejected", func(t *testing.T) {
				testutil.AssertError(t, rr, http.StatusBadRequest, "population is required")
			})
		})

		testutil.When(t, "an unknown city is fetched", func(t *testing.T) {
			rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodGet, "/city/atlantis", nil))

			testutil.Then(t, "it is not found", func(t *testing.T) {
				testutil.AssertError(t, rr, http.StatusNotFound, "City not found")
			})
		})

		testutil.When(t, "the backend stops answering pings", func(t *testing.T) {
			backend.down = true
			defer func() { backend.down = false }()
			rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodGet, "/health", nil))

			testutil.Then(t, "health reports unhealthy", func(t *testing.T) {
				assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
				assert.Equal(t, health.Unhealthy, testutil.Decode[health.Response](t, rr).Status)
			})
		})
	})
}
