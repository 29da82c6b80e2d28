// Package driver opens the storage backend named by configuration.
package driver

import (
	"fmt"

	"citygate/internal/platform/config"
	"citygate/internal/platform/postgres"
	platformredis "citygate/internal/platform/redis"
	"citygate/internal/storage"
	"citygate/internal/storage/elastic"
	"citygate/internal/storage/memory"
	"citygate/internal/storage/pgstore"
	"citygate/internal/storage/redisstore"
)

// Open builds the backend for cfg.Driver. It does not contact the backend;
// reachability is the readiness gate's job.
func Open(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case config.DriverElasticsearch:
		return elastic.New(cfg.Elasticsearch)
	case config.DriverRedis:
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		return redisstore.New(client), nil
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return pgstore.New(db), nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
