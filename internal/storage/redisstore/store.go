// Package redisstore stores documents as redis strings.
//
// Layout per collection:
//
//	{collection}:meta        hash, present once the collection is created
//	{collection}:doc:{key}   JSON document
package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "citygate/internal/platform/redis"
	"citygate/internal/storage"
)

// Store implements storage.Backend on top of a platform redis client.
type Store struct {
	client *platformredis.Client
}

// New wraps client. The store owns the client and closes it on Close.
func New(client *platformredis.Client) *Store {
	return &Store{client: client}
}

func docKey(collection, key string) string {
	return collection + ":doc:" + key
}

func metaKey(collection string) string {
	return collection + ":meta"
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	doc, err := s.client.Get(ctx, docKey(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, translate(err)
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error {
	if !createOnly {
		return translate(s.client.Set(ctx, docKey(collection, key), doc, 0).Err())
	}
	created, err := s.client.SetNX(ctx, docKey(collection, key), doc, 0).Result()
	if err != nil {
		return translate(err)
	}
	if !created {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	n, err := s.client.Exists(ctx, metaKey(collection)).Result()
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// CreateCollection records the collection marker and its schema. HSETNX on
// the creation timestamp makes concurrent creators agree on a single winner.
func (s *Store) CreateCollection(ctx context.Context, collection string, schema storage.Schema) error {
	created, err := s.client.HSetNX(ctx, metaKey(collection), "created_at", time.Now().UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return translate(err)
	}
	if !created {
		return storage.ErrAlreadyExists
	}
	if len(schema) == 0 {
		return nil
	}
	fields := make(map[string]any, len(schema))
	for field, typ := range schema {
		fields["field:"+field] = typ
	}
	return translate(s.client.HSet(ctx, metaKey(collection), fields).Err())
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.client.Health(ctx))
}

func (s *Store) Close() error {
	return s.client.Close()
}

// translate tags credential failures; everything else is classified by the
// storage client.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS") ||
		strings.Contains(msg, "invalid password") || strings.Contains(msg, "invalid username-password pair") {
		return storage.NewTransportError(storage.KindAuthRejected, err)
	}
	return err
}
