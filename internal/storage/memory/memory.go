// Package memory is an in-process storage backend. It keeps local runs and
// tests free of external services and favors clarity over performance.
package memory

import (
	"context"
	"fmt"
	"sync"

	"citygate/internal/storage"
)

// Backend stores documents in nested maps keyed by collection and key.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	closed      bool
}

// New returns an empty backend with no collections.
func New() *Backend {
	return &Backend{collections: make(map[string]map[string][]byte)}
}

func (b *Backend) Get(_ context.Context, collection, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	docs, ok := b.collections[collection]
	if !ok {
		return nil, storage.ErrNotFound
	}
	doc, ok := docs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(doc), nil
}

func (b *Backend) Put(_ context.Context, collection, key string, doc []byte, createOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	docs, ok := b.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	if _, exists := docs[key]; exists && createOnly {
		return storage.ErrAlreadyExists
	}
	docs[key] = clone(doc)
	return nil
}

func (b *Backend) CollectionExists(_ context.Context, collection string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	_, ok := b.collections[collection]
	return ok, nil
}

func (b *Backend) CreateCollection(_ context.Context, collection string, _ storage.Schema) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return err
	}
	if _, ok := b.collections[collection]; ok {
		return storage.ErrAlreadyExists
	}
	b.collections[collection] = make(map[string][]byte)
	return nil
}

func (b *Backend) Ping(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checkOpen()
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Len returns the number of documents in collection.
func (b *Backend) Len(collection string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.collections[collection])
}

func (b *Backend) checkOpen() error {
	if b.closed {
		return fmt.Errorf("memory backend is closed")
	}
	return nil
}

func clone(doc []byte) []byte {
	out := make([]byte, len(doc))
	copy(out, doc)
	return out
}
