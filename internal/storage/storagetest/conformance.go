// Package storagetest holds the behavior every storage.Backend must share.
// Driver packages run it against their own backend from a _test.go file.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"citygate/internal/storage"
)

// Factory returns a fresh backend. Backends may be shared across calls as
// long as collection names stay unique.
type Factory func(t *testing.T) storage.Backend

// Run executes the conformance suite against backends built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	suite.Run(t, &backendSuite{factory: factory})
}

type backendSuite struct {
	suite.Suite
	factory    Factory
	backend    storage.Backend
	collection string
}

func (s *backendSuite) SetupTest() {
	s.backend = s.factory(s.T())
	s.collection = "conformance_" + uuid.NewString()[:8]
}

func (s *backendSuite) create() {
	s.Require().NoError(s.backend.CreateCollection(context.Background(), s.collection, storage.Schema{
		"city":       "keyword",
		"population": "long",
	}))
}

func (s *backendSuite) TestPing() {
	s.NoError(s.backend.Ping(context.Background()))
}

func (s *backendSuite) TestCreateCollectionOnce() {
	ctx := context.Background()

	exists, err := s.backend.CollectionExists(ctx, s.collection)
	s.Require().NoError(err)
	s.False(exists)

	s.create()

	exists, err = s.backend.CollectionExists(ctx, s.collection)
	s.Require().NoError(err)
	s.True(exists)
	s.ErrorIs(s.backend.CreateCollection(ctx, s.collection, nil), storage.ErrAlreadyExists)
}

func (s *backendSuite) TestPutReplacesWholeDocument() {
	ctx := context.Background()
	s.create()

	s.Require().NoError(s.backend.Put(ctx, s.collection, "baku", []byte(`{"city":"Baku","population":2200000,"extra":true}`), false))
	s.Require().NoError(s.backend.Put(ctx, s.collection, "baku", []byte(`{"city":"Baku","population":2300000}`), false))

	doc, err := s.backend.Get(ctx, s.collection, "baku")
	s.Require().NoError(err)
	s.JSONEq(`{"city":"Baku","population":2300000}`, string(doc))
}

func (s *backendSuite) TestCreateOnlyNeverOverwrites() {
	ctx := context.Background()
	s.create()

	s.Require().NoError(s.backend.Put(ctx, s.collection, "london", []byte(`{"population":9000000}`), true))
	s.ErrorIs(s.backend.Put(ctx, s.collection, "london", []byte(`{"population":1}`), true), storage.ErrAlreadyExists)

	doc, err := s.backend.Get(ctx, s.collection, "london")
	s.Require().NoError(err)
	s.JSONEq(`{"population":9000000}`, string(doc))
}

func (s *backendSuite) TestGetMissingDocument() {
	s.create()
	_, err := s.backend.Get(context.Background(), s.collection, "atlantis")
	s.ErrorIs(err, storage.ErrNotFound)
}

// Keys reach some drivers through URL paths; none of these may alias another.
func (s *backendSuite) TestURLSignificantKeysStayDistinct() {
	s.create()
	ctx := context.Background()
	keys := []string{"who?", "who", "a#b", "a", "biel/bienne", "biel", "100%", "100", "st. john's", "a+b"}

	for i, key := range keys {
		doc := fmt.Appendf(nil, `{"city":%q,"population":%d}`, key, i)
		s.Require().NoError(s.backend.Put(ctx, s.collection, key, doc, false), key)
	}
	for i, key := range keys {
		doc, err := s.backend.Get(ctx, s.collection, key)
		s.Require().NoError(err, key)
		s.JSONEq(fmt.Sprintf(`{"city":%q,"population":%d}`, key, i), string(doc), key)
	}

	err := s.backend.Put(ctx, s.collection, "a#b", []byte(`{"city":"a#b","population":99}`), true)
	s.ErrorIs(err, storage.ErrAlreadyExists)
	doc, err := s.backend.Get(ctx, s.collection, "a")
	s.Require().NoError(err)
	s.JSONEq(`{"city":"a","population":3}`, string(doc))
}

func (s *backendSuite) TestConcurrentCreateOnlyHasOneWinner() {
	ctx := context.Background()
	s.create()
	const writers = 16

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.backend.Put(ctx, s.collection, "paris", []byte(fmt.Sprintf(`{"writer":%d}`, i)), true)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, storage.ErrAlreadyExists):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}
