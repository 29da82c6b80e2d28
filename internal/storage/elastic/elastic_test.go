package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"citygate/internal/platform/config"
	"citygate/internal/storage"
	"citygate/internal/storage/storagetest"
)

// fakeCluster answers the handful of Elasticsearch endpoints the backend uses.
type fakeCluster struct {
	mu       sync.Mutex
	indices  map[string]map[string]json.RawMessage
	mappings map[string]json.RawMessage
	user     string
	pass     string
	paths    []string
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		indices:  make(map[string]map[string]json.RawMessage),
		mappings: make(map[string]json.RawMessage),
		user:     "elastic",
		pass:     "password",
	}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if u, p, ok := r.BasicAuth(); !ok || u != f.user || p != f.pass {
		writeStatus(w, http.StatusUnauthorized, `{"error":{"type":"security_exception","reason":"unable to authenticate user"},"status":401}`)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	raw := r.URL.EscapedPath()
	f.paths = append(f.paths, r.Method+" "+raw)
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for i, p := range parts {
		decoded, err := url.PathUnescape(p)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, `{"error":{"type":"illegal_argument_exception","reason":"bad path"}}`)
			return
		}
		parts[i] = decoded
	}
	switch {
	case raw == "/" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodHead:
		if _, ok := f.indices[parts[0]]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case len(parts) == 1 && r.Method == http.MethodPut:
		if _, ok := f.indices[parts[0]]; ok {
			writeStatus(w, http.StatusBadRequest, `{"error":{"type":"resource_already_exists_exception","reason":"index already exists"},"status":400}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.indices[parts[0]] = make(map[string]json.RawMessage)
		f.mappings[parts[0]] = body
		writeStatus(w, http.StatusOK, `{"acknowledged":true}`)
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		docs, ok := f.indices[parts[0]]
		if !ok {
			writeStatus(w, http.StatusNotFound, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
			return
		}
		doc, ok := docs[parts[2]]
		if !ok {
			writeStatus(w, http.StatusNotFound, `{"_index":"`+parts[0]+`","_id":"`+parts[2]+`","found":false}`)
			return
		}
		writeStatus(w, http.StatusOK, `{"_index":"`+parts[0]+`","_id":"`+parts[2]+`","found":true,"_source":`+string(doc)+`}`)
	case len(parts) == 3 && (parts[1] == "_doc" || parts[1] == "_create") && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		docs, ok := f.indices[parts[0]]
		if !ok {
			docs = make(map[string]json.RawMessage)
			f.indices[parts[0]] = docs
		}
		if _, exists := docs[parts[2]]; exists && parts[1] == "_create" {
			writeStatus(w, http.StatusConflict, `{"error":{"type":"version_conflict_engine_exception","reason":"document already exists"},"status":409}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		docs[parts[2]] = body
		writeStatus(w, http.StatusCreated, `{"result":"created"}`)
	default:
		writeStatus(w, http.StatusMethodNotAllowed, `{"error":{"type":"unsupported","reason":"`+r.Method+` `+r.URL.Path+`"}}`)
	}
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type BackendSuite struct {
	suite.Suite
	cluster *fakeCluster
	server  *httptest.Server
	backend *Backend
}

func TestBackendSuite(t *testing.T) {
	suite.Run(t, new(BackendSuite))
}

func (s *BackendSuite) SetupTest() {
	s.cluster = newFakeCluster()
	s.server = httptest.NewServer(s.cluster)
	backend, err := New(config.ElasticsearchConfig{URL: s.server.URL, Username: "elastic", Password: "password"})
	s.Require().NoError(err)
	s.backend = backend
}

func (s *BackendSuite) TearDownTest() {
	s.Require().NoError(s.backend.Close())
	s.server.Close()
}

func (s *BackendSuite) TestPing() {
	s.NoError(s.backend.Ping(context.Background()))
}

func (s *BackendSuite) TestPingWithBadCredentialsIsAuthRejected() {
	backend, err := New(config.ElasticsearchConfig{URL: s.server.URL, Username: "elastic", Password: "wrong"})
	s.Require().NoError(err)

	err = backend.Ping(context.Background())
	s.True(storage.IsAuthRejected(err), "expected auth rejection, got %v", err)
}

func (s *BackendSuite) TestCollectionLifecycle() {
	ctx := context.Background()

	exists, err := s.backend.CollectionExists(ctx, "cities")
	s.Require().NoError(err)
	s.False(exists)

	s.Require().NoError(s.backend.CreateCollection(ctx, "cities", storage.Schema{"population": "long"}))
	s.JSONEq(`{"mappings":{"properties":{"population":{"type":"long"}}}}`, string(s.cluster.mappings["cities"]))

	exists, err = s.backend.CollectionExists(ctx, "cities")
	s.Require().NoError(err)
	s.True(exists)

	err = s.backend.CreateCollection(ctx, "cities", nil)
	s.ErrorIs(err, storage.ErrAlreadyExists)
}

func (s *BackendSuite) TestDocumentRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.backend.CreateCollection(ctx, "cities", nil))

	s.Require().NoError(s.backend.Put(ctx, "cities", "baku", []byte(`{"city":"Baku","population":2200000}`), false))
	s.Require().NoError(s.backend.Put(ctx, "cities", "baku", []byte(`{"city":"Baku","population":2300000}`), false))

	doc, err := s.backend.Get(ctx, "cities", "baku")
	s.Require().NoError(err)
	s.JSONEq(`{"city":"Baku","population":2300000}`, string(doc))
}

func (s *BackendSuite) TestCreateOnlyConflict() {
	ctx := context.Background()
	s.Require().NoError(s.backend.CreateCollection(ctx, "cities", nil))
	s.Require().NoError(s.backend.Put(ctx, "cities", "paris", []byte(`{"population":1}`), true))

	err := s.backend.Put(ctx, "cities", "paris", []byte(`{"population":2}`), true)
	s.ErrorIs(err, storage.ErrAlreadyExists)

	doc, err := s.backend.Get(ctx, "cities", "paris")
	s.Require().NoError(err)
	s.JSONEq(`{"population":1}`, string(doc))
}

func (s *BackendSuite) TestGetMissing() {
	ctx := context.Background()

	_, err := s.backend.Get(ctx, "cities", "atlantis")
	s.ErrorIs(err, storage.ErrNotFound, "missing index reads as not found")

	s.Require().NoError(s.backend.CreateCollection(ctx, "cities", nil))
	_, err = s.backend.Get(ctx, "cities", "atlantis")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *BackendSuite) TestKeysWithURLCharactersStayDistinct() {
	ctx := context.Background()
	s.Require().NoError(s.backend.CreateCollection(ctx, "cities", nil))

	keys := []string{"who?", "who", "a#b", "a", "biel/bienne", "biel", "100%", "st. john's"}
	for i, key := range keys {
		doc := []byte(`{"n":` + string(rune('0'+i)) + `}`)
		s.Require().NoError(s.backend.Put(ctx, "cities", key, doc, false), key)
	}
	for i, key := range keys {
		doc, err := s.backend.Get(ctx, "cities", key)
		s.Require().NoError(err, key)
		s.JSONEq(`{"n":`+string(rune('0'+i))+`}`, string(doc), key)
	}

	s.Len(s.cluster.indices["cities"], len(keys))
	s.Contains(s.cluster.paths, "PUT /cities/_doc/who%3F")
	s.Contains(s.cluster.paths, "PUT /cities/_doc/a%23b")
	s.Contains(s.cluster.paths, "PUT /cities/_doc/biel%2Fbienne")
	s.Contains(s.cluster.paths, "PUT /cities/_doc/100%25")
}

func (s *BackendSuite) TestCreateOnlyEscapesKey() {
	ctx := context.Background()
	s.Require().NoError(s.backend.CreateCollection(ctx, "cities", nil))
	s.Require().NoError(s.backend.Put(ctx, "cities", "a", []byte(`{"n":1}`), true))

	s.Require().NoError(s.backend.Put(ctx, "cities", "a#b", []byte(`{"n":2}`), true))
	s.Contains(s.cluster.paths, "PUT /cities/_create/a%23b")

	doc, err := s.backend.Get(ctx, "cities", "a")
	s.Require().NoError(err)
	s.JSONEq(`{"n":1}`, string(doc))
}

func TestPingUnreachableClusterIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	backend, err := New(config.ElasticsearchConfig{URL: url})
	require.NoError(t, err)
	client, err := storage.New(backend)
	require.NoError(t, err)

	err = client.Ping(context.Background())
	_, isTransport := storage.KindOf(err)
	assert.True(t, isTransport, "expected transport error, got %v", err)
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, statusError(http.StatusOK, nil))

	err := statusError(http.StatusForbidden, []byte(`{"error":{"type":"security_exception","reason":"no"}}`))
	assert.True(t, storage.IsAuthRejected(err))
	assert.Contains(t, err.Error(), "security_exception")

	err = statusError(http.StatusServiceUnavailable, nil)
	assert.EqualError(t, err, "elasticsearch responded 503")
}

func TestConformance(t *testing.T) {
	server := httptest.NewServer(newFakeCluster())
	t.Cleanup(server.Close)

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		backend, err := New(config.ElasticsearchConfig{URL: server.URL, Username: "elastic", Password: "password"})
		require.NoError(t, err)
		return backend
	})
}
