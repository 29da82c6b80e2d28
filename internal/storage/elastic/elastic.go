// Package elastic stores documents in Elasticsearch. Collections map to
// indices and keys to document ids.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"

	"citygate/internal/platform/config"
	"citygate/internal/storage"
)

// Backend talks to a single Elasticsearch cluster.
type Backend struct {
	es        *elasticsearch.Client
	transport *http.Transport
}

// New builds a backend for cfg. The client never retries on its own; startup
// retries belong to the readiness gate and request paths fail fast.
func New(cfg config.ElasticsearchConfig) (*Backend, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{cfg.URL},
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Backend{es: es, transport: transport}, nil
}

// Get reads one document. esapi concatenates index and id into the request
// path verbatim, so every call in this file path-escapes them; otherwise "?",
// "#" or "/" in a key would address a different document.
func (b *Backend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	res, err := b.es.Get(url.PathEscape(collection), url.PathEscape(key), b.es.Get.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	body, err := readBody(res)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, storage.ErrNotFound
	}
	if err := statusError(res.StatusCode, body); err != nil {
		return nil, err
	}
	if !gjson.GetBytes(body, "found").Bool() {
		return nil, storage.ErrNotFound
	}
	source := gjson.GetBytes(body, "_source")
	if !source.Exists() {
		return nil, fmt.Errorf("elasticsearch get %s/%s: response has no _source", collection, key)
	}
	return []byte(source.Raw), nil
}

func (b *Backend) Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error {
	var (
		res *esapi.Response
		err error
	)
	if createOnly {
		res, err = b.es.Create(url.PathEscape(collection), url.PathEscape(key), bytes.NewReader(doc), b.es.Create.WithContext(ctx))
	} else {
		res, err = b.es.Index(url.PathEscape(collection), bytes.NewReader(doc),
			b.es.Index.WithDocumentID(url.PathEscape(key)),
			b.es.Index.WithContext(ctx),
		)
	}
	if err != nil {
		return err
	}
	body, err := readBody(res)
	if err != nil {
		return err
	}
	if createOnly && res.StatusCode == http.StatusConflict {
		return storage.ErrAlreadyExists
	}
	return statusError(res.StatusCode, body)
}

func (b *Backend) CollectionExists(ctx context.Context, collection string) (bool, error) {
	res, err := b.es.Indices.Exists([]string{url.PathEscape(collection)}, b.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	body, err := readBody(res)
	if err != nil {
		return false, err
	}
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, statusError(res.StatusCode, body)
}

func (b *Backend) CreateCollection(ctx context.Context, collection string, schema storage.Schema) error {
	payload, err := mappingsFor(schema)
	if err != nil {
		return err
	}
	res, err := b.es.Indices.Create(url.PathEscape(collection),
		b.es.Indices.Create.WithBody(bytes.NewReader(payload)),
		b.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	body, err := readBody(res)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusBadRequest &&
		gjson.GetBytes(body, "error.type").String() == "resource_already_exists_exception" {
		return storage.ErrAlreadyExists
	}
	return statusError(res.StatusCode, body)
}

// Ping issues HEAD / which answers without any index present.
func (b *Backend) Ping(ctx context.Context) error {
	res, err := b.es.Ping(b.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	body, err := readBody(res)
	if err != nil {
		return err
	}
	return statusError(res.StatusCode, body)
}

func (b *Backend) Close() error {
	b.transport.CloseIdleConnections()
	return nil
}

func mappingsFor(schema storage.Schema) ([]byte, error) {
	properties := make(map[string]any, len(schema))
	for field, typ := range schema {
		properties[field] = map[string]string{"type": typ}
	}
	body := map[string]any{}
	if len(properties) > 0 {
		body["mappings"] = map[string]any{"properties": properties}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode index mappings: %w", err)
	}
	return payload, nil
}

func readBody(res *esapi.Response) ([]byte, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read elasticsearch response: %w", err)
	}
	return body, nil
}

// statusError maps non-2xx responses. Rejected credentials are tagged so the
// readiness gate can stop waiting.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	errType := gjson.GetBytes(body, "error.type").String()
	reason := gjson.GetBytes(body, "error.reason").String()
	err := fmt.Errorf("elasticsearch responded %d", status)
	if errType != "" {
		err = fmt.Errorf("elasticsearch responded %d %s: %s", status, errType, reason)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return storage.NewTransportError(storage.KindAuthRejected, err)
	}
	return err
}
