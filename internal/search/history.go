package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

var ErrDisabled = errors.New("search is not configured")

// MaxResultWindow is Elasticsearch's default index.max_result_window.
const MaxResultWindow = 10000

// Document is the indexed form of a calculation.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Inputs    []float64 `json:"inputs"`
	Result    float64   `json:"result"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const mapping = `{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "user_id":    {"type": "keyword"},
      "type":       {"type": "keyword"},
      "inputs":     {"type": "double"},
      "result":     {"type": "double"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"}
    }
  }
}`

// History indexes calculations per owner and searches them.
type History struct {
	es      *elasticsearch.Client
	index   string
	refresh string
}

type Option func(*History)

// WithRefresh sets the refresh policy for writes ("true", "wait_for", "false").
func WithRefresh(policy string) Option {
	return func(h *History) { h.refresh = policy }
}

func NewHistory(es *elasticsearch.Client, index string, opts ...Option) *History {
	h := &History{es: es, index: index, refresh: "false"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *History) EnsureIndex(ctx context.Context) error {
	res, err := h.es.Indices.Exists([]string{h.index}, h.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = h.es.Indices.Create(h.index,
		h.es.Indices.Create.WithContext(ctx),
		h.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("search: create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("search: create index: %s", res.Status())
	}
	return nil
}

func (h *History) Index(ctx context.Context, doc Document) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("search: encode: %w", err)
	}

	res, err := h.es.Index(h.index, &buf,
		h.es.Index.WithContext(ctx),
		h.es.Index.WithDocumentID(doc.ID),
		h.es.Index.WithRefresh(h.refresh),
	)
	if err != nil {
		return fmt.Errorf("search: index %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search: index %s: %s", doc.ID, res.Status())
	}
	return nil
}

// Delete removes a document. A missing document is not an error.
func (h *History) Delete(ctx context.Context, id string) error {
	res, err := h.es.Delete(h.index, id,
		h.es.Delete.WithContext(ctx),
		h.es.Delete.WithRefresh(h.refresh),
	)
	if err != nil {
		return fmt.Errorf("search: delete %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("search: delete %s: %s", id, res.Status())
	}
	return nil
}

// Search lists owner's calculations, newest first, optionally filtered by
// operation type.
func (h *History) Search(ctx context.Context, owner, typ string, from, size int) (int64, []Document, error) {
	filters := []map[string]any{
		{"term": map[string]any{"user_id": owner}},
	}
	if typ != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"type": typ}})
	}
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("search: encode query: %w", err)
	}

	res, err := h.es.Search(
		h.es.Search.WithContext(ctx),
		h.es.Search.WithIndex(h.index),
		h.es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("search: decode: %w", err)
	}

	docs := make([]Document, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		docs[i] = hit.Source
	}
	return r.Hits.Total.Value, docs, nil
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(res.Body)
	return string(b)
}
