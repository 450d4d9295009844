package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// indexSettings holds the mappings used by EnsureIndex. Tags are analyzed for
// matching and carry a lowercase keyword subfield for filtering.
//
// Deletes leave a versioned tombstone for index.gc_deletes. An upsert older
// than the delete is refused with 409 only while the tombstone lives, so the
// window must outlast the longest time an event can sit in the queue and in
// retries. An hour covers both by a wide margin; the reconciler does not
// revisit deleted posts.
const indexSettings = `{
  "settings": {
    "index": {"gc_deletes": "1h"},
    "analysis": {
      "normalizer": {
        "lowercase_normalizer": {"type": "custom", "filter": ["lowercase"]}
      }
    }
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id": {"type": "keyword"},
      "title": {"type": "text"},
      "subtitle": {"type": "text"},
      "content_text": {"type": "text"},
      "slug": {"type": "keyword"},
      "author_id": {"type": "keyword"},
      "author_username": {"type": "keyword"},
      "author_full_name": {"type": "text"},
      "tags": {
        "type": "text",
        "fields": {"raw": {"type": "keyword", "normalizer": "lowercase_normalizer"}}
      },
      "status": {"type": "keyword"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"},
      "published_at": {"type": "date"}
    }
  }
}`

var searchFields = []string{"title^3", "subtitle^2", "content_text", "author_full_name", "tags^2"}

// ElasticIndex talks to the Elasticsearch REST API. Mutations use external
// versioning with updated_at in microseconds, so Elasticsearch itself
// refuses stale writes with 409.
type ElasticIndex struct {
	baseURL string
	index   string
	client  *http.Client
}

// NewElasticIndex returns an index client for baseURL/index. A nil client
// gets a default with a 10s timeout; per-call deadlines come from ctx.
func NewElasticIndex(baseURL, index string, client *http.Client) *ElasticIndex {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ElasticIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
		client:  client,
	}
}

func (e *ElasticIndex) docURL(id uuid.UUID, version time.Time) string {
	v := url.Values{}
	v.Set("version", fmt.Sprintf("%d", version.UnixMicro()))
	v.Set("version_type", "external")
	return fmt.Sprintf("%s/%s/_doc/%s?%s", e.baseURL, url.PathEscape(e.index), id, v.Encode())
}

func (e *ElasticIndex) Upsert(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", ErrRejected, err)
	}
	status, payload, err := e.do(ctx, http.MethodPut, e.docURL(doc.ID, doc.Version()), body)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusConflict:
		return ErrStale
	default:
		return classify("upsert", status, payload)
	}
}

func (e *ElasticIndex) Remove(ctx context.Context, id uuid.UUID, version time.Time) error {
	status, payload, err := e.do(ctx, http.MethodDelete, e.docURL(id, version), nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNotFound:
		return nil
	case http.StatusConflict:
		return ErrStale
	default:
		return classify("remove", status, payload)
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticIndex) Search(ctx context.Context, q Query) (*Result, error) {
	body, err := json.Marshal(queryBody(q))
	if err != nil {
		return nil, err
	}
	status, payload, err := e.do(ctx, http.MethodPost, fmt.Sprintf("%s/%s/_search", e.baseURL, url.PathEscape(e.index)), body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classify("search", status, payload)
	}

	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	res := &Result{Total: parsed.Hits.Total.Value, Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		res.Hits = append(res.Hits, Hit{ID: id, Score: h.Score})
	}
	return res, nil
}

// EnsureIndex creates the index with its mappings when it does not exist.
func (e *ElasticIndex) EnsureIndex(ctx context.Context) error {
	indexURL := fmt.Sprintf("%s/%s", e.baseURL, url.PathEscape(e.index))
	status, _, err := e.do(ctx, http.MethodHead, indexURL, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("check index %s: status %d", e.index, status)
	}

	status, payload, err := e.do(ctx, http.MethodPut, indexURL, []byte(indexSettings))
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status == http.StatusBadRequest && bytes.Contains(payload, []byte("resource_already_exists_exception")) {
		return nil
	}
	return classify("create index", status, payload)
}

// Ping checks that the cluster answers.
func (e *ElasticIndex) Ping(ctx context.Context) error {
	status, payload, err := e.do(ctx, http.MethodGet, e.baseURL+"/", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return classify("ping", status, payload)
	}
	return nil
}

func (e *ElasticIndex) do(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("elasticsearch %s: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read elasticsearch response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

// classify turns an unexpected status into an error. Throttling and server
// errors stay retryable; other client errors are permanent.
func classify(op string, status int, payload []byte) error {
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("elasticsearch %s: status %d: %s", op, status, msg)
	}
	return fmt.Errorf("%w: elasticsearch %s: status %d: %s", ErrRejected, op, status, msg)
}

// queryBody builds the _search request for q.
func queryBody(q Query) map[string]interface{} {
	page := q.Page.Normalize()

	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": "published"}},
	}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"tags.raw": strings.ToLower(tag)},
		})
	}

	var must interface{} = map[string]interface{}{"match_all": map[string]interface{}{}}
	if text := strings.TrimSpace(q.Text); text != "" {
		mm := map[string]interface{}{
			"query":  text,
			"fields": searchFields,
		}
		if q.Fuzzy {
			mm["fuzziness"] = "AUTO"
		}
		must = map[string]interface{}{"multi_match": mm}
	}

	return map[string]interface{}{
		"from":             page.Offset(),
		"size":             page.Size,
		"track_total_hits": true,
		"_source":          false,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"published_at": map[string]interface{}{"order": "desc", "missing": "_last"}},
		},
	}
}

