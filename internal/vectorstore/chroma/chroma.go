// Package chroma is a minimal REST client for a Chroma server (v2 API).
// Embeddings are computed client-side with the configured embedder.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragsmoke/internal/domain"
)

// Config contains connection details for a Chroma server.
type Config struct {
	URL      string
	Tenant   string
	Database string
	Timeout  time.Duration
}

// Storage talks to one tenant/database on a Chroma server.
type Storage struct {
	url      string
	tenant   string
	database string
	embedder domain.Embedder
	client   *http.Client
}

// NewStorage creates a Chroma client. embedder must produce fixed-dimension vectors.
func NewStorage(cfg Config, embedder domain.Embedder) (*Storage, error) {
	if embedder.NeedsCorpus() {
		return nil, fmt.Errorf("chroma: embedder %s needs a corpus; use a fixed-dimension embedder", embedder.Name())
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8000"
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "default_tenant"
	}
	if cfg.Database == "" {
		cfg.Database = "default_database"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:      strings.TrimRight(cfg.URL, "/"),
		tenant:   cfg.Tenant,
		database: cfg.Database,
		embedder: embedder,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type collectionModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateCollection creates name; an existing name yields domain.ErrCollectionExists.
func (s *Storage) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	return s.createCollection(ctx, name, false)
}

// GetOrCreateCollection returns name, creating it when absent.
func (s *Storage) GetOrCreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	return s.createCollection(ctx, name, true)
}

func (s *Storage) createCollection(ctx context.Context, name string, getOrCreate bool) (domain.Collection, error) {
	body := map[string]any{
		"name":          name,
		"get_or_create": getOrCreate,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	var out collectionModel
	if err := s.doJSON(ctx, http.MethodPost, s.collectionsPath(), body, &out); err != nil {
		if isAlreadyExists(err) {
			return nil, fmt.Errorf("create collection %q: %w", name, domain.ErrCollectionExists)
		}
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	slog.Debug("chroma collection ready", "name", out.Name, "id", out.ID)
	return &Collection{storage: s, id: out.ID, name: name}, nil
}

// DeleteCollection drops name.
func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	if err := s.doJSON(ctx, http.MethodDelete, s.collectionsPath()+"/"+url.PathEscape(name), nil, nil); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return fmt.Errorf("delete collection %q: %w", name, domain.ErrCollectionNotFound)
		}
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	return nil
}

// Heartbeat checks the server is reachable.
func (s *Storage) Heartbeat(ctx context.Context) error {
	if err := s.doJSON(ctx, http.MethodGet, "/api/v2/heartbeat", nil, nil); err != nil {
		return fmt.Errorf("chroma heartbeat: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionsPath() string {
	return fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections", url.PathEscape(s.tenant), url.PathEscape(s.database))
}

// Collection is a handle to a Chroma collection.
type Collection struct {
	storage *Storage
	id      string
	name    string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) path(op string) string {
	return c.storage.collectionsPath() + "/" + url.PathEscape(c.id) + "/" + op
}

// Add embeds and stores documents. Chroma silently ignores existing ids, so
// they are looked up first and reported as domain.ErrDuplicateID.
func (c *Collection) Add(ctx context.Context, documents []string, ids []string) error {
	if err := domain.ValidateAdd(documents, ids); err != nil {
		return err
	}
	var existing struct {
		IDs []string `json:"ids"`
	}
	if err := c.storage.doJSON(ctx, http.MethodPost, c.path("get"), map[string]any{"ids": ids, "include": []string{}}, &existing); err != nil {
		return fmt.Errorf("lookup ids in %q: %w", c.name, err)
	}
	if len(existing.IDs) > 0 {
		return fmt.Errorf("add %q to %q: %w", existing.IDs[0], c.name, domain.ErrDuplicateID)
	}

	embeddings := make([][]float32, len(documents))
	for i, text := range documents {
		vec, err := c.storage.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed %q: %w", ids[i], err)
		}
		embeddings[i] = vec
	}
	body := map[string]any{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
	}
	if err := c.storage.doJSON(ctx, http.MethodPost, c.path("add"), body, nil); err != nil {
		return fmt.Errorf("add to %q: %w", c.name, err)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string   `json:"ids"`
	Documents [][]*string  `json:"documents"`
	Distances [][]*float64 `json:"distances"`
}

// Query embeds queryTexts and returns up to nResults matches for each.
func (c *Collection) Query(ctx context.Context, queryTexts []string, nResults int) (*domain.QueryResult, error) {
	if err := domain.ValidateQuery(queryTexts, nResults); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(queryTexts))
	for i, text := range queryTexts {
		vec, err := c.storage.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		embeddings[i] = vec
	}
	body := map[string]any{
		"query_embeddings": embeddings,
		"n_results":        nResults,
		"include":          []string{"documents", "distances"},
	}
	var out queryResponse
	if err := c.storage.doJSON(ctx, http.MethodPost, c.path("query"), body, &out); err != nil {
		return nil, fmt.Errorf("query %q: %w", c.name, err)
	}
	return out.toDomain(), nil
}

func (r queryResponse) toDomain() *domain.QueryResult {
	res := &domain.QueryResult{
		IDs:       r.IDs,
		Documents: make([][]string, len(r.Documents)),
		Distances: make([][]float64, len(r.Distances)),
	}
	for i, docs := range r.Documents {
		res.Documents[i] = make([]string, 0, len(docs))
		for _, d := range docs {
			if d != nil {
				res.Documents[i] = append(res.Documents[i], *d)
			}
		}
	}
	for i, dists := range r.Distances {
		res.Distances[i] = make([]float64, 0, len(dists))
		for _, d := range dists {
			if d != nil {
				res.Distances[i] = append(res.Distances[i], *d)
			}
		}
	}
	return res
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.storage.doJSON(ctx, http.MethodGet, c.path("count"), nil, &n); err != nil {
		return 0, fmt.Errorf("count %q: %w", c.name, err)
	}
	return n, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chroma %s %s failed (status %d): %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func isAlreadyExists(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(se.Message), "already exists")
}

func (s *Storage) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
