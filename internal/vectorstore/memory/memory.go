package memory

import (
	"context"
	"fmt"
	"sync"

	"ragsmoke/internal/domain"
	"ragsmoke/internal/vectorstore/vecmath"
)

// Storage is an in-process vector store holding collections for the lifetime
// of the process. Similarity is brute-force cosine.
type Storage struct {
	mu          sync.RWMutex
	newEmbedder func() domain.Embedder
	collections map[string]*Collection
}

// NewStorage creates an empty store. newEmbedder is called once per
// collection so corpus-fitted embedders never share state.
func NewStorage(newEmbedder func() domain.Embedder) *Storage {
	return &Storage{newEmbedder: newEmbedder, collections: make(map[string]*Collection)}
}

// CreateCollection creates name or fails with domain.ErrCollectionExists.
func (s *Storage) CreateCollection(_ context.Context, name string) (domain.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil, fmt.Errorf("create collection %q: %w", name, domain.ErrCollectionExists)
	}
	c := newCollection(name, s.newEmbedder())
	s.collections[name] = c
	return c, nil
}

// GetOrCreateCollection returns the existing collection or creates it.
func (s *Storage) GetOrCreateCollection(_ context.Context, name string) (domain.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := newCollection(name, s.newEmbedder())
	s.collections[name] = c
	return c, nil
}

// DeleteCollection drops name and its documents.
func (s *Storage) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("delete collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	delete(s.collections, name)
	return nil
}

// Heartbeat always succeeds for the in-process store.
func (s *Storage) Heartbeat(context.Context) error { return nil }

// Close releases nothing; collections are dropped with the Storage.
func (s *Storage) Close() error { return nil }

// Collection is a named set of documents held in memory.
type Collection struct {
	mu       sync.Mutex
	name     string
	embedder domain.Embedder
	ids      []string
	texts    []string
	vectors  [][]float32
	index    map[string]int
}

func newCollection(name string, embedder domain.Embedder) *Collection {
	return &Collection{name: name, embedder: embedder, index: make(map[string]int)}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Add stores documents under ids. Any id already present fails the whole batch.
func (c *Collection) Add(ctx context.Context, documents []string, ids []string) error {
	if err := domain.ValidateAdd(documents, ids); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.index[id]; ok {
			return fmt.Errorf("add %q to %q: %w", id, c.name, domain.ErrDuplicateID)
		}
	}
	var vectors [][]float32
	if !c.embedder.NeedsCorpus() {
		vectors = make([][]float32, len(documents))
		for i, text := range documents {
			vec, err := c.embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embed %q: %w", ids[i], err)
			}
			if len(c.vectors) > 0 && len(vec) != len(c.vectors[0]) {
				return fmt.Errorf("embed %q: %w: got %d, want %d", ids[i], domain.ErrDimensionMismatch, len(vec), len(c.vectors[0]))
			}
			vectors[i] = vec
		}
	}
	for i, id := range ids {
		c.index[id] = len(c.ids)
		c.ids = append(c.ids, id)
		c.texts = append(c.texts, documents[i])
	}
	c.vectors = append(c.vectors, vectors...)
	return nil
}

// Query returns up to nResults documents per query text, most similar first.
func (c *Collection) Query(ctx context.Context, queryTexts []string, nResults int) (*domain.QueryResult, error) {
	if err := domain.ValidateQuery(queryTexts, nResults); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	res := &domain.QueryResult{
		IDs:       make([][]string, len(queryTexts)),
		Documents: make([][]string, len(queryTexts)),
		Distances: make([][]float64, len(queryTexts)),
	}
	if len(c.ids) == 0 {
		for i := range queryTexts {
			res.IDs[i], res.Documents[i], res.Distances[i] = []string{}, []string{}, []float64{}
		}
		return res, nil
	}

	vectors := c.vectors
	if c.embedder.NeedsCorpus() {
		var err error
		if vectors, err = c.refit(ctx); err != nil {
			return nil, err
		}
	}
	for qi, text := range queryTexts {
		qv, err := c.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		ranked := vecmath.TopK(qv, vectors, nResults)
		ids := make([]string, len(ranked))
		docs := make([]string, len(ranked))
		dists := make([]float64, len(ranked))
		for i, r := range ranked {
			ids[i] = c.ids[r.Index]
			docs[i] = c.texts[r.Index]
			dists[i] = vecmath.Distance(r.Score)
		}
		res.IDs[qi], res.Documents[qi], res.Distances[qi] = ids, docs, dists
	}
	return res, nil
}

// refit prepares a corpus-fitted embedder over the current documents and
// re-embeds them. Caller holds c.mu.
func (c *Collection) refit(ctx context.Context) ([][]float32, error) {
	if err := c.embedder.Prepare(c.texts); err != nil {
		return nil, fmt.Errorf("prepare %s: %w", c.embedder.Name(), err)
	}
	vectors := make([][]float32, len(c.texts))
	for i, text := range c.texts {
		vec, err := c.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", c.ids[i], err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Count returns the number of stored documents.
func (c *Collection) Count(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids), nil
}
