package domain

import (
	"context"
	"errors"
)

var (
	// ErrCollectionExists is returned when creating a collection whose name is taken.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrCollectionNotFound is returned when a named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDuplicateID is returned when a document id is already present in a collection.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrInvalidArgument is returned for malformed calls such as mismatched lengths.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch is returned when a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Document is a single record stored in a collection.
type Document struct {
	ID   string
	Text string
}

// Chunk is a semantically meaningful part of an ingested file.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// QueryResult holds one inner sequence per query text, each ranked by
// similarity descending (distance ascending).
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Distances [][]float64
}

// TopDocuments returns the matches of the first query text, or nil when the
// result is absent or empty.
func (r *QueryResult) TopDocuments() []string {
	if r == nil || len(r.Documents) == 0 || len(r.Documents[0]) == 0 {
		return nil
	}
	return r.Documents[0]
}

// GenerateRequest is a single non-streaming completion request.
type GenerateRequest struct {
	Model  string
	Prompt string
	System string
}

// GenerateResponse is the completed text produced for a prompt.
type GenerateResponse struct {
	Model     string
	Response  string
	Done      bool
	EvalCount int
}

// Embedder converts free text into a numeric vector representation.
// Implementations that need a corpus report it through NeedsCorpus and
// must be prepared before Embed.
type Embedder interface {
	Name() string
	NeedsCorpus() bool
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Collection is a named, queryable set of documents.
type Collection interface {
	Name() string
	Add(ctx context.Context, documents []string, ids []string) error
	Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error)
	Count(ctx context.Context) (int, error)
}

// VectorStore hands out collections held by a vector-store service.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string) (Collection, error)
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Heartbeat(ctx context.Context) error
	Close() error
}

// Generator produces text for a prompt using a language model.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
