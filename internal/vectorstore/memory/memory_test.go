package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragsmoke/internal/domain"
	"ragsmoke/internal/embedding/tfidf"
)

func newTFIDFStorage() *Storage {
	return NewStorage(func() domain.Embedder { return tfidf.NewEmbedder() })
}

// fixedEmbedder maps known texts to fixed vectors.
type fixedEmbedder struct{ vectors map[string][]float32 }

func (f *fixedEmbedder) Name() string           { return "fixed" }
func (f *fixedEmbedder) NeedsCorpus() bool      { return false }
func (f *fixedEmbedder) Prepare([]string) error { return nil }
func (f *fixedEmbedder) Dimension() int         { return 2 }
func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func TestAddAndQueryTopMatch(t *testing.T) {
	ctx := context.Background()
	col, err := newTFIDFStorage().CreateCollection(ctx, "docs")
	require.NoError(t, err)

	require.NoError(t, col.Add(ctx, []string{"AI agents can automate tasks like email sorting."}, []string{"doc1"}))

	res, err := col.Query(ctx, []string{"What can AI agents do?"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"AI agents can automate tasks like email sorting."}, res.TopDocuments())
	assert.Equal(t, [][]string{{"doc1"}}, res.IDs)
}

func TestQueryRanksRelevantFirst(t *testing.T) {
	ctx := context.Background()
	col, err := newTFIDFStorage().CreateCollection(ctx, "docs")
	require.NoError(t, err)
	require.NoError(t, col.Add(ctx,
		[]string{"Bananas are rich in potassium.", "AI agents can automate tasks like email sorting.", "Rivers flow to the sea."},
		[]string{"fruit", "doc1", "geo"}))

	res, err := col.Query(ctx, []string{"What can AI agents do?", "potassium in bananas"}, 2)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "doc1", res.IDs[0][0])
	assert.Equal(t, "fruit", res.IDs[1][0])
	assert.Len(t, res.Documents[0], 2)
	assert.LessOrEqual(t, res.Distances[0][0], res.Distances[0][1])
}

func TestQueryEmptyCollection(t *testing.T) {
	ctx := context.Background()
	col, err := newTFIDFStorage().CreateCollection(ctx, "docs")
	require.NoError(t, err)

	res, err := col.Query(ctx, []string{"anything"}, 1)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Empty(t, res.Documents[0])
	assert.Nil(t, res.TopDocuments())
}

func TestCreateCollectionTwice(t *testing.T) {
	ctx := context.Background()
	s := newTFIDFStorage()
	_, err := s.CreateCollection(ctx, "docs")
	require.NoError(t, err)

	_, err = s.CreateCollection(ctx, "docs")
	assert.ErrorIs(t, err, domain.ErrCollectionExists)

	again, err := s.GetOrCreateCollection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", again.Name())
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	s := newTFIDFStorage()
	_, err := s.CreateCollection(ctx, "docs")
	require.NoError(t, err)
	require.NoError(t, s.DeleteCollection(ctx, "docs"))
	assert.ErrorIs(t, s.DeleteCollection(ctx, "docs"), domain.ErrCollectionNotFound)

	_, err = s.CreateCollection(ctx, "docs")
	assert.NoError(t, err)
}

func TestAddDuplicateID(t *testing.T) {
	ctx := context.Background()
	col, err := newTFIDFStorage().CreateCollection(ctx, "docs")
	require.NoError(t, err)
	require.NoError(t, col.Add(ctx, []string{"one"}, []string{"doc1"}))

	err = col.Add(ctx, []string{"two"}, []string{"doc1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueryInvalidArguments(t *testing.T) {
	ctx := context.Background()
	col, err := newTFIDFStorage().CreateCollection(ctx, "docs")
	require.NoError(t, err)

	_, err = col.Query(ctx, []string{"q"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestPrecomputedEmbeddings(t *testing.T) {
	ctx := context.Background()
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"north": {0, 1},
		"east":  {1, 0},
		"q":     {0.9, 0.1},
	}}
	s := NewStorage(func() domain.Embedder { return emb })
	col, err := s.CreateCollection(ctx, "compass")
	require.NoError(t, err)
	require.NoError(t, col.Add(ctx, []string{"north", "east"}, []string{"n", "e"}))

	res, err := col.Query(ctx, []string{"q"}, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"e"}}, res.IDs)
}
