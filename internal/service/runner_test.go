package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragsmoke/internal/chunker"
	"ragsmoke/internal/domain"
	"ragsmoke/internal/embedding/tfidf"
	"ragsmoke/internal/summarizer"
	"ragsmoke/internal/vectorstore/memory"
)

func defaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Collection:   "docs",
		DocumentID:   "doc1",
		DocumentText: "AI agents can automate tasks like email sorting.",
		Query:        "What can AI agents do?",
		NResults:     1,
		Model:        "tinyllama",
		Prompt:       "What are AI agents?",
	}
}

func newMemoryStore() *memory.Storage {
	return memory.NewStorage(func() domain.Embedder { return tfidf.NewEmbedder() })
}

func TestRunPrintsTopDocumentAndResponse(t *testing.T) {
	var out bytes.Buffer
	llm := &fakeGenerator{response: "X"}
	r := NewRunner(newMemoryStore(), llm, &out, defaultRunnerConfig())

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t,
		"Chroma Results: ['AI agents can automate tasks like email sorting.']\n"+
			"Ollama Response: X\n",
		out.String())
	require.Len(t, llm.requests, 1)
	assert.Equal(t, domain.GenerateRequest{Model: "tinyllama", Prompt: "What are AI agents?"}, llm.requests[0])
}

func TestRunPassesFixedInputsToCollection(t *testing.T) {
	col := &fakeCollection{result: &domain.QueryResult{Documents: [][]string{{"d"}}}}
	store := &fakeStore{col: col}
	r := NewRunner(store, &fakeGenerator{}, &bytes.Buffer{}, defaultRunnerConfig())

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"docs"}, store.created)
	assert.Equal(t, [][]string{{"doc1"}}, col.added)
	assert.Equal(t, [][]string{{"What can AI agents do?"}}, col.queries)
	assert.Equal(t, []int{1}, col.nResults)
}

func TestRunEmptyResultsFallBack(t *testing.T) {
	cases := map[string]*domain.QueryResult{
		"nil result":        nil,
		"no inner lists":    {Documents: [][]string{}},
		"empty first inner": {Documents: [][]string{{}}},
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			store := &fakeStore{col: &fakeCollection{result: res}}
			llm := &fakeGenerator{response: "still asked"}
			r := NewRunner(store, llm, &out, defaultRunnerConfig())

			require.NoError(t, r.Run(context.Background()))
			assert.Equal(t,
				"Chroma Results: No documents found.\nOllama Response: still asked\n",
				out.String())
			assert.Len(t, llm.requests, 1)
		})
	}
}

func TestRunCreateFailureIsFatal(t *testing.T) {
	var out bytes.Buffer
	store := &fakeStore{col: &fakeCollection{}, createErr: errConnRefused}
	llm := &fakeGenerator{}
	r := NewRunner(store, llm, &out, defaultRunnerConfig())

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, errConnRefused)
	assert.Empty(t, out.String())
	assert.Empty(t, llm.requests)
}

func TestRunExistingCollectionIsFatal(t *testing.T) {
	store := newMemoryStore()
	_, err := store.CreateCollection(context.Background(), "docs")
	require.NoError(t, err)

	r := NewRunner(store, &fakeGenerator{}, &bytes.Buffer{}, defaultRunnerConfig())
	assert.ErrorIs(t, r.Run(context.Background()), domain.ErrCollectionExists)
}

func TestRunGetOrCreateRejectsDuplicateDocument(t *testing.T) {
	store := newMemoryStore()
	cfg := defaultRunnerConfig()
	cfg.GetOrCreate = true

	var out bytes.Buffer
	require.NoError(t, NewRunner(store, &fakeGenerator{response: "ok"}, &out, cfg).Run(context.Background()))

	err := NewRunner(store, &fakeGenerator{}, &out, cfg).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestRunQueryFailureIsFatal(t *testing.T) {
	var out bytes.Buffer
	store := &fakeStore{col: &fakeCollection{queryErr: errConnRefused}}
	llm := &fakeGenerator{}
	err := NewRunner(store, llm, &out, defaultRunnerConfig()).Run(context.Background())

	assert.ErrorIs(t, err, errConnRefused)
	assert.Empty(t, out.String())
	assert.Empty(t, llm.requests)
}

func TestRunModelUnreachableIsFatalAfterResults(t *testing.T) {
	var out bytes.Buffer
	llm := &fakeGenerator{err: errConnRefused}
	err := NewRunner(newMemoryStore(), llm, &out, defaultRunnerConfig()).Run(context.Background())

	assert.ErrorIs(t, err, errConnRefused)
	assert.Equal(t, "Chroma Results: ['AI agents can automate tasks like email sorting.']\n", out.String())
}

func TestRunAfterRunHook(t *testing.T) {
	col := &fakeCollection{result: &domain.QueryResult{Documents: [][]string{{"d"}}}}
	var out bytes.Buffer
	r := NewRunner(&fakeStore{col: col}, &fakeGenerator{response: "X"}, &out, defaultRunnerConfig())
	var seen domain.Collection
	var printed string
	r.AfterRun = func(_ context.Context, c domain.Collection) error {
		seen = c
		printed = out.String()
		return nil
	}
	require.NoError(t, r.Run(context.Background()))
	assert.Same(t, col, seen)
	assert.Equal(t, "Chroma Results: ['d']\nOllama Response: X\n", printed)
}

func TestRunIngestedFilesLeaveResultLineUnchanged(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("What can AI agents do? AI agents do things."), 0o644))

	var out bytes.Buffer
	llm := &fakeGenerator{response: "X"}
	r := NewRunner(newMemoryStore(), llm, &out, defaultRunnerConfig())
	var ingested domain.Collection
	r.AfterRun = func(ctx context.Context, col domain.Collection) error {
		rag := NewRAGService(col, chunker.NewSentenceChunker(5, 0), summarizer.NewFrequencySummarizer(), llm, "tinyllama", 3)
		_, err := rag.Ingest(ctx, []string{notes})
		ingested = col
		return err
	}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t,
		"Chroma Results: ['AI agents can automate tasks like email sorting.']\n"+
			"Ollama Response: X\n",
		out.String())
	n, err := ingested.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunAfterRunErrorIsReturned(t *testing.T) {
	col := &fakeCollection{result: &domain.QueryResult{Documents: [][]string{{"d"}}}}
	r := NewRunner(&fakeStore{col: col}, &fakeGenerator{}, &bytes.Buffer{}, defaultRunnerConfig())
	r.AfterRun = func(context.Context, domain.Collection) error { return ErrNoDocuments }
	assert.ErrorIs(t, r.Run(context.Background()), ErrNoDocuments)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "[]", FormatList(nil))
	assert.Equal(t, "['a', 'b']", FormatList([]string{"a", "b"}))
	assert.Equal(t, `["it's"]`, FormatList([]string{"it's"}))
	assert.Equal(t, `['say "it\'s"']`, FormatList([]string{`say "it's"`}))
	assert.Equal(t, `['line\nbreak\\tab\t']`, FormatList([]string{"line\nbreak\\tab\t"}))
	assert.Equal(t, `['bell\x07 café']`, FormatList([]string{"bell\a café"}))
}
