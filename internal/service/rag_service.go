package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ragsmoke/internal/domain"
	"ragsmoke/internal/parser"
)

// ErrNoDocuments is returned when ingestion finds no readable text files.
var ErrNoDocuments = errors.New("no .txt, .md or .html documents found")

// Source is one retrieved chunk backing an answer.
type Source struct {
	ID       string
	Text     string
	Distance float64
}

// Answer is a model response grounded on retrieved sources.
type Answer struct {
	Text    string
	Sources []Source
}

// RAGService ingests text files into a collection and answers questions
// using the best matching chunks as context.
type RAGService struct {
	collection          domain.Collection
	chunker             domain.Chunker
	summarizer          domain.Summarizer
	llm                 domain.Generator
	parser              *parser.Parser
	model               string
	summaryMaxSentences int
}

// NewRAGService creates a service bound to collection.
func NewRAGService(collection domain.Collection, chunker domain.Chunker, summarizer domain.Summarizer, llm domain.Generator, model string, summaryMaxSentences int) *RAGService {
	return &RAGService{
		collection:          collection,
		chunker:             chunker,
		summarizer:          summarizer,
		llm:                 llm,
		parser:              parser.New(),
		model:               model,
		summaryMaxSentences: summaryMaxSentences,
	}
}

// Ingest reads the files matched by paths, adds their chunks to the
// collection in one batch and returns a summary of everything read.
func (s *RAGService) Ingest(ctx context.Context, paths []string) (string, error) {
	docs, err := s.readDocuments(paths)
	if err != nil {
		return "", err
	}
	var texts, ids []string
	var all strings.Builder
	for _, d := range docs {
		chunks, err := s.chunker.Chunk(d)
		if err != nil {
			return "", fmt.Errorf("chunk %s: %w", d.ID, err)
		}
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
			ids = append(ids, ch.ChunkID)
		}
		all.WriteString(d.Text)
		all.WriteString("\n")
	}
	if len(texts) == 0 {
		return "", ErrNoDocuments
	}
	if err := s.collection.Add(ctx, texts, ids); err != nil {
		return "", fmt.Errorf("add chunks: %w", err)
	}
	slog.Info("ingested files", "documents", len(docs), "chunks", len(texts), "collection", s.collection.Name())
	return s.summarizer.Summarize(all.String(), s.summaryMaxSentences)
}

// Ask retrieves the topK closest chunks for question and asks the model to
// answer from them.
func (s *RAGService) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidArgument)
	}
	if topK <= 0 {
		topK = 3
	}
	res, err := s.collection.Query(ctx, []string{question}, topK)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", s.collection.Name(), err)
	}
	var sources []Source
	if docs := res.TopDocuments(); docs != nil {
		for i, text := range docs {
			src := Source{Text: text}
			if len(res.IDs) > 0 && i < len(res.IDs[0]) {
				src.ID = res.IDs[0][i]
			}
			if len(res.Distances) > 0 && i < len(res.Distances[0]) {
				src.Distance = res.Distances[0][i]
			}
			sources = append(sources, src)
		}
	}
	gen, err := s.llm.Generate(ctx, domain.GenerateRequest{
		Model:  s.model,
		Prompt: buildPrompt(question, sources),
	})
	if err != nil {
		return nil, fmt.Errorf("generate with %s: %w", s.model, err)
	}
	return &Answer{Text: strings.TrimSpace(gen.Response), Sources: sources}, nil
}

func buildPrompt(question string, sources []Source) string {
	if len(sources) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n\nContext:\n")
	for _, src := range sources {
		b.WriteString("- ")
		b.WriteString(src.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// readDocuments expands globs and loads every file the parser supports.
// Document ids are a short hash of the path.
func (s *RAGService) readDocuments(paths []string) ([]domain.Document, error) {
	var docs []domain.Document
	seen := make(map[string]struct{})
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !s.parser.Supports(m) {
				slog.Debug("skipping unsupported file", "path", m)
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			text, err := s.parser.Parse(m, data)
			if err != nil {
				return nil, err
			}
			docs = append(docs, domain.Document{ID: hashString(m), Text: text})
		}
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
