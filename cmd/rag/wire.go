package main

import (
	"fmt"
	"time"

	"ragsmoke/internal/chunker"
	"ragsmoke/internal/config"
	"ragsmoke/internal/domain"
	ollamaembed "ragsmoke/internal/embedding/ollama"
	"ragsmoke/internal/embedding/openai"
	"ragsmoke/internal/embedding/tfidf"
	"ragsmoke/internal/ollama"
	"ragsmoke/internal/summarizer"
	"ragsmoke/internal/vectorstore/chroma"
	"ragsmoke/internal/vectorstore/memory"
	"ragsmoke/internal/vectorstore/qdrant"
	"ragsmoke/internal/vectorstore/sqlite"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// embedderFactory returns a constructor so stores that hold one embedder per
// collection get independent instances. Remote embedders are stateless and
// shared.
func embedderFactory(cfg *config.AppConfig, llm *ollama.Client) (func() domain.Embedder, error) {
	var shared domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return func() domain.Embedder { return tfidf.NewEmbedder() }, nil
	case "ollama":
		ecfg := cfg.Embedder.Ollama
		client := llm
		if ecfg.BaseURL != "" && ecfg.BaseURL != llm.Host() {
			client = ollama.NewClient(ollama.Config{Host: ecfg.BaseURL, Timeout: seconds(cfg.Ollama.TimeoutSecs)})
		}
		shared = ollamaembed.NewEmbedder(client, ecfg.Model)
	case "openai":
		ocfg := cfg.Embedder.OpenAI
		c, err := openai.NewClient(openai.Config{
			BaseURL:    ocfg.BaseURL,
			APIKeyEnv:  ocfg.APIKeyEnv,
			Model:      ocfg.Model,
			Timeout:    seconds(ocfg.TimeoutSecs),
			MaxRetries: ocfg.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		shared = c
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	return func() domain.Embedder { return shared }, nil
}

func buildStore(cfg *config.AppConfig, newEmbedder func() domain.Embedder) (domain.VectorStore, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory", "":
		return memory.NewStorage(newEmbedder), nil
	case "chroma":
		return chroma.NewStorage(chroma.Config{
			URL:      vs.Chroma.URL,
			Tenant:   vs.Chroma.Tenant,
			Database: vs.Chroma.Database,
			Timeout:  seconds(vs.Chroma.TimeoutSecs),
		}, newEmbedder())
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			Host:       vs.Qdrant.Host,
			Port:       vs.Qdrant.Port,
			Distance:   vs.Qdrant.Distance,
			VectorSize: vs.Qdrant.VectorSize,
			Timeout:    seconds(vs.Qdrant.TimeoutSecs),
		}, newEmbedder())
	case "sqlite":
		return sqlite.Open(vs.SQLite.Path, newEmbedder())
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}

func buildChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "sentence", "":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func buildSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}
