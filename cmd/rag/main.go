package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragsmoke/internal/config"
	"ragsmoke/internal/domain"
	"ragsmoke/internal/logging"
	"ragsmoke/internal/ollama"
	"ragsmoke/internal/service"
	"ragsmoke/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath     string
		interactive bool
		check       bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; searches ./config.yaml then ~/.config/rag/config.yaml)")
	flag.BoolVar(&interactive, "i", false, "Open the interactive question prompt after the smoke test")
	flag.BoolVar(&check, "check", false, "Check that the vector store and model server are reachable before running")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: rag [-config config.yaml] [-i] [-check] [file.txt ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(cfgPath, interactive, check, flag.Args()); err != nil {
		slog.Error("rag failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string, interactive, check bool, files []string) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		var found string
		cfg, found, err = config.LoadDefault()
		cfgPath = found
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Configure(cfg.Log.Level, cfg.Log.Format)
	slog.Debug("config loaded", "path", cfgPath, "store", cfg.VectorStore.Type, "embedder", cfg.Embedder.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm := ollama.NewClient(ollama.Config{Host: cfg.Ollama.Host, Timeout: seconds(cfg.Ollama.TimeoutSecs)})
	newEmbedder, err := embedderFactory(cfg, llm)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg, newEmbedder)
	if err != nil {
		return err
	}
	defer store.Close()

	ch, err := buildChunker(cfg)
	if err != nil {
		return err
	}
	sum, err := buildSummarizer(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, seconds(cfg.Demo.TimeoutSecs))
	defer cancel()

	if check || cfg.Demo.Preflight {
		if err := service.Preflight(runCtx, store, llm); err != nil {
			return err
		}
	}

	d := cfg.Demo
	runner := service.NewRunner(store, llm, os.Stdout, service.RunnerConfig{
		Collection:   d.Collection,
		DocumentID:   d.DocumentID,
		DocumentText: d.DocumentText,
		Query:        d.Query,
		NResults:     d.NResults,
		Model:        d.Model,
		Prompt:       d.Prompt,
		GetOrCreate:  cfg.VectorStore.GetOrCreate,
	})
	var (
		rag     *service.RAGService
		summary string
	)
	runner.AfterRun = func(ctx context.Context, col domain.Collection) error {
		rag = service.NewRAGService(col, ch, sum, llm, d.Model, cfg.Summarizer.MaxSentences)
		if len(files) == 0 {
			return nil
		}
		s, err := rag.Ingest(ctx, files)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		summary = s
		return nil
	}
	if err := runner.Run(runCtx); err != nil {
		return err
	}

	if !interactive {
		return nil
	}
	m := tui.New(rag, summary, d.NResults, seconds(d.TimeoutSecs))
	if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
