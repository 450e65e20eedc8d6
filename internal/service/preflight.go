package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Heartbeater reports whether a vector store is reachable.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Versioner reports the version of a model server.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// Preflight checks both services concurrently and returns the first failure.
func Preflight(ctx context.Context, store Heartbeater, llm Versioner) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := store.Heartbeat(gctx); err != nil {
			return fmt.Errorf("vector store not ready: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		v, err := llm.Version(gctx)
		if err != nil {
			return fmt.Errorf("language model server not ready: %w", err)
		}
		slog.Debug("model server reachable", "version", v)
		return nil
	})
	return g.Wait()
}
