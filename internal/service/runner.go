package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"ragsmoke/internal/domain"
)

const (
	resultsLabel  = "Chroma Results:"
	responseLabel = "Ollama Response:"
	noDocuments   = "No documents found."
)

// RunnerConfig carries the fixed inputs of a smoke-test run.
type RunnerConfig struct {
	Collection   string
	DocumentID   string
	DocumentText string
	Query        string
	NResults     int
	Model        string
	Prompt       string
	// GetOrCreate reuses an existing collection instead of failing.
	GetOrCreate bool
}

// Runner stores one document, retrieves it back and asks the model one
// question, printing both outcomes.
type Runner struct {
	store domain.VectorStore
	llm   domain.Generator
	out   io.Writer
	cfg   RunnerConfig

	// AfterRun, if set, runs once both result lines are printed, so extra
	// documents it adds never reach the printed query.
	AfterRun func(ctx context.Context, col domain.Collection) error
}

// NewRunner wires a runner. Result lines are written to out.
func NewRunner(store domain.VectorStore, llm domain.Generator, out io.Writer, cfg RunnerConfig) *Runner {
	return &Runner{store: store, llm: llm, out: out, cfg: cfg}
}

// Run executes the flow once. Store and model errors are returned unchanged
// in kind; an empty query result is reported and the run continues.
func (r *Runner) Run(ctx context.Context) error {
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}
	slog.Debug("collection ready", "name", col.Name())

	if err := col.Add(ctx, []string{r.cfg.DocumentText}, []string{r.cfg.DocumentID}); err != nil {
		return fmt.Errorf("add document %q: %w", r.cfg.DocumentID, err)
	}
	res, err := col.Query(ctx, []string{r.cfg.Query}, r.cfg.NResults)
	if err != nil {
		return fmt.Errorf("query %q: %w", col.Name(), err)
	}
	if docs := res.TopDocuments(); docs != nil {
		fmt.Fprintln(r.out, resultsLabel, FormatList(docs))
	} else {
		fmt.Fprintln(r.out, resultsLabel, noDocuments)
	}

	gen, err := r.llm.Generate(ctx, domain.GenerateRequest{Model: r.cfg.Model, Prompt: r.cfg.Prompt})
	if err != nil {
		return fmt.Errorf("generate with %s: %w", r.cfg.Model, err)
	}
	slog.Debug("generation done", "model", gen.Model, "eval_count", gen.EvalCount)
	fmt.Fprintln(r.out, responseLabel, gen.Response)

	if r.AfterRun != nil {
		return r.AfterRun(ctx, col)
	}
	return nil
}

func (r *Runner) collection(ctx context.Context) (domain.Collection, error) {
	if r.cfg.GetOrCreate {
		col, err := r.store.GetOrCreateCollection(ctx, r.cfg.Collection)
		if err != nil {
			return nil, fmt.Errorf("get or create collection %q: %w", r.cfg.Collection, err)
		}
		return col, nil
	}
	col, err := r.store.CreateCollection(ctx, r.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", r.cfg.Collection, err)
	}
	return col, nil
}

// FormatList renders items as a bracketed, comma-separated list of quoted
// strings, e.g. ['a', "it's"].
func FormatList(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(it))
	}
	b.WriteByte(']')
	return b.String()
}

// quote prefers single quotes, switching to double quotes when the text
// holds a single quote but no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteByte(q)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
