// Package ollama is a minimal client for the Ollama HTTP API covering
// non-streaming generation, embeddings and the version probe.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ragsmoke/internal/domain"
)

// DefaultHost is where a local Ollama server listens.
const DefaultHost = "http://localhost:11434"

// Config configures the Ollama client.
type Config struct {
	Host       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to a single Ollama server. It never retries.
type Client struct {
	host   string
	client *http.Client
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama api error (status %d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for cfg.Host, defaulting to DefaultHost.
func NewClient(cfg Config) *Client {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = DefaultHost
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{host: host, client: hc}
}

// Host returns the base URL the client talks to.
func (c *Client) Host() string { return c.host }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Generate requests a single completion for req.Prompt.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("%w: model is required", domain.ErrInvalidArgument)
	}
	body := generateRequest{Model: req.Model, Prompt: req.Prompt, System: req.System}
	var out generateResponse
	start := time.Now()
	if err := c.do(ctx, http.MethodPost, "/api/generate", body, &out); err != nil {
		return nil, fmt.Errorf("generate with %s: %w", req.Model, err)
	}
	slog.Debug("ollama generate", "model", req.Model, "eval_count", out.EvalCount, "elapsed", time.Since(start))
	return &domain.GenerateResponse{
		Model:     out.Model,
		Response:  out.Response,
		Done:      out.Done,
		EvalCount: out.EvalCount,
	}, nil
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embeddings returns the embedding of prompt computed by model.
func (c *Client) Embeddings(ctx context.Context, model, prompt string) ([]float32, error) {
	var out embeddingsResponse
	if err := c.do(ctx, http.MethodPost, "/api/embeddings", embeddingsRequest{Model: model, Prompt: prompt}, &out); err != nil {
		return nil, fmt.Errorf("embeddings with %s: %w", model, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embeddings with %s: empty embedding", model)
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Version returns the server version; it doubles as a readiness probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &out); err != nil {
		return "", fmt.Errorf("version: %w", err)
	}
	return out.Version, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts Ollama's {"error": "..."} body, falling back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
