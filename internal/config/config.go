package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DemoConfig holds the fixed inputs of the smoke test.
type DemoConfig struct {
	Collection   string `yaml:"collection"`
	DocumentID   string `yaml:"document_id"`
	DocumentText string `yaml:"document_text"`
	Query        string `yaml:"query"`
	NResults     int    `yaml:"n_results"`
	Model        string `yaml:"model"`
	Prompt       string `yaml:"prompt"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	Preflight    bool   `yaml:"preflight"`
}

// OllamaConfig points at the language-model server.
type OllamaConfig struct {
	Host        string `yaml:"host"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OllamaEmbedderConfig configures embeddings computed by Ollama.
type OllamaEmbedderConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	Ollama *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type        string        `yaml:"type"`
	GetOrCreate bool          `yaml:"get_or_create"`
	Chroma      *ChromaConfig `yaml:"chroma,omitempty"`
	Qdrant      *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite      *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// ChromaConfig contains connection details for a Chroma server.
type ChromaConfig struct {
	URL         string `yaml:"url"`
	Tenant      string `yaml:"tenant"`
	Database    string `yaml:"database"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Distance    string `yaml:"distance"`
	VectorSize  int    `yaml:"vector_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ChunkerConfig configures how ingested files are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Demo        DemoConfig        `yaml:"demo"`
	Ollama      OllamaConfig      `yaml:"ollama"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// With neither present it returns defaults and an empty path.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

// Validate rejects combinations no component can serve.
func (c *AppConfig) Validate() error {
	switch c.VectorStore.Type {
	case "memory", "sqlite":
	case "chroma", "qdrant":
		if c.Embedder.Type == "tfidf" {
			return fmt.Errorf("vector store %q needs a fixed-dimension embedder (ollama or openai), not tfidf", c.VectorStore.Type)
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	switch c.Embedder.Type {
	case "tfidf", "ollama", "openai":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	if c.Demo.NResults <= 0 {
		return fmt.Errorf("demo.n_results must be positive, got %d", c.Demo.NResults)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	d := &cfg.Demo
	setString(&d.Collection, "docs")
	setString(&d.DocumentID, "doc1")
	setString(&d.DocumentText, "AI agents can automate tasks like email sorting.")
	setString(&d.Query, "What can AI agents do?")
	setInt(&d.NResults, 1)
	setString(&d.Model, "tinyllama")
	setString(&d.Prompt, "What are AI agents?")
	setInt(&d.TimeoutSecs, 120)

	setString(&cfg.Ollama.Host, "http://localhost:11434")

	setString(&cfg.Embedder.Type, "tfidf")
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		setString(&cfg.Embedder.Ollama.Model, "nomic-embed-text")
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		setString(&o.BaseURL, "https://api.openai.com/v1")
		setString(&o.APIKeyEnv, "OPENAI_API_KEY")
		setString(&o.Model, "text-embedding-3-small")
		setInt(&o.TimeoutSecs, 30)
	}

	setString(&cfg.VectorStore.Type, "memory")
	switch cfg.VectorStore.Type {
	case "chroma":
		if cfg.VectorStore.Chroma == nil {
			cfg.VectorStore.Chroma = &ChromaConfig{}
		}
		setString(&cfg.VectorStore.Chroma.URL, "http://localhost:8000")
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		setString(&cfg.VectorStore.Qdrant.Host, "localhost")
		setInt(&cfg.VectorStore.Qdrant.Port, 6334)
		setString(&cfg.VectorStore.Qdrant.Distance, "cosine")
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		setString(&cfg.VectorStore.SQLite.Path, "rag.db")
	}

	setString(&cfg.Chunker.Type, "sentence")
	setInt(&cfg.Chunker.SentencesPerChunk, 5)
	setString(&cfg.Summarizer.Type, "frequency")
	setInt(&cfg.Summarizer.MaxSentences, 5)
	setString(&cfg.Log.Level, "info")
	setString(&cfg.Log.Format, "text")
}

// applyEnvOverrides lets the environment (or a .env file) retarget the
// services without editing YAML.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.Ollama.Host = v
	}
	if v := os.Getenv("RAG_VECTOR_STORE"); v != "" && v != cfg.VectorStore.Type {
		cfg.VectorStore = VectorStoreConfig{Type: v, GetOrCreate: cfg.VectorStore.GetOrCreate}
		applyConfigDefaults(cfg)
	}
	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
