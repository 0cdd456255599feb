// Package config provides configuration loading for foliod.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. See LoadWithFile for precedence and mapping rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete foliod configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Search      SearchConfig      `koanf:"search"`
	Chat        ChatConfig        `koanf:"chat"`
	Events      EventsConfig      `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig holds relational storage configuration.
type StorageConfig struct {
	// Path is the SQLite database file. Empty means ~/.config/foliod/foliod.db.
	Path string `koanf:"path"`
}

// VectorStoreConfig selects and configures the vector store provider.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	VectorSize     int      `koanf:"vector_size"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// EmbeddingsConfig configures the external embedding provider.
type EmbeddingsConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	Timeout Duration `koanf:"timeout"`
}

// LLMConfig configures the streaming chat model endpoint.
type LLMConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// Alpha is the vector-score weight in the hybrid merge; the keyword
	// weight is 1-alpha.
	Alpha          float64  `koanf:"alpha"`
	ScoreThreshold float64  `koanf:"score_threshold"`
	CacheTTL       Duration `koanf:"cache_ttl"`
}

// ChatConfig tunes the streaming chat session manager.
type ChatConfig struct {
	// HistoryTurns is the number of user/AI exchange pairs included in the
	// prompt. Default: 6 (12 messages).
	HistoryTurns int `koanf:"history_turns"`
}

// EventsConfig configures the optional NATS content-change bus.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// Default returns a Config with production-ready defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8085,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:       "~/.config/foliod/vectorstore",
				VectorSize: 384,
			},
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				VectorSize:     384,
				RequestTimeout: Duration(30 * time.Second),
			},
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: "http://localhost:8080",
			Model:   "BAAI/bge-small-en-v1.5",
			Timeout: Duration(10 * time.Second),
		},
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "llama3.1",
			Timeout: Duration(2 * time.Minute),
		},
		Search: SearchConfig{
			Alpha:          0.7,
			ScoreThreshold: 0.2,
			CacheTTL:       Duration(5 * time.Minute),
		},
		Chat: ChatConfig{
			HistoryTurns: 6,
		},
		Events: EventsConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant", "":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", c.VectorStore.Provider)
	}
	if c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base_url is required")
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search alpha must be in [0,1], got %v", c.Search.Alpha)
	}
	if c.Search.CacheTTL.Duration() <= 0 {
		return errors.New("search cache_ttl must be positive")
	}
	if c.Chat.HistoryTurns < 0 {
		return fmt.Errorf("chat history_turns must be >= 0, got %d", c.Chat.HistoryTurns)
	}
	return nil
}
