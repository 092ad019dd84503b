// Package config holds process-wide configuration for the research agent
// core: LLM provider selection, store DSNs, and tool timeouts.
package config

import "time"

// OpenAIConfig configures the OpenAI provider variant of the LLM Gateway.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// AnthropicConfig configures the Anthropic provider variant.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// GoogleConfig configures the Google GenAI provider variant.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	// Candidates lists models to probe at startup for providers that require
	// model discovery (e.g. some free tiers). The first reachable model wins.
	Candidates []string `yaml:"candidates,omitempty"`
}

// LLMClientConfig selects and configures the active LLM Gateway provider.
type LLMClientConfig struct {
	Provider        string          `yaml:"provider"` // "openai" | "anthropic" | "google"
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleConfig    `yaml:"google"`
	MaxPayloadBytes int             `yaml:"max_payload_bytes"`
}

// EmbeddingConfig configures the embedding HTTP endpoint.
type EmbeddingConfig struct {
	Host       string `yaml:"host"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// VectorConfig configures the Qdrant-backed vector store.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // "memory" | "qdrant"
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`
}

// DatabaseConfig configures the relational audit log.
type DatabaseConfig struct {
	Backend string `yaml:"backend"` // "memory" | "postgres"
	DSN     string `yaml:"dsn"`
}

// S3Config configures the optional raw-page archive.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// MCPServerConfig points the Action Dispatcher at one remote MCP tool server.
type MCPServerConfig struct {
	Name string `yaml:"name"` // "notebook" | "email"
	URL  string `yaml:"url"`
}

// ToolTimeouts carries the per-tool default deadlines.
type ToolTimeouts struct {
	Scraper time.Duration `yaml:"scraper"`
	LLM     time.Duration `yaml:"llm"`
	Search  time.Duration `yaml:"search"`
}

// Config is the full process configuration.
type Config struct {
	DatabaseURL  string            `yaml:"database_url"`
	LLMClient    LLMClientConfig   `yaml:"llm_client"`
	Embedding    EmbeddingConfig   `yaml:"embedding"`
	Vector       VectorConfig      `yaml:"vector"`
	Database     DatabaseConfig    `yaml:"database"`
	SearxngURL   string            `yaml:"searxng_url"`
	RedisAddr    string            `yaml:"redis_addr,omitempty"`
	KafkaBrokers []string          `yaml:"kafka_brokers,omitempty"`
	S3           S3Config          `yaml:"s3,omitempty"`
	MCPServers   []MCPServerConfig `yaml:"mcp_servers,omitempty"`
	Timeouts     ToolTimeouts      `yaml:"timeouts"`
	CORSOrigins  []string          `yaml:"cors_allowed_origins,omitempty"`
	APIKey       string            `yaml:"api_key,omitempty"`
	HTTPAddr     string            `yaml:"http_addr"`
	LogLevel     string            `yaml:"log_level"`
	LogPath      string            `yaml:"log_path,omitempty"`
}

// Defaults returns a Config with conservative baseline values.
func Defaults() Config {
	return Config{
		LLMClient: LLMClientConfig{
			Provider:        "openai",
			MaxPayloadBytes: 28 * 1024,
		},
		Vector: VectorConfig{
			Backend:    "memory",
			Collection: "market_intel_chunks_v1",
			Dimensions: 768,
			Metric:     "cosine",
		},
		Database: DatabaseConfig{Backend: "memory"},
		Timeouts: ToolTimeouts{
			Scraper: 60 * time.Second,
			LLM:     60 * time.Second,
			Search:  30 * time.Second,
		},
		HTTPAddr: ":8088",
		LogLevel: "info",
	}
}
