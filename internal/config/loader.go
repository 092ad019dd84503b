package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from an optional YAML file, then overlays
// environment variables: file sets defaults, env wins. path may be empty,
// in which case only defaults + env apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // best-effort; local .env is optional

	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
		cfg.Database.DSN = v
		cfg.Database.Backend = "postgres"
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLMClient.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLMClient.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLMClient.OpenAI.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLMClient.Anthropic.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.LLMClient.Anthropic.Model = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.LLMClient.Google.APIKey = v
	}
	if v := os.Getenv("GOOGLE_MODEL"); v != "" {
		cfg.LLMClient.Google.Model = v
	}
	if v := os.Getenv("MAX_PAYLOAD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLMClient.MaxPayloadBytes = n
		}
	}
	if v := os.Getenv("EMBEDDING_HOST"); v != "" {
		cfg.Embedding.Host = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
			cfg.Vector.Dimensions = n
		}
	}
	if v := os.Getenv("SEARXNG_URL"); v != "" {
		cfg.SearxngURL = v
	}
	if v := os.Getenv("VECTOR_DSN"); v != "" {
		cfg.Vector.DSN = v
		cfg.Vector.Backend = "qdrant"
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.S3.Enabled = true
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("SCRAPER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.Scraper = d
		}
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.LLM = d
		}
	}
	if v := os.Getenv("SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.Search = d
		}
	}
}
