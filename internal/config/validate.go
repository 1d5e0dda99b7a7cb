package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Validate checks Config for problems that would fail later at runtime.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Server.Enabled && c.Server.CycleRateLimit < 0 {
		errs = append(errs, fmt.Sprintf("CYCLE_RATE_LIMIT must not be negative, got %d", c.Server.CycleRateLimit))
	}

	if c.Agent.ID != "" {
		if _, err := uuid.Parse(c.Agent.ID); err != nil {
			errs = append(errs, "AGENT_ID must be a UUID")
		}
	}

	switch c.Memory.Driver {
	case "postgres":
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required when MEMORY_DRIVER=postgres")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
	case "sqlite":
		if c.Memory.SQLitePath == "" {
			errs = append(errs, "MEMORY_SQLITE_PATH is required when MEMORY_DRIVER=sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("MEMORY_DRIVER must be postgres or sqlite, got %q", c.Memory.Driver))
	}

	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			errs = append(errs, "ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER must be openai or anthropic, got %q", c.LLM.Provider))
	}

	switch c.LLM.Embedder {
	case "openai":
		if c.LLM.OpenAIKey == "" && c.LLM.Provider != "openai" {
			errs = append(errs, "OPENAI_API_KEY is required when LLM_EMBEDDER=openai")
		}
	case "hash":
		slog.Warn("LLM_EMBEDDER=hash produces non-semantic embeddings; use only for local runs")
	default:
		errs = append(errs, fmt.Sprintf("LLM_EMBEDDER must be openai or hash, got %q", c.LLM.Embedder))
	}

	if c.NATS.URL == "" {
		slog.Debug("NATS_URL is empty, lifecycle events are not published")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
