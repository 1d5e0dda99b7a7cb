package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the configuration of the bnv-agent host process. Plugin
// settings (BNV_*, OUTFIT_*) are not mapped here; they are read through
// Setting and validated by LoadSettings.
type Config struct {
	Server ServerConfig
	Agent  AgentConfig
	Memory MemoryConfig
	DB     DBConfig
	Redis  RedisConfig
	NATS   NATSConfig
	LLM    LLMConfig
	Log    LogConfig

	k *koanf.Koanf
}

type ServerConfig struct {
	Enabled     bool
	Host        string
	Port        int
	CORSOrigins []string

	// CycleRateLimit caps manual cycle triggers per client per minute.
	CycleRateLimit int
}

type AgentConfig struct {
	ID            string
	Name          string
	CharacterFile string
}

type MemoryConfig struct {
	Driver         string
	SQLitePath     string
	MigrationsPath string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type LLMConfig struct {
	Provider       string
	Embedder       string
	OpenAIKey      string
	OpenAIBaseURL  string
	AnthropicKey   string
	SmallModel     string
	MediumModel    string
	LargeModel     string
	EmbeddingModel string
}

type LogConfig struct {
	Level  string
	Format string
}

// envKey maps an environment variable name to its koanf path.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Environment variables override .env
	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Enabled: k.Bool("server.enabled"),
			Host:    k.String("server.host"),
			Port:    k.Int("server.port"),

			CORSOrigins:    splitList(k.String("cors.allowed.origins")),
			CycleRateLimit: k.Int("cycle.rate.limit"),
		},
		Agent: AgentConfig{
			ID:            k.String("agent.id"),
			Name:          k.String("agent.name"),
			CharacterFile: k.String("agent.character.file"),
		},
		Memory: MemoryConfig{
			Driver:         k.String("memory.driver"),
			SQLitePath:     k.String("memory.sqlite.path"),
			MigrationsPath: k.String("migrations.path"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Enabled:  k.Bool("redis.enabled"),
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		LLM: LLMConfig{
			Provider:       k.String("llm.provider"),
			Embedder:       k.String("llm.embedder"),
			OpenAIKey:      k.String("openai.api.key"),
			OpenAIBaseURL:  k.String("openai.base.url"),
			AnthropicKey:   k.String("anthropic.api.key"),
			SmallModel:     k.String("llm.small.model"),
			MediumModel:    k.String("llm.medium.model"),
			LargeModel:     k.String("llm.large.model"),
			EmbeddingModel: k.String("llm.embedding.model"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		k: k,
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.CycleRateLimit == 0 {
		c.Server.CycleRateLimit = 6
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "bnv-agent"
	}
	if c.Memory.Driver == "" {
		c.Memory.Driver = "postgres"
	}
	if c.Memory.SQLitePath == "" {
		c.Memory.SQLitePath = "data/memory.db"
	}
	if c.Memory.MigrationsPath == "" {
		c.Memory.MigrationsPath = "migrations"
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.User == "" {
		c.DB.User = "bnv"
	}
	if c.DB.Name == "" {
		c.DB.Name = "bnv"
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.DB.MaxConns == 0 {
		c.DB.MaxConns = 10
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Embedder == "" {
		c.LLM.Embedder = "openai"
	}
	if c.LLM.SmallModel == "" {
		c.LLM.SmallModel = "gpt-4o-mini"
	}
	if c.LLM.MediumModel == "" {
		c.LLM.MediumModel = "gpt-4o"
	}
	if c.LLM.LargeModel == "" {
		c.LLM.LargeModel = "gpt-4o"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Setting returns the raw value of an environment-style key such as
// "BNV_URL", or "" when unset.
func (c *Config) Setting(key string) string {
	if c.k == nil {
		return ""
	}
	return c.k.String(envKey(key))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
