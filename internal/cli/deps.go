package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bnv-me/webbnv/internal/agentrt"
	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/config"
	"github.com/bnv-me/webbnv/internal/database"
	"github.com/bnv-me/webbnv/internal/llm"
	"github.com/bnv-me/webbnv/internal/memory"
	iredis "github.com/bnv-me/webbnv/internal/redis"
	"github.com/bnv-me/webbnv/internal/retry"
	"github.com/bnv-me/webbnv/pkg/host"
)

const embeddingCacheTTL = 24 * time.Hour

// hostDeps are the long-lived resources of a host process.
type hostDeps struct {
	runtime   *agentrt.Runtime
	memory    *memory.Service
	pool      *pgxpool.Pool
	redis     *redis.Client
	readiness map[string]func(ctx context.Context) error
	closers   []func()
}

func (d *hostDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// openRepository opens the memory store selected by MEMORY_DRIVER,
// migrating the Postgres schema first.
func openRepository(ctx context.Context, d *hostDeps) (memory.Repository, error) {
	switch cfg.Memory.Driver {
	case "sqlite":
		repo, err := memory.NewSQLiteRepository(cfg.Memory.SQLitePath)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = repo.Close() })
		slog.Info("using sqlite memory store", "path", cfg.Memory.SQLitePath)
		return repo, nil
	default:
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.Memory.MigrationsPath); err != nil {
			return nil, err
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		d.pool = pool
		d.closers = append(d.closers, pool.Close)
		d.readiness["database"] = func(ctx context.Context) error {
			return database.HealthCheck(ctx, pool)
		}
		return memory.NewPostgresRepository(pool), nil
	}
}

// buildHost wires the memory store, model access and runtime.
func buildHost(ctx context.Context) (*hostDeps, error) {
	d := &hostDeps{readiness: map[string]func(ctx context.Context) error{}}

	character, err := agentrt.LoadCharacter(cfg.Agent.CharacterFile, cfg.Agent.Name)
	if err != nil {
		return nil, err
	}
	agentID, err := agentrt.ResolveAgentID(cfg.Agent.ID, character.Name)
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, d)
	if err != nil {
		d.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		rdb, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.redis = rdb
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		d.readiness["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	embedder, err := llm.NewEmbedder(cfg.LLM)
	if err != nil {
		d.Close()
		return nil, err
	}
	generator, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		d.Close()
		return nil, err
	}

	var cache *memory.EmbeddingCache
	if d.redis != nil {
		cache = memory.NewEmbeddingCache(d.redis, cfg.LLM.Embedder+":"+cfg.LLM.EmbeddingModel, embeddingCacheTTL)
	}
	d.memory = memory.NewService(repo, embedder, cache, agentID)

	d.runtime, err = agentrt.New(agentrt.Options{
		AgentID:   agentID,
		Character: character,
		Setting:   cfg.Setting,
		Store:     d.memory,
		Generator: generator,
		Models: map[host.ModelClass]string{
			host.ModelClassSmall:  cfg.LLM.SmallModel,
			host.ModelClassMedium: cfg.LLM.MediumModel,
			host.ModelClassLarge:  cfg.LLM.LargeModel,
		},
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// newBackend builds a backend client from validated plugin settings.
func newBackend() (*bnvapi.Client, *config.Settings, error) {
	settings, err := config.LoadSettings(cfg.Setting)
	if err != nil {
		return nil, nil, err
	}
	return bnvapi.New(bnvapi.Config{
		BaseURL:  settings.BnvURL,
		Strategy: retry.Strategy(settings.RetryStrategy),
	}), settings, nil
}
