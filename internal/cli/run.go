package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bnv-me/webbnv/internal/api"
	"github.com/bnv-me/webbnv/internal/memory"
	mw "github.com/bnv-me/webbnv/internal/middleware"
	inats "github.com/bnv-me/webbnv/internal/nats"
	iredis "github.com/bnv-me/webbnv/internal/redis"
	"github.com/bnv-me/webbnv/internal/server"
	"github.com/bnv-me/webbnv/internal/startup"
	"github.com/bnv-me/webbnv/plugin"
)

const (
	startTimeout    = 2 * time.Minute
	stopTimeout     = 30 * time.Second
	cycleLockTTL    = 10 * time.Minute
	cycleRateWindow = time.Minute
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the agent with the webBnv plugin until interrupted",
		RunE:  runHost,
	})
}

func runHost(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildHost(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	opts := []plugin.Option{plugin.WithLogger(slog.Default())}

	if cfg.NATS.URL != "" {
		nc, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer nc.Close()
		opts = append(opts, plugin.WithEvents(inats.NewPublisher(nc.JetStream())))
		deps.readiness["nats"] = func(context.Context) error {
			if !nc.Healthy() {
				return errors.New("nats connection lost")
			}
			return nil
		}
	}

	if deps.redis != nil {
		opts = append(opts, plugin.WithGuard(iredis.NewCycleLock(deps.redis, deps.runtime.AgentID(), cycleLockTTL)))
	}

	p := plugin.New(opts...)
	client := plugin.StartupClient(p)
	slog.Info("plugin loaded", "plugin", p.Name, "agent_id", deps.runtime.AgentID())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, newOpsRouter(deps, client))
		g.Go(func() error { return srv.Run(gctx) })
	}

	startCtx, cancelStart := context.WithTimeout(gctx, startTimeout)
	for _, c := range p.Clients {
		if err := c.Start(startCtx, deps.runtime); err != nil {
			cancelStart()
			stop()
			_ = g.Wait()
			return err
		}
	}
	cancelStart()
	slog.Info("agent running", "name", deps.runtime.Character().Name)

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		for _, c := range p.Clients {
			if err := c.Stop(stopCtx); err != nil {
				slog.Warn("stopping plugin client", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func newOpsRouter(deps *hostDeps, client *startup.Client) http.Handler {
	memHandler := memory.NewHandler(deps.memory)
	cycles := startup.NewHandler(client)

	rcfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		Checks:             make(map[string]api.Check, len(deps.readiness)),
	}
	for name, check := range deps.readiness {
		rcfg.Checks[name] = check
	}
	if deps.redis != nil && cfg.Server.CycleRateLimit > 0 {
		rl := mw.NewRateLimiter(deps.redis, "cycles", cfg.Server.CycleRateLimit, cycleRateWindow)
		rcfg.CycleRateLimiter = rl.Middleware
	}

	return api.NewRouter(rcfg, api.HandlerSet{
		ListRoomMemories: memHandler.ListRoom,
		GetMemory:        memHandler.Get,
		SearchRoom:       memHandler.Search,
		TriggerCycle:     cycles.Trigger,
		LastCycle:        cycles.Last,
	})
}
