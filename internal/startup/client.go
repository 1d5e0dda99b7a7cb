// Package startup is the plugin's lifecycle client: it runs one outfit
// cycle when the agent starts and, optionally, keeps running them on a
// schedule.
package startup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bnv-me/webbnv/internal/attributes"
	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/config"
	"github.com/bnv-me/webbnv/internal/metrics"
	inats "github.com/bnv-me/webbnv/internal/nats"
	"github.com/bnv-me/webbnv/internal/outfit"
	"github.com/bnv-me/webbnv/internal/retry"
	"github.com/bnv-me/webbnv/internal/wardrobe"
	"github.com/bnv-me/webbnv/pkg/host"
)

// Cycle triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Cycle statuses.
const (
	StatusSubmitted = "submitted"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

var (
	// ErrCycleSkipped is returned when another cycle holds the local guard
	// or the distributed lock.
	ErrCycleSkipped = errors.New("outfit cycle already running")
	// ErrNotStarted is returned by operations that need a started client
	// that has not been stopped.
	ErrNotStarted = errors.New("startup client not started")
)

// Backend is the part of the BNV API the client calls.
type Backend interface {
	CreateUser(ctx context.Context, name, agentID string) (json.RawMessage, error)
	Wearables(ctx context.Context, agentID string) (*bnvapi.WearablesResponse, error)
	UpdateOutfit(ctx context.Context, agentID string, vars bnvapi.OutfitVariables) (json.RawMessage, error)
}

// EventPublisher receives lifecycle events. Publishing is best effort.
type EventPublisher interface {
	PublishOutfitSubmitted(ctx context.Context, event inats.OutfitSubmitted) error
	PublishCycleFinished(ctx context.Context, event inats.CycleFinished) error
	PublishWearablesSynced(ctx context.Context, event inats.WearablesSynced) error
}

// Guard serializes cycles across replicas.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Options configures a Client. Every field is optional.
type Options struct {
	// NewBackend builds the backend client once settings are known.
	NewBackend func(s *config.Settings, logger *slog.Logger) Backend
	Events     EventPublisher
	Guard      Guard
	Logger     *slog.Logger
}

// CycleReport describes the most recent cycle.
type CycleReport struct {
	CycleID   string        `json:"cycle_id"`
	Trigger   string        `json:"trigger"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Result    outfit.Result `json:"result"`
}

// Client implements host.Client.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	rt        host.Runtime
	settings  *config.Settings
	backend   Backend
	generator *attributes.Generator
	assembler *outfit.Assembler
	ingester  *wardrobe.Ingester
	scheduler *Scheduler
	last      *CycleReport
	stopped   bool

	running  atomic.Bool
	inflight sync.WaitGroup
}

var _ host.Client = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.NewBackend == nil {
		opts.NewBackend = DefaultBackend
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		logger: logger.With("component", "startup"),
	}
}

// DefaultBackend builds a bnvapi client from the plugin settings.
func DefaultBackend(s *config.Settings, logger *slog.Logger) Backend {
	return bnvapi.New(bnvapi.Config{
		BaseURL:  s.BnvURL,
		Strategy: retry.Strategy(s.RetryStrategy),
		Logger:   logger,
	})
}

// Start validates settings, initializes the runtime, runs the first cycle
// and starts the scheduler when enabled. Any failure is logged and
// returned to the host.
func (c *Client) Start(ctx context.Context, rt host.Runtime) (err error) {
	c.logger.Info("startup client triggered on agent start", "agent_id", rt.AgentID())
	defer func() {
		if err == nil {
			return
		}
		if isTimeout(err) {
			c.logger.Error("operation timed out", "error", err)
		} else {
			c.logger.Error("startup failed", "error", err)
		}
	}()

	settings, err := config.LoadSettings(rt.GetSetting)
	if err != nil {
		return err
	}

	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing runtime: %w", err)
	}

	c.setup(rt, settings)

	if settings.RegisterUser {
		if _, err := c.backend.CreateUser(ctx, rt.Character().Name, rt.AgentID().String()); err != nil {
			return fmt.Errorf("registering user: %w", err)
		}
		c.logger.Info("user registered", "name", rt.Character().Name)
	}

	if settings.SyncWearables {
		if _, err := c.SyncWearables(ctx); err != nil {
			return err
		}
	}

	if err := c.RunCycle(ctx, TriggerStartup); err != nil && !errors.Is(err, ErrCycleSkipped) {
		return err
	}

	if settings.SchedulerEnabled {
		s := NewScheduler(settings.Interval(), c.RunCycle, c.logger)
		s.Start()
		c.mu.Lock()
		c.scheduler = s
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) setup(rt host.Runtime, settings *config.Settings) {
	backend := c.opts.NewBackend(settings, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rt = rt
	c.settings = settings
	c.backend = backend
	c.generator = attributes.NewGenerator(rt, c.logger)
	c.assembler = outfit.NewAssembler(rt, backend, c.logger)
	c.ingester = wardrobe.NewIngester(rt.Messages(), rt.AgentID(), c.logger)
}

// Stop halts the scheduler and waits for an in-flight cycle until ctx is
// done. Running cycles are not cancelled.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	s := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}

	done := make(chan struct{})
	go func() {
		if s != nil {
			<-s.Done()
		}
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("startup client stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("stopped before in-flight cycle finished", "error", ctx.Err())
		return ctx.Err()
	}
}

// SyncWearables fetches the catalog and stores it as agent memories.
func (c *Client) SyncWearables(ctx context.Context) (wardrobe.Stats, error) {
	c.mu.Lock()
	rt, backend, ingester := c.rt, c.backend, c.ingester
	c.mu.Unlock()
	if rt == nil {
		return wardrobe.Stats{}, ErrNotStarted
	}

	resp, err := backend.Wearables(ctx, rt.AgentID().String())
	if err != nil {
		return wardrobe.Stats{}, fmt.Errorf("fetching wearables: %w", err)
	}

	stats, err := ingester.Ingest(ctx, resp)
	if err != nil {
		return stats, fmt.Errorf("ingesting wearables: %w", err)
	}

	c.publish(ctx, func(ctx context.Context, p EventPublisher) error {
		return p.PublishWearablesSynced(ctx, inats.WearablesSynced{
			AgentID:   rt.AgentID(),
			Total:     stats.Total,
			Written:   stats.Written,
			Skipped:   stats.Skipped,
			Failed:    stats.Failed,
			Timestamp: time.Now(),
		})
	})
	return stats, nil
}

// Trigger starts a manual cycle in the background. It returns
// ErrCycleSkipped when a cycle is already running.
func (c *Client) Trigger() error {
	if err := c.begin(); err != nil {
		return err
	}
	go func() {
		defer c.inflight.Done()
		defer c.running.Store(false)
		_ = c.cycle(context.Background(), TriggerManual)
	}()
	return nil
}

// RunCycle generates attributes and assembles an outfit. It returns
// ErrCycleSkipped without doing anything when a cycle is already running.
func (c *Client) RunCycle(ctx context.Context, trigger string) error {
	if err := c.begin(); err != nil {
		if errors.Is(err, ErrCycleSkipped) {
			c.logger.Info("cycle skipped, another cycle is running", "trigger", trigger)
		}
		return err
	}
	defer c.inflight.Done()
	defer c.running.Store(false)
	return c.cycle(ctx, trigger)
}

// begin claims the running flag and registers the cycle with Stop. The
// stopped check and inflight.Add share c.mu with Stop so Wait never races
// a new cycle.
func (c *Client) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rt == nil || c.stopped {
		return ErrNotStarted
	}
	if !c.running.CompareAndSwap(false, true) {
		metrics.CyclesSkippedTotal.Inc()
		return ErrCycleSkipped
	}
	c.inflight.Add(1)
	return nil
}

// LastCycle returns a copy of the most recent cycle report, or nil.
func (c *Client) LastCycle() *CycleReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	return &r
}

func (c *Client) cycle(ctx context.Context, trigger string) error {
	c.mu.Lock()
	rt, settings, generator, assembler := c.rt, c.settings, c.generator, c.assembler
	c.mu.Unlock()

	report := &CycleReport{
		CycleID:   ulid.Make().String(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	log := c.logger.With("cycle_id", report.CycleID, "trigger", trigger)

	if c.opts.Guard != nil {
		release, ok, err := c.opts.Guard.TryAcquire(ctx)
		switch {
		case err != nil:
			log.Warn("cycle lock unavailable, running unguarded", "error", err)
		case !ok:
			metrics.CyclesSkippedTotal.Inc()
			log.Info("cycle skipped, another replica holds the lock")
			return ErrCycleSkipped
		default:
			defer release()
		}
	}

	log.Info("outfit cycle started", "live_generation", settings.LiveGeneration)

	var err error
	attrs := attributes.Placeholder()
	if settings.LiveGeneration {
		attrs, err = generator.Generate(ctx)
	}
	if err == nil {
		report.Result, err = assembler.Assemble(ctx, attrs)
	}

	report.Duration = time.Since(report.StartedAt)
	switch {
	case err != nil:
		report.Status = StatusFailed
		report.Error = err.Error()
		log.Error("outfit cycle failed", "duration", report.Duration, "error", err)
	case report.Result.Submitted:
		report.Status = StatusSubmitted
		log.Info("outfit cycle finished", "duration", report.Duration, "wearables", report.Result.Wearables)
	default:
		report.Status = StatusSkipped
		log.Info("outfit cycle finished without submitting", "duration", report.Duration)
	}

	metrics.CyclesTotal.WithLabelValues(report.Status).Inc()
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	if report.Status == StatusSubmitted {
		c.publish(ctx, func(ctx context.Context, p EventPublisher) error {
			return p.PublishOutfitSubmitted(ctx, inats.OutfitSubmitted{
				CycleID:   report.CycleID,
				AgentID:   rt.AgentID(),
				AgentName: rt.Character().Name,
				Wearables: report.Result.Wearables,
				Matches:   len(report.Result.Matches),
				Timestamp: time.Now(),
			})
		})
	}
	c.publish(ctx, func(ctx context.Context, p EventPublisher) error {
		return p.PublishCycleFinished(ctx, inats.CycleFinished{
			CycleID:    report.CycleID,
			AgentID:    rt.AgentID(),
			Trigger:    trigger,
			Status:     report.Status,
			DurationMS: report.Duration.Milliseconds(),
			Error:      report.Error,
			Timestamp:  time.Now(),
		})
	})

	return err
}

func (c *Client) publish(ctx context.Context, fn func(context.Context, EventPublisher) error) {
	if c.opts.Events == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), c.opts.Events); err != nil {
		c.logger.Warn("publishing event", "error", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
