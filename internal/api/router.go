package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/bnv-me/webbnv/internal/middleware"
)

// readyTimeout bounds a single readiness probe.
const readyTimeout = 3 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// HandlerSet holds handler functions injected from the CLI to avoid import
// cycles. Nil handlers leave their route unregistered.
type HandlerSet struct {
	// Memory inspection
	ListRoomMemories http.HandlerFunc
	GetMemory        http.HandlerFunc
	SearchRoom       http.HandlerFunc

	// Outfit cycles
	TriggerCycle http.HandlerFunc
	LastCycle    http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	CycleRateLimiter   func(http.Handler) http.Handler
	// Checks are run by the readiness probe, keyed by dependency name.
	Checks map[string]Check
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health, status := runChecks(r.Context(), cfg.Checks)
		JSON(w, status, health)
	}
	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if h.ListRoomMemories != nil {
			r.Get("/rooms/{roomID}/memories", h.ListRoomMemories)
		}
		if h.SearchRoom != nil {
			r.Post("/rooms/{roomID}/search", h.SearchRoom)
		}
		if h.GetMemory != nil {
			r.Get("/memories/{memoryID}", h.GetMemory)
		}

		r.Route("/cycles", func(r chi.Router) {
			if h.LastCycle != nil {
				r.Get("/last", h.LastCycle)
			}
			if h.TriggerCycle != nil {
				r.Group(func(r chi.Router) {
					if cfg.CycleRateLimiter != nil {
						r.Use(cfg.CycleRateLimiter)
					}
					r.Post("/", h.TriggerCycle)
				})
			}
		})
	})

	return r
}

func runChecks(ctx context.Context, checks map[string]Check) (map[string]string, int) {
	health := map[string]string{"status": "healthy"}
	status := http.StatusOK

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, readyTimeout)
		err := checks[name](cctx)
		cancel()
		if err != nil {
			health[name] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		health[name] = "healthy"
	}
	return health, status
}
