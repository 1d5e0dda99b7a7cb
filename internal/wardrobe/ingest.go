package wardrobe

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/metrics"
	"github.com/bnv-me/webbnv/internal/retry"
	"github.com/bnv-me/webbnv/pkg/host"
)

const (
	defaultWriteAttempts = 3
	defaultWriteDelay    = 500 * time.Millisecond
	defaultPause         = 100 * time.Millisecond
)

// Stats summarizes one ingestion batch.
type Stats struct {
	Total   int `json:"total"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Ingester writes catalog wearables into the agent room. Zero-valued
// tuning fields use the defaults.
type Ingester struct {
	store   host.MemoryManager
	agentID uuid.UUID
	logger  *slog.Logger

	WriteAttempts int
	WriteDelay    time.Duration
	Pause         time.Duration
}

// NewIngester creates an Ingester for agentID.
func NewIngester(store host.MemoryManager, agentID uuid.UUID, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		store:         store,
		agentID:       agentID,
		logger:        logger.With("component", "wardrobe"),
		WriteAttempts: defaultWriteAttempts,
		WriteDelay:    defaultWriteDelay,
		Pause:         defaultPause,
	}
}

// Ingest persists every wearable in the response. Records already stored
// are skipped; records whose writes keep failing are logged and counted,
// and never stop the batch. Only ctx cancellation returns an error.
func (i *Ingester) Ingest(ctx context.Context, resp *bnvapi.WearablesResponse) (Stats, error) {
	var stats Stats
	if resp == nil {
		return stats, nil
	}

	raws := resp.Data.Wearables
	stats.Total = len(raws)
	room := AgentRoomID(i.agentID)

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		w := Normalize(raw)
		id := w.MemoryID(i.agentID)
		log := i.logger.With("wearable_id", w.ID, "memory_id", id)

		existing, err := i.store.GetMemoryByID(ctx, id)
		if err != nil {
			log.Warn("existence check failed, writing anyway", "error", err)
		} else if existing != nil {
			stats.Skipped++
			metrics.WearablesIngestedTotal.WithLabelValues("skipped").Inc()
			log.Debug("wearable already stored")
			continue
		}

		mem := host.Memory{
			ID:      id,
			AgentID: i.agentID,
			UserID:  i.agentID,
			RoomID:  room,
			Content: host.Content{Text: w.Text(), Slots: w.Slots},
			Unique:  true,
		}

		policy := retry.Policy{Attempts: i.WriteAttempts, Delay: i.WriteDelay, Strategy: retry.Constant}
		err = retry.Do(ctx, policy, func(ctx context.Context) error {
			return i.store.CreateMemory(ctx, mem)
		}, func(attempt int, err error, wait time.Duration) {
			log.Warn("wearable write failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		})
		if err != nil {
			stats.Failed++
			metrics.WearablesIngestedTotal.WithLabelValues("failed").Inc()
			log.Error("wearable write failed, all attempts exhausted", "attempts", i.WriteAttempts, "error", err)
		} else {
			stats.Written++
			metrics.WearablesIngestedTotal.WithLabelValues("written").Inc()
		}

		if i.Pause > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(i.Pause):
			}
		}
	}

	i.logger.Info("wearables ingested",
		"total", stats.Total,
		"written", stats.Written,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return stats, nil
}
