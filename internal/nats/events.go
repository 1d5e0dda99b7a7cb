package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every lifecycle event of the plugin.
const StreamEvents = "BNV_EVENTS"

// Subject constants.
const (
	SubjectAll       = "bnv.events.>"
	SubjectOutfit    = "bnv.events.outfit"
	SubjectCycle     = "bnv.events.cycle"
	SubjectWearables = "bnv.events.wearables"
)

// OutfitSubmitted is published after the backend accepted an outfit.
type OutfitSubmitted struct {
	CycleID   string    `json:"cycle_id"`
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Wearables []string  `json:"wearables"`
	Matches   int       `json:"matches"`
	Timestamp time.Time `json:"timestamp"`
}

// CycleFinished is published at the end of every outfit cycle.
type CycleFinished struct {
	CycleID    string    `json:"cycle_id"`
	AgentID    uuid.UUID `json:"agent_id"`
	Trigger    string    `json:"trigger"` // startup, schedule, manual
	Status     string    `json:"status"`  // submitted, skipped, failed
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WearablesSynced is published after a catalog ingestion batch.
type WearablesSynced struct {
	AgentID   uuid.UUID `json:"agent_id"`
	Total     int       `json:"total"`
	Written   int       `json:"written"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}
