// Package host defines the contracts between an agent host runtime and the
// plugins it loads. A host supplies memory storage, text generation, prompt
// composition and settings; plugins only orchestrate calls against them.
package host

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ModelClass selects the text-generation tier a request runs on.
type ModelClass string

const (
	ModelClassSmall  ModelClass = "small"
	ModelClassMedium ModelClass = "medium"
	ModelClassLarge  ModelClass = "large"
)

// Character is the agent persona loaded by the host.
type Character struct {
	Name string   `json:"name"`
	Bio  []string `json:"bio"`
	Lore []string `json:"lore"`
}

// Content is the payload of a memory record.
type Content struct {
	Text     string         `json:"text"`
	Slots    []string       `json:"slots,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasSlot reports whether the content is tagged with the given slot key.
func (c Content) HasSlot(slot string) bool {
	for _, s := range c.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Memory is the unit of persisted agent state.
type Memory struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agent_id"`
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Embedding []float32 `json:"embedding,omitempty"`
	Unique    bool      `json:"unique,omitempty"`

	// Similarity is only set on results of SearchMemoriesByEmbedding.
	Similarity float64 `json:"similarity,omitempty"`
}

// SearchOptions narrows an embedding search to one room.
type SearchOptions struct {
	RoomID         uuid.UUID
	MatchThreshold float64
	Count          int
}

// MemoryManager is the host's memory store.
type MemoryManager interface {
	GetMemoriesByRoomIDs(ctx context.Context, roomIDs []uuid.UUID) ([]Memory, error)
	// GetMemoryByID returns nil, nil when no memory has the given id.
	GetMemoryByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	CreateMemory(ctx context.Context, mem Memory) error
	AddEmbeddingToMemory(ctx context.Context, mem Memory) (Memory, error)
	// SearchMemoriesByEmbedding returns matches ordered by descending similarity.
	SearchMemoriesByEmbedding(ctx context.Context, embedding []float32, opts SearchOptions) ([]Memory, error)
	RemoveMemory(ctx context.Context, id uuid.UUID) error
}

// State is the variable set used to render a prompt template.
type State map[string]any

// GenerateTextRequest is a single text-generation call.
type GenerateTextRequest struct {
	Context    string
	ModelClass ModelClass
}

// Runtime is everything a plugin may use from its host.
type Runtime interface {
	Initialize(ctx context.Context) error
	AgentID() uuid.UUID
	Character() Character
	// GetSetting returns the empty string for unknown keys.
	GetSetting(key string) string
	GetRoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error)
	Messages() MemoryManager
	GenerateText(ctx context.Context, req GenerateTextRequest) (string, error)
	ComposeContext(state State, template string) string
}

// Client is a long-lived plugin component started and stopped with the agent.
type Client interface {
	Start(ctx context.Context, rt Runtime) error
	Stop(ctx context.Context) error
}

// Action, Evaluator and Provider are the conversational extension points.
type Action interface{ Name() string }

type Evaluator interface{ Name() string }

type Provider interface{ Name() string }

// Plugin is what a plugin exposes to its host.
type Plugin struct {
	Name        string
	Description string
	Actions     []Action
	Evaluators  []Evaluator
	Providers   []Provider
	Clients     []Client
}
