package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/pkg/host"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the agent's memory manager: persistence through a Repository,
// embeddings through an Embedder, optionally cached in Redis.
type Service struct {
	repo     Repository
	embedder Embedder
	cache    *EmbeddingCache
	agentID  uuid.UUID
}

var _ host.MemoryManager = (*Service)(nil)

// NewService creates a memory service scoped to one agent. cache may be nil.
func NewService(repo Repository, embedder Embedder, cache *EmbeddingCache, agentID uuid.UUID) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		cache:    cache,
		agentID:  agentID,
	}
}

// GetMemoriesByRoomIDs returns the agent's memories in any of the rooms,
// newest first.
func (s *Service) GetMemoriesByRoomIDs(ctx context.Context, roomIDs []uuid.UUID) ([]host.Memory, error) {
	return s.repo.ListByRooms(ctx, s.agentID, roomIDs)
}

func (s *Service) GetMemoryByID(ctx context.Context, id uuid.UUID) (*host.Memory, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateMemory writes mem, replacing any memory with the same id.
func (s *Service) CreateMemory(ctx context.Context, mem host.Memory) error {
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	if mem.AgentID == uuid.Nil {
		mem.AgentID = s.agentID
	}
	if mem.UserID == uuid.Nil {
		mem.UserID = mem.AgentID
	}
	if mem.RoomID == uuid.Nil {
		return errors.New("memory room id is required")
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	return s.repo.Upsert(ctx, mem)
}

// AddEmbeddingToMemory returns mem with its embedding set. Memories that
// already carry one are returned unchanged.
func (s *Service) AddEmbeddingToMemory(ctx context.Context, mem host.Memory) (host.Memory, error) {
	if len(mem.Embedding) > 0 {
		return mem, nil
	}
	if strings.TrimSpace(mem.Content.Text) == "" {
		return mem, fmt.Errorf("memory %s has no text to embed", mem.ID)
	}
	vec, err := s.Embed(ctx, mem.Content.Text)
	if err != nil {
		return mem, err
	}
	mem.Embedding = vec
	return mem, nil
}

// SearchMemoriesByEmbedding returns up to opts.Count memories of one room
// whose similarity is at least opts.MatchThreshold.
func (s *Service) SearchMemoriesByEmbedding(ctx context.Context, embedding []float32, opts host.SearchOptions) ([]host.Memory, error) {
	if len(embedding) == 0 {
		return nil, errors.New("search embedding is empty")
	}
	count := opts.Count
	if count <= 0 {
		count = defaultSearchCount
	}
	threshold := opts.MatchThreshold
	if threshold <= 0 {
		threshold = defaultSearchThreshold
	}
	return s.repo.SearchSimilar(ctx, s.agentID, opts.RoomID, embedding, count, threshold)
}

func (s *Service) RemoveMemory(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// AddParticipant records that participantID belongs to roomID.
func (s *Service) AddParticipant(ctx context.Context, participantID, roomID uuid.UUID) error {
	return s.repo.AddParticipant(ctx, participantID, roomID)
}

// RoomsForParticipant lists the rooms participantID belongs to.
func (s *Service) RoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.RoomsForParticipant(ctx, participantID)
}

// Embed computes the embedding of text, consulting the cache first.
// Cache failures are logged and never fail the call.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, text)
		if err != nil {
			slog.Warn("memory: embedding cache read failed", "error", err)
		} else if ok {
			return vec, nil
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, text, vec); err != nil {
			slog.Warn("memory: embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}
