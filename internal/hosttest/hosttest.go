// Package hosttest provides in-memory host.Runtime and host.MemoryManager
// fakes for plugin tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/internal/llm"
	"github.com/bnv-me/webbnv/pkg/host"
)

// Store is an in-memory memory manager. Hook fields, when set, replace or
// fail the matching operation.
type Store struct {
	mu    sync.Mutex
	mems  map[uuid.UUID]host.Memory
	order []uuid.UUID

	Embed      func(ctx context.Context, text string) ([]float32, error)
	CreateErr  func(mem host.Memory) error
	RemoveErr  func(id uuid.UUID) error
	GetErr     func(id uuid.UUID) error
	SearchFunc func(embedding []float32, opts host.SearchOptions) ([]host.Memory, error)

	creates  int
	removes  int
	searches int
}

var _ host.MemoryManager = (*Store)(nil)

// NewStore creates an empty store embedding text with a hash embedder.
func NewStore() *Store {
	emb := llm.NewHashEmbedder(64)
	return &Store{
		mems:  make(map[uuid.UUID]host.Memory),
		Embed: emb.Embed,
	}
}

// Put stores mem directly, bypassing hooks and counters.
func (s *Store) Put(mem host.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(mem)
}

func (s *Store) put(mem host.Memory) {
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	if _, ok := s.mems[mem.ID]; !ok {
		s.order = append(s.order, mem.ID)
	}
	s.mems[mem.ID] = mem
}

// InRoom returns the memories stored in roomID in insertion order.
func (s *Store) InRoom(roomID uuid.UUID) []host.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []host.Memory
	for _, id := range s.order {
		if m, ok := s.mems[id]; ok && m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of stored memories.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mems)
}

// Creates returns how many CreateMemory calls were made.
func (s *Store) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Removes returns how many RemoveMemory calls were made.
func (s *Store) Removes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes
}

// Searches returns how many SearchMemoriesByEmbedding calls were made.
func (s *Store) Searches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

func (s *Store) GetMemoriesByRoomIDs(_ context.Context, roomIDs []uuid.UUID) ([]host.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make(map[uuid.UUID]bool, len(roomIDs))
	for _, r := range roomIDs {
		rooms[r] = true
	}
	var out []host.Memory
	for _, id := range s.order {
		if m, ok := s.mems[id]; ok && rooms[m.RoomID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) GetMemoryByID(_ context.Context, id uuid.UUID) (*host.Memory, error) {
	if s.GetErr != nil {
		if err := s.GetErr(id); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mems[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) CreateMemory(_ context.Context, mem host.Memory) error {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	if s.CreateErr != nil {
		if err := s.CreateErr(mem); err != nil {
			return err
		}
	}
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	s.Put(mem)
	return nil
}

func (s *Store) AddEmbeddingToMemory(ctx context.Context, mem host.Memory) (host.Memory, error) {
	if len(mem.Embedding) > 0 {
		return mem, nil
	}
	if strings.TrimSpace(mem.Content.Text) == "" {
		return mem, errors.New("memory has no text to embed")
	}
	vec, err := s.Embed(ctx, mem.Content.Text)
	if err != nil {
		return mem, fmt.Errorf("embedding memory: %w", err)
	}
	mem.Embedding = vec
	return mem, nil
}

func (s *Store) SearchMemoriesByEmbedding(_ context.Context, embedding []float32, opts host.SearchOptions) ([]host.Memory, error) {
	s.mu.Lock()
	s.searches++
	s.mu.Unlock()
	if s.SearchFunc != nil {
		return s.SearchFunc(embedding, opts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []host.Memory
	for _, id := range s.order {
		m := s.mems[id]
		if m.RoomID != opts.RoomID || len(m.Embedding) == 0 {
			continue
		}
		sim := Cosine(embedding, m.Embedding)
		if sim < opts.MatchThreshold {
			continue
		}
		m.Similarity = sim
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if opts.Count > 0 && len(out) > opts.Count {
		out = out[:opts.Count]
	}
	return out, nil
}

func (s *Store) RemoveMemory(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	s.removes++
	s.mu.Unlock()
	if s.RemoveErr != nil {
		if err := s.RemoveErr(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mems, id)
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
