// Package outfit matches generated avatar attributes against the agent's
// wearable catalog and submits the resulting outfit.
package outfit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/bnv-me/webbnv/internal/attributes"
	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/metrics"
	"github.com/bnv-me/webbnv/internal/wardrobe"
	"github.com/bnv-me/webbnv/pkg/host"
)

const (
	// MatchThreshold is the minimum cosine similarity for a catalog match.
	MatchThreshold = 0.8

	defaultConcurrency = 8
	defaultSearchCount = 10

	sourceOutfitGeneration = "OUTFIT_GENERATION"
)

// Submitter sends the assembled outfit to the backend.
type Submitter interface {
	UpdateOutfit(ctx context.Context, agentID string, vars bnvapi.OutfitVariables) (json.RawMessage, error)
}

// Match is one attribute paired with the catalog wearable it resembles most.
type Match struct {
	Key        string    `json:"key"`
	LLMText    string    `json:"llmText"`
	MemoryID   uuid.UUID `json:"memoryId"`
	Text       string    `json:"text"`
	Slots      []string  `json:"slots,omitempty"`
	Similarity float64   `json:"similarity"`
}

// Wearable returns the catalog id carried in the first text field.
func (m Match) Wearable() string {
	first, _, _ := strings.Cut(m.Text, ",")
	return strings.TrimSpace(first)
}

// Result describes what one assembly run did.
type Result struct {
	Submitted bool     `json:"submitted"`
	Wearables []string `json:"wearables"`
	Matches   []Match  `json:"matches"`
	// Unmatched counts attribute pairs that found no wearable above the
	// threshold or failed to search.
	Unmatched int `json:"unmatched"`
}

// Assembler runs the outfit pipeline for one agent.
type Assembler struct {
	rt        host.Runtime
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time

	Concurrency int
	Threshold   float64
}

// NewAssembler creates an Assembler.
func NewAssembler(rt host.Runtime, submitter Submitter, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		rt:          rt,
		submitter:   submitter,
		logger:      logger.With("component", "outfit"),
		now:         time.Now,
		Concurrency: defaultConcurrency,
		Threshold:   MatchThreshold,
	}
}

// Assemble copies the catalog into per-slot rooms, searches each slot for
// the wearable closest to its attribute, records the picks and submits
// them. The per-slot copies are always removed before returning.
//
// An empty catalog is not an error: nothing is submitted. Failures of
// individual searches are logged and the outfit is built from the rest;
// only when every search fails is the outfit abandoned.
func (a *Assembler) Assemble(ctx context.Context, attrs attributes.AvatarAttributes) (res Result, err error) {
	agentID := a.rt.AgentID()
	store := a.rt.Messages()

	catalog, err := store.GetMemoriesByRoomIDs(ctx, []uuid.UUID{wardrobe.AgentRoomID(agentID)})
	if err != nil {
		return res, fmt.Errorf("loading wearable catalog: %w", err)
	}
	if len(catalog) == 0 {
		a.logger.Info("no wearables in catalog, skipping outfit")
		return res, nil
	}

	groups := groupBySlot(catalog)
	if len(groups) == 0 {
		a.logger.Info("no catalog wearable fits an outfit slot, skipping outfit")
		return res, nil
	}

	var populated []uuid.UUID
	defer func() {
		a.cleanup(context.WithoutCancel(ctx), populated)
	}()

	for _, key := range attributes.SlotKeys {
		items, ok := groups[key]
		if !ok {
			continue
		}
		room := wardrobe.SlotRoomID(agentID, key)
		populated = append(populated, room)
		a.logger.Info("wearables matched slot", "slot", key, "count", len(items))
		if err := a.copyToSlotRoom(ctx, agentID, key, room, items); err != nil {
			return res, err
		}
	}

	matches, unmatched, err := a.match(ctx, agentID, attrs.Expand())
	res.Unmatched = unmatched
	if err != nil {
		return res, err
	}
	res.Matches = matches
	metrics.OutfitMatchesTotal.Add(float64(len(matches)))

	if err := a.record(ctx, agentID, matches); err != nil {
		return res, err
	}

	res.Wearables = wearableList(matches)
	vars := bnvapi.OutfitVariables{
		ElizaUserName: a.rt.Character().Name,
		Wearables:     make([]bnvapi.OutfitWearable, 0, len(res.Wearables)),
		Body:          attrs.SkinTone,
		Head:          attrs.FacialFeatures,
	}
	for _, w := range res.Wearables {
		vars.Wearables = append(vars.Wearables, bnvapi.OutfitWearable{Wearable: w})
	}

	if _, err := a.submitter.UpdateOutfit(ctx, agentID.String(), vars); err != nil {
		return res, fmt.Errorf("submitting outfit: %w", err)
	}
	res.Submitted = true

	a.logger.Info("outfit submitted",
		"wearables", len(res.Wearables),
		"matches", len(matches),
		"unmatched", unmatched,
	)
	return res, nil
}

func groupBySlot(mems []host.Memory) map[string][]host.Memory {
	groups := make(map[string][]host.Memory)
	for _, key := range attributes.SlotKeys {
		for _, m := range mems {
			if m.Content.HasSlot(key) {
				groups[key] = append(groups[key], m)
			}
		}
	}
	return groups
}

func (a *Assembler) copyToSlotRoom(ctx context.Context, agentID uuid.UUID, key string, room uuid.UUID, items []host.Memory) error {
	store := a.rt.Messages()
	for _, item := range items {
		mem := host.Memory{
			ID:        host.StringToUUID(fmt.Sprintf("template-model-response-%s-%s-%s", key, agentID, item.Content.Text)),
			AgentID:   agentID,
			RoomID:    room,
			UserID:    agentID,
			Content:   item.Content,
			CreatedAt: a.now(),
		}
		embedded, err := store.AddEmbeddingToMemory(ctx, mem)
		if err != nil {
			return fmt.Errorf("embedding %s wearable: %w", key, err)
		}
		if err := store.CreateMemory(ctx, embedded); err != nil {
			return fmt.Errorf("storing %s wearable: %w", key, err)
		}
	}
	return nil
}

func (a *Assembler) match(ctx context.Context, agentID uuid.UUID, pairs []attributes.Pair) ([]Match, int, error) {
	store := a.rt.Messages()
	found := make([]*Match, len(pairs))

	var (
		mu     sync.Mutex
		errs   *multierror.Error
		failed int
	)

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency())
	for i, p := range pairs {
		g.Go(func() error {
			m, err := a.matchPair(ctx, store, agentID, p)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("matching %s: %w", p.Key, err))
				failed++
				mu.Unlock()
				return nil
			}
			found[i] = m
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, len(pairs), err
	}

	var matches []Match
	for _, m := range found {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	unmatched := len(pairs) - len(matches)

	if errs != nil {
		if failed == len(pairs) {
			return nil, unmatched, fmt.Errorf("every attribute search failed: %w", errs.ErrorOrNil())
		}
		a.logger.Warn("some attribute searches failed", "failed", failed, "pairs", len(pairs), "error", errs)
	}
	return matches, unmatched, nil
}

func (a *Assembler) matchPair(ctx context.Context, store host.MemoryManager, agentID uuid.UUID, p attributes.Pair) (*Match, error) {
	if strings.TrimSpace(p.Value) == "" {
		return nil, nil
	}

	entry := host.Memory{
		ID:      host.StringToUUID(fmt.Sprintf("wearable-model-response-%s-%d", p.Key, a.now().UnixNano())),
		AgentID: agentID,
		RoomID:  wardrobe.AgentRoomID(agentID),
		UserID:  agentID,
		Content: host.Content{Text: p.Value, Metadata: map[string]any{"type": p.Key}},
	}
	embedded, err := store.AddEmbeddingToMemory(ctx, entry)
	if err != nil {
		return nil, err
	}

	results, err := store.SearchMemoriesByEmbedding(ctx, embedded.Embedding, host.SearchOptions{
		RoomID:         wardrobe.SlotRoomID(agentID, p.Key),
		MatchThreshold: a.threshold(),
		Count:          defaultSearchCount,
	})
	if err != nil {
		return nil, err
	}

	best := topMatch(results, a.threshold())
	if best == nil {
		a.logger.Debug("no wearable above threshold", "slot", p.Key)
		return nil, nil
	}
	return &Match{
		Key:        p.Key,
		LLMText:    p.Value,
		MemoryID:   best.ID,
		Text:       best.Content.Text,
		Slots:      best.Content.Slots,
		Similarity: best.Similarity,
	}, nil
}

// topMatch returns the most similar result at or above threshold. Stores
// order results already; this does not rely on it.
func topMatch(results []host.Memory, threshold float64) *host.Memory {
	var best *host.Memory
	for i := range results {
		r := &results[i]
		if r.Similarity < threshold {
			continue
		}
		if best == nil || r.Similarity > best.Similarity {
			best = r
		}
	}
	return best
}

func (a *Assembler) record(ctx context.Context, agentID uuid.UUID, matches []Match) error {
	store := a.rt.Messages()
	room := wardrobe.OutfitRoomID(agentID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency())
	for _, m := range matches {
		g.Go(func() error {
			mem := host.Memory{
				ID:      host.StringToUUID(m.MemoryID.String()),
				AgentID: agentID,
				RoomID:  room,
				UserID:  agentID,
				Content: host.Content{
					Text:  m.Text,
					Slots: m.Slots,
					Metadata: map[string]any{
						"source":     sourceOutfitGeneration,
						"similarity": m.Similarity,
						"llmText":    m.LLMText,
						"wearableId": m.MemoryID.String(),
					},
				},
				CreatedAt: a.now(),
			}
			if err := store.CreateMemory(gctx, mem); err != nil {
				return fmt.Errorf("recording %s match: %w", m.Key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func wearableList(matches []Match) []string {
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		w := m.Wearable()
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func (a *Assembler) cleanup(ctx context.Context, rooms []uuid.UUID) {
	if len(rooms) == 0 {
		return
	}
	store := a.rt.Messages()

	var removed, failed int
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(a.concurrency())

	for _, room := range rooms {
		mems, err := store.GetMemoriesByRoomIDs(ctx, []uuid.UUID{room})
		if err != nil {
			a.logger.Error("loading slot room for cleanup", "room_id", room, "error", err)
			continue
		}
		for _, m := range mems {
			g.Go(func() error {
				err := store.RemoveMemory(ctx, m.ID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					metrics.CleanupFailuresTotal.Inc()
					a.logger.Warn("removing slot memory", "memory_id", m.ID, "error", err)
					return nil
				}
				removed++
				return nil
			})
		}
	}
	_ = g.Wait()

	a.logger.Info("slot rooms cleaned up", "rooms", len(rooms), "removed", removed, "failed", failed)
}

func (a *Assembler) concurrency() int {
	if a.Concurrency <= 0 {
		return defaultConcurrency
	}
	return a.Concurrency
}

func (a *Assembler) threshold() float64 {
	if a.Threshold <= 0 {
		return MatchThreshold
	}
	return a.Threshold
}
