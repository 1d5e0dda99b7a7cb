package outfit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnv-me/webbnv/internal/attributes"
	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/hosttest"
	"github.com/bnv-me/webbnv/internal/wardrobe"
	"github.com/bnv-me/webbnv/pkg/host"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []bnvapi.OutfitVariables
	agent string
	err   error
}

func (f *fakeSubmitter) UpdateOutfit(_ context.Context, agentID string, vars bnvapi.OutfitVariables) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, vars)
	f.agent = agentID
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeSubmitter) Calls() []bnvapi.OutfitVariables {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bnvapi.OutfitVariables(nil), f.calls...)
}

func addWearable(rt *hosttest.Runtime, id, desc string, slots ...string) {
	w := wardrobe.Wearable{ID: id, AIDescription: desc, Slots: slots}
	rt.Store.Put(host.Memory{
		ID:      w.MemoryID(rt.ID),
		AgentID: rt.ID,
		UserID:  rt.ID,
		RoomID:  wardrobe.AgentRoomID(rt.ID),
		Content: host.Content{Text: w.Text(), Slots: w.Slots},
	})
}

// searchRoomAt answers every search with the room's memories at a fixed
// similarity.
func searchRoomAt(store *hosttest.Store, sim float64) func([]float32, host.SearchOptions) ([]host.Memory, error) {
	return func(_ []float32, opts host.SearchOptions) ([]host.Memory, error) {
		mems := store.InRoom(opts.RoomID)
		for i := range mems {
			mems[i].Similarity = sim
		}
		return mems, nil
	}
}

func newTestAssembler(t *testing.T) (*Assembler, *hosttest.Runtime, *fakeSubmitter) {
	t.Helper()
	rt := hosttest.NewRuntime("Ava")
	sub := &fakeSubmitter{}
	return NewAssembler(rt, sub, nil), rt, sub
}

func TestAssemble_EmptyCatalog(t *testing.T) {
	a, rt, sub := newTestAssembler(t)

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	require.NoError(t, err)
	assert.False(t, res.Submitted)
	assert.Empty(t, sub.Calls())
	assert.Zero(t, rt.Store.Creates())
}

func TestAssemble_NoSlotGroups(t *testing.T) {
	a, rt, sub := newTestAssembler(t)
	addWearable(rt, "w1", "mystery item")

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	require.NoError(t, err)
	assert.False(t, res.Submitted)
	assert.Empty(t, sub.Calls())
}

func TestAssemble_SubmitsMatchedOutfit(t *testing.T) {
	a, rt, sub := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	addWearable(rt, "w2", "combat boots", "SHOES")
	addWearable(rt, "w3", "silver watch", "ACCESSORIES")
	rt.Store.SearchFunc = searchRoomAt(rt.Store, 0.9)
	attrs := attributes.Placeholder()

	res, err := a.Assemble(context.Background(), attrs)

	require.NoError(t, err)
	assert.True(t, res.Submitted)
	assert.Equal(t, []string{"w1", "w2", "w3"}, res.Wearables)
	assert.Len(t, res.Matches, 5)
	assert.Equal(t, 3, res.Unmatched)

	calls := sub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, rt.ID.String(), sub.agent)
	assert.Equal(t, "Ava", calls[0].ElizaUserName)
	assert.Equal(t, attrs.SkinTone, calls[0].Body)
	assert.Equal(t, attrs.FacialFeatures, calls[0].Head)
	assert.Equal(t, []bnvapi.OutfitWearable{{Wearable: "w1"}, {Wearable: "w2"}, {Wearable: "w3"}}, calls[0].Wearables)

	outfit := rt.Store.InRoom(wardrobe.OutfitRoomID(rt.ID))
	require.Len(t, outfit, 3)
	for _, m := range outfit {
		assert.Equal(t, "OUTFIT_GENERATION", m.Content.Metadata["source"])
		assert.Equal(t, 0.9, m.Content.Metadata["similarity"])
		assert.NotEmpty(t, m.Content.Metadata["llmText"])
		assert.NotEmpty(t, m.Content.Slots)
	}

	for _, key := range attributes.SlotKeys {
		assert.Empty(t, rt.Store.InRoom(wardrobe.SlotRoomID(rt.ID, key)), "slot room %s not cleaned", key)
	}
	assert.Len(t, rt.Store.InRoom(wardrobe.AgentRoomID(rt.ID)), 3)
}

func TestAssemble_RerunIsIdempotent(t *testing.T) {
	a, rt, _ := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	rt.Store.SearchFunc = searchRoomAt(rt.Store, 0.95)

	_, err := a.Assemble(context.Background(), attributes.Placeholder())
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), attributes.Placeholder())
	require.NoError(t, err)

	assert.Len(t, rt.Store.InRoom(wardrobe.OutfitRoomID(rt.ID)), 1)
}

func TestAssemble_BelowThresholdNeverSelected(t *testing.T) {
	a, rt, sub := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	rt.Store.SearchFunc = searchRoomAt(rt.Store, 0.79)

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	require.Len(t, sub.Calls(), 1)
	assert.Empty(t, sub.Calls()[0].Wearables)
}

func TestTopMatch(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	results := []host.Memory{
		{ID: a, Similarity: 0.85},
		{ID: b, Similarity: 0.95},
		{ID: c, Similarity: 0.5},
	}

	best := topMatch(results, MatchThreshold)
	require.NotNil(t, best)
	assert.Equal(t, b, best.ID)

	assert.Nil(t, topMatch([]host.Memory{{ID: c, Similarity: 0.799}}, MatchThreshold))
	assert.Nil(t, topMatch(nil, MatchThreshold))

	exact := topMatch([]host.Memory{{ID: a, Similarity: 0.8}}, MatchThreshold)
	require.NotNil(t, exact)
	assert.Equal(t, a, exact.ID)
}

func TestAssemble_PartialSearchFailure(t *testing.T) {
	a, rt, sub := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	addWearable(rt, "w3", "silver watch", "ACCESSORIES")
	ok := searchRoomAt(rt.Store, 0.9)
	accessoryRoom := wardrobe.SlotRoomID(rt.ID, attributes.SlotAccessories)
	rt.Store.SearchFunc = func(emb []float32, opts host.SearchOptions) ([]host.Memory, error) {
		if opts.RoomID == accessoryRoom {
			return nil, errors.New("index unavailable")
		}
		return ok(emb, opts)
	}

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	require.NoError(t, err)
	assert.True(t, res.Submitted)
	assert.Equal(t, []string{"w1"}, res.Wearables)
	require.Len(t, sub.Calls(), 1)
}

func TestAssemble_AllSearchesFail(t *testing.T) {
	a, rt, sub := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	rt.Store.SearchFunc = func([]float32, host.SearchOptions) ([]host.Memory, error) {
		return nil, errors.New("index unavailable")
	}

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
	assert.False(t, res.Submitted)
	assert.Empty(t, sub.Calls())
	assert.Empty(t, rt.Store.InRoom(wardrobe.SlotRoomID(rt.ID, attributes.SlotTop)))
}

func TestAssemble_SubmitFailureStillCleansUp(t *testing.T) {
	a, rt, sub := newTestAssembler(t)
	sub.err = &bnvapi.StatusError{StatusCode: 502}
	addWearable(rt, "w1", "dark blazer", "TOP")
	rt.Store.SearchFunc = searchRoomAt(rt.Store, 0.9)

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	var statusErr *bnvapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, res.Submitted)
	assert.Empty(t, rt.Store.InRoom(wardrobe.SlotRoomID(rt.ID, attributes.SlotTop)))
}

func TestAssemble_CleanupFailuresDoNotAbort(t *testing.T) {
	a, rt, _ := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	addWearable(rt, "w2", "combat boots", "SHOES")
	rt.Store.SearchFunc = searchRoomAt(rt.Store, 0.9)
	topCopy := host.StringToUUID("template-model-response-TOP-" + rt.ID.String() + "-w1,dark blazer,TOP")
	rt.Store.RemoveErr = func(id uuid.UUID) error {
		if id == topCopy {
			return errors.New("locked")
		}
		return nil
	}

	res, err := a.Assemble(context.Background(), attributes.Placeholder())

	require.NoError(t, err)
	assert.True(t, res.Submitted)
	assert.Equal(t, 2, rt.Store.Removes())
	assert.Len(t, rt.Store.InRoom(wardrobe.SlotRoomID(rt.ID, attributes.SlotTop)), 1)
	assert.Empty(t, rt.Store.InRoom(wardrobe.SlotRoomID(rt.ID, attributes.SlotShoes)))
}

func TestAssemble_LiveEmbeddingSearch(t *testing.T) {
	a, rt, _ := newTestAssembler(t)
	addWearable(rt, "w1", "dark blazer", "TOP")
	attrs := attributes.AvatarAttributes{Top: "w1,dark blazer,TOP"}

	res, err := a.Assemble(context.Background(), attrs)

	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.InDelta(t, 1.0, res.Matches[0].Similarity, 1e-6)
	assert.Equal(t, []string{"w1"}, res.Wearables)
}
