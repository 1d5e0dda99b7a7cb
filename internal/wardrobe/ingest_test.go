package wardrobe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/hosttest"
	"github.com/bnv-me/webbnv/pkg/host"
)

func catalog(raws ...bnvapi.RawWearable) *bnvapi.WearablesResponse {
	resp := &bnvapi.WearablesResponse{}
	resp.Data.Wearables = raws
	return resp
}

func fastIngester(store host.MemoryManager, agent uuid.UUID) *Ingester {
	ing := NewIngester(store, agent, nil)
	ing.WriteDelay = time.Millisecond
	ing.Pause = 0
	return ing
}

func TestIngest_WritesIntoAgentRoom(t *testing.T) {
	store := hosttest.NewStore()
	agent := uuid.New()

	stats, err := fastIngester(store, agent).Ingest(context.Background(), catalog(
		bnvapi.RawWearable{"_id": "w1", "aiDescription": "red jacket", "slots[0]": "TOP"},
		bnvapi.RawWearable{"_id": "w2", "aiDescription": "boots", "slots[0]": "SHOES"},
	))

	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Written: 2}, stats)

	mems := store.InRoom(AgentRoomID(agent))
	require.Len(t, mems, 2)
	assert.Equal(t, "w1,red jacket,TOP", mems[0].Content.Text)
	assert.Equal(t, []string{"TOP"}, mems[0].Content.Slots)
	assert.True(t, mems[0].Unique)
	assert.Equal(t, agent, mems[0].UserID)
}

func TestIngest_Idempotent(t *testing.T) {
	store := hosttest.NewStore()
	agent := uuid.New()
	resp := catalog(bnvapi.RawWearable{"_id": "w1", "aiDescription": "red jacket", "slots[0]": "TOP"})
	ing := fastIngester(store, agent)

	_, err := ing.Ingest(context.Background(), resp)
	require.NoError(t, err)
	stats, err := ing.Ingest(context.Background(), resp)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 1, Skipped: 1}, stats)
	assert.Equal(t, 1, store.Creates())
	assert.Equal(t, 1, store.Len())
}

func TestIngest_PermanentFailureRetriedThreeTimes(t *testing.T) {
	store := hosttest.NewStore()
	agent := uuid.New()
	failing := Wearable{ID: "bad", AIDescription: "broken"}.MemoryID(agent)

	var mu sync.Mutex
	var attempts []time.Time
	store.CreateErr = func(mem host.Memory) error {
		if mem.ID != failing {
			return nil
		}
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return errors.New("disk full")
	}

	ing := NewIngester(store, agent, nil)
	ing.Pause = 0
	stats, err := ing.Ingest(context.Background(), catalog(
		bnvapi.RawWearable{"_id": "bad", "aiDescription": "broken"},
		bnvapi.RawWearable{"_id": "ok", "aiDescription": "fine"},
	))

	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Written: 1, Failed: 1}, stats)
	require.Len(t, attempts, 3)
	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i].Sub(attempts[i-1]), 500*time.Millisecond)
	}
}

func TestIngest_ExistenceCheckFailureStillWrites(t *testing.T) {
	store := hosttest.NewStore()
	store.GetErr = func(uuid.UUID) error { return errors.New("timeout") }

	stats, err := fastIngester(store, uuid.New()).Ingest(context.Background(), catalog(
		bnvapi.RawWearable{"_id": "w1", "aiDescription": "scarf"},
	))

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)
}

func TestIngest_Cancelled(t *testing.T) {
	store := hosttest.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastIngester(store, uuid.New()).Ingest(ctx, catalog(
		bnvapi.RawWearable{"_id": "w1", "aiDescription": "scarf"},
	))

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Creates())
}

func TestIngest_NilResponse(t *testing.T) {
	stats, err := fastIngester(hosttest.NewStore(), uuid.New()).Ingest(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}
