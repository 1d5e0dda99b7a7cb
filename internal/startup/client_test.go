package startup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/internal/config"
	"github.com/bnv-me/webbnv/internal/hosttest"
	inats "github.com/bnv-me/webbnv/internal/nats"
	iredis "github.com/bnv-me/webbnv/internal/redis"
	"github.com/bnv-me/webbnv/internal/wardrobe"
	"github.com/bnv-me/webbnv/pkg/host"
)

type fakeBackend struct {
	mu        sync.Mutex
	users     []string
	outfits   []bnvapi.OutfitVariables
	catalog   *bnvapi.WearablesResponse
	outfitErr error
	block     chan struct{}
}

func (f *fakeBackend) CreateUser(_ context.Context, name, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, name)
	return json.RawMessage(`{}`), nil
}

func (f *fakeBackend) Wearables(context.Context, string) (*bnvapi.WearablesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalog == nil {
		return &bnvapi.WearablesResponse{}, nil
	}
	return f.catalog, nil
}

func (f *fakeBackend) UpdateOutfit(_ context.Context, _ string, vars bnvapi.OutfitVariables) (json.RawMessage, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outfits = append(f.outfits, vars)
	if f.outfitErr != nil {
		return nil, f.outfitErr
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeBackend) Outfits() []bnvapi.OutfitVariables {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bnvapi.OutfitVariables(nil), f.outfits...)
}

type fakeEvents struct {
	mu        sync.Mutex
	outfits   []inats.OutfitSubmitted
	cycles    []inats.CycleFinished
	wearables []inats.WearablesSynced
}

func (f *fakeEvents) PublishOutfitSubmitted(_ context.Context, e inats.OutfitSubmitted) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outfits = append(f.outfits, e)
	return nil
}

func (f *fakeEvents) PublishCycleFinished(_ context.Context, e inats.CycleFinished) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, e)
	return nil
}

func (f *fakeEvents) PublishWearablesSynced(_ context.Context, e inats.WearablesSynced) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wearables = append(f.wearables, e)
	return errors.New("nats unavailable")
}

func newRuntime(t *testing.T) *hosttest.Runtime {
	t.Helper()
	rt := hosttest.NewRuntime("Ava")
	rt.Settings[config.KeyRetryStrategy] = "constant"
	rt.Store.SearchFunc = func(_ []float32, opts host.SearchOptions) ([]host.Memory, error) {
		mems := rt.Store.InRoom(opts.RoomID)
		for i := range mems {
			mems[i].Similarity = 0.9
		}
		return mems, nil
	}
	return rt
}

func addCatalog(rt *hosttest.Runtime) {
	for _, w := range []wardrobe.Wearable{
		{ID: "w1", AIDescription: "dark blazer", Slots: []string{"TOP"}},
		{ID: "w2", AIDescription: "combat boots", Slots: []string{"SHOES"}},
	} {
		rt.Store.Put(host.Memory{
			ID:      w.MemoryID(rt.ID),
			AgentID: rt.ID,
			RoomID:  wardrobe.AgentRoomID(rt.ID),
			Content: host.Content{Text: w.Text(), Slots: w.Slots},
		})
	}
}

func newTestClient(backend *fakeBackend, events EventPublisher, guard Guard) *Client {
	return NewClient(Options{
		NewBackend: func(*config.Settings, *slog.Logger) Backend { return backend },
		Events:     events,
		Guard:      guard,
	})
}

func TestStart_InvalidSettingsFailFast(t *testing.T) {
	rt := newRuntime(t)
	rt.Settings[config.KeyBnvURL] = "not-a-url"
	backend := &fakeBackend{}

	err := newTestClient(backend, nil, nil).Start(context.Background(), rt)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "BNV_URL")
	assert.Zero(t, rt.Initialized())
	assert.Empty(t, backend.Outfits())
}

func TestStart_SubmitsPlaceholderOutfit(t *testing.T) {
	rt := newRuntime(t)
	addCatalog(rt)
	backend := &fakeBackend{}
	events := &fakeEvents{}
	c := newTestClient(backend, events, nil)

	require.NoError(t, c.Start(context.Background(), rt))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })

	assert.Equal(t, 1, rt.Initialized())
	outfits := backend.Outfits()
	require.Len(t, outfits, 1)
	assert.Equal(t, "Ava", outfits[0].ElizaUserName)
	assert.Equal(t, "#f0d5b3", outfits[0].Body)
	assert.Equal(t, []bnvapi.OutfitWearable{{Wearable: "w1"}, {Wearable: "w2"}}, outfits[0].Wearables)
	assert.Empty(t, rt.Requests())

	last := c.LastCycle()
	require.NotNil(t, last)
	assert.Equal(t, StatusSubmitted, last.Status)
	assert.Equal(t, TriggerStartup, last.Trigger)
	assert.NotEmpty(t, last.CycleID)

	require.Len(t, events.outfits, 1)
	assert.Equal(t, last.CycleID, events.outfits[0].CycleID)
	require.Len(t, events.cycles, 1)
	assert.Equal(t, StatusSubmitted, events.cycles[0].Status)
}

func TestStart_EmptyCatalogDoesNotSubmit(t *testing.T) {
	rt := newRuntime(t)
	backend := &fakeBackend{}
	c := newTestClient(backend, nil, nil)

	require.NoError(t, c.Start(context.Background(), rt))

	assert.Empty(t, backend.Outfits())
	assert.Equal(t, StatusSkipped, c.LastCycle().Status)
}

func TestStart_RegistersAndSyncsWearables(t *testing.T) {
	rt := newRuntime(t)
	rt.Settings[config.KeyRegisterUser] = "true"
	rt.Settings[config.KeySyncWearables] = "true"
	backend := &fakeBackend{catalog: &bnvapi.WearablesResponse{}}
	backend.catalog.Data.Wearables = []bnvapi.RawWearable{
		{"_id": "w9", "aiDescription": "wool beanie", "slots[0]": "HAT"},
	}
	events := &fakeEvents{}
	c := newTestClient(backend, events, nil)

	require.NoError(t, c.Start(context.Background(), rt))

	assert.Equal(t, []string{"Ava"}, backend.users)
	require.Len(t, events.wearables, 1)
	assert.Equal(t, 1, events.wearables[0].Written)
	outfits := backend.Outfits()
	require.Len(t, outfits, 1)
	assert.Equal(t, []bnvapi.OutfitWearable{{Wearable: "w9"}}, outfits[0].Wearables)
}

func TestStart_LiveGeneration(t *testing.T) {
	rt := newRuntime(t)
	rt.Settings[config.KeyLiveGeneration] = "true"
	addCatalog(rt)
	rt.Generate = func(context.Context, host.GenerateTextRequest) (string, error) {
		return `{"skinTone":"#101010","facialFeatures":"#202020","top":"blazer","shoes":"boots","accessories":[]}`, nil
	}
	backend := &fakeBackend{}

	require.NoError(t, newTestClient(backend, nil, nil).Start(context.Background(), rt))

	require.Len(t, rt.Requests(), 1)
	assert.Equal(t, host.ModelClassSmall, rt.Requests()[0].ModelClass)
	require.Len(t, backend.Outfits(), 1)
	assert.Equal(t, "#101010", backend.Outfits()[0].Body)
}

func TestStart_LiveGenerationParseFailure(t *testing.T) {
	rt := newRuntime(t)
	rt.Settings[config.KeyLiveGeneration] = "true"
	addCatalog(rt)
	rt.Generate = func(context.Context, host.GenerateTextRequest) (string, error) {
		return "sorry", nil
	}
	backend := &fakeBackend{}
	events := &fakeEvents{}
	c := newTestClient(backend, events, nil)

	err := c.Start(context.Background(), rt)

	require.Error(t, err)
	assert.Empty(t, backend.Outfits())
	assert.Equal(t, StatusFailed, c.LastCycle().Status)
	require.Len(t, events.cycles, 1)
	assert.NotEmpty(t, events.cycles[0].Error)
}

func TestStart_InitializeTimeout(t *testing.T) {
	rt := newRuntime(t)
	rt.InitErr = fmt.Errorf("connecting store: %w", context.DeadlineExceeded)

	err := newTestClient(&fakeBackend{}, nil, nil).Start(context.Background(), rt)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, isTimeout(err))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.True(t, isTimeout(fmt.Errorf("calling landing: %w", timeoutErr{})))
	assert.False(t, isTimeout(errors.New("boom")))
	assert.False(t, isTimeout(&bnvapi.StatusError{StatusCode: 500}))
}

type heldGuard struct{}

func (heldGuard) TryAcquire(context.Context) (func(), bool, error) { return nil, false, nil }

func TestStart_GuardHeldSkipsCycle(t *testing.T) {
	rt := newRuntime(t)
	addCatalog(rt)
	backend := &fakeBackend{}
	c := newTestClient(backend, nil, heldGuard{})

	require.NoError(t, c.Start(context.Background(), rt))

	assert.Empty(t, backend.Outfits())
	assert.Nil(t, c.LastCycle())
}

func TestRunCycle_RedisLockAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rt := newRuntime(t)
	addCatalog(rt)
	other := iredis.NewCycleLock(rdb, rt.ID, time.Minute)
	release, ok, err := other.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	backend := &fakeBackend{}
	c := newTestClient(backend, nil, iredis.NewCycleLock(rdb, rt.ID, time.Minute))
	require.NoError(t, c.Start(context.Background(), rt))
	assert.Empty(t, backend.Outfits())

	release()
	require.NoError(t, c.RunCycle(context.Background(), TriggerManual))
	assert.Len(t, backend.Outfits(), 1)
}

func TestRunCycle_NotStarted(t *testing.T) {
	c := newTestClient(&fakeBackend{}, nil, nil)

	assert.ErrorIs(t, c.RunCycle(context.Background(), TriggerManual), ErrNotStarted)
	assert.ErrorIs(t, c.Trigger(), ErrNotStarted)
	_, err := c.SyncWearables(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestTrigger_OverlapSkippedAndStopWaits(t *testing.T) {
	rt := newRuntime(t)
	backend := &fakeBackend{}
	c := newTestClient(backend, nil, nil)
	require.NoError(t, c.Start(context.Background(), rt))

	addCatalog(rt)
	backend.block = make(chan struct{})

	require.NoError(t, c.Trigger())
	require.Eventually(t, func() bool { return c.running.Load() }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Trigger(), ErrCycleSkipped)
	assert.ErrorIs(t, c.RunCycle(context.Background(), TriggerSchedule), ErrCycleSkipped)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Stop(ctx), context.DeadlineExceeded)

	close(backend.block)
	require.NoError(t, c.Stop(context.Background()))
	assert.Len(t, backend.Outfits(), 1)
	assert.Equal(t, TriggerManual, c.LastCycle().Trigger)
}

func TestStop_RejectsLaterCycles(t *testing.T) {
	rt := newRuntime(t)
	backend := &fakeBackend{}
	c := newTestClient(backend, nil, nil)
	require.NoError(t, c.Start(context.Background(), rt))
	addCatalog(rt)

	require.NoError(t, c.Stop(context.Background()))

	assert.ErrorIs(t, c.Trigger(), ErrNotStarted)
	assert.ErrorIs(t, c.RunCycle(context.Background(), TriggerSchedule), ErrNotStarted)
	assert.False(t, c.running.Load())
	assert.Empty(t, backend.Outfits())
}

func TestStop_WaitsForTriggersThatRacedIt(t *testing.T) {
	rt := newRuntime(t)
	backend := &fakeBackend{}
	c := newTestClient(backend, nil, nil)
	require.NoError(t, c.Start(context.Background(), rt))
	addCatalog(rt)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Trigger() == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}

	require.NoError(t, c.Stop(context.Background()))
	wg.Wait()

	assert.False(t, c.running.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, backend.Outfits(), accepted)
}
