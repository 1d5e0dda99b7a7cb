package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnv-me/webbnv/pkg/host"
)

type stubEmbedder struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func TestService_CreateMemoryDefaults(t *testing.T) {
	repo := newTestSQLite(t)
	agentID := uuid.New()
	svc := NewService(repo, &stubEmbedder{}, nil, agentID)
	ctx := context.Background()
	roomID := uuid.New()

	id := uuid.New()
	require.NoError(t, svc.CreateMemory(ctx, host.Memory{ID: id, RoomID: roomID, Content: host.Content{Text: "hi"}}))

	got, err := svc.GetMemoryByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, agentID, got.AgentID)
	assert.Equal(t, agentID, got.UserID)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, 5*time.Second)

	mems, err := svc.GetMemoriesByRoomIDs(ctx, []uuid.UUID{roomID})
	require.NoError(t, err)
	assert.Len(t, mems, 1)
}

func TestService_CreateMemoryRequiresRoom(t *testing.T) {
	svc := NewService(newTestSQLite(t), &stubEmbedder{}, nil, uuid.New())
	err := svc.CreateMemory(context.Background(), host.Memory{Content: host.Content{Text: "x"}})
	assert.Error(t, err)
}

func TestService_AddEmbeddingToMemory(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{0.5, 0.5}}
	svc := NewService(newTestSQLite(t), emb, nil, uuid.New())
	ctx := context.Background()

	mem, err := svc.AddEmbeddingToMemory(ctx, host.Memory{Content: host.Content{Text: "sunglasses"}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, mem.Embedding)
	assert.EqualValues(t, 1, emb.calls.Load())

	mem, err = svc.AddEmbeddingToMemory(ctx, mem)
	require.NoError(t, err)
	assert.EqualValues(t, 1, emb.calls.Load(), "existing embedding is kept")

	_, err = svc.AddEmbeddingToMemory(ctx, host.Memory{Content: host.Content{Text: "  "}})
	assert.Error(t, err)
}

func TestService_EmbedErrorIsWrapped(t *testing.T) {
	boom := errors.New("provider down")
	svc := NewService(newTestSQLite(t), &stubEmbedder{err: boom}, nil, uuid.New())
	_, err := svc.AddEmbeddingToMemory(context.Background(), host.Memory{Content: host.Content{Text: "hat"}})
	assert.ErrorIs(t, err, boom)
}

func TestService_EmbedUsesCache(t *testing.T) {
	client, _ := setupMiniredis(t)
	cache := NewEmbeddingCache(client, "stub", time.Hour)
	emb := &stubEmbedder{vec: []float32{1, 2, 3}}
	svc := NewService(newTestSQLite(t), emb, cache, uuid.New())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		vec, err := svc.Embed(ctx, "leather boots")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3}, vec)
	}
	assert.EqualValues(t, 1, emb.calls.Load())
}

func TestService_EmbedSurvivesCacheOutage(t *testing.T) {
	client, mr := setupMiniredis(t)
	cache := NewEmbeddingCache(client, "stub", time.Hour)
	emb := &stubEmbedder{vec: []float32{1}}
	svc := NewService(newTestSQLite(t), emb, cache, uuid.New())
	mr.Close()

	vec, err := svc.Embed(context.Background(), "cap")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
}

func TestService_SearchDefaultsAndScope(t *testing.T) {
	repo := newTestSQLite(t)
	agentID := uuid.New()
	svc := NewService(repo, &stubEmbedder{}, nil, agentID)
	ctx := context.Background()
	roomID := uuid.New()

	require.NoError(t, repo.Upsert(ctx, testMemory(agentID, roomID, "match", []float32{1, 0})))
	require.NoError(t, repo.Upsert(ctx, testMemory(agentID, roomID, "weak", []float32{0.6, 0.8})))

	results, err := svc.SearchMemoriesByEmbedding(ctx, []float32{1, 0}, host.SearchOptions{RoomID: roomID})
	require.NoError(t, err)
	require.Len(t, results, 1, "default threshold excludes similarity 0.6")
	assert.Equal(t, "match", results[0].Content.Text)

	_, err = svc.SearchMemoriesByEmbedding(ctx, nil, host.SearchOptions{RoomID: roomID})
	assert.Error(t, err)
}

func TestService_RemoveMemory(t *testing.T) {
	repo := newTestSQLite(t)
	agentID := uuid.New()
	svc := NewService(repo, &stubEmbedder{}, nil, agentID)
	ctx := context.Background()

	mem := testMemory(agentID, uuid.New(), "bye", nil)
	require.NoError(t, repo.Upsert(ctx, mem))
	require.NoError(t, svc.RemoveMemory(ctx, mem.ID))
	assert.ErrorIs(t, svc.RemoveMemory(ctx, mem.ID), ErrNotFound)
}

func TestService_Participants(t *testing.T) {
	agentID := uuid.New()
	svc := NewService(newTestSQLite(t), &stubEmbedder{}, nil, agentID)
	ctx := context.Background()
	roomID := host.StringToUUID(agentID.String())

	require.NoError(t, svc.AddParticipant(ctx, agentID, roomID))
	rooms, err := svc.RoomsForParticipant(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{roomID}, rooms)
}
