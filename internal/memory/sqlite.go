package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bnv-me/webbnv/pkg/host"
)

// SQLiteRepository implements Repository on an embedded SQLite file.
// Similarity is computed in process.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates a SQLite database at the given path.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; concurrent callers queue on the pool.
	db.SetMaxOpenConns(1)

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		agent_id    TEXT NOT NULL,
		room_id     TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		content     TEXT NOT NULL,
		embedding   TEXT,
		is_unique   INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_agent_room ON memories(agent_id, room_id);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

	CREATE TABLE IF NOT EXISTS participants (
		participant_id TEXT NOT NULL,
		room_id        TEXT NOT NULL,
		created_at     INTEGER NOT NULL,
		PRIMARY KEY (participant_id, room_id)
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Upsert(ctx context.Context, mem host.Memory) error {
	content, err := encodeContent(mem.Content)
	if err != nil {
		return err
	}

	var emb sql.NullString
	if len(mem.Embedding) > 0 {
		b, err := json.Marshal(mem.Embedding)
		if err != nil {
			return fmt.Errorf("marshaling embedding: %w", err)
		}
		emb = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO memories (id, agent_id, room_id, user_id, content, embedding, is_unique, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     room_id = excluded.room_id,
		     user_id = excluded.user_id,
		     content = excluded.content,
		     embedding = excluded.embedding,
		     is_unique = excluded.is_unique`,
		mem.ID.String(), mem.AgentID.String(), mem.RoomID.String(), mem.UserID.String(),
		string(content), emb, mem.Unique, mem.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting memory: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*host.Memory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, agent_id, room_id, user_id, content, embedding, is_unique, created_at
		 FROM memories WHERE id = ?`, id.String())
	m, _, err := scanSQLiteMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting memory: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListByRooms(ctx context.Context, agentID uuid.UUID, roomIDs []uuid.UUID) ([]host.Memory, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(roomIDs)+1)
	args = append(args, agentID.String())
	for _, id := range roomIDs {
		args = append(args, id.String())
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roomIDs)), ",")

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, room_id, user_id, content, embedding, is_unique, created_at
		 FROM memories
		 WHERE agent_id = ? AND room_id IN (`+placeholders+`)
		 ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var memories []host.Memory
	for rows.Next() {
		m, _, err := scanSQLiteMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func (r *SQLiteRepository) SearchSimilar(ctx context.Context, agentID, roomID uuid.UUID, embedding []float32, limit int, threshold float64) ([]host.Memory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, room_id, user_id, content, embedding, is_unique, created_at
		 FROM memories
		 WHERE agent_id = ? AND room_id = ? AND embedding IS NOT NULL`,
		agentID.String(), roomID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	defer rows.Close()

	var results []host.Memory
	for rows.Next() {
		m, emb, err := scanSQLiteMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		sim := cosineSimilarity(embedding, emb)
		if sim < threshold {
			continue
		}
		m.Similarity = sim
		results = append(results, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AddParticipant(ctx context.Context, participantID, roomID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (participant_id, room_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		participantID.String(), roomID.String(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id FROM participants WHERE participant_id = ? ORDER BY created_at`,
		participantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing room id: %w", err)
		}
		rooms = append(rooms, id)
	}
	return rooms, rows.Err()
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMemory(row sqliteScanner) (*host.Memory, []float32, error) {
	var (
		id, agentID, roomID, userID string
		content                     string
		emb                         sql.NullString
		unique                      bool
		createdAt                   int64
	)
	if err := row.Scan(&id, &agentID, &roomID, &userID, &content, &emb, &unique, &createdAt); err != nil {
		return nil, nil, err
	}

	var m host.Memory
	for _, f := range []struct {
		raw string
		dst *uuid.UUID
	}{{id, &m.ID}, {agentID, &m.AgentID}, {roomID, &m.RoomID}, {userID, &m.UserID}} {
		parsed, err := uuid.Parse(f.raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing id %q: %w", f.raw, err)
		}
		*f.dst = parsed
	}
	if err := decodeContent([]byte(content), &m.Content); err != nil {
		return nil, nil, err
	}
	m.Unique = unique
	m.CreatedAt = time.UnixMilli(createdAt).UTC()

	var vec []float32
	if emb.Valid {
		if err := json.Unmarshal([]byte(emb.String), &vec); err != nil {
			return nil, nil, fmt.Errorf("unmarshaling embedding: %w", err)
		}
	}
	return &m, vec, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
