package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/bnv-me/webbnv/pkg/host"
)

// Repository defines memory persistence operations. Returned memories do
// not carry their embedding.
type Repository interface {
	Upsert(ctx context.Context, mem host.Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (*host.Memory, error)
	ListByRooms(ctx context.Context, agentID uuid.UUID, roomIDs []uuid.UUID) ([]host.Memory, error)
	SearchSimilar(ctx context.Context, agentID, roomID uuid.UUID, embedding []float32, limit int, threshold float64) ([]host.Memory, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddParticipant(ctx context.Context, participantID, roomID uuid.UUID) error
	RoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error)
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new memory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const memoryColumns = `id, agent_id, room_id, user_id, content, is_unique, created_at`

func (r *PostgresRepository) Upsert(ctx context.Context, mem host.Memory) error {
	content, err := encodeContent(mem.Content)
	if err != nil {
		return err
	}

	var vec any
	if len(mem.Embedding) > 0 {
		vec = pgvector.NewVector(mem.Embedding)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO memories (id, agent_id, room_id, user_id, content, embedding, is_unique, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     room_id = EXCLUDED.room_id,
		     user_id = EXCLUDED.user_id,
		     content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     is_unique = EXCLUDED.is_unique`,
		mem.ID, mem.AgentID, mem.RoomID, mem.UserID, content, vec, mem.Unique, mem.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting memory: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*host.Memory, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting memory: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListByRooms(ctx context.Context, agentID uuid.UUID, roomIDs []uuid.UUID) ([]host.Memory, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+memoryColumns+`
		 FROM memories
		 WHERE agent_id = $1 AND room_id = ANY($2)
		 ORDER BY created_at DESC`,
		agentID, roomIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var memories []host.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, agentID, roomID uuid.UUID, embedding []float32, limit int, threshold float64) ([]host.Memory, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT `+memoryColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE agent_id = $2 AND room_id = $3
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $1) >= $4
		 ORDER BY embedding <=> $1
		 LIMIT $5`,
		vec, agentID, roomID, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	defer rows.Close()

	var results []host.Memory
	for rows.Next() {
		var (
			m       host.Memory
			content []byte
		)
		if err := rows.Scan(&m.ID, &m.AgentID, &m.RoomID, &m.UserID, &content, &m.Unique, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := decodeContent(content, &m.Content); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, participantID, roomID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO participants (participant_id, room_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		participantID, roomID,
	)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT room_id FROM participants WHERE participant_id = $1 ORDER BY created_at`,
		participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, id)
	}
	return rooms, rows.Err()
}

func scanMemory(row pgx.Row) (*host.Memory, error) {
	var (
		m       host.Memory
		content []byte
	)
	if err := row.Scan(&m.ID, &m.AgentID, &m.RoomID, &m.UserID, &content, &m.Unique, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeContent(content, &m.Content); err != nil {
		return nil, err
	}
	return &m, nil
}
