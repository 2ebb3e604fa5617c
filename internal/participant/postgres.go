package participant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predictoor/server/internal/models"
)

// PostgresRepository stores participants in the participants table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Postgres-backed participant store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) EnsureParticipant(ctx context.Context, p models.Participant) (*models.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO participants (id, nickname, avatar_color, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			nickname     = COALESCE(NULLIF(EXCLUDED.nickname, ''), participants.nickname),
			avatar_color = COALESCE(NULLIF(EXCLUDED.avatar_color, ''), participants.avatar_color)
		RETURNING id, nickname, avatar_color, created_at`,
		p.ID, p.Nickname, p.AvatarColor,
	)

	var stored models.Participant
	if err := row.Scan(&stored.ID, &stored.Nickname, &stored.AvatarColor, &stored.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to ensure participant: %w", err)
	}
	return &stored, nil
}

func (r *PostgresRepository) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, nickname, avatar_color, created_at
		FROM participants
		WHERE id = $1`,
		id,
	)

	var stored models.Participant
	if err := row.Scan(&stored.ID, &stored.Nickname, &stored.AvatarColor, &stored.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &stored, nil
}
