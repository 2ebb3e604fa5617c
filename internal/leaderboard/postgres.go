package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predictoor/server/internal/models"
)

// PostgresRepository stores leaderboard entries in the leaderboard table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Postgres-backed leaderboard store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ApplyResult upserts the running mean in one statement. last_round_id is the
// idempotence guard: re-applying an already-folded round matches the WHERE
// clause on no row and leaves the entry untouched.
func (r *PostgresRepository) ApplyResult(ctx context.Context, roundID int64, result models.Prediction) error {
	if result.Accuracy == nil {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO leaderboard (participant_id, total_predictions, average_accuracy, last_round_id, updated_at)
		VALUES ($1, 1, $2, $3, now())
		ON CONFLICT (participant_id) DO UPDATE SET
			average_accuracy  = leaderboard.average_accuracy
				+ (EXCLUDED.average_accuracy - leaderboard.average_accuracy) / (leaderboard.total_predictions + 1),
			total_predictions = leaderboard.total_predictions + 1,
			last_round_id     = EXCLUDED.last_round_id,
			updated_at        = now()
		WHERE leaderboard.last_round_id < EXCLUDED.last_round_id`,
		result.ParticipantID, *result.Accuracy, roundID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply leaderboard result: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Top(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.participant_id, u.nickname, u.avatar_color,
		       l.total_predictions, l.average_accuracy, l.last_round_id, l.updated_at
		FROM leaderboard l
		JOIN participants u ON u.id = l.participant_id
		ORDER BY l.average_accuracy DESC, l.total_predictions DESC
		LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.LeaderboardEntry
	for rows.Next() {
		var entry models.LeaderboardEntry
		if err := rows.Scan(
			&entry.ParticipantID, &entry.Nickname, &entry.AvatarColor,
			&entry.TotalPredictions, &entry.AverageAccuracy, &entry.LastRoundID, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
