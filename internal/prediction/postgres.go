package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predictoor/server/internal/models"
)

// PostgresRepository stores predictions in the predictions table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Postgres-backed prediction store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// UpsertBeforeLock gates the write on the round row itself: the insert only
// happens when the round is still active with its lock time in the future, in
// the same statement, so a lock transition racing the submission cannot slip
// a late prediction in.
func (r *PostgresRepository) UpsertBeforeLock(ctx context.Context, pred models.Prediction, now time.Time) (*models.Prediction, error) {
	pathBytes, err := marshalPath(pred.Path)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO predictions (round_id, participant_id, target_value, path, submitted_at)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (
			SELECT 1 FROM rounds
			WHERE id = $1 AND status = 'active' AND lock_time > $5
		)
		ON CONFLICT (round_id, participant_id) DO UPDATE SET
			target_value = EXCLUDED.target_value,
			path         = EXCLUDED.path,
			submitted_at = EXCLUDED.submitted_at
		RETURNING round_id, participant_id, target_value, path, submitted_at`,
		pred.RoundID, pred.ParticipantID, pred.TargetValue, pathBytes, now,
	)

	stored, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotActive
		}
		return nil, fmt.Errorf("failed to upsert prediction: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) ListByRound(ctx context.Context, roundID int64) ([]models.Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT round_id, participant_id, target_value, path, submitted_at
		FROM predictions
		WHERE round_id = $1`,
		roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, *pred)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListRanked(ctx context.Context, roundID int64, limit int) ([]models.Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.round_id, p.participant_id, p.target_value, p.path, p.submitted_at,
		       p.accuracy, p.rank, u.nickname, u.avatar_color
		FROM predictions p
		JOIN participants u ON u.id = p.participant_id
		WHERE p.round_id = $1
		ORDER BY p.rank NULLS LAST, p.submitted_at
		LIMIT $2`,
		roundID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranked predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var pred models.Prediction
		var pathBytes []byte
		if err := rows.Scan(
			&pred.RoundID, &pred.ParticipantID, &pred.TargetValue, &pathBytes, &pred.SubmittedAt,
			&pred.Accuracy, &pred.Rank, &pred.Nickname, &pred.AvatarColor,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ranked prediction: %w", err)
		}
		if err := unmarshalPath(pathBytes, &pred); err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountByRound(ctx context.Context, roundID int64) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM predictions WHERE round_id = $1`, roundID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}

func marshalPath(path []models.PathPoint) ([]byte, error) {
	if len(path) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(path)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path: %w", err)
	}
	return b, nil
}

func unmarshalPath(b []byte, pred *models.Prediction) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &pred.Path); err != nil {
		return fmt.Errorf("failed to unmarshal path: %w", err)
	}
	return nil
}

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
	var pred models.Prediction
	var pathBytes []byte
	if err := row.Scan(&pred.RoundID, &pred.ParticipantID, &pred.TargetValue, &pathBytes, &pred.SubmittedAt); err != nil {
		return nil, err
	}
	if err := unmarshalPath(pathBytes, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}
