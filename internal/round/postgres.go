package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predictoor/server/internal/models"
)

const roundColumns = "id, start_time, lock_time, end_time, status, open_price, close_price, created_at, updated_at"

// PostgresRepository stores rounds in the rounds table. Status transitions
// are conditional updates (WHERE status = from), so concurrent schedulers
// race on RowsAffected instead of on application state.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Postgres-backed round store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO rounds (id, start_time, lock_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'waiting', now(), now())
		RETURNING `+roundColumns,
		req.ID, req.StartTime, req.LockTime, req.EndTime,
	)

	rd, err := scanRound(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return rd, nil
}

// replenishLockKey serializes CreateRoundIfNoneOpen callers through a
// transaction-scoped advisory lock. Without it two READ COMMITTED
// transactions could both pass the NOT EXISTS guard before either commits.
const replenishLockKey = int64(0x70726e64)

func (r *PostgresRepository) CreateRoundIfNoneOpen(ctx context.Context, now time.Time, req CreateRoundRequest) (*models.Round, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin replenish: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, replenishLockKey); err != nil {
		return nil, fmt.Errorf("failed to acquire replenish lock: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO rounds (id, start_time, lock_time, end_time, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, 'waiting', now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM rounds
			WHERE status IN ('waiting', 'active', 'locked') AND end_time > $5
		)
		RETURNING `+roundColumns,
		req.ID, req.StartTime, req.LockTime, req.EndTime, now,
	)

	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyExists
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create round: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit replenish: %w", err)
	}
	return rd, nil
}

func (r *PostgresRepository) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)

	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return rd, nil
}

func (r *PostgresRepository) GetCurrentRound(ctx context.Context, now time.Time) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status IN ('waiting', 'active', 'locked') AND end_time > $1
		ORDER BY start_time
		LIMIT 1`,
		now,
	)

	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	return rd, nil
}

func (r *PostgresRepository) ListDueForActivation(ctx context.Context, now time.Time) ([]models.Round, error) {
	return r.listDue(ctx, `status = 'waiting' AND start_time <= $1`, now)
}

func (r *PostgresRepository) ListDueForLock(ctx context.Context, now time.Time) ([]models.Round, error) {
	return r.listDue(ctx, `status = 'active' AND lock_time <= $1`, now)
}

func (r *PostgresRepository) ListDueForCompletion(ctx context.Context, now time.Time) ([]models.Round, error) {
	return r.listDue(ctx, `status = 'locked' AND end_time <= $1`, now)
}

func (r *PostgresRepository) HasOpenRound(ctx context.Context, now time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rounds
			WHERE status IN ('waiting', 'active', 'locked') AND end_time > $1
		)`,
		now,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for open round: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, id int64, from, to models.RoundStatus, openPrice *float64) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rounds
		SET status = $3, open_price = COALESCE($4, open_price), updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+roundColumns,
		id, from, to, openPrice,
	)

	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransitionConflict
		}
		return nil, fmt.Errorf("failed to transition round status: %w", err)
	}
	return rd, nil
}

func (r *PostgresRepository) CompleteRound(ctx context.Context, id int64, closePrice float64, scored []models.Prediction) (*models.Round, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin completion: %w", err)
	}
	defer tx.Rollback(ctx)

	// The conditional status flip and the score writes share one
	// transaction: a scheduler that loses the flip never persists scores.
	row := tx.QueryRow(ctx, `
		UPDATE rounds
		SET status = 'completed', close_price = $2, updated_at = now()
		WHERE id = $1 AND status = 'locked'
		RETURNING `+roundColumns,
		id, closePrice,
	)

	rd, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransitionConflict
		}
		return nil, fmt.Errorf("failed to complete round: %w", err)
	}

	for _, p := range scored {
		if _, err := tx.Exec(ctx, `
			UPDATE predictions
			SET accuracy = $3, rank = $4
			WHERE round_id = $1 AND participant_id = $2`,
			p.RoundID, p.ParticipantID, p.Accuracy, p.Rank,
		); err != nil {
			return nil, fmt.Errorf("failed to persist score: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}
	return rd, nil
}

func (r *PostgresRepository) listDue(ctx context.Context, where string, now time.Time) ([]models.Round, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roundColumns+` FROM rounds WHERE `+where+` ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due rounds: %w", err)
	}
	defer rows.Close()

	var out []models.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		out = append(out, *rd)
	}
	return out, rows.Err()
}

func scanRound(row pgx.Row) (*models.Round, error) {
	var rd models.Round
	err := row.Scan(
		&rd.ID, &rd.StartTime, &rd.LockTime, &rd.EndTime, &rd.Status,
		&rd.OpenPrice, &rd.ClosePrice, &rd.CreatedAt, &rd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}
