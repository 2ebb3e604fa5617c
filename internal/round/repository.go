// Package round owns round records and their state machine. All shared
// mutability in the engine lives behind this repository and the prediction
// repository; every transition is an atomic conditional write so any number
// of schedulers can race safely.
package round

import (
	"context"
	"time"

	"github.com/predictoor/server/internal/models"
)

// CreateRoundRequest carries the fields for a new waiting round. The id is
// the start-time bucket (unix start / duration), so two schedulers
// replenishing the same boundary collide on the primary key instead of
// creating overlapping rounds.
type CreateRoundRequest struct {
	ID        int64
	StartTime time.Time
	LockTime  time.Time
	EndTime   time.Time
}

// Repository is the durable record of rounds.
//
// TransitionStatus and CompleteRound use compare-and-swap semantics on the
// status column: exactly one concurrent caller observes success, the rest get
// ErrTransitionConflict.
type Repository interface {
	// CreateRound inserts a waiting round if no round with the same id
	// exists, returning ErrAlreadyExists when one does.
	CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error)

	// CreateRoundIfNoneOpen inserts a waiting round only while no round in
	// {waiting, active, locked} has end_time after now. The open-round check
	// and the insert are a single atomic step, so schedulers replenishing
	// across a boundary with skewed clocks cannot create overlapping rounds.
	// Returns ErrAlreadyExists when an open round (or the same id) exists.
	CreateRoundIfNoneOpen(ctx context.Context, now time.Time, req CreateRoundRequest) (*models.Round, error)

	GetRound(ctx context.Context, id int64) (*models.Round, error)

	// GetCurrentRound returns the open round whose window contains now, or
	// the nearest upcoming open round, or ErrNotFound.
	GetCurrentRound(ctx context.Context, now time.Time) (*models.Round, error)

	// ListDueForActivation returns waiting rounds with start_time <= now.
	ListDueForActivation(ctx context.Context, now time.Time) ([]models.Round, error)

	// ListDueForLock returns active rounds with lock_time <= now.
	ListDueForLock(ctx context.Context, now time.Time) ([]models.Round, error)

	// ListDueForCompletion returns locked rounds with end_time <= now.
	ListDueForCompletion(ctx context.Context, now time.Time) ([]models.Round, error)

	// HasOpenRound reports whether any round in {waiting, active, locked}
	// has end_time after now.
	HasOpenRound(ctx context.Context, now time.Time) (bool, error)

	// TransitionStatus moves a round from one status to its successor,
	// optionally stamping the open price (activation). The write is
	// conditional on the round still holding the from status.
	TransitionStatus(ctx context.Context, id int64, from, to models.RoundStatus, openPrice *float64) (*models.Round, error)

	// CompleteRound atomically transitions locked -> completed, stamps the
	// close price and persists the scored predictions in the same step, so
	// a round can never be scored twice.
	CompleteRound(ctx context.Context, id int64, closePrice float64, scored []models.Prediction) (*models.Round, error)
}
