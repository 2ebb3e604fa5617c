// Package scheduler drives the round state machine. Round state lives in the
// round store, so any number of schedulers in any number of processes may
// tick concurrently and every transition resolves through the store's
// conditional writes. The only state a scheduler carries between ticks is
// the queue of completed rounds awaiting leaderboard application.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/predictoor/server/internal/events"
	"github.com/predictoor/server/internal/leaderboard"
	"github.com/predictoor/server/internal/models"
	"github.com/predictoor/server/internal/oracle"
	"github.com/predictoor/server/internal/round"
	"github.com/predictoor/server/internal/scoring"
	"github.com/rs/zerolog/log"
)

// Config holds round-timing configuration. Values recovered from the game
// design: one-minute rounds with a five-second lock window.
type Config struct {
	RoundDuration time.Duration
	LockWindow    time.Duration
	TickInterval  time.Duration
}

// DefaultConfig returns the production round timing.
func DefaultConfig() Config {
	return Config{
		RoundDuration: 60 * time.Second,
		LockWindow:    5 * time.Second,
		TickInterval:  time.Second,
	}
}

// PredictionLister is what the scheduler needs from the prediction store at
// completion time.
type PredictionLister interface {
	ListByRound(ctx context.Context, roundID int64) ([]models.Prediction, error)
}

// Scheduler advances rounds through their lifecycle.
type Scheduler struct {
	rounds      round.Repository
	predictions PredictionLister
	scorer      *scoring.Engine
	leaderboard *leaderboard.Aggregator
	oracle      oracle.PriceOracle
	publisher   events.Publisher
	clock       clockwork.Clock
	config      Config
	instanceID  string

	// Completed rounds whose leaderboard application failed. The completion
	// CAS has already fired for these, so no later tick rediscovers them;
	// they are retried from here until the store accepts them.
	mu      sync.Mutex
	pending []pendingResults
}

type pendingResults struct {
	roundID int64
	scored  []models.Prediction
}

// New creates a scheduler.
func New(
	rounds round.Repository,
	predictions PredictionLister,
	scorer *scoring.Engine,
	agg *leaderboard.Aggregator,
	priceOracle oracle.PriceOracle,
	publisher events.Publisher,
	clock clockwork.Clock,
	config Config,
) *Scheduler {
	if config.RoundDuration <= 0 {
		config = DefaultConfig()
	}
	return &Scheduler{
		rounds:      rounds,
		predictions: predictions,
		scorer:      scorer,
		leaderboard: agg,
		oracle:      priceOracle,
		publisher:   publisher,
		clock:       clock,
		config:      config,
		instanceID:  uuid.New().String()[:8],
	}
}

// Run ticks the state machine until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Str("instance", s.instanceID).
		Dur("interval", s.config.TickInterval).
		Msg("scheduler started")

	ticker := s.clock.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.instanceID).Msg("scheduler shutting down")
			return nil
		case <-ticker.Chan():
			if err := s.Tick(ctx); err != nil {
				log.Error().Err(err).Str("instance", s.instanceID).Msg("tick completed with errors")
			}
		}
	}
}

// Tick runs the four lifecycle steps in order: activate, lock, complete,
// replenish. Every step is idempotent and safe under concurrent invocation;
// one round's failure never blocks the others. The returned error joins the
// per-round failures for reporting, it does not mean the tick aborted.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now().UTC()

	var errs []error
	errs = append(errs, s.retryPendingResults(ctx)...)
	errs = append(errs, s.activateDue(ctx, now)...)
	errs = append(errs, s.lockDue(ctx, now)...)
	errs = append(errs, s.completeDue(ctx, now)...)
	if err := s.replenish(ctx, now); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// activateDue transitions waiting rounds whose start time has passed,
// stamping the open price. A CAS loss means another scheduler won the
// activation; the loser no-ops.
func (s *Scheduler) activateDue(ctx context.Context, now time.Time) []error {
	due, err := s.rounds.ListDueForActivation(ctx, now)
	if err != nil {
		return []error{fmt.Errorf("list rounds due for activation: %w", err)}
	}

	var errs []error
	for _, rd := range due {
		price := s.oracle.CurrentValue(ctx)
		if price <= 0 {
			errs = append(errs, fmt.Errorf("round %d: no reference price for activation", rd.ID))
			continue
		}

		activated, err := s.rounds.TransitionStatus(ctx, rd.ID, models.RoundStatusWaiting, models.RoundStatusActive, &price)
		if errors.Is(err, round.ErrTransitionConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("round %d: activate: %w", rd.ID, err))
			continue
		}

		log.Info().
			Int64("round_id", rd.ID).
			Float64("open_price", price).
			Str("instance", s.instanceID).
			Msg("round activated")
		s.publish(ctx, activated.ID, events.EventTypeRoundActivated, events.RoundActivatedPayload{
			RoundID:     activated.ID,
			OpenPrice:   price,
			ActivatedAt: now,
			LockTime:    activated.LockTime,
			EndTime:     activated.EndTime,
		})
	}
	return errs
}

// lockDue transitions active rounds whose lock time has passed. From this
// point the submission gate rejects writes for the round.
func (s *Scheduler) lockDue(ctx context.Context, now time.Time) []error {
	due, err := s.rounds.ListDueForLock(ctx, now)
	if err != nil {
		return []error{fmt.Errorf("list rounds due for lock: %w", err)}
	}

	var errs []error
	for _, rd := range due {
		locked, err := s.rounds.TransitionStatus(ctx, rd.ID, models.RoundStatusActive, models.RoundStatusLocked, nil)
		if errors.Is(err, round.ErrTransitionConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("round %d: lock: %w", rd.ID, err))
			continue
		}

		log.Info().Int64("round_id", rd.ID).Str("instance", s.instanceID).Msg("round locked")
		s.publish(ctx, locked.ID, events.EventTypeRoundLocked, events.RoundLockedPayload{
			RoundID:  locked.ID,
			LockedAt: now,
			EndTime:  locked.EndTime,
		})
	}
	return errs
}

// completeDue scores and completes locked rounds past their end time. An
// oracle failure leaves the round locked for the next tick; completion may be
// delayed but is never skipped or scored against a stale price. The score
// write rides the same conditional transition that flips the status, so two
// schedulers can never both persist results.
func (s *Scheduler) completeDue(ctx context.Context, now time.Time) []error {
	due, err := s.rounds.ListDueForCompletion(ctx, now)
	if err != nil {
		return []error{fmt.Errorf("list rounds due for completion: %w", err)}
	}

	var errs []error
	for _, rd := range due {
		closePrice, err := s.oracle.SnapshotValue(ctx)
		if err != nil {
			log.Warn().Err(err).
				Int64("round_id", rd.ID).
				Str("instance", s.instanceID).
				Msg("close price unavailable, completion deferred")
			errs = append(errs, fmt.Errorf("round %d: %w", rd.ID, err))
			continue
		}

		preds, err := s.predictions.ListByRound(ctx, rd.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("round %d: list predictions: %w", rd.ID, err))
			continue
		}
		scored := s.scorer.Score(preds, closePrice)

		completed, err := s.rounds.CompleteRound(ctx, rd.ID, closePrice, scored)
		if errors.Is(err, round.ErrTransitionConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("round %d: complete: %w", rd.ID, err))
			continue
		}

		if err := s.applyResults(ctx, rd.ID, scored); err != nil {
			errs = append(errs, err)
		}

		log.Info().
			Int64("round_id", rd.ID).
			Float64("close_price", closePrice).
			Int("predictions", len(scored)).
			Str("instance", s.instanceID).
			Msg("round completed")
		s.publish(ctx, completed.ID, events.EventTypeRoundCompleted, events.RoundCompletedPayload{
			RoundID:          completed.ID,
			ClosePrice:       closePrice,
			CompletedAt:      now,
			TotalPredictions: len(scored),
		})
	}
	return errs
}

// replenish creates the next round when no open round remains. The open-round
// check and the insert are one atomic store operation: schedulers straddling a
// duration boundary compute different bucket ids, so the id key alone cannot
// prevent two of them from creating overlapping rounds.
func (s *Scheduler) replenish(ctx context.Context, now time.Time) error {
	start := s.nextBoundary(now)
	end := start.Add(s.config.RoundDuration)
	req := round.CreateRoundRequest{
		ID:        start.Unix() / int64(s.config.RoundDuration.Seconds()),
		StartTime: start,
		LockTime:  end.Add(-s.config.LockWindow),
		EndTime:   end,
	}

	created, err := s.rounds.CreateRoundIfNoneOpen(ctx, now, req)
	if errors.Is(err, round.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create round %d: %w", req.ID, err)
	}

	log.Info().
		Int64("round_id", created.ID).
		Time("start_time", created.StartTime).
		Str("instance", s.instanceID).
		Msg("round created")
	s.publish(ctx, created.ID, events.EventTypeRoundCreated, events.RoundCreatedPayload{
		RoundID:   created.ID,
		StartTime: created.StartTime,
		LockTime:  created.LockTime,
		EndTime:   created.EndTime,
	})
	return nil
}

// applyResults folds scored predictions into the leaderboard. On failure the
// results are queued for the next tick; re-application is safe because the
// store skips participants that already absorbed the round.
func (s *Scheduler) applyResults(ctx context.Context, roundID int64, scored []models.Prediction) error {
	if err := s.leaderboard.ApplyRoundResults(ctx, roundID, scored); err != nil {
		s.mu.Lock()
		s.pending = append(s.pending, pendingResults{roundID: roundID, scored: scored})
		s.mu.Unlock()
		return fmt.Errorf("round %d: leaderboard: %w", roundID, err)
	}
	return nil
}

// retryPendingResults re-applies queued round results, keeping the ones that
// fail again for the following tick.
func (s *Scheduler) retryPendingResults(ctx context.Context) []error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var errs []error
	for _, p := range pending {
		if err := s.leaderboard.ApplyRoundResults(ctx, p.roundID, p.scored); err != nil {
			s.mu.Lock()
			s.pending = append(s.pending, p)
			s.mu.Unlock()
			errs = append(errs, fmt.Errorf("round %d: leaderboard retry: %w", p.roundID, err))
			continue
		}
		log.Info().
			Int64("round_id", p.roundID).
			Int("predictions", len(p.scored)).
			Str("instance", s.instanceID).
			Msg("deferred leaderboard results applied")
	}
	return errs
}

// nextBoundary returns the next round-duration boundary strictly after now.
func (s *Scheduler) nextBoundary(now time.Time) time.Time {
	d := s.config.RoundDuration
	boundary := now.Truncate(d)
	if !boundary.After(now) {
		boundary = boundary.Add(d)
	}
	return boundary
}

func (s *Scheduler) publish(ctx context.Context, roundID int64, eventType events.EventType, payload any) {
	event, err := events.NewEvent(roundID, eventType, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		// Broadcast is best-effort; the store is the source of truth.
		log.Error().Err(err).
			Int64("round_id", roundID).
			Str("event_type", string(eventType)).
			Msg("failed to publish round event")
	}
}
