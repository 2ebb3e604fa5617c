// Package scoring turns a round's predictions and close price into ranked
// results. Score is a pure function: no clocks, no stores, identical output
// for identical input.
package scoring

import (
	"math"
	"sort"

	"github.com/predictoor/server/internal/models"
)

// DefaultSensitivity scales relative error into the 0-100 accuracy range. A
// 10% miss at the default zeroes the score. Tunable, not a law.
const DefaultSensitivity = 10.0

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithSensitivity overrides the error sensitivity constant.
func WithSensitivity(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.sensitivity = k
		}
	}
}

// Engine computes accuracy and rank for a round's predictions.
type Engine struct {
	sensitivity float64
}

// NewEngine creates a scoring engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{sensitivity: DefaultSensitivity}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score returns a new slice with accuracy and rank populated. Ranking is by
// accuracy descending with ties broken by earlier submission, so the result
// does not depend on input order. Zero predictions yield an empty result, not
// an error.
func (e *Engine) Score(predictions []models.Prediction, closePrice float64) []models.Prediction {
	scored := make([]models.Prediction, len(predictions))
	copy(scored, predictions)

	for i := range scored {
		acc := e.accuracy(&scored[i], closePrice)
		scored[i].Accuracy = &acc
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if *scored[i].Accuracy != *scored[j].Accuracy {
			return *scored[i].Accuracy > *scored[j].Accuracy
		}
		if !scored[i].SubmittedAt.Equal(scored[j].SubmittedAt) {
			return scored[i].SubmittedAt.Before(scored[j].SubmittedAt)
		}
		// Final tiebreaker so equal-accuracy, equal-time inputs still rank
		// identically regardless of input order.
		return scored[i].ParticipantID.String() < scored[j].ParticipantID.String()
	})

	for i := range scored {
		rank := i + 1
		scored[i].Rank = &rank
	}
	return scored
}

// accuracy maps relative error to [0,100]. Trajectory predictions are scored
// against the interpolated path value at progress 1.0; point predictions
// against the target value.
func (e *Engine) accuracy(pred *models.Prediction, closePrice float64) float64 {
	forecast := pred.TargetValue
	if len(pred.Path) > 0 {
		forecast = ValueAtProgress(pred.Path, 1.0)
	}

	relErr := math.Abs(forecast-closePrice) / closePrice
	return math.Max(0, 100*(1-relErr*e.sensitivity))
}

// ValueAtProgress evaluates a trajectory at the given progress using
// piecewise-linear interpolation between consecutive samples, clamping to the
// first sample before its progress and to the last sample beyond it. An empty
// path evaluates to 0.
func ValueAtProgress(path []models.PathPoint, progress float64) float64 {
	if len(path) == 0 {
		return 0
	}
	pts := make([]models.PathPoint, len(path))
	copy(pts, path)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Progress < pts[j].Progress })

	if progress <= pts[0].Progress {
		return pts[0].Value
	}
	for i := 1; i < len(pts); i++ {
		if progress > pts[i].Progress {
			continue
		}
		prev, next := pts[i-1], pts[i]
		span := next.Progress - prev.Progress
		if span <= 0 {
			return next.Value
		}
		frac := (progress - prev.Progress) / span
		return prev.Value + frac*(next.Value-prev.Value)
	}
	return pts[len(pts)-1].Value
}
