package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/predictoor/server/internal/leaderboard"
	"github.com/predictoor/server/internal/models"
	"github.com/predictoor/server/internal/prediction"
	"github.com/predictoor/server/internal/round"
	"github.com/rs/zerolog/log"
)

// Ticker drives the round lifecycle. Exposed over HTTP so any client can
// nudge the state machine; overlapping calls are safe.
type Ticker interface {
	Tick(ctx context.Context) error
}

// RoundSnapshot is the state served for the current round.
type RoundSnapshot struct {
	Round            *models.Round `json:"round"`
	PlayerCount      int           `json:"player_count"`
	TimeToLockSec    int           `json:"time_to_lock_sec"`
	TimeRemainingSec int           `json:"time_remaining_sec"`
}

// RoundResults is the response for a round's ranked predictions.
type RoundResults struct {
	Round       *models.Round       `json:"round"`
	Predictions []models.Prediction `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StateHandler handles the REST surface: current round, results, leaderboard,
// submissions and the tick trigger.
type StateHandler struct {
	rounds      *round.App
	predictions *prediction.App
	leaderboard *leaderboard.Aggregator
	ticker      Ticker
	clock       clockwork.Clock
}

// NewStateHandler creates a new state handler.
func NewStateHandler(rounds *round.App, predictions *prediction.App, agg *leaderboard.Aggregator, ticker Ticker, clock clockwork.Clock) *StateHandler {
	return &StateHandler{
		rounds:      rounds,
		predictions: predictions,
		leaderboard: agg,
		ticker:      ticker,
		clock:       clock,
	}
}

// HandleGetCurrentRound handles GET /api/rounds/current.
func (h *StateHandler) HandleGetCurrentRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rd, count, err := h.rounds.GetCurrentRound(r.Context())
	if errors.Is(err, round.ErrNotFound) {
		writeJSON(w, http.StatusOK, RoundSnapshot{})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get current round")
		http.Error(w, "Failed to get current round", http.StatusInternalServerError)
		return
	}

	now := h.clock.Now()
	writeJSON(w, http.StatusOK, RoundSnapshot{
		Round:            rd,
		PlayerCount:      count,
		TimeToLockSec:    secondsUntil(now, rd.LockTime),
		TimeRemainingSec: secondsUntil(now, rd.EndTime),
	})
}

// HandleGetResults handles GET /api/rounds/{id}/results.
func (h *StateHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roundID, ok := extractRoundIDFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "Round ID is required", http.StatusBadRequest)
		return
	}

	rd, preds, err := h.rounds.GetResults(r.Context(), roundID)
	if errors.Is(err, round.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "round not found", Kind: "not_found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("round_id", roundID).Msg("failed to get round results")
		http.Error(w, "Failed to get round results", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, RoundResults{Round: rd, Predictions: preds})
}

// HandleGetLeaderboard handles GET /api/leaderboard.
func (h *StateHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit", Kind: "invalid_value"})
			return
		}
		limit = n
	}

	entries, err := h.leaderboard.Top(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to get leaderboard")
		http.Error(w, "Failed to get leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleSubmit handles POST /api/predictions. Rejections carry the failed
// constraint so clients can tell "too late" from "bad value".
func (h *StateHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req prediction.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "invalid_value"})
		return
	}

	pred, err := h.predictions.Submit(r.Context(), req)
	switch {
	case errors.Is(err, prediction.ErrInvalidValue):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid_value"})
		return
	case errors.Is(err, prediction.ErrRoundNotActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "round is not accepting predictions", Kind: "round_not_active"})
		return
	case err != nil:
		log.Error().Err(err).Int64("round_id", req.RoundID).Msg("failed to submit prediction")
		http.Error(w, "Failed to submit prediction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, pred)
}

// HandleTick handles POST /api/tick.
func (h *StateHandler) HandleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.ticker.Tick(r.Context()); err != nil {
		// Partial per-round failures still advanced everything else.
		log.Warn().Err(err).Msg("tick completed with errors")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RegisterStateRoutes registers the REST routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rounds/current", h.HandleGetCurrentRound)
	mux.HandleFunc("/api/leaderboard", h.HandleGetLeaderboard)
	mux.HandleFunc("/api/predictions", h.HandleSubmit)
	mux.HandleFunc("/api/tick", h.HandleTick)

	mux.HandleFunc("/api/rounds/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/results") {
			h.HandleGetResults(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// extractRoundIDFromPath parses /api/rounds/{id}/results.
func extractRoundIDFromPath(path string) (int64, bool) {
	const prefix = "/api/rounds/"
	const suffix = "/results"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func secondsUntil(now, t time.Time) int {
	remaining := int(t.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
