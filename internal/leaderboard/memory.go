package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
	"github.com/predictoor/server/internal/participant"
)

// MemoryRepository is an in-memory leaderboard store for local mode and
// tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	entries      map[uuid.UUID]models.LeaderboardEntry
	participants participant.Repository
}

// NewMemoryRepository creates an empty in-memory leaderboard store.
func NewMemoryRepository(participants participant.Repository) *MemoryRepository {
	return &MemoryRepository{
		entries:      make(map[uuid.UUID]models.LeaderboardEntry),
		participants: participants,
	}
}

func (r *MemoryRepository) ApplyResult(ctx context.Context, roundID int64, result models.Prediction) error {
	if result.Accuracy == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[result.ParticipantID]
	if ok && entry.LastRoundID >= roundID {
		return nil
	}
	if !ok {
		entry = models.LeaderboardEntry{ParticipantID: result.ParticipantID}
	}

	entry.AverageAccuracy += (*result.Accuracy - entry.AverageAccuracy) / float64(entry.TotalPredictions+1)
	entry.TotalPredictions++
	entry.LastRoundID = roundID
	entry.UpdatedAt = time.Now().UTC()
	r.entries[result.ParticipantID] = entry
	return nil
}

func (r *MemoryRepository) Top(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	r.mu.RLock()
	entries := make([]models.LeaderboardEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AverageAccuracy != entries[j].AverageAccuracy {
			return entries[i].AverageAccuracy > entries[j].AverageAccuracy
		}
		return entries[i].TotalPredictions > entries[j].TotalPredictions
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}

	for i := range entries {
		p, err := r.participants.GetParticipant(ctx, entries[i].ParticipantID)
		if err != nil {
			continue
		}
		entries[i].Nickname = p.Nickname
		entries[i].AvatarColor = p.AvatarColor
	}
	return entries, nil
}
