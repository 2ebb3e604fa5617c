package participant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
)

// MemoryRepository is an in-memory participant store for local mode and
// tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	participants map[uuid.UUID]models.Participant
}

// NewMemoryRepository creates an empty in-memory participant store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		participants: make(map[uuid.UUID]models.Participant),
	}
}

func (r *MemoryRepository) EnsureParticipant(ctx context.Context, p models.Participant) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.participants[p.ID]
	if !ok {
		p.CreatedAt = time.Now().UTC()
		r.participants[p.ID] = p
		stored := p
		return &stored, nil
	}

	if p.Nickname != "" {
		existing.Nickname = p.Nickname
	}
	if p.AvatarColor != "" {
		existing.AvatarColor = p.AvatarColor
	}
	r.participants[p.ID] = existing
	stored := existing
	return &stored, nil
}

func (r *MemoryRepository) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	stored := p
	return &stored, nil
}
