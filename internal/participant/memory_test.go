package participant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParticipantCreatesAndRefreshes(t *testing.T) {
	repo := NewMemoryRepository()
	id := uuid.New()

	stored, err := repo.EnsureParticipant(context.Background(), models.Participant{
		ID: id, Nickname: "ada", AvatarColor: "#ff8800",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", stored.Nickname)
	assert.False(t, stored.CreatedAt.IsZero())

	// New display data replaces the old.
	stored, err = repo.EnsureParticipant(context.Background(), models.Participant{
		ID: id, Nickname: "lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "lovelace", stored.Nickname)
	assert.Equal(t, "#ff8800", stored.AvatarColor)

	// Blank fields keep whatever is on record.
	stored, err = repo.EnsureParticipant(context.Background(), models.Participant{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "lovelace", stored.Nickname)
	assert.Equal(t, "#ff8800", stored.AvatarColor)
}

func TestGetParticipantNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.GetParticipant(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
