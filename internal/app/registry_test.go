package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()

	m, err := r.Add("alice", &Link{remote: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantID("alice"), m.Meta.ID)
	assert.Equal(t, 1, r.Len())

	_, err = r.Add("alice", &Link{remote: "alice"})
	assert.ErrorIs(t, err, core.ErrDuplicateParticipant)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Remove("alice"))
	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, r.Remove("alice"), core.ErrNotFound)
}

func TestRegistryRejectsInvalidID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add("", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []domain.ParticipantID{"carol", "alice", "bob"} {
		_, err := r.Add(id, &Link{remote: id})
		require.NoError(t, err)
	}
	require.NoError(t, r.Remove("alice"))
	_, err := r.Add("dave", &Link{remote: "dave"})
	require.NoError(t, err)

	snap := r.Snapshot()
	ids := make([]domain.ParticipantID, 0, len(snap))
	for _, p := range snap {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []domain.ParticipantID{"carol", "bob", "dave"}, ids)

	// The snapshot is a copy: mutating it must not leak back.
	snap[0].ID = "mallory"
	m, ok := r.Get("carol")
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID("carol"), m.Meta.ID)
}
