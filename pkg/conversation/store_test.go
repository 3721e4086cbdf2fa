package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorePersistSnapshotsSession(t *testing.T) {
	s, tm := buildSession(t)
	node := mustCreate(t, tm, s, RoleUser, "before", s.RootID)

	ms := NewMemoryStore()
	require.NoError(t, ms.Persist(context.Background(), s))

	// Mutations after Persist must not leak into the stored snapshot.
	content := "after"
	require.NoError(t, tm.UpdateNodeData(s, node, NodeUpdate{Content: &content}))

	loaded, err := ms.Load(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotSame(t, s, loaded)
	require.Equal(t, "before", loaded.Nodes[node].Content)
	require.Equal(t, "after", s.Nodes[node].Content)
}

func TestMemoryStoreLoadUnknownSession(t *testing.T) {
	ms := NewMemoryStore()
	_, err := ms.Load(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStorePersistRejectsNilSession(t *testing.T) {
	ms := NewMemoryStore()
	require.ErrorIs(t, ms.Persist(context.Background(), nil), ErrSessionNil)
}
