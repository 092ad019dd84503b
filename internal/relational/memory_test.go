package relational

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EnsureConversationIsIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	first, err := s.EnsureConversation(ctx, 1, "first title")
	require.NoError(t, err)
	second, err := s.EnsureConversation(ctx, 1, "second title")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "first title", second.Title)
}

func TestMemoryStore_MissionStatusMonotonic(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, 1, "t")
	require.NoError(t, err)

	log, err := s.CreateMissionLog(ctx, MissionLog{ConversationID: 1, Query: "find prices"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, log.Status)

	require.NoError(t, s.UpdateMissionStatus(ctx, log.ID, StatusInProgress, ""))
	require.NoError(t, s.UpdateMissionStatus(ctx, log.ID, StatusCompleted, "report text"))

	err = s.UpdateMissionStatus(ctx, log.ID, StatusFailed, "too late")
	assert.ErrorIs(t, err, ErrTerminalStatus)

	got, err := s.GetMissionLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "report text", got.Response)
}

func TestMemoryStore_QueryTruncatedTo255Chars(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, 1, "t")
	require.NoError(t, err)

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	log, err := s.CreateMissionLog(ctx, MissionLog{ConversationID: 1, Query: string(long)})
	require.NoError(t, err)
	assert.Len(t, log.Query, 255)
}

func TestMemoryStore_ListMissionLogsNewestFirst(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, 1, "t")
	require.NoError(t, err)

	a, err := s.CreateMissionLog(ctx, MissionLog{ConversationID: 1, Query: "a"})
	require.NoError(t, err)
	b, err := s.CreateMissionLog(ctx, MissionLog{ConversationID: 1, Query: "b"})
	require.NoError(t, err)

	logs, err := s.ListMissionLogs(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, b.ID, logs[0].ID)
	assert.Equal(t, a.ID, logs[1].ID)
}

func TestMemoryStore_GetConversationNotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.GetConversation(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
