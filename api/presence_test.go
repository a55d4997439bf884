package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/devquest/collab/internal/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence(t *testing.T) *PresenceTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPresenceTracker(db.NewRedisDBFromClient(client))
}

func TestPresenceTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("OnlineWhileAnyConnectionRemains", func(t *testing.T) {
		tracker := newTestPresence(t)

		tracker.ConnectionOpened(ctx, "alice", "conn-1")
		tracker.ConnectionOpened(ctx, "alice", "conn-2")
		assert.True(t, tracker.IsOnline("alice"))
		assert.Equal(t, 1, tracker.OnlineCount())

		offline := tracker.ConnectionClosed(ctx, "alice", "conn-1")
		assert.False(t, offline)
		assert.True(t, tracker.IsOnline("alice"))

		offline = tracker.ConnectionClosed(ctx, "alice", "conn-2")
		assert.True(t, offline)
		assert.False(t, tracker.IsOnline("alice"))
		assert.Equal(t, 0, tracker.OnlineCount())
	})

	t.Run("CountsDistinctUsers", func(t *testing.T) {
		tracker := newTestPresence(t)

		tracker.ConnectionOpened(ctx, "alice", "conn-1")
		tracker.ConnectionOpened(ctx, "bob", "conn-2")
		assert.Equal(t, 2, tracker.OnlineCount())
	})

	t.Run("LastSeenPersisted", func(t *testing.T) {
		tracker := newTestPresence(t)

		before := time.Now().UTC().Add(-time.Second)
		tracker.ConnectionOpened(ctx, "alice", "conn-1")

		seen, err := tracker.LastSeen(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, seen.Before(before.Truncate(time.Second)))
	})

	t.Run("NeverSeenUserHasZeroLastSeen", func(t *testing.T) {
		tracker := newTestPresence(t)

		seen, err := tracker.LastSeen(ctx, "ghost")
		require.NoError(t, err)
		assert.True(t, seen.IsZero())
	})

	t.Run("CloseUnknownConnectionIsHarmless", func(t *testing.T) {
		tracker := newTestPresence(t)

		offline := tracker.ConnectionClosed(ctx, "alice", "conn-x")
		assert.False(t, offline)
	})
}
