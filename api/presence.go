package api

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/devquest/collab/internal/db"
	"github.com/devquest/collab/internal/slogging"
	"github.com/redis/go-redis/v9"
)

// PresenceTracker maps identities to their live connections and records
// last-seen timestamps. It is an injected service with an explicit
// lifecycle, not package-level state, so tests can instantiate it cleanly.
type PresenceTracker struct {
	redis   *db.RedisDB
	builder *db.RedisKeyBuilder

	mu          sync.RWMutex
	connections map[string]map[string]bool // userID -> connection IDs
}

// NewPresenceTracker creates a presence tracker backed by Redis for
// last-seen persistence
func NewPresenceTracker(redis *db.RedisDB) *PresenceTracker {
	return &PresenceTracker{
		redis:       redis,
		builder:     db.NewRedisKeyBuilder(),
		connections: make(map[string]map[string]bool),
	}
}

// ConnectionOpened registers a live connection for userID
func (t *PresenceTracker) ConnectionOpened(ctx context.Context, userID, connID string) {
	t.mu.Lock()
	conns, ok := t.connections[userID]
	if !ok {
		conns = make(map[string]bool)
		t.connections[userID] = conns
	}
	conns[connID] = true
	t.mu.Unlock()

	t.touchLastSeen(ctx, userID)
}

// ConnectionClosed removes a connection and reports whether the user went
// offline (no remaining connections).
func (t *PresenceTracker) ConnectionClosed(ctx context.Context, userID, connID string) bool {
	t.mu.Lock()
	offline := false
	if conns, ok := t.connections[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(t.connections, userID)
			offline = true
		}
	}
	t.mu.Unlock()

	t.touchLastSeen(ctx, userID)
	return offline
}

// IsOnline reports whether userID has at least one live connection
func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.connections[userID]) > 0
}

// OnlineCount returns the number of distinct online users
func (t *PresenceTracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.connections)
}

// LastSeen returns the user's persisted last-seen time. The zero time and
// nil error mean the user has never been seen.
func (t *PresenceTracker) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := t.redis.HGet(ctx, t.builder.PresenceLastSeenKey(), userID)
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0).UTC(), nil
}

func (t *PresenceTracker) touchLastSeen(ctx context.Context, userID string) {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	if err := t.redis.HSet(ctx, t.builder.PresenceLastSeenKey(), userID, now); err != nil {
		slogging.Get().Warn("Failed to persist last-seen for %s: %v", userID, err)
	}
}

// Shutdown clears all in-memory presence state
func (t *PresenceTracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connections = make(map[string]map[string]bool)
}
