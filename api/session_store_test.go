package api

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/devquest/collab/internal/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(db.NewRedisDBFromClient(client)), mr
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store, _ := newTestStore(t)
		s := NewSession("tok-1", "Pairing", "", "alice", "Alice", 10)
		s.AppendChat("alice", "Alice", "hi")

		require.NoError(t, store.Create(ctx, s))

		loaded, err := store.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "Pairing", loaded.Title)
		assert.Equal(t, 1, loaded.Chat.Len())
		require.NotNil(t, loaded.Host())
		assert.Equal(t, "alice", loaded.Host().UserID)
	})

	t.Run("CreateRejectsDuplicateToken", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Create(ctx, NewSession("tok-1", "A", "", "alice", "Alice", 10)))

		err := store.Create(ctx, NewSession("tok-1", "B", "", "bob", "Bob", 10))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("GetMissingSession", func(t *testing.T) {
		store, _ := newTestStore(t)
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("UpdateMutatesAndPersists", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Create(ctx, NewSession("tok-1", "A", "", "alice", "Alice", 10)))

		updated, err := store.Update(ctx, "tok-1", func(s *Session) error {
			s.Code = "print(1)"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "print(1)", updated.Code)

		loaded, err := store.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "print(1)", loaded.Code)
	})

	t.Run("UpdateErrorLeavesDocumentUntouched", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Create(ctx, NewSession("tok-1", "A", "", "alice", "Alice", 10)))

		_, err := store.Update(ctx, "tok-1", func(s *Session) error {
			s.Code = "half-written"
			return fmt.Errorf("boom")
		})
		require.Error(t, err)

		loaded, err := store.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.Empty(t, loaded.Code)
	})

	t.Run("LastWriterWins", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Create(ctx, NewSession("tok-1", "A", "", "alice", "Alice", 10)))

		_, err := store.Update(ctx, "tok-1", func(s *Session) error {
			s.Code = "first"
			return nil
		})
		require.NoError(t, err)
		_, err = store.Update(ctx, "tok-1", func(s *Session) error {
			s.Code = "second"
			return nil
		})
		require.NoError(t, err)

		loaded, err := store.Get(ctx, "tok-1")
		require.NoError(t, err)
		// The second write fully replaces the first, no merge
		assert.Equal(t, "second", loaded.Code)
	})

	t.Run("ConcurrentUpdatesAreSerialized", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Create(ctx, NewSession("tok-1", "A", "", "alice", "Alice", 10)))

		const writers = 50
		var wg sync.WaitGroup
		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(n int) {
				defer wg.Done()
				_, err := store.Update(ctx, "tok-1", func(s *Session) error {
					s.AppendChat("alice", "Alice", fmt.Sprintf("message %d", n))
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		loaded, err := store.Get(ctx, "tok-1")
		require.NoError(t, err)
		// Every mutation applied exactly once; no interleaved lost writes
		assert.Equal(t, writers, loaded.Chat.Len())
	})

	t.Run("ConcurrentUpdatesAcrossSessions", func(t *testing.T) {
		store, _ := newTestStore(t)
		const sessions = 20
		const writersPerSession = 10
		for i := 0; i < sessions; i++ {
			token := fmt.Sprintf("tok-%d", i)
			require.NoError(t, store.Create(ctx, NewSession(token, "A", "", "alice", "Alice", 10)))
		}

		var wg sync.WaitGroup
		wg.Add(sessions * writersPerSession)
		for i := 0; i < sessions; i++ {
			for j := 0; j < writersPerSession; j++ {
				go func(i, j int) {
					defer wg.Done()
					_, err := store.Update(ctx, fmt.Sprintf("tok-%d", i), func(s *Session) error {
						s.AppendChat("alice", "Alice", fmt.Sprintf("message %d", j))
						return nil
					})
					assert.NoError(t, err)
				}(i, j)
			}
		}
		wg.Wait()

		// Per-session ordering holds even when many tokens share lock stripes
		for i := 0; i < sessions; i++ {
			loaded, err := store.Get(ctx, fmt.Sprintf("tok-%d", i))
			require.NoError(t, err)
			assert.Equal(t, writersPerSession, loaded.Chat.Len())
		}
	})

	t.Run("ActiveIndexFollowsIsActive", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Create(ctx, NewSession("tok-1", "A", "", "alice", "Alice", 10)))

		tokens, err := store.ListActiveTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-1"}, tokens)

		_, err = store.Update(ctx, "tok-1", func(s *Session) error {
			s.IsActive = false
			return nil
		})
		require.NoError(t, err)

		tokens, err = store.ListActiveTokens(ctx)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("PublicListing", func(t *testing.T) {
		store, _ := newTestStore(t)
		pub := NewSession("tok-pub", "Public", "", "alice", "Alice", 10)
		pub.IsPublic = true
		require.NoError(t, store.Create(ctx, pub))
		require.NoError(t, store.Create(ctx, NewSession("tok-priv", "Private", "", "bob", "Bob", 10)))

		sessions, err := store.ListPublic(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "tok-pub", sessions[0].Token)

		// Deactivation removes it from the public listing
		_, err = store.Update(ctx, "tok-pub", func(s *Session) error {
			s.IsActive = false
			return nil
		})
		require.NoError(t, err)
		sessions, err = store.ListPublic(ctx)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("UserSessionIndex", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.AddUserSession(ctx, "alice", "tok-1"))
		require.NoError(t, store.AddUserSession(ctx, "alice", "tok-2"))
		require.NoError(t, store.AddUserSession(ctx, "alice", "tok-1"))

		tokens, err := store.UserSessionTokens(ctx, "alice")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, tokens)
	})
}
