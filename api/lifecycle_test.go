package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := newSessionToken()
		require.NoError(t, err)
		assert.Len(t, token, 32)
		assert.False(t, seen[token], "token %s generated twice", token)
		seen[token] = true
	}
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	creator := Identity{UserID: "alice", DisplayName: "Alice"}

	newManager := func(t *testing.T) (*SessionManager, *RedisSessionStore) {
		t.Helper()
		store, _ := newTestStore(t)
		return NewSessionManager(store, nil, NewMetricsForTests(), 24*time.Hour, 10), store
	}

	t.Run("Defaults", func(t *testing.T) {
		manager, store := newManager(t)

		session, err := manager.CreateSession(ctx, creator, CreateSessionInput{Title: "Pairing"})
		require.NoError(t, err)

		assert.Equal(t, LanguageJavaScript, session.Language)
		assert.Equal(t, 10, session.MaxParticipants)
		assert.False(t, session.IsPublic)
		assert.True(t, session.Settings.AllowChat)
		require.NotNil(t, session.Host())
		assert.Equal(t, "alice", session.Host().UserID)

		// Persisted and indexed for the creator
		loaded, err := store.Get(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, "Pairing", loaded.Title)
		tokens, err := store.UserSessionTokens(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{session.Token}, tokens)
	})

	t.Run("ExplicitAttributes", func(t *testing.T) {
		manager, _ := newManager(t)

		session, err := manager.CreateSession(ctx, creator, CreateSessionInput{
			Title:           "Go kata",
			Language:        LanguageGo,
			IsPublic:        true,
			MaxParticipants: 4,
			Settings:        &SessionSettings{AllowEdit: EditHostOnly, AllowChat: false, Theme: "dark", FontSize: 14},
		})
		require.NoError(t, err)

		assert.Equal(t, LanguageGo, session.Language)
		assert.Equal(t, 4, session.MaxParticipants)
		assert.True(t, session.IsPublic)
		assert.Equal(t, EditHostOnly, session.Settings.AllowEdit)
		assert.False(t, session.Settings.AllowChat)
	})

	t.Run("InvalidLanguage", func(t *testing.T) {
		manager, _ := newManager(t)

		_, err := manager.CreateSession(ctx, creator, CreateSessionInput{Title: "Bad", Language: "cobol"})
		var perr *ProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ErrCodeInvalidLanguage, perr.Code)
	})

	t.Run("InvalidEditMode", func(t *testing.T) {
		manager, _ := newManager(t)

		_, err := manager.CreateSession(ctx, creator, CreateSessionInput{
			Title:    "Bad",
			Settings: &SessionSettings{AllowEdit: "everyone-on-earth"},
		})
		require.Error(t, err)
	})
}

func TestReapInactive(t *testing.T) {
	ctx := context.Background()

	t.Run("ReapsOnlySessionsIdleBeyondTTL", func(t *testing.T) {
		store, _ := newTestStore(t)
		manager := NewSessionManager(store, nil, NewMetricsForTests(), time.Hour, 10)

		require.NoError(t, store.Create(ctx, NewSession("tok-stale", "Stale", "", "alice", "Alice", 10)))
		require.NoError(t, store.Create(ctx, NewSession("tok-fresh", "Fresh", "", "bob", "Bob", 10)))
		_, err := store.Update(ctx, "tok-stale", func(s *Session) error {
			s.LastActivity = time.Now().UTC().Add(-2 * time.Hour)
			return nil
		})
		require.NoError(t, err)

		reaped, err := manager.ReapInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)

		stale, err := store.Get(ctx, "tok-stale")
		require.NoError(t, err)
		assert.False(t, stale.IsActive)

		fresh, err := store.Get(ctx, "tok-fresh")
		require.NoError(t, err)
		assert.True(t, fresh.IsActive)

		tokens, err := store.ListActiveTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-fresh"}, tokens)
	})

	t.Run("NotifiesAndTearsDownLiveRoom", func(t *testing.T) {
		env := newTestEnv(t)
		manager := NewSessionManager(env.store, env.hub, NewMetricsForTests(), time.Hour, 10)

		env.seedSession(t, "tok")
		alice := env.newClient("alice", "Alice")
		require.NoError(t, env.hub.processJoin(ctx, alice, JoinSessionMessage{MessageType: MessageTypeJoinSession, SessionToken: "tok"}))
		recvMessage(t, alice)

		_, err := env.store.Update(ctx, "tok", func(s *Session) error {
			s.LastActivity = time.Now().UTC().Add(-2 * time.Hour)
			return nil
		})
		require.NoError(t, err)

		reaped, err := manager.ReapInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)

		msg := recvMessage(t, alice)
		assert.Equal(t, string(MessageTypeSessionEnded), msg["message_type"])
		assert.Nil(t, env.hub.Room("tok"))
	})

	t.Run("IdleSweepReapsNothing", func(t *testing.T) {
		store, _ := newTestStore(t)
		manager := NewSessionManager(store, nil, NewMetricsForTests(), time.Hour, 10)

		reaped, err := manager.ReapInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, reaped)
	})
}
