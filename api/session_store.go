package api

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/devquest/collab/internal/db"
	"github.com/devquest/collab/internal/slogging"
	"github.com/redis/go-redis/v9"
)

// SessionStore is the durable record of collaborative sessions. Update runs
// the mutation under a per-token lock so concurrent events for the same
// session are applied one at a time; the conflict policy across events
// stays last-writer-wins.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Update(ctx context.Context, token string, mutate func(*Session) error) (*Session, error)
	ListActiveTokens(ctx context.Context) ([]string, error)
	ListPublic(ctx context.Context) ([]*Session, error)
	UserSessionTokens(ctx context.Context, userID string) ([]string, error)
	AddUserSession(ctx context.Context, userID, token string) error
}

// lockStripes sizes the striped lock set serializing session mutations
const lockStripes = 64

// RedisSessionStore persists each session as a JSON document keyed by its
// token, with set indexes for active, public, and per-user sessions.
type RedisSessionStore struct {
	redis   *db.RedisDB
	builder *db.RedisKeyBuilder
	locks   [lockStripes]sync.Mutex
}

// NewRedisSessionStore creates a session store over the given connection
func NewRedisSessionStore(redis *db.RedisDB) *RedisSessionStore {
	return &RedisSessionStore{
		redis:   redis,
		builder: db.NewRedisKeyBuilder(),
	}
}

// tokenLock returns the stripe serializing mutations for a session token.
// All writes to one token always hash to the same stripe, so per-session
// ordering holds; memory stays fixed no matter how many sessions come and
// go. Locks are process-local; the service runs single-node.
func (s *RedisSessionStore) tokenLock(token string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return &s.locks[h.Sum32()%lockStripes]
}

// Create stores a new session document and indexes it. Fails if a document
// already exists for the token.
func (s *RedisSessionStore) Create(ctx context.Context, session *Session) error {
	lock := s.tokenLock(session.Token)
	lock.Lock()
	defer lock.Unlock()

	key := s.builder.SessionKey(session.Token)
	if _, err := s.redis.Get(ctx, key); err == nil {
		return fmt.Errorf("session %s already exists", session.Token)
	} else if err != redis.Nil {
		return fmt.Errorf("failed to check session existence: %w", err)
	}

	if err := s.save(ctx, session); err != nil {
		return err
	}
	slogging.Get().Debug("Created session %s", session.Token)
	return nil
}

// Get loads a session document by token
func (s *RedisSessionStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.builder.SessionKey(token))
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", token, err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", token, err)
	}
	return &session, nil
}

// Update applies mutate to the session under the token's lock and persists
// the result. The mutated session is returned. If mutate returns an error
// the document is left untouched.
func (s *RedisSessionStore) Update(ctx context.Context, token string, mutate func(*Session) error) (*Session, error) {
	lock := s.tokenLock(token)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := mutate(session); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// save persists the document and keeps the active/public indexes in step
func (s *RedisSessionStore) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.Token, err)
	}
	if err := s.redis.Set(ctx, s.builder.SessionKey(session.Token), data, 0); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.Token, err)
	}

	activeKey := s.builder.ActiveSessionsKey()
	publicKey := s.builder.PublicSessionsKey()
	if session.IsActive {
		if err := s.redis.SAdd(ctx, activeKey, session.Token); err != nil {
			return fmt.Errorf("failed to index session %s: %w", session.Token, err)
		}
	} else {
		if err := s.redis.SRem(ctx, activeKey, session.Token); err != nil {
			return fmt.Errorf("failed to unindex session %s: %w", session.Token, err)
		}
	}
	if session.IsPublic && session.IsActive {
		if err := s.redis.SAdd(ctx, publicKey, session.Token); err != nil {
			return fmt.Errorf("failed to index public session %s: %w", session.Token, err)
		}
	} else {
		if err := s.redis.SRem(ctx, publicKey, session.Token); err != nil {
			return fmt.Errorf("failed to unindex public session %s: %w", session.Token, err)
		}
	}
	return nil
}

// ListActiveTokens returns the tokens of all active sessions
func (s *RedisSessionStore) ListActiveTokens(ctx context.Context) ([]string, error) {
	tokens, err := s.redis.SMembers(ctx, s.builder.ActiveSessionsKey())
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return tokens, nil
}

// ListPublic returns all active, publicly listed sessions
func (s *RedisSessionStore) ListPublic(ctx context.Context) ([]*Session, error) {
	tokens, err := s.redis.SMembers(ctx, s.builder.PublicSessionsKey())
	if err != nil {
		return nil, fmt.Errorf("failed to list public sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(tokens))
	for _, token := range tokens {
		session, err := s.Get(ctx, token)
		if err != nil {
			if err == ErrSessionNotFound {
				continue
			}
			return nil, err
		}
		if session.IsActive {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

// UserSessionTokens returns the tokens of sessions userID is enrolled in
func (s *RedisSessionStore) UserSessionTokens(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.redis.SMembers(ctx, s.builder.UserSessionsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}
	return tokens, nil
}

// AddUserSession records userID's enrollment in the per-user index
func (s *RedisSessionStore) AddUserSession(ctx context.Context, userID, token string) error {
	if err := s.redis.SAdd(ctx, s.builder.UserSessionsKey(userID), token); err != nil {
		return fmt.Errorf("failed to index session %s for user %s: %w", token, userID, err)
	}
	return nil
}
