package db

import "fmt"

// RedisKeyBuilder provides methods to build Redis keys following the defined patterns
type RedisKeyBuilder struct{}

// NewRedisKeyBuilder creates a new Redis key builder
func NewRedisKeyBuilder() *RedisKeyBuilder {
	return &RedisKeyBuilder{}
}

// SessionKey builds the key holding a session document
func (b *RedisKeyBuilder) SessionKey(sessionToken string) string {
	return fmt.Sprintf("collab:session:%s", sessionToken)
}

// ActiveSessionsKey is the set of tokens for sessions that are still active
func (b *RedisKeyBuilder) ActiveSessionsKey() string {
	return "collab:sessions:active"
}

// PublicSessionsKey is the set of tokens for publicly listed sessions
func (b *RedisKeyBuilder) PublicSessionsKey() string {
	return "collab:sessions:public"
}

// UserSessionsKey is the set of session tokens a user is enrolled in
func (b *RedisKeyBuilder) UserSessionsKey(userID string) string {
	return fmt.Sprintf("collab:user:%s:sessions", userID)
}

// PresenceLastSeenKey is the hash of userID -> last-seen timestamp
func (b *RedisKeyBuilder) PresenceLastSeenKey() string {
	return "collab:presence:last_seen"
}
