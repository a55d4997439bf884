package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/devquest/collab/internal/slogging"
	"github.com/robfig/cron/v3"
)

// SessionManager owns session creation and the inactivity reaper. The
// reaper is a periodic sweep, not per-session timers: a session may outlive
// its TTL by up to one sweep interval.
type SessionManager struct {
	store           SessionStore
	hub             *Hub
	metrics         *Metrics
	ttl             time.Duration
	maxParticipants int
	cron            *cron.Cron
}

// CreateSessionInput carries the caller-supplied session attributes
type CreateSessionInput struct {
	Title           string           `json:"title" binding:"required"`
	Description     string           `json:"description"`
	Language        Language         `json:"language"`
	IsPublic        bool             `json:"is_public"`
	MaxParticipants int              `json:"max_participants"`
	Settings        *SessionSettings `json:"settings"`
}

// NewSessionManager creates the lifecycle manager. maxParticipants is the
// default participant limit applied when session creation omits one.
func NewSessionManager(store SessionStore, hub *Hub, metrics *Metrics, ttl time.Duration, maxParticipants int) *SessionManager {
	if maxParticipants < 1 {
		maxParticipants = 10
	}
	return &SessionManager{
		store:           store,
		hub:             hub,
		metrics:         metrics,
		ttl:             ttl,
		maxParticipants: maxParticipants,
	}
}

// newSessionToken returns a cryptographically unguessable token. The token
// is the sole join credential, so it must come from crypto/rand.
func newSessionToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateSession establishes a session with the creator as host and sole
// initial participant.
func (m *SessionManager) CreateSession(ctx context.Context, creator Identity, input CreateSessionInput) (*Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	maxParticipants := input.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = m.maxParticipants
	}
	session := NewSession(token, input.Title, input.Description, creator.UserID, creator.DisplayName, maxParticipants)
	session.IsPublic = input.IsPublic
	if input.Language != "" {
		if !input.Language.Valid() {
			return nil, protocolErr(ErrCodeInvalidLanguage, fmt.Sprintf("unsupported language: %s", input.Language))
		}
		session.Language = input.Language
	}
	if input.Settings != nil {
		if !input.Settings.AllowEdit.Valid() {
			return nil, protocolErr(ErrCodeInvalidMessage, fmt.Sprintf("invalid allow_edit mode: %s", input.Settings.AllowEdit))
		}
		session.Settings = *input.Settings
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := m.store.AddUserSession(ctx, creator.UserID, token); err != nil {
		slogging.Get().Warn("Failed to index session %s for creator %s: %v", token, creator.UserID, err)
	}

	slogging.Get().Info("Session %s created by %s", token, creator.UserID)
	return session, nil
}

// StartReaper schedules the inactivity sweep on the given cron spec
// ("@hourly" in the reference configuration).
func (m *SessionManager) StartReaper(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := m.ReapInactive(context.Background()); err != nil {
			slogging.Get().Error("Session reaper sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session reaper: %w", err)
	}
	c.Start()
	m.cron = c
	slogging.Get().Info("Session reaper scheduled (%s, TTL %v)", spec, m.ttl)
	return nil
}

// Stop halts the reaper schedule
func (m *SessionManager) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// ReapInactive marks every session idle beyond the TTL as inactive, tells
// any remaining room members, and tears the room down. Returns the number
// of sessions reaped.
func (m *SessionManager) ReapInactive(ctx context.Context) (int, error) {
	tokens, err := m.store.ListActiveTokens(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-m.ttl)
	reaped := 0
	for _, token := range tokens {
		session, err := m.store.Get(ctx, token)
		if err != nil {
			if err == ErrSessionNotFound {
				continue
			}
			slogging.Get().Error("Reaper failed to load session %s: %v", token, err)
			continue
		}
		if !session.IsActive || session.LastActivity.After(cutoff) {
			continue
		}

		_, err = m.store.Update(ctx, token, func(s *Session) error {
			s.IsActive = false
			return nil
		})
		if err != nil {
			slogging.Get().Error("Reaper failed to deactivate session %s: %v", token, err)
			continue
		}
		reaped++
		m.metrics.ReapedSessions.Inc()

		if m.hub != nil {
			if room := m.hub.Room(token); room != nil {
				m.hub.Broadcast(room, SessionEndedMessage{
					MessageType: MessageTypeSessionEnded,
					Reason:      "session expired due to inactivity",
				}, nil)
				m.hub.teardownRoom(room)
			}
		}
		slogging.Get().Info("Reaped inactive session %s (idle since %v)", token, session.LastActivity)
	}
	return reaped, nil
}
