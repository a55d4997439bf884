package api

import (
	"net/http"
	"strings"

	"github.com/devquest/collab/internal/slogging"
	"github.com/gin-gonic/gin"
)

// Error is the JSON error body for the HTTP surface
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const identityKey = "collab_identity"

// AuthMiddleware verifies the bearer credential and stores the resolved
// identity on the request context.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, Error{Error: "unauthorized", Message: "Missing Authorization header"})
			c.Abort()
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, Error{Error: "unauthorized", Message: "Invalid Authorization header format"})
			c.Abort()
			return
		}
		identity, err := validator.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, Error{Error: "unauthorized", Message: "Invalid or expired token"})
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) *Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*Identity)
	return identity
}

// SessionHandlers is the thin HTTP surface for session management. It owns
// session creation and participant enrollment; the realtime layer only
// attaches connections to enrollments made here.
type SessionHandlers struct {
	store   SessionStore
	manager *SessionManager
}

// NewSessionHandlers creates the HTTP handler set
func NewSessionHandlers(store SessionStore, manager *SessionManager) *SessionHandlers {
	return &SessionHandlers{store: store, manager: manager}
}

// RegisterRoutes wires the HTTP surface and the websocket endpoint
func (h *SessionHandlers) RegisterRoutes(r *gin.Engine, hub *Hub, validator TokenValidator) {
	authed := r.Group("/", AuthMiddleware(validator))
	authed.POST("/sessions", h.CreateSession)
	authed.POST("/sessions/:token/join", h.JoinSession)
	authed.GET("/sessions/public", h.ListPublicSessions)
	authed.GET("/sessions/mine", h.ListMySessions)
	authed.GET("/sessions/:token", h.GetSession)
	authed.PUT("/sessions/:token/settings", h.UpdateSettings)

	// The websocket endpoint authenticates in-band with the first message
	r.GET("/ws", hub.HandleWS)
}

// CreateSession establishes a new session with the caller as host
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	identity := identityFrom(c)

	var input CreateSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_input", Message: err.Error()})
		return
	}

	session, err := h.manager.CreateSession(c.Request.Context(), *identity, input)
	if err != nil {
		if perr, ok := err.(*ProtocolError); ok {
			c.JSON(http.StatusBadRequest, Error{Error: perr.Code, Message: perr.Message})
			return
		}
		slogging.Get().Error("Failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// JoinSession enrolls the caller as a participant, or reactivates an
// existing enrollment. This is the only path that creates membership.
func (h *SessionHandlers) JoinSession(c *gin.Context) {
	identity := identityFrom(c)
	token := c.Param("token")

	session, err := h.store.Update(c.Request.Context(), token, func(s *Session) error {
		if !s.IsActive {
			return protocolErr(ErrCodeSessionInactive, "session is no longer active")
		}
		if _, ok := s.Enroll(identity.UserID, identity.DisplayName); !ok {
			return protocolErr("session_full", "session is at its participant limit")
		}
		s.Touch()
		return nil
	})
	if err != nil {
		switch {
		case err == ErrSessionNotFound:
			c.JSON(http.StatusNotFound, Error{Error: ErrCodeSessionNotFound, Message: "session not found"})
		default:
			if perr, ok := err.(*ProtocolError); ok {
				status := http.StatusConflict
				if perr.Code == ErrCodeSessionInactive {
					status = http.StatusGone
				}
				c.JSON(status, Error{Error: perr.Code, Message: perr.Message})
				return
			}
			slogging.Get().Error("Failed to join session %s: %v", token, err)
			c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "failed to join session"})
		}
		return
	}

	if err := h.store.AddUserSession(c.Request.Context(), identity.UserID, token); err != nil {
		slogging.Get().Warn("Failed to index session %s for user %s: %v", token, identity.UserID, err)
	}
	c.JSON(http.StatusOK, session)
}

// GetSession returns a session document to an enrolled participant
func (h *SessionHandlers) GetSession(c *gin.Context) {
	identity := identityFrom(c)
	token := c.Param("token")

	session, err := h.store.Get(c.Request.Context(), token)
	if err != nil {
		if err == ErrSessionNotFound {
			c.JSON(http.StatusNotFound, Error{Error: ErrCodeSessionNotFound, Message: "session not found"})
			return
		}
		slogging.Get().Error("Failed to load session %s: %v", token, err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "failed to load session"})
		return
	}
	if session.FindParticipant(identity.UserID) == nil {
		c.JSON(http.StatusForbidden, Error{Error: ErrCodeNotAParticipant, Message: "you are not a participant of this session"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListPublicSessions lists active publicly discoverable sessions
func (h *SessionHandlers) ListPublicSessions(c *gin.Context) {
	sessions, err := h.store.ListPublic(c.Request.Context())
	if err != nil {
		slogging.Get().Error("Failed to list public sessions: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// ListMySessions lists the sessions the caller is enrolled in
func (h *SessionHandlers) ListMySessions(c *gin.Context) {
	identity := identityFrom(c)

	tokens, err := h.store.UserSessionTokens(c.Request.Context(), identity.UserID)
	if err != nil {
		slogging.Get().Error("Failed to list sessions for %s: %v", identity.UserID, err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "failed to list sessions"})
		return
	}

	sessions := make([]*Session, 0, len(tokens))
	for _, token := range tokens {
		session, err := h.store.Get(c.Request.Context(), token)
		if err != nil {
			if err == ErrSessionNotFound {
				continue
			}
			slogging.Get().Error("Failed to load session %s: %v", token, err)
			continue
		}
		sessions = append(sessions, session)
	}
	c.JSON(http.StatusOK, sessions)
}

type updateSettingsInput struct {
	Title    *string          `json:"title"`
	IsPublic *bool            `json:"is_public"`
	Settings *SessionSettings `json:"settings"`
}

// UpdateSettings changes session attributes. Host only.
func (h *SessionHandlers) UpdateSettings(c *gin.Context) {
	identity := identityFrom(c)
	token := c.Param("token")

	var input updateSettingsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_input", Message: err.Error()})
		return
	}
	if input.Settings != nil && !input.Settings.AllowEdit.Valid() {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_input", Message: "invalid allow_edit mode"})
		return
	}

	session, err := h.store.Update(c.Request.Context(), token, func(s *Session) error {
		host := s.Host()
		if host == nil || host.UserID != identity.UserID {
			return protocolErr("not_host", "only the host can change settings")
		}
		if input.Title != nil {
			s.Title = *input.Title
		}
		if input.IsPublic != nil {
			s.IsPublic = *input.IsPublic
		}
		if input.Settings != nil {
			s.Settings = *input.Settings
		}
		s.Touch()
		return nil
	})
	if err != nil {
		if err == ErrSessionNotFound {
			c.JSON(http.StatusNotFound, Error{Error: ErrCodeSessionNotFound, Message: "session not found"})
			return
		}
		if perr, ok := err.(*ProtocolError); ok {
			c.JSON(http.StatusForbidden, Error{Error: perr.Code, Message: perr.Message})
			return
		}
		slogging.Get().Error("Failed to update session %s: %v", token, err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "failed to update session"})
		return
	}
	c.JSON(http.StatusOK, session)
}
