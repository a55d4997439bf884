package api

import (
	"context"
	"fmt"
	"time"

	"github.com/devquest/collab/internal/slogging"
)

// processAuthenticate resolves the credential and binds the identity to the
// connection for its remaining lifetime.
func (h *Hub) processAuthenticate(ctx context.Context, client *Client, msg AuthenticateMessage) error {
	identity, err := h.validator.ValidateToken(msg.Token)
	if err != nil {
		slogging.Get().Debug("Authentication failed for client %s: %v", client.ID, err)
		return protocolErr(ErrCodeAuthenticationFailed, "invalid credential")
	}

	client.setIdentity(identity)
	h.presence.ConnectionOpened(ctx, identity.UserID, client.ID)
	h.metrics.OnlineUsers.Set(float64(h.presence.OnlineCount()))

	h.sendTo(client, AuthenticatedMessage{
		MessageType: MessageTypeAuthenticated,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	})
	slogging.Get().Info("Client %s authenticated as %s", client.ID, identity.UserID)
	return nil
}

// processJoin attaches the connection to an existing enrollment. Socket-level
// join never creates membership: participants are only added through the
// HTTP join flow, so an unenrolled caller fails not_a_participant here.
func (h *Hub) processJoin(ctx context.Context, client *Client, msg JoinSessionMessage) error {
	identity := client.Identity()

	session, err := h.store.Get(ctx, msg.SessionToken)
	if err != nil {
		if err == ErrSessionNotFound {
			return protocolErr(ErrCodeSessionNotFound, "session not found")
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !session.IsActive {
		return protocolErr(ErrCodeSessionInactive, "session is no longer active")
	}
	p := session.FindParticipant(identity.UserID)
	if p == nil || !p.IsActive {
		return protocolErr(ErrCodeNotAParticipant, "you are not a participant of this session")
	}

	// Switching sessions is a real departure from the old room: its
	// participants see user_left and host transfer runs if needed.
	if prev := h.roomFor(client); prev != nil && prev.Token != session.Token {
		h.processLeave(ctx, client)
	}

	room := h.attach(client, session.Token)

	// Full state snapshot to the joiner: code, language, active
	// participants, settings, recent chat
	h.sendTo(client, SessionStateMessage{
		MessageType:  MessageTypeSessionState,
		SessionToken: session.Token,
		Title:        session.Title,
		Code:         session.Code,
		Language:     session.Language,
		Settings:     session.Settings,
		Participants: session.ActiveParticipants(),
		Chat:         session.Chat.Tail(50),
	})

	h.Broadcast(room, UserJoinedMessage{
		MessageType: MessageTypeUserJoined,
		UserID:      identity.UserID,
		DisplayName: p.DisplayName,
		Timestamp:   time.Now().UTC(),
	}, client)

	slogging.Get().Info("User %s joined room %s", identity.UserID, session.Token)
	return nil
}

// processLeave detaches the connection from its room, marks the participant
// inactive, and runs host transfer when the host departs. Idempotent: a
// connection with no room is a no-op.
func (h *Hub) processLeave(ctx context.Context, client *Client) {
	room := h.detach(client)
	if room == nil {
		return
	}
	identity := client.Identity()
	if identity == nil {
		return
	}

	var (
		departed   *Participant
		newHost    *Participant
		hostNotice ChatMessage
		ended      bool
	)
	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		p := session.FindParticipant(identity.UserID)
		if p == nil {
			return nil
		}
		departed = p
		p.IsActive = false
		p.Cursor = nil
		p.Selection = nil
		session.Touch()

		if p.IsHost {
			p.IsHost = false
			newHost = session.TransferHost(identity.UserID)
			if newHost != nil {
				hostNotice = session.AppendSystemMessage(fmt.Sprintf("%s is now the host", newHost.DisplayName))
			} else {
				ended = true
			}
		} else if session.ActiveCount() == 0 {
			session.IsActive = false
			ended = true
		}
		return nil
	})
	if err != nil {
		// The departure still holds for the room even if persistence
		// failed; log and carry on with the broadcasts.
		slogging.Get().Error("Failed to persist departure of %s from %s: %v", identity.UserID, room.Token, err)
	}

	displayName := identity.DisplayName
	if departed != nil {
		displayName = departed.DisplayName
	}
	h.Broadcast(room, UserLeftMessage{
		MessageType: MessageTypeUserLeft,
		UserID:      identity.UserID,
		DisplayName: displayName,
		Timestamp:   time.Now().UTC(),
	}, nil)

	if newHost != nil {
		h.Broadcast(room, HostChangedMessage{
			MessageType: MessageTypeHostChanged,
			UserID:      newHost.UserID,
			DisplayName: newHost.DisplayName,
			System:      hostNotice,
		}, nil)
	}
	if ended {
		h.Broadcast(room, SessionEndedMessage{
			MessageType: MessageTypeSessionEnded,
			Reason:      "no active participants remain",
		}, nil)
		h.teardownRoom(room)
	}

	slogging.Get().Info("User %s left room %s", identity.UserID, room.Token)
}

// teardownRoom detaches every remaining connection from a deactivated session
func (h *Hub) teardownRoom(room *SessionRoom) {
	for _, member := range room.Members() {
		h.detach(member)
	}
}

// processCodeChange overwrites the session's code buffer and appends a
// bounded history entry. Last-writer-wins: the accepted buffer fully
// replaces the stored one, no merge.
func (h *Hub) processCodeChange(ctx context.Context, client *Client, msg CodeChangeMessage) error {
	identity := client.Identity()
	room := h.roomFor(client)
	if room == nil {
		return protocolErr(ErrCodeNotAParticipant, "join a session before editing")
	}

	var displayName string
	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		if !session.IsActive {
			return protocolErr(ErrCodeSessionInactive, "session is no longer active")
		}
		p := session.FindParticipant(identity.UserID)
		if p == nil || !p.IsActive {
			return protocolErr(ErrCodeNotAParticipant, "you are not a participant of this session")
		}
		if !session.CanUserEdit(identity.UserID) {
			return protocolErr(ErrCodeEditPermissionDenied, "you don't have permission to edit")
		}
		displayName = p.DisplayName
		session.Code = msg.Code
		session.AppendHistory(identity.UserID, p.DisplayName, msg.Change)
		session.Touch()
		return nil
	})
	if err != nil {
		return err
	}

	h.Broadcast(room, CodeChangedMessage{
		MessageType: MessageTypeCodeChanged,
		Change:      msg.Change,
		Code:        msg.Code,
		UserID:      identity.UserID,
		DisplayName: displayName,
		Timestamp:   time.Now().UTC(),
	}, client)
	return nil
}

// processCursorPosition updates the participant's transient cursor and
// relays it. Non-participants are silently ignored: this is a UX-only
// signal, not worth a protocol error.
func (h *Hub) processCursorPosition(ctx context.Context, client *Client, msg CursorPositionMessage) error {
	identity := client.Identity()
	room := h.roomFor(client)
	if room == nil {
		return nil
	}

	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		p := session.FindParticipant(identity.UserID)
		if !session.IsActive || p == nil || !p.IsActive {
			return errSilentIgnore
		}
		cursor := msg.Cursor
		p.Cursor = &cursor
		return nil
	})
	if err != nil {
		if err == errSilentIgnore {
			return nil
		}
		slogging.Get().Warn("Failed to persist cursor for %s: %v", identity.UserID, err)
		return nil
	}

	h.Broadcast(room, CursorMovedMessage{
		MessageType: MessageTypeCursorMoved,
		UserID:      identity.UserID,
		Cursor:      msg.Cursor,
	}, client)
	return nil
}

// processSelectionChange mirrors processCursorPosition for selections
func (h *Hub) processSelectionChange(ctx context.Context, client *Client, msg SelectionChangeMessage) error {
	identity := client.Identity()
	room := h.roomFor(client)
	if room == nil {
		return nil
	}

	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		p := session.FindParticipant(identity.UserID)
		if !session.IsActive || p == nil || !p.IsActive {
			return errSilentIgnore
		}
		p.Selection = msg.Selection
		return nil
	})
	if err != nil {
		if err == errSilentIgnore {
			return nil
		}
		slogging.Get().Warn("Failed to persist selection for %s: %v", identity.UserID, err)
		return nil
	}

	h.Broadcast(room, SelectionChangedMessage{
		MessageType: MessageTypeSelectionChanged,
		UserID:      identity.UserID,
		Selection:   msg.Selection,
	}, client)
	return nil
}

// processLanguageChange switches the session language. Any active
// participant may do this, not just the host.
func (h *Hub) processLanguageChange(ctx context.Context, client *Client, msg LanguageChangeMessage) error {
	identity := client.Identity()
	room := h.roomFor(client)
	if room == nil {
		return protocolErr(ErrCodeNotAParticipant, "join a session first")
	}
	if !msg.Language.Valid() {
		return protocolErr(ErrCodeInvalidLanguage, fmt.Sprintf("unsupported language: %s", msg.Language))
	}

	var (
		displayName string
		notice      ChatMessage
	)
	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		if !session.IsActive {
			return protocolErr(ErrCodeSessionInactive, "session is no longer active")
		}
		p := session.FindParticipant(identity.UserID)
		if p == nil || !p.IsActive {
			return protocolErr(ErrCodeNotAParticipant, "you are not a participant of this session")
		}
		displayName = p.DisplayName
		session.Language = msg.Language
		notice = session.AppendSystemMessage(fmt.Sprintf("%s changed the language to %s", p.DisplayName, msg.Language))
		session.Touch()
		return nil
	})
	if err != nil {
		return err
	}

	// Broadcast to all, sender included
	h.Broadcast(room, LanguageUpdateMessage{
		MessageType: MessageTypeLanguageUpdate,
		Language:    msg.Language,
		UserID:      identity.UserID,
		DisplayName: displayName,
		System:      notice,
	}, nil)
	return nil
}

// processSessionChat appends to the bounded chat log and fans the message
// out to the whole room, sender included.
func (h *Hub) processSessionChat(ctx context.Context, client *Client, msg SessionChatMessage) error {
	identity := client.Identity()
	room := h.roomFor(client)
	if room == nil {
		return protocolErr(ErrCodeNotAParticipant, "join a session first")
	}

	var chatMsg ChatMessage
	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		if !session.IsActive {
			return protocolErr(ErrCodeSessionInactive, "session is no longer active")
		}
		p := session.FindParticipant(identity.UserID)
		if p == nil || !p.IsActive {
			return protocolErr(ErrCodeNotAParticipant, "you are not a participant of this session")
		}
		if !session.Settings.AllowChat {
			return protocolErr(ErrCodeChatDisabled, "chat is disabled for this session")
		}
		chatMsg = session.AppendChat(identity.UserID, p.DisplayName, msg.Text)
		session.Touch()
		return nil
	})
	if err != nil {
		return err
	}

	h.Broadcast(room, ChatBroadcastMessage{
		MessageType: MessageTypeChatMessage,
		Message:     chatMsg,
	}, nil)
	return nil
}

// processExecuteCode delegates to the sandbox and broadcasts the outcome.
// Sandbox failures become a room-wide execution_error event, since the
// whole room was awaiting the result; they never fail the session.
func (h *Hub) processExecuteCode(ctx context.Context, client *Client, msg ExecuteCodeMessage) error {
	identity := client.Identity()
	room := h.roomFor(client)
	if room == nil {
		return protocolErr(ErrCodeNotAParticipant, "join a session first")
	}

	_, err := h.store.Update(ctx, room.Token, func(session *Session) error {
		if !session.IsActive {
			return protocolErr(ErrCodeSessionInactive, "session is no longer active")
		}
		p := session.FindParticipant(identity.UserID)
		if p == nil || !p.IsActive {
			return protocolErr(ErrCodeNotAParticipant, "you are not a participant of this session")
		}
		session.Touch()
		return nil
	})
	if err != nil {
		return err
	}

	result, err := h.executor.Execute(ctx, msg.Code, msg.Language)
	if err != nil {
		slogging.Get().Warn("Execution failed in room %s: %v", room.Token, err)
		h.Broadcast(room, ExecutionErrorMessage{
			MessageType: MessageTypeExecutionError,
			UserID:      identity.UserID,
			Message:     "code execution failed",
		}, nil)
		return nil
	}

	h.Broadcast(room, ExecutionResultMessage{
		MessageType: MessageTypeExecutionResult,
		UserID:      identity.UserID,
		Result:      *result,
	}, nil)
	return nil
}

// errSilentIgnore marks mutations that should be dropped without a client-
// visible error (cursor/selection from non-participants).
var errSilentIgnore = fmt.Errorf("silently ignored")
