package api

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/devquest/collab/internal/slogging"
)

// MessageHandler processes one inbound message type
type MessageHandler interface {
	MessageType() MessageType
	HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) error
}

func (h *Hub) registerHandlers() {
	for _, handler := range []MessageHandler{
		&AuthenticateHandler{},
		&JoinSessionHandler{},
		&LeaveSessionHandler{},
		&CodeChangeHandler{},
		&CursorPositionHandler{},
		&SelectionChangeHandler{},
		&LanguageChangeHandler{},
		&SessionChatHandler{},
		&ExecuteCodeHandler{},
	} {
		h.handlers[handler.MessageType()] = handler
	}
}

// route dispatches an inbound frame to its handler. Handler failures are
// recovered locally: the originator gets a scoped error event and the
// connection stays up.
func (h *Hub) route(ctx context.Context, client *Client, message []byte) {
	var envelope struct {
		MessageType MessageType `json:"message_type"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		h.sendError(client, ErrCodeInvalidMessage, "message must be a JSON object with a message_type")
		return
	}

	handler, ok := h.handlers[envelope.MessageType]
	if !ok {
		h.sendError(client, ErrCodeInvalidMessage, "unknown message_type: "+string(envelope.MessageType))
		return
	}

	// Everything except authenticate requires a resolved identity
	if envelope.MessageType != MessageTypeAuthenticate && client.Identity() == nil {
		h.sendError(client, ErrCodeNotAuthenticated, "connection is not authenticated")
		return
	}

	h.metrics.EventsTotal.WithLabelValues(string(envelope.MessageType)).Inc()

	if err := handler.HandleMessage(ctx, h, client, message); err != nil {
		if perr, ok := err.(*ProtocolError); ok {
			h.sendError(client, perr.Code, perr.Message)
			return
		}
		slogging.Get().Error("Handler %s failed for client %s: %v", envelope.MessageType, client.ID, err)
		h.sendError(client, ErrCodeInternal, "internal error")
	}
}

// AuthenticateHandler handles authenticate messages
type AuthenticateHandler struct{}

func (h *AuthenticateHandler) MessageType() MessageType {
	return MessageTypeAuthenticate
}

func (h *AuthenticateHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in AuthenticateHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg AuthenticateMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed authenticate message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processAuthenticate(ctx, client, msg)
}

// JoinSessionHandler handles join_session messages
type JoinSessionHandler struct{}

func (h *JoinSessionHandler) MessageType() MessageType {
	return MessageTypeJoinSession
}

func (h *JoinSessionHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in JoinSessionHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg JoinSessionMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed join_session message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processJoin(ctx, client, msg)
}

// LeaveSessionHandler handles leave_session messages
type LeaveSessionHandler struct{}

func (h *LeaveSessionHandler) MessageType() MessageType {
	return MessageTypeLeaveSession
}

func (h *LeaveSessionHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in LeaveSessionHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	hub.processLeave(ctx, client)
	return nil
}

// CodeChangeHandler handles code_change messages
type CodeChangeHandler struct{}

func (h *CodeChangeHandler) MessageType() MessageType {
	return MessageTypeCodeChange
}

func (h *CodeChangeHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in CodeChangeHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg CodeChangeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed code_change message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processCodeChange(ctx, client, msg)
}

// CursorPositionHandler handles cursor_position messages
type CursorPositionHandler struct{}

func (h *CursorPositionHandler) MessageType() MessageType {
	return MessageTypeCursorPosition
}

func (h *CursorPositionHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in CursorPositionHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg CursorPositionMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed cursor_position message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processCursorPosition(ctx, client, msg)
}

// SelectionChangeHandler handles selection_change messages
type SelectionChangeHandler struct{}

func (h *SelectionChangeHandler) MessageType() MessageType {
	return MessageTypeSelectionChange
}

func (h *SelectionChangeHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in SelectionChangeHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg SelectionChangeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed selection_change message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processSelectionChange(ctx, client, msg)
}

// LanguageChangeHandler handles language_change messages
type LanguageChangeHandler struct{}

func (h *LanguageChangeHandler) MessageType() MessageType {
	return MessageTypeLanguageChange
}

func (h *LanguageChangeHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in LanguageChangeHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg LanguageChangeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed language_change message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processLanguageChange(ctx, client, msg)
}

// SessionChatHandler handles session_chat messages
type SessionChatHandler struct{}

func (h *SessionChatHandler) MessageType() MessageType {
	return MessageTypeSessionChat
}

func (h *SessionChatHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in SessionChatHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg SessionChatMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed session_chat message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processSessionChat(ctx, client, msg)
}

// ExecuteCodeHandler handles execute_code messages
type ExecuteCodeHandler struct{}

func (h *ExecuteCodeHandler) MessageType() MessageType {
	return MessageTypeExecuteCode
}

func (h *ExecuteCodeHandler) HandleMessage(ctx context.Context, hub *Hub, client *Client, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slogging.Get().Error("PANIC in ExecuteCodeHandler - Client: %s, Error: %v, Stack: %s",
				client.ID, r, debug.Stack())
			err = protocolErr(ErrCodeInternal, "internal error")
		}
	}()

	var msg ExecuteCodeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return protocolErr(ErrCodeInvalidMessage, "malformed execute_code message")
	}
	if err := msg.Validate(); err != nil {
		return protocolErr(ErrCodeInvalidMessage, err.Error())
	}
	return hub.processExecuteCode(ctx, client, msg)
}
