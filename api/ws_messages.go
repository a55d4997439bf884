package api

import (
	"fmt"
	"time"
)

// WebSocket message types. Every frame is a JSON object carrying a
// message_type discriminator.

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> server
	MessageTypeAuthenticate    MessageType = "authenticate"
	MessageTypeJoinSession     MessageType = "join_session"
	MessageTypeLeaveSession    MessageType = "leave_session"
	MessageTypeCodeChange      MessageType = "code_change"
	MessageTypeCursorPosition  MessageType = "cursor_position"
	MessageTypeSelectionChange MessageType = "selection_change"
	MessageTypeLanguageChange  MessageType = "language_change"
	MessageTypeSessionChat     MessageType = "session_chat"
	MessageTypeExecuteCode     MessageType = "execute_code"

	// Server -> client
	MessageTypeAuthenticated    MessageType = "authenticated"
	MessageTypeSessionState     MessageType = "session_state"
	MessageTypeUserJoined       MessageType = "user_joined"
	MessageTypeUserLeft         MessageType = "user_left"
	MessageTypeCodeChanged      MessageType = "code_changed"
	MessageTypeCursorMoved      MessageType = "cursor_moved"
	MessageTypeSelectionChanged MessageType = "selection_changed"
	MessageTypeLanguageUpdate   MessageType = "language_update"
	MessageTypeChatMessage      MessageType = "chat_message"
	MessageTypeHostChanged      MessageType = "host_changed"
	MessageTypeExecutionResult  MessageType = "execution_result"
	MessageTypeExecutionError   MessageType = "execution_error"
	MessageTypeSessionEnded     MessageType = "session_ended"
	MessageTypeError            MessageType = "error"
)

// AsyncMessage is the base interface for all WebSocket messages
type AsyncMessage interface {
	GetMessageType() MessageType
	Validate() error
}

// Client -> server messages

// AuthenticateMessage presents the bearer credential. It must be the first
// message on a connection; everything else fails not_authenticated until it
// succeeds.
type AuthenticateMessage struct {
	MessageType MessageType `json:"message_type"`
	Token       string      `json:"token"`
}

func (m AuthenticateMessage) GetMessageType() MessageType { return m.MessageType }

func (m AuthenticateMessage) Validate() error {
	if m.MessageType != MessageTypeAuthenticate {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeAuthenticate, m.MessageType)
	}
	if m.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// JoinSessionMessage attaches the connection to an existing enrollment
type JoinSessionMessage struct {
	MessageType  MessageType `json:"message_type"`
	SessionToken string      `json:"session_token"`
}

func (m JoinSessionMessage) GetMessageType() MessageType { return m.MessageType }

func (m JoinSessionMessage) Validate() error {
	if m.MessageType != MessageTypeJoinSession {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeJoinSession, m.MessageType)
	}
	if m.SessionToken == "" {
		return fmt.Errorf("session_token is required")
	}
	return nil
}

// LeaveSessionMessage detaches the connection from its room
type LeaveSessionMessage struct {
	MessageType MessageType `json:"message_type"`
}

func (m LeaveSessionMessage) GetMessageType() MessageType { return m.MessageType }

func (m LeaveSessionMessage) Validate() error {
	if m.MessageType != MessageTypeLeaveSession {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLeaveSession, m.MessageType)
	}
	return nil
}

// CodeChangeMessage carries one edit plus the resulting full buffer. The
// server is authoritative and applies last-writer-wins: Code fully replaces
// the stored buffer, no merge.
type CodeChangeMessage struct {
	MessageType MessageType `json:"message_type"`
	Change      CodeChange  `json:"change"`
	Code        string      `json:"code"`
}

func (m CodeChangeMessage) GetMessageType() MessageType { return m.MessageType }

func (m CodeChangeMessage) Validate() error {
	if m.MessageType != MessageTypeCodeChange {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeCodeChange, m.MessageType)
	}
	if !m.Change.Operation.Valid() {
		return fmt.Errorf("invalid change operation: %s (must be insert, delete, or replace)", m.Change.Operation)
	}
	if m.Change.Position < 0 {
		return fmt.Errorf("change position must not be negative")
	}
	return nil
}

// CursorPositionMessage reports the caller's cursor. UX-only signal.
type CursorPositionMessage struct {
	MessageType MessageType    `json:"message_type"`
	Cursor      CursorPosition `json:"cursor"`
}

func (m CursorPositionMessage) GetMessageType() MessageType { return m.MessageType }

func (m CursorPositionMessage) Validate() error {
	if m.MessageType != MessageTypeCursorPosition {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeCursorPosition, m.MessageType)
	}
	if m.Cursor.Line < 0 || m.Cursor.Column < 0 {
		return fmt.Errorf("cursor line and column must not be negative")
	}
	return nil
}

// SelectionChangeMessage reports the caller's selection; nil clears it
type SelectionChangeMessage struct {
	MessageType MessageType     `json:"message_type"`
	Selection   *SelectionRange `json:"selection"`
}

func (m SelectionChangeMessage) GetMessageType() MessageType { return m.MessageType }

func (m SelectionChangeMessage) Validate() error {
	if m.MessageType != MessageTypeSelectionChange {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeSelectionChange, m.MessageType)
	}
	return nil
}

// LanguageChangeMessage switches the session language
type LanguageChangeMessage struct {
	MessageType MessageType `json:"message_type"`
	Language    Language    `json:"language"`
}

func (m LanguageChangeMessage) GetMessageType() MessageType { return m.MessageType }

func (m LanguageChangeMessage) Validate() error {
	if m.MessageType != MessageTypeLanguageChange {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeLanguageChange, m.MessageType)
	}
	if m.Language == "" {
		return fmt.Errorf("language is required")
	}
	return nil
}

// SessionChatMessage carries a user chat message
type SessionChatMessage struct {
	MessageType MessageType `json:"message_type"`
	Text        string      `json:"text"`
}

func (m SessionChatMessage) GetMessageType() MessageType { return m.MessageType }

func (m SessionChatMessage) Validate() error {
	if m.MessageType != MessageTypeSessionChat {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeSessionChat, m.MessageType)
	}
	if m.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// ExecuteCodeMessage asks the sandbox to run code on behalf of the room
type ExecuteCodeMessage struct {
	MessageType MessageType `json:"message_type"`
	Code        string      `json:"code"`
	Language    Language    `json:"language"`
}

func (m ExecuteCodeMessage) GetMessageType() MessageType { return m.MessageType }

func (m ExecuteCodeMessage) Validate() error {
	if m.MessageType != MessageTypeExecuteCode {
		return fmt.Errorf("invalid message_type: expected %s, got %s", MessageTypeExecuteCode, m.MessageType)
	}
	if !m.Language.Valid() {
		return fmt.Errorf("unsupported language: %s", m.Language)
	}
	return nil
}

// Server -> client messages

// AuthenticatedMessage confirms credential resolution
type AuthenticatedMessage struct {
	MessageType MessageType `json:"message_type"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
}

// SessionStateMessage is the full snapshot pushed to a joining connection
type SessionStateMessage struct {
	MessageType  MessageType     `json:"message_type"`
	SessionToken string          `json:"session_token"`
	Title        string          `json:"title"`
	Code         string          `json:"code"`
	Language     Language        `json:"language"`
	Settings     SessionSettings `json:"settings"`
	Participants []*Participant  `json:"participants"`
	Chat         []ChatMessage   `json:"chat"`
}

// UserJoinedMessage announces a participant's connection to the room
type UserJoinedMessage struct {
	MessageType MessageType `json:"message_type"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Timestamp   time.Time   `json:"timestamp"`
}

// UserLeftMessage announces a departure
type UserLeftMessage struct {
	MessageType MessageType `json:"message_type"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CodeChangedMessage carries an accepted edit to the rest of the room
type CodeChangedMessage struct {
	MessageType MessageType `json:"message_type"`
	Change      CodeChange  `json:"change"`
	Code        string      `json:"code"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CursorMovedMessage relays another participant's cursor
type CursorMovedMessage struct {
	MessageType MessageType    `json:"message_type"`
	UserID      string         `json:"user_id"`
	Cursor      CursorPosition `json:"cursor"`
}

// SelectionChangedMessage relays another participant's selection
type SelectionChangedMessage struct {
	MessageType MessageType     `json:"message_type"`
	UserID      string          `json:"user_id"`
	Selection   *SelectionRange `json:"selection"`
}

// LanguageUpdateMessage announces a language switch to the whole room,
// sender included, with the synthesized system chat entry.
type LanguageUpdateMessage struct {
	MessageType MessageType `json:"message_type"`
	Language    Language    `json:"language"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	System      ChatMessage `json:"system"`
}

// ChatBroadcastMessage delivers a chat entry to the whole room
type ChatBroadcastMessage struct {
	MessageType MessageType `json:"message_type"`
	Message     ChatMessage `json:"message"`
}

// HostChangedMessage announces a host transfer
type HostChangedMessage struct {
	MessageType MessageType `json:"message_type"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	System      ChatMessage `json:"system"`
}

// ExecutionResultMessage broadcasts a sandbox run result
type ExecutionResultMessage struct {
	MessageType MessageType     `json:"message_type"`
	UserID      string          `json:"user_id"`
	Result      ExecutionResult `json:"result"`
}

// ExecutionErrorMessage broadcasts a sandbox failure. Room-wide because all
// participants were awaiting the result; non-fatal to the session.
type ExecutionErrorMessage struct {
	MessageType MessageType `json:"message_type"`
	UserID      string      `json:"user_id"`
	Message     string      `json:"message"`
}

// SessionEndedMessage tells remaining connections the session deactivated
type SessionEndedMessage struct {
	MessageType MessageType `json:"message_type"`
	Reason      string      `json:"reason"`
}

// ErrorMessage is the scoped per-event failure sent to the originator only
type ErrorMessage struct {
	MessageType MessageType `json:"message_type"`
	Code        string      `json:"code"`
	Message     string      `json:"message"`
}
