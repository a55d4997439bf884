package api

import "errors"

// Stable error codes surfaced to clients in the error event. Clients map
// these to UI messaging; the message text is advisory.
const (
	ErrCodeNotAuthenticated     = "not_authenticated"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotAParticipant      = "not_a_participant"
	ErrCodeSessionNotFound      = "session_not_found"
	ErrCodeSessionInactive      = "session_inactive"
	ErrCodeEditPermissionDenied = "edit_permission_denied"
	ErrCodeChatDisabled         = "chat_disabled"
	ErrCodeInvalidLanguage      = "invalid_language"
	ErrCodeInvalidMessage       = "invalid_message"
	ErrCodeInternal             = "internal_error"
)

// ErrSessionNotFound is returned by the session store when no document
// exists for a token.
var ErrSessionNotFound = errors.New("session not found")

// ProtocolError is an error with a stable client-facing code. A failed
// event never tears down the connection; the error is sent back to the
// originating connection only.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func protocolErr(code, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}
