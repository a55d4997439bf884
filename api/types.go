package api

import (
	"encoding/json"
	"time"

	"github.com/devquest/collab/internal/ringbuf"
	"github.com/google/uuid"
)

// Log capacities for the bounded session logs. Older entries are dropped,
// not archived.
const (
	ChatLogCapacity     = 100
	CodeHistoryCapacity = 1000
)

// Language identifies the editing language of a session
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageCpp        Language = "cpp"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
	LanguageHTML       Language = "html"
	LanguageCSS        Language = "css"
)

var supportedLanguages = map[Language]bool{
	LanguageJavaScript: true,
	LanguageTypeScript: true,
	LanguagePython:     true,
	LanguageJava:       true,
	LanguageCpp:        true,
	LanguageGo:         true,
	LanguageRust:       true,
	LanguageHTML:       true,
	LanguageCSS:        true,
}

// Valid reports whether l is one of the supported languages
func (l Language) Valid() bool {
	return supportedLanguages[l]
}

// EditPermission controls which participants may mutate the code buffer
type EditPermission string

const (
	EditHostOnly        EditPermission = "host-only"
	EditAllParticipants EditPermission = "all-participants"
	// EditInvitedOnly is accepted but behaves exactly like
	// EditAllParticipants: there is no invite list in the data model.
	// Unclear whether this was an unfinished feature or a deliberate
	// alias; the permissive behavior is kept and covered by tests.
	EditInvitedOnly EditPermission = "invited-only"
)

// Valid reports whether p is a recognized edit permission mode
func (p EditPermission) Valid() bool {
	switch p {
	case EditHostOnly, EditAllParticipants, EditInvitedOnly:
		return true
	}
	return false
}

// SessionSettings holds per-session behavior toggles
type SessionSettings struct {
	AllowEdit  EditPermission `json:"allow_edit"`
	AllowChat  bool           `json:"allow_chat"`
	AllowVoice bool           `json:"allow_voice"`
	Theme      string         `json:"theme"`
	FontSize   int            `json:"font_size"`
}

// DefaultSettings returns the settings applied when session creation omits them
func DefaultSettings() SessionSettings {
	return SessionSettings{
		AllowEdit: EditAllParticipants,
		AllowChat: true,
		Theme:     "dark",
		FontSize:  14,
	}
}

// CursorPosition is a participant's last-known cursor location
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SelectionRange is a participant's last-known selection, nil when collapsed
type SelectionRange struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// Participant is a user enrolled in a session. Participants are marked
// inactive on leave/disconnect, never deleted, so re-joins are idempotent
// and host transfer can follow join order.
type Participant struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	JoinedAt    time.Time       `json:"joined_at"`
	IsActive    bool            `json:"is_active"`
	IsHost      bool            `json:"is_host"`
	Cursor      *CursorPosition `json:"cursor,omitempty"`
	Selection   *SelectionRange `json:"selection,omitempty"`
}

// ChatKind distinguishes user messages from server-synthesized ones
type ChatKind string

const (
	ChatKindMessage ChatKind = "message"
	ChatKindSystem  ChatKind = "system"
)

// ChatMessage is an entry in the bounded session chat log
type ChatMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	Kind        ChatKind  `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
}

// CodeOperation is the kind of a code change
type CodeOperation string

const (
	CodeOpInsert  CodeOperation = "insert"
	CodeOpDelete  CodeOperation = "delete"
	CodeOpReplace CodeOperation = "replace"
)

// Valid reports whether op is a recognized code operation
func (op CodeOperation) Valid() bool {
	switch op {
	case CodeOpInsert, CodeOpDelete, CodeOpReplace:
		return true
	}
	return false
}

// CodeChange describes a single edit as reported by a client
type CodeChange struct {
	Operation CodeOperation `json:"operation"`
	Position  int           `json:"position"`
	Content   string        `json:"content,omitempty"`
	Length    int           `json:"length,omitempty"`
}

// CodeChangeRecord is an audit-trail entry in the bounded history log. The
// authoritative state is always Session.Code; history is never replayed.
type CodeChangeRecord struct {
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Operation   CodeOperation `json:"operation"`
	Position    int           `json:"position"`
	Content     string        `json:"content,omitempty"`
	Length      int           `json:"length,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Session is the unit of collaboration: a token-addressed shared code
// document plus its participants, chat, history, and settings.
type Session struct {
	Token           string
	Title           string
	Description     string
	Code            string
	Language        Language
	IsPublic        bool
	MaxParticipants int
	Settings        SessionSettings
	IsActive        bool
	CreatedAt       time.Time
	LastActivity    time.Time
	// Participants in join order; entries are never removed
	Participants []*Participant
	Chat         *ringbuf.Log[ChatMessage]
	History      *ringbuf.Log[CodeChangeRecord]
}

// NewSession creates an active session with the creator enrolled as host.
func NewSession(token, title, description, hostID, hostName string, maxParticipants int) *Session {
	now := time.Now().UTC()
	return &Session{
		Token:           token,
		Title:           title,
		Description:     description,
		Language:        LanguageJavaScript,
		MaxParticipants: maxParticipants,
		Settings:        DefaultSettings(),
		IsActive:        true,
		CreatedAt:       now,
		LastActivity:    now,
		Participants: []*Participant{{
			UserID:      hostID,
			DisplayName: hostName,
			JoinedAt:    now,
			IsActive:    true,
			IsHost:      true,
		}},
		Chat:    ringbuf.New[ChatMessage](ChatLogCapacity),
		History: ringbuf.New[CodeChangeRecord](CodeHistoryCapacity),
	}
}

// FindParticipant returns the participant entry for userID, or nil
func (s *Session) FindParticipant(userID string) *Participant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// ActiveParticipants returns the active participants in join order
func (s *Session) ActiveParticipants() []*Participant {
	var active []*Participant
	for _, p := range s.Participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// ActiveCount returns the number of active participants
func (s *Session) ActiveCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

// Host returns the current host participant, or nil if the session has none
func (s *Session) Host() *Participant {
	for _, p := range s.Participants {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// CanUserEdit applies the session's edit permission policy to userID.
// invited-only is deliberately as permissive as all-participants.
func (s *Session) CanUserEdit(userID string) bool {
	p := s.FindParticipant(userID)
	if p == nil || !p.IsActive {
		return false
	}
	if s.Settings.AllowEdit == EditHostOnly {
		return p.IsHost
	}
	return true
}

// Enroll adds userID as a participant, or reactivates an existing entry.
// Re-joins are idempotent: the entry is reused and JoinedAt refreshed.
// Returns false when the session's active-participant cap is reached.
func (s *Session) Enroll(userID, displayName string) (*Participant, bool) {
	now := time.Now().UTC()
	if p := s.FindParticipant(userID); p != nil {
		if !p.IsActive && s.MaxParticipants > 0 && s.ActiveCount() >= s.MaxParticipants {
			return nil, false
		}
		p.IsActive = true
		p.JoinedAt = now
		if displayName != "" {
			p.DisplayName = displayName
		}
		return p, true
	}
	if s.MaxParticipants > 0 && s.ActiveCount() >= s.MaxParticipants {
		return nil, false
	}
	p := &Participant{
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    now,
		IsActive:    true,
	}
	s.Participants = append(s.Participants, p)
	return p, true
}

// TransferHost moves host rights to the first active participant other than
// departingUserID, in join order. Returns the new host, or nil if none
// remained, in which case the session is marked inactive.
func (s *Session) TransferHost(departingUserID string) *Participant {
	for _, p := range s.Participants {
		p.IsHost = false
	}
	for _, p := range s.Participants {
		if p.IsActive && p.UserID != departingUserID {
			p.IsHost = true
			return p
		}
	}
	s.IsActive = false
	return nil
}

// AppendChat appends a user chat message and returns it
func (s *Session) AppendChat(userID, displayName, text string) ChatMessage {
	msg := ChatMessage{
		ID:          uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
		Kind:        ChatKindMessage,
		Timestamp:   time.Now().UTC(),
	}
	s.Chat.Append(msg)
	return msg
}

// AppendSystemMessage appends a server-synthesized chat entry and returns it
func (s *Session) AppendSystemMessage(text string) ChatMessage {
	msg := ChatMessage{
		ID:        uuid.New().String(),
		Text:      text,
		Kind:      ChatKindSystem,
		Timestamp: time.Now().UTC(),
	}
	s.Chat.Append(msg)
	return msg
}

// AppendHistory records a code change in the bounded audit log
func (s *Session) AppendHistory(userID, displayName string, change CodeChange) CodeChangeRecord {
	rec := CodeChangeRecord{
		UserID:      userID,
		DisplayName: displayName,
		Operation:   change.Operation,
		Position:    change.Position,
		Content:     change.Content,
		Length:      change.Length,
		Timestamp:   time.Now().UTC(),
	}
	s.History.Append(rec)
	return rec
}

// Touch updates the session's last-activity timestamp
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// sessionJSON is the persisted wire form of Session. The bounded logs
// round-trip as plain arrays.
type sessionJSON struct {
	Token           string             `json:"session_token"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	Code            string             `json:"code"`
	Language        Language           `json:"language"`
	IsPublic        bool               `json:"is_public"`
	MaxParticipants int                `json:"max_participants"`
	Settings        SessionSettings    `json:"settings"`
	IsActive        bool               `json:"is_active"`
	CreatedAt       time.Time          `json:"created_at"`
	LastActivity    time.Time          `json:"last_activity"`
	Participants    []*Participant     `json:"participants"`
	Chat            []ChatMessage      `json:"chat"`
	History         []CodeChangeRecord `json:"history"`
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		Token:           s.Token,
		Title:           s.Title,
		Description:     s.Description,
		Code:            s.Code,
		Language:        s.Language,
		IsPublic:        s.IsPublic,
		MaxParticipants: s.MaxParticipants,
		Settings:        s.Settings,
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.LastActivity,
		Participants:    s.Participants,
		Chat:            s.Chat.Entries(),
		History:         s.History.Entries(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Session) UnmarshalJSON(data []byte) error {
	var sj sessionJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	s.Token = sj.Token
	s.Title = sj.Title
	s.Description = sj.Description
	s.Code = sj.Code
	s.Language = sj.Language
	s.IsPublic = sj.IsPublic
	s.MaxParticipants = sj.MaxParticipants
	s.Settings = sj.Settings
	s.IsActive = sj.IsActive
	s.CreatedAt = sj.CreatedAt
	s.LastActivity = sj.LastActivity
	s.Participants = sj.Participants
	s.Chat = ringbuf.FromSlice(ChatLogCapacity, sj.Chat)
	s.History = ringbuf.FromSlice(CodeHistoryCapacity, sj.History)
	return nil
}
