package models

import (
	"encoding/json"
	"errors"
	"time"
)

type Language string

const (
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangCPP        Language = "cpp"
)

// Languages lists every language a session may be set to.
func Languages() []Language {
	return []Language{LangJavaScript, LangPython, LangJava, LangCPP}
}

func (l Language) Valid() bool {
	switch l {
	case LangJavaScript, LangPython, LangJava, LangCPP:
		return true
	}
	return false
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidLanguage = errors.New("invalid language")
)

/*** Wire protocol ***/

// Inbound frame types.
const (
	TypeJoin           = "join"
	TypeCodeUpdate     = "code-update"
	TypeCursorPosition = "cursor-position"
	TypeLanguageChange = "language-change"
	TypePing           = "ping"
)

// Outbound frame types.
const (
	TypeWelcome         = "welcome"
	TypeUserJoined      = "user-joined"
	TypeUserLeft        = "user-left"
	TypeLanguageChanged = "language-changed"
	TypePong            = "pong"
	TypeError           = "error"
)

// Error codes carried in error frames.
const (
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeInvalidMessage    = "INVALID_MESSAGE"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// Frame is the JSON envelope exchanged over the session websocket.
type Frame struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	ParticipantID string    `json:"participantId,omitempty"`
	Data          any       `json:"data,omitempty"`
}

func NewFrame(frameType, participantID string, data any) Frame {
	return Frame{
		Type:          frameType,
		Timestamp:     time.Now().UTC(),
		ParticipantID: participantID,
		Data:          data,
	}
}

func ErrorFrame(code, message string) Frame {
	return NewFrame(TypeError, "", ErrorData{Code: code, Message: message})
}

// DecodeData coerces a frame's decoded payload into a typed struct.
func DecodeData(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type JoinData struct {
	Name string `json:"name"`
}

type CodeUpdateData struct {
	Code    string `json:"code"`
	Version int64  `json:"version,omitempty"`
}

type LanguageChangeData struct {
	Language Language `json:"language"`
}

type ParticipantInfo struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

type WelcomeData struct {
	SessionID    string            `json:"sessionId"`
	CurrentCode  string            `json:"currentCode"`
	Language     Language          `json:"language"`
	Participants []ParticipantInfo `json:"participants"`
}

type UserJoinedData struct {
	Name             string `json:"name"`
	ParticipantCount int    `json:"participantCount"`
}

type UserLeftData struct {
	ParticipantCount int `json:"participantCount"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

/*** Session metadata (REST surface) ***/

type SessionCreateRequest struct {
	Language  Language `json:"language,omitempty"`
	Title     string   `json:"title,omitempty"`
	ExpiresIn int      `json:"expiresIn,omitempty"` // hours, 1-168
}

type SessionUpdateRequest struct {
	Language *Language `json:"language,omitempty"`
	Title    *string   `json:"title,omitempty"`
}

type SessionResponse struct {
	SessionID          string    `json:"sessionId"`
	Title              string    `json:"title,omitempty"`
	Language           Language  `json:"language"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	ActiveParticipants int       `json:"activeParticipants"`
	URL                string    `json:"url"`
}

type CodeResponse struct {
	SessionID    string    `json:"sessionId"`
	Code         string    `json:"code"`
	Language     Language  `json:"language"`
	LastModified time.Time `json:"lastModified"`
}

type CodeSaveRequest struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

type CodeSaveResponse struct {
	SessionID string    `json:"sessionId"`
	SavedAt   time.Time `json:"savedAt"`
}

type ParticipantsResponse struct {
	SessionID    string            `json:"sessionId"`
	Participants []ParticipantInfo `json:"participants"`
}

// HistoryEvent is published to the history channel whenever the hub accepts a
// code-update or language-change.
type HistoryEvent struct {
	SessionID     string    `json:"sessionId"`
	Timestamp     time.Time `json:"timestamp"`
	ParticipantID string    `json:"participantId"`
	ChangeType    string    `json:"changeType"`
	Snapshot      string    `json:"snapshot"`
}
