// Package protocol defines the WebSocket message protocol between child and
// caretaker endpoints and the coordinator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
)

// MessageType is the value of the "type" field carried by every message.
type MessageType string

// Message types sent by the coordinator.
const (
	TypeConnectionConfirmed MessageType = "connection_confirmed"
	TypeSessionStart        MessageType = "session_start"
	TypeSessionStarted      MessageType = "session_started"
	TypeSessionEnd          MessageType = "session_end"
	TypeSessionEnded        MessageType = "session_ended"
	TypeGameEvent           MessageType = "game_event"
	TypeCaretakerControl    MessageType = "caretaker_control"
	TypeSurpriseTrigger     MessageType = "surprise_trigger"
	TypeSurpriseTriggered   MessageType = "surprise_triggered"
	TypeGamePause           MessageType = "game_pause"
	TypeGamePaused          MessageType = "game_paused"
)

// Message types only ever received from endpoints.
const (
	TypeControlCommand MessageType = "control_command"
	TypeGameResumed    MessageType = "game_resumed"
)

// Role identifies which side of a subject a connection joined as.
type Role string

const (
	RoleChild     Role = "child"
	RoleCaretaker Role = "caretaker"
)

// ParseRole validates a role name received at the network boundary.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleChild, RoleCaretaker:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", model.ErrInvalidRole, s)
}

// Outbound is implemented by every message the coordinator emits.
type Outbound interface {
	MessageType() MessageType
	outbound()
}

// Header carries the fields common to every outbound message.
type Header struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func newHeader(t MessageType, at time.Time) Header {
	return Header{Type: t, Timestamp: at.UTC()}
}

// MessageType returns the message's type tag.
func (h Header) MessageType() MessageType { return h.Type }

func (Header) outbound() {}

// ConnectionConfirmed acknowledges a join.
type ConnectionConfirmed struct {
	Header
	ChildID string `json:"child_id"`
	Role    Role   `json:"role"`
}

func NewConnectionConfirmed(childID string, role Role, at time.Time) ConnectionConfirmed {
	return ConnectionConfirmed{Header: newHeader(TypeConnectionConfirmed, at), ChildID: childID, Role: role}
}

// SessionStart tells the child to begin a session with the given config.
type SessionStart struct {
	Header
	SessionID string          `json:"session_id"`
	Config    json.RawMessage `json:"config"`
}

func NewSessionStart(sessionID string, config json.RawMessage, at time.Time) SessionStart {
	return SessionStart{Header: newHeader(TypeSessionStart, at), SessionID: sessionID, Config: config}
}

// SessionStarted tells caretakers a session began.
type SessionStarted struct {
	Header
	SessionID string          `json:"session_id"`
	ChildID   string          `json:"child_id"`
	Config    json.RawMessage `json:"config"`
}

func NewSessionStarted(sessionID, childID string, config json.RawMessage, at time.Time) SessionStarted {
	return SessionStarted{Header: newHeader(TypeSessionStarted, at), SessionID: sessionID, ChildID: childID, Config: config}
}

// SessionEnd tells the child its session is over.
type SessionEnd struct {
	Header
	SessionID string          `json:"session_id"`
	Summary   json.RawMessage `json:"summary"`
}

func NewSessionEnd(sessionID string, summary json.RawMessage, at time.Time) SessionEnd {
	return SessionEnd{Header: newHeader(TypeSessionEnd, at), SessionID: sessionID, Summary: summary}
}

// SessionEnded tells caretakers a session is over.
type SessionEnded struct {
	Header
	SessionID string          `json:"session_id"`
	ChildID   string          `json:"child_id"`
	Summary   json.RawMessage `json:"summary"`
}

func NewSessionEnded(sessionID, childID string, summary json.RawMessage, at time.Time) SessionEnded {
	return SessionEnded{Header: newHeader(TypeSessionEnded, at), SessionID: sessionID, ChildID: childID, Summary: summary}
}

// GameEvent echoes a logged event to caretakers.
type GameEvent struct {
	Header
	SessionID string          `json:"session_id"`
	ChildID   string          `json:"child_id"`
	Event     json.RawMessage `json:"event"`
}

func NewGameEvent(sessionID, childID string, event json.RawMessage, at time.Time) GameEvent {
	return GameEvent{Header: newHeader(TypeGameEvent, at), SessionID: sessionID, ChildID: childID, Event: event}
}

// CaretakerControl wraps a control payload sent from a caretaker to the child.
type CaretakerControl struct {
	Header
	Control json.RawMessage `json:"control"`
}

func NewCaretakerControl(control json.RawMessage, at time.Time) CaretakerControl {
	return CaretakerControl{Header: newHeader(TypeCaretakerControl, at), Control: control}
}

// SurpriseTrigger asks the child to play a surprise element.
type SurpriseTrigger struct {
	Header
	SurpriseType string `json:"surprise_type"`
}

func NewSurpriseTrigger(surpriseType string, at time.Time) SurpriseTrigger {
	return SurpriseTrigger{Header: newHeader(TypeSurpriseTrigger, at), SurpriseType: surpriseType}
}

// SurpriseTriggered tells caretakers a surprise was sent to the child.
type SurpriseTriggered struct {
	Header
	ChildID      string `json:"child_id"`
	SurpriseType string `json:"surprise_type"`
}

func NewSurpriseTriggered(childID, surpriseType string, at time.Time) SurpriseTriggered {
	return SurpriseTriggered{Header: newHeader(TypeSurpriseTriggered, at), ChildID: childID, SurpriseType: surpriseType}
}

// GamePause asks the child to pause for duration seconds.
type GamePause struct {
	Header
	Duration int `json:"duration"`
}

func NewGamePause(duration int, at time.Time) GamePause {
	return GamePause{Header: newHeader(TypeGamePause, at), Duration: duration}
}

// GamePaused tells caretakers the child was paused.
type GamePaused struct {
	Header
	ChildID  string `json:"child_id"`
	Duration int    `json:"duration"`
}

func NewGamePaused(childID string, duration int, at time.Time) GamePaused {
	return GamePaused{Header: newHeader(TypeGamePaused, at), ChildID: childID, Duration: duration}
}

// Encode serializes an outbound message.
func Encode(m Outbound) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}
