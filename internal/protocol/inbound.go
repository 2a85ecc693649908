package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when an inbound frame is not a JSON object.
	ErrMalformed = errors.New("malformed message")

	// ErrMissingType is returned when an inbound object has no usable "type".
	ErrMissingType = errors.New("message type is required")
)

// Inbound is a message received from an endpoint. Only the fields the
// coordinator routes on are decoded; Raw keeps the frame untouched so it can
// be relayed verbatim, unknown fields included.
type Inbound struct {
	Type      MessageType
	SessionID string
	Event     json.RawMessage
	Raw       json.RawMessage
}

// ParseInbound decodes an inbound frame.
func ParseInbound(data []byte) (*Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrMalformed
	}

	var msgType string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &msgType); err != nil {
			return nil, fmt.Errorf("%w: type is not a string", ErrMissingType)
		}
	}
	if msgType == "" {
		return nil, ErrMissingType
	}

	msg := &Inbound{
		Type:  MessageType(msgType),
		Event: fields["event"],
		Raw:   json.RawMessage(append([]byte(nil), data...)),
	}
	if raw, ok := fields["session_id"]; ok {
		// A non-string session id is treated as absent.
		_ = json.Unmarshal(raw, &msg.SessionID)
	}
	return msg, nil
}

// EventPayload returns the event carried by a game_event message. Senders
// that put the event fields at the top level get the whole frame.
func (m *Inbound) EventPayload() json.RawMessage {
	if len(m.Event) > 0 && string(m.Event) != "null" {
		return m.Event
	}
	return m.Raw
}

// IsRelay reports whether t is a session-state echo that is re-broadcast to
// caretakers unchanged.
func IsRelay(t MessageType) bool {
	switch t {
	case TypeSessionStarted, TypeGamePaused, TypeGameResumed, TypeSessionEnded:
		return true
	}
	return false
}
