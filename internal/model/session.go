package model

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the status of a monitored session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// Event is a single game event received during a session, stamped with the
// time the coordinator received it.
type Event struct {
	Payload    json.RawMessage `json:"event"`
	ReceivedAt time.Time       `json:"timestamp"`
}

// Session is the in-memory record of a live or recently completed session.
type Session struct {
	ID        string          `json:"session_id"`
	ChildID   string          `json:"child_id"`
	Config    json.RawMessage `json:"config"`
	Status    SessionStatus   `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Events    []Event         `json:"events"`
	Summary   json.RawMessage `json:"summary,omitempty"`
}

// IsCompleted reports whether the session reached its terminal status.
func (s *Session) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// Duration returns how long the session ran, or has been running so far.
func (s *Session) Duration() time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	c.Events = make([]Event, len(s.Events))
	copy(c.Events, s.Events)
	return &c
}

// SessionSummary is the archived form of a completed session, as kept by the
// persistence layer and fed back into configuration generation.
type SessionSummary struct {
	SessionID  string          `json:"session_id"`
	ChildID    string          `json:"child_id"`
	Config     json.RawMessage `json:"config,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	EventCount int             `json:"event_count"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
}

// NewSessionSummary builds the archive form of a completed session.
func NewSessionSummary(s *Session) *SessionSummary {
	summary := &SessionSummary{
		SessionID:  s.ID,
		ChildID:    s.ChildID,
		Config:     s.Config,
		Summary:    s.Summary,
		EventCount: len(s.Events),
		StartedAt:  s.StartedAt,
	}
	if s.EndedAt != nil {
		summary.EndedAt = *s.EndedAt
	}
	return summary
}

// StartSessionRequest represents a request to start a session for a child.
type StartSessionRequest struct {
	ChildID string          `json:"-"`
	Profile json.RawMessage `json:"profile"`
	Config  json.RawMessage `json:"config"`
}

// Validate validates the start session request.
func (r *StartSessionRequest) Validate() error {
	if r.ChildID == "" {
		return ErrSubjectRequired
	}
	if len(r.Config) > 0 && !json.Valid(r.Config) {
		return ErrInvalidPayload
	}
	return nil
}
