package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/recorder"
)

const tracerName = "github.com/ThilakNarasimhamurthy/CogniShape/internal/session"

// Notifier delivers coordinator messages to the connections of a child.
type Notifier interface {
	SendToChild(subjectID string, msg protocol.Outbound)
	BroadcastToCaretakers(subjectID string, msg protocol.Outbound)
}

// Archive persists completed sessions.
type Archive interface {
	Save(ctx context.Context, summary *model.SessionSummary) error
}

// Config holds configuration for the session manager.
type Config struct {
	// Archive receives every completed session. Optional.
	Archive Archive

	// RecordDir enables per-session recordings when set.
	RecordDir string

	Now   func() time.Time
	NewID func() string
}

// Manager runs the session lifecycle: start, event logging, end and reaping.
type Manager struct {
	store     *Store
	notifier  Notifier
	archive   Archive
	recordDir string
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string

	recMu     sync.Mutex
	recorders map[string]*recorder.Recorder
}

// NewManager creates a new session manager.
func NewManager(notifier Notifier, logger zerolog.Logger, config Config) *Manager {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = func() string { return uuid.New().String() }
	}

	return &Manager{
		store:     NewStore(),
		notifier:  notifier,
		archive:   config.Archive,
		recordDir: config.RecordDir,
		logger:    logger.With().Str("component", "session_manager").Logger(),
		tracer:    otel.Tracer(tracerName),
		now:       config.Now,
		newID:     config.NewID,
		recorders: make(map[string]*recorder.Recorder),
	}
}

// Start creates an active session for the child and notifies both sides.
// If the child already has an active session, that session's id is returned
// and only the child is re-sent its session_start.
func (m *Manager) Start(ctx context.Context, childID string, config json.RawMessage) (string, error) {
	_, span := m.tracer.Start(ctx, "session.Start", trace.WithAttributes(attribute.String("child_id", childID)))
	defer span.End()

	if childID == "" {
		return "", model.ErrSubjectRequired
	}

	now := m.now().UTC()
	sess := &model.Session{
		ID:        m.newID(),
		ChildID:   childID,
		Config:    config,
		Status:    model.SessionStatusActive,
		StartedAt: now,
		Events:    []model.Event{},
	}

	if existing, inserted := m.store.InsertActive(sess); !inserted {
		span.SetAttributes(attribute.Bool("coalesced", true), attribute.String("session_id", existing.ID))
		m.logger.Info().Str("child_id", childID).Str("session_id", existing.ID).
			Msg("Child already has an active session, resending start")
		m.notifier.SendToChild(childID, protocol.NewSessionStart(existing.ID, existing.Config, now))
		return existing.ID, nil
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	m.startRecording(sess)

	m.notifier.SendToChild(childID, protocol.NewSessionStart(sess.ID, config, now))
	m.notifier.BroadcastToCaretakers(childID, protocol.NewSessionStarted(sess.ID, childID, config, now))

	m.logger.Info().Str("child_id", childID).Str("session_id", sess.ID).Msg("Session started")
	return sess.ID, nil
}

// End completes an active session, stores the summary and notifies both
// sides. Unknown and already completed sessions are logged and ignored.
func (m *Manager) End(ctx context.Context, sessionID string, summary json.RawMessage) {
	ctx, span := m.tracer.Start(ctx, "session.End", trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	now := m.now().UTC()
	sess, err := m.store.Complete(sessionID, summary, now, func(s *model.Session) {
		m.notifier.SendToChild(s.ChildID, protocol.NewSessionEnd(s.ID, summary, now))
		m.notifier.BroadcastToCaretakers(s.ChildID, protocol.NewSessionEnded(s.ID, s.ChildID, summary, now))
	})
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		m.logger.Warn().Str("session_id", sessionID).Msg("Session not found")
		return
	case errors.Is(err, model.ErrSessionCompleted):
		m.logger.Warn().Str("session_id", sessionID).Msg("Session already completed")
		return
	}

	m.finishRecording(sess.ID, now, summary)
	m.archiveSession(ctx, sess)

	m.logger.Info().Str("child_id", sess.ChildID).Str("session_id", sess.ID).
		Int("events", len(sess.Events)).Msg("Session ended")
}

// LogEvent appends an event to the session and echoes it to the child's
// caretakers. Events for unknown sessions are dropped.
func (m *Manager) LogEvent(ctx context.Context, sessionID string, event json.RawMessage) {
	m.LogSubjectEvent(ctx, "", sessionID, event)
}

// LogSubjectEvent is LogEvent for an event reported over a connection of
// childID; events addressed to another child's session are dropped.
func (m *Manager) LogSubjectEvent(ctx context.Context, childID, sessionID string, event json.RawMessage) {
	err := m.store.AppendEvent(sessionID, childID, event, m.now().UTC(), func(s *model.Session, ev model.Event) {
		m.notifier.BroadcastToCaretakers(s.ChildID, protocol.NewGameEvent(s.ID, s.ChildID, ev.Payload, ev.ReceivedAt))
		m.recordEvent(s.ID, ev)
	})
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		m.logger.Warn().Str("session_id", sessionID).Msg("Trying to log event for non-existent session")
	case errors.Is(err, model.ErrSubjectMismatch):
		m.logger.Warn().Str("session_id", sessionID).Str("child_id", childID).
			Msg("Dropping event for a session of another child")
	}
}

// Get returns a copy of the session record.
func (m *Manager) Get(id string) (*model.Session, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return sess, nil
}

// Active returns all active sessions, oldest first.
func (m *Manager) Active() []*model.Session {
	return m.store.List(model.SessionStatusActive)
}

// List returns sessions with the given status; an empty status lists all.
func (m *Manager) List(status model.SessionStatus) []*model.Session {
	return m.store.List(status)
}

func (m *Manager) archiveSession(ctx context.Context, sess *model.Session) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Save(ctx, model.NewSessionSummary(sess)); err != nil {
		m.logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to archive session")
	}
}

func (m *Manager) startRecording(sess *model.Session) {
	if m.recordDir == "" {
		return
	}
	rec, err := recorder.Create(m.recordDir, sess.ID, sess.ChildID, sess.StartedAt)
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to start recording")
		return
	}
	m.recMu.Lock()
	m.recorders[sess.ID] = rec
	m.recMu.Unlock()
}

func (m *Manager) recordEvent(sessionID string, ev model.Event) {
	m.recMu.Lock()
	rec := m.recorders[sessionID]
	m.recMu.Unlock()
	if rec == nil {
		return
	}
	if err := rec.WriteEvent(ev.ReceivedAt, ev.Payload); err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to record event")
	}
}

func (m *Manager) finishRecording(sessionID string, at time.Time, summary json.RawMessage) {
	m.recMu.Lock()
	rec := m.recorders[sessionID]
	delete(m.recorders, sessionID)
	m.recMu.Unlock()
	if rec == nil {
		return
	}
	if err := rec.WriteEnd(at, summary); err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to record session end")
	}
	if err := rec.Close(); err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to close recording")
	}
}

// Close closes any open recordings.
func (m *Manager) Close() error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	var firstErr error
	for id, rec := range m.recorders {
		if err := rec.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.recorders, id)
	}
	return firstErr
}
