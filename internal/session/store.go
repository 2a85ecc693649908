package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
)

// entry guards one session record. Mutations of different sessions never
// share a lock; the store's own lock covers only the index maps.
type entry struct {
	mu      sync.Mutex
	session *model.Session
	gone    bool
}

// Store holds active and recently completed session records.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	// active maps a child id to its active session id.
	active map[string]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*entry),
		active:   make(map[string]string),
	}
}

// InsertActive stores sess unless its child already has an active session,
// in which case a copy of that session is returned and nothing is stored.
func (s *Store) InsertActive(sess *model.Session) (existing *model.Session, inserted bool) {
	s.mu.Lock()
	if id, ok := s.active[sess.ChildID]; ok {
		e := s.sessions[id]
		s.mu.Unlock()
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.session.Clone(), false
	}
	s.sessions[sess.ID] = &entry{session: sess}
	s.active[sess.ChildID] = sess.ID
	s.mu.Unlock()
	return nil, true
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Get returns a copy of the session record.
func (s *Store) Get(id string) (*model.Session, bool) {
	e := s.lookup(id)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return nil, false
	}
	return e.session.Clone(), true
}

// AppendEvent stamps payload with at and appends it to the session's event
// log, then runs notify with the record and the new event while still holding
// the session lock, so observers see events in log order. A stamp earlier than
// the previous event's is raised to it. If childID is not empty the session
// must belong to that child.
func (s *Store) AppendEvent(id, childID string, payload json.RawMessage, at time.Time, notify func(sess *model.Session, ev model.Event)) error {
	e := s.lookup(id)
	if e == nil {
		return model.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return model.ErrSessionNotFound
	}
	if childID != "" && e.session.ChildID != childID {
		return model.ErrSubjectMismatch
	}

	if n := len(e.session.Events); n > 0 && at.Before(e.session.Events[n-1].ReceivedAt) {
		at = e.session.Events[n-1].ReceivedAt
	}
	ev := model.Event{Payload: payload, ReceivedAt: at}
	e.session.Events = append(e.session.Events, ev)
	if notify != nil {
		notify(e.session, ev)
	}
	return nil
}

// Complete moves an active session to completed, stamping endedAt and
// summary, then runs notify under the session lock. It returns
// ErrSessionNotFound or ErrSessionCompleted without changing anything when the
// transition is not possible.
func (s *Store) Complete(id string, summary json.RawMessage, endedAt time.Time, notify func(sess *model.Session)) (*model.Session, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, model.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return nil, model.ErrSessionNotFound
	}
	if e.session.IsCompleted() {
		return nil, model.ErrSessionCompleted
	}

	e.session.Status = model.SessionStatusCompleted
	e.session.EndedAt = &endedAt
	e.session.Summary = summary

	s.mu.Lock()
	if s.active[e.session.ChildID] == id {
		delete(s.active, e.session.ChildID)
	}
	s.mu.Unlock()

	if notify != nil {
		notify(e.session)
	}
	return e.session.Clone(), nil
}

// List returns copies of all sessions with the given status, oldest first.
// An empty status lists every session.
func (s *Store) List(status model.SessionStatus) []*model.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.gone && (status == "" || e.session.Status == status) {
			out = append(out, e.session.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Reap deletes completed sessions that ended before cutoff and returns their
// ids. Active sessions are never reaped.
func (s *Store) Reap(cutoff time.Time) []string {
	s.mu.RLock()
	candidates := make(map[string]*entry, len(s.sessions))
	for id, e := range s.sessions {
		candidates[id] = e
	}
	s.mu.RUnlock()

	var removed []string
	for id, e := range candidates {
		e.mu.Lock()
		if !e.gone && e.session.IsCompleted() && e.session.EndedAt != nil && e.session.EndedAt.Before(cutoff) {
			e.gone = true
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
			removed = append(removed, id)
		}
		e.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
