package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
)

type delivery struct {
	subjectID string
	toChild   bool
	msg       protocol.Outbound
}

// fakeNotifier records every message handed to it.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []delivery
}

func (n *fakeNotifier) SendToChild(subjectID string, msg protocol.Outbound) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, delivery{subjectID: subjectID, toChild: true, msg: msg})
}

func (n *fakeNotifier) BroadcastToCaretakers(subjectID string, msg protocol.Outbound) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, delivery{subjectID: subjectID, msg: msg})
}

func (n *fakeNotifier) toChild() []protocol.Outbound {
	return n.filter(true)
}

func (n *fakeNotifier) toCaretakers() []protocol.Outbound {
	return n.filter(false)
}

func (n *fakeNotifier) filter(child bool) []protocol.Outbound {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []protocol.Outbound
	for _, d := range n.sent {
		if d.toChild == child {
			out = append(out, d.msg)
		}
	}
	return out
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

// fakeArchive records saved summaries and can be made to fail.
type fakeArchive struct {
	mu    sync.Mutex
	saved []*model.SessionSummary
	err   error
}

func (a *fakeArchive) Save(_ context.Context, s *model.SessionSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, s)
	return nil
}

func (a *fakeArchive) ListSummaries(_ context.Context, childID string, limit int) ([]model.SessionSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	var out []model.SessionSummary
	for i := len(a.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if a.saved[i].ChildID == childID {
			out = append(out, *a.saved[i])
		}
	}
	return out, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type testEnv struct {
	manager  *Manager
	notifier *fakeNotifier
	clock    *fakeClock
	archive  *fakeArchive
}

func newTestEnv(cfg Config) *testEnv {
	env := &testEnv{
		notifier: &fakeNotifier{},
		clock:    newFakeClock(),
		archive:  &fakeArchive{},
	}
	if cfg.Archive == nil {
		cfg.Archive = env.archive
	}
	cfg.Now = env.clock.Now
	cfg.NewID = sequentialIDs()
	env.manager = NewManager(env.notifier, testLogger(), cfg)
	return env
}
