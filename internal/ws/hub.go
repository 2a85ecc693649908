package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/buffer"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
)

var (
	// ErrClientClosed is returned when sending to a client that has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrBufferFull is returned when a client's send queue is full. The client
	// is closed as a side effect.
	ErrBufferFull = errors.New("send buffer full")
)

// DefaultSendBuffer is the default capacity of a client's send queue.
const DefaultSendBuffer = 256

// FeedSize is how many recent caretaker frames each child slot keeps.
const FeedSize = 50

// Channel is a live bidirectional connection the registry delivers to.
// Send must not block.
type Channel interface {
	Send(data []byte) error
}

// Client is a WebSocket connection joined under a child id. Outgoing frames go
// through a bounded queue drained by a single write pump.
type Client struct {
	conn      *websocket.Conn
	subjectID string
	role      protocol.Role
	send      chan []byte
	mu        sync.Mutex
	closed    bool
}

// NewClient creates a new WebSocket client.
func NewClient(conn *websocket.Conn, subjectID string, role protocol.Role, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		conn:      conn,
		subjectID: subjectID,
		role:      role,
		send:      make(chan []byte, bufferSize),
	}
}

// Send queues a frame for the write pump.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// A client that cannot keep up is treated as disconnected.
		c.closeLocked()
		return ErrBufferFull
	}
}

// Close closes the client's send queue. The write pump then closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SubjectID returns the child id the client joined under.
func (c *Client) SubjectID() string {
	return c.subjectID
}

// Role returns the role the client joined as.
func (c *Client) Role() protocol.Role {
	return c.role
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub is the connection slot of one child: at most one child channel and any
// number of caretaker channels. All access goes through mu, so operations on
// one child are serialized while different children never contend.
type Hub struct {
	subjectID  string
	mu         sync.Mutex
	child      Channel
	caretakers []Channel
	removed    bool
	feed       *buffer.RingBuffer
}

func newHub(subjectID string) *Hub {
	return &Hub{subjectID: subjectID, feed: buffer.NewRingBuffer(FeedSize)}
}

// removeLocked drops ch from the slot and reports whether it was present.
func (h *Hub) removeLocked(ch Channel) bool {
	found := false
	if h.child == ch {
		h.child = nil
		found = true
	}
	kept := h.caretakers[:0]
	for _, c := range h.caretakers {
		if c == ch {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(h.caretakers); i++ {
		h.caretakers[i] = nil
	}
	h.caretakers = kept
	return found
}

func (h *Hub) emptyLocked() bool {
	return h.child == nil && len(h.caretakers) == 0
}

// HubManager is the connection registry: one Hub per child id, created on the
// first join and deleted as soon as it becomes empty. mu guards only the map.
type HubManager struct {
	hubs   map[string]*Hub
	mu     sync.RWMutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewHubManager creates a new HubManager.
func NewHubManager(logger zerolog.Logger) *HubManager {
	return &HubManager{
		hubs:   make(map[string]*Hub),
		logger: logger.With().Str("component", "hub_manager").Logger(),
		now:    time.Now,
	}
}

func (m *HubManager) getOrCreate(subjectID string) *Hub {
	m.mu.RLock()
	hub, ok := m.hubs[subjectID]
	m.mu.RUnlock()
	if ok {
		return hub
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if hub, ok := m.hubs[subjectID]; ok {
		return hub
	}
	hub = newHub(subjectID)
	m.hubs[subjectID] = hub
	return hub
}

// get returns the hub for the child, or nil if not found.
func (m *HubManager) get(subjectID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[subjectID]
}

// forget deletes hub from the map if it is still the registered one.
func (m *HubManager) forget(hub *Hub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hubs[hub.subjectID] == hub {
		delete(m.hubs, hub.subjectID)
	}
}

// settleLocked marks an empty hub as removed. The caller must call forget
// after releasing hub.mu when it returns true.
func (m *HubManager) settleLocked(hub *Hub) bool {
	if !hub.emptyLocked() {
		return false
	}
	hub.removed = true
	m.logger.Info().Str("child_id", hub.subjectID).Msg("All connections removed")
	return true
}

// Join registers ch under the child's slot. A child join replaces any previous
// child channel. The channel is sent a connection_confirmed message.
func (m *HubManager) Join(subjectID string, ch Channel, role protocol.Role) {
	for {
		hub := m.getOrCreate(subjectID)
		hub.mu.Lock()
		if hub.removed {
			hub.mu.Unlock()
			m.forget(hub)
			continue
		}

		switch role {
		case protocol.RoleChild:
			if hub.child != nil && hub.child != ch {
				m.logger.Info().Str("child_id", subjectID).Msg("Replacing child connection")
			}
			hub.child = ch
		default:
			hub.caretakers = append(hub.caretakers, ch)
		}
		m.logger.Info().Str("child_id", subjectID).Str("role", string(role)).Msg("Connection added")

		data, err := protocol.Encode(protocol.NewConnectionConfirmed(subjectID, role, m.now()))
		if err == nil {
			err = ch.Send(data)
		}
		if err != nil {
			m.logger.Error().Err(err).Str("child_id", subjectID).Str("role", string(role)).
				Msg("Failed to confirm connection, dropping it")
			hub.removeLocked(ch)
		}

		drop := m.settleLocked(hub)
		hub.mu.Unlock()
		if drop {
			m.forget(hub)
		}
		return
	}
}

// Leave removes ch from the child's slot. Unknown channels are ignored.
func (m *HubManager) Leave(subjectID string, ch Channel) {
	hub := m.get(subjectID)
	if hub == nil {
		return
	}

	hub.mu.Lock()
	if hub.removed {
		hub.mu.Unlock()
		return
	}
	if hub.removeLocked(ch) {
		m.logger.Info().Str("child_id", subjectID).Msg("Connection removed")
	}
	drop := m.settleLocked(hub)
	hub.mu.Unlock()
	if drop {
		m.forget(hub)
	}
}

// BroadcastToCaretakers sends msg to every caretaker of the child. A caretaker
// whose send fails is logged and pruned; the others still receive the message.
func (m *HubManager) BroadcastToCaretakers(subjectID string, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error().Err(err).Str("child_id", subjectID).Msg("Failed to encode caretaker message")
		return
	}
	m.BroadcastRawToCaretakers(subjectID, data)
}

// BroadcastRawToCaretakers is BroadcastToCaretakers for an already encoded frame.
func (m *HubManager) BroadcastRawToCaretakers(subjectID string, data []byte) {
	hub := m.get(subjectID)
	if hub == nil {
		return
	}

	hub.mu.Lock()
	if hub.removed {
		hub.mu.Unlock()
		return
	}
	hub.feed.Push(data)
	var failed []Channel
	for _, ch := range hub.caretakers {
		if err := ch.Send(data); err != nil {
			m.logger.Error().Err(err).Str("child_id", subjectID).Msg("Failed to send message to caretaker")
			failed = append(failed, ch)
		}
	}
	for _, ch := range failed {
		hub.removeLocked(ch)
	}
	drop := m.settleLocked(hub)
	hub.mu.Unlock()
	if drop {
		m.forget(hub)
	}
}

// SendToChild delivers msg to the child channel. A missing child is a logged
// no-op; a failed send clears the child channel.
func (m *HubManager) SendToChild(subjectID string, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error().Err(err).Str("child_id", subjectID).Msg("Failed to encode child message")
		return
	}
	m.SendRawToChild(subjectID, data)
}

// SendRawToChild is SendToChild for an already encoded frame.
func (m *HubManager) SendRawToChild(subjectID string, data []byte) {
	hub := m.get(subjectID)
	if hub == nil {
		m.logger.Warn().Str("child_id", subjectID).Msg("No connection found for child")
		return
	}

	hub.mu.Lock()
	if hub.removed || hub.child == nil {
		hub.mu.Unlock()
		m.logger.Warn().Str("child_id", subjectID).Msg("No child connection found")
		return
	}
	if err := hub.child.Send(data); err != nil {
		m.logger.Error().Err(err).Str("child_id", subjectID).Msg("Failed to send message to child")
		hub.child = nil
	}
	drop := m.settleLocked(hub)
	hub.mu.Unlock()
	if drop {
		m.forget(hub)
	}
}

// Child returns the child channel registered for the child id, or nil.
func (m *HubManager) Child(subjectID string) Channel {
	hub := m.get(subjectID)
	if hub == nil {
		return nil
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return hub.child
}

// Caretakers returns a snapshot of the caretaker channels for the child id.
func (m *HubManager) Caretakers(subjectID string) []Channel {
	hub := m.get(subjectID)
	if hub == nil {
		return nil
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	out := make([]Channel, len(hub.caretakers))
	copy(out, hub.caretakers)
	return out
}

// Feed returns the most recent frames broadcast to the child's caretakers,
// oldest first. The feed lives as long as the child's slot.
func (m *HubManager) Feed(subjectID string) [][]byte {
	hub := m.get(subjectID)
	if hub == nil {
		return nil
	}
	return hub.feed.Snapshot()
}

// HasSubject reports whether a slot exists for the child id.
func (m *HubManager) HasSubject(subjectID string) bool {
	return m.get(subjectID) != nil
}

// SubjectCount returns the number of children with at least one connection.
func (m *HubManager) SubjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// ConnectionCount returns the number of registered channels.
func (m *HubManager) ConnectionCount() int {
	m.mu.RLock()
	hubs := make([]*Hub, 0, len(m.hubs))
	for _, hub := range m.hubs {
		hubs = append(hubs, hub)
	}
	m.mu.RUnlock()

	n := 0
	for _, hub := range hubs {
		hub.mu.Lock()
		if hub.child != nil {
			n++
		}
		n += len(hub.caretakers)
		hub.mu.Unlock()
	}
	return n
}

// Close closes every registered channel that supports it and empties the registry.
func (m *HubManager) Close() {
	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, hub := range hubs {
		hub.mu.Lock()
		channels := append([]Channel(nil), hub.caretakers...)
		if hub.child != nil {
			channels = append(channels, hub.child)
		}
		hub.child = nil
		hub.caretakers = nil
		hub.removed = true
		hub.mu.Unlock()

		for _, ch := range channels {
			if closer, ok := ch.(interface{ Close() }); ok {
				closer.Close()
			}
		}
	}
}
