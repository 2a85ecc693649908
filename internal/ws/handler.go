package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// EventLogger records game events reported over a connection.
type EventLogger interface {
	LogSubjectEvent(ctx context.Context, subjectID, sessionID string, event json.RawMessage)
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// SendBuffer is the per-client send queue capacity.
	SendBuffer int

	// CheckOrigin overrides the upgrader's origin check. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// Handler terminates WebSocket connections for children and caretakers and
// routes their inbound messages.
type Handler struct {
	hubs       *HubManager
	events     EventLogger
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hubs *HubManager, events EventLogger, logger zerolog.Logger, cfg HandlerConfig) *Handler {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hubs:   hubs,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sendBuffer: cfg.SendBuffer,
		logger:     logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleConnection upgrades the request and joins the connection under the
// child id with the given role. The connection leaves the registry when its
// read side fails.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, subjectID string, role protocol.Role) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, subjectID, role, h.sendBuffer)

	go h.writePump(client)
	h.hubs.Join(subjectID, client, role)
	go h.readPump(client)

	return nil
}

// Dispatch routes one inbound frame received from a connection of the child.
// Nothing here closes the connection: bad or unknown frames are dropped.
func (h *Handler) Dispatch(ctx context.Context, subjectID string, data []byte) {
	msg, err := protocol.ParseInbound(data)
	if err != nil {
		h.logger.Warn().Err(err).Str("child_id", subjectID).Msg("Dropping inbound message")
		return
	}

	switch {
	case msg.Type == protocol.TypeGameEvent:
		if msg.SessionID == "" {
			h.logger.Warn().Str("child_id", subjectID).Msg("Dropping game event without session id")
			return
		}
		h.events.LogSubjectEvent(ctx, subjectID, msg.SessionID, msg.EventPayload())
	case msg.Type == protocol.TypeControlCommand:
		h.hubs.SendRawToChild(subjectID, msg.Raw)
	case protocol.IsRelay(msg.Type):
		h.hubs.BroadcastRawToCaretakers(subjectID, msg.Raw)
	default:
		h.logger.Warn().Str("child_id", subjectID).Str("type", string(msg.Type)).Msg("Dropping message of unknown type")
	}
}

// readPump pumps messages from the WebSocket connection to Dispatch.
func (h *Handler) readPump(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.hubs.Leave(client.SubjectID(), client)
		client.Close()
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("child_id", client.SubjectID()).Msg("WebSocket read error")
			}
			return
		}
		h.Dispatch(ctx, client.SubjectID(), message)
	}
}

// writePump is the only writer to the connection. It exits when the send
// queue is closed or a write fails; a failed write closes the socket, which
// ends the read pump and with it the registration.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON document per frame.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
