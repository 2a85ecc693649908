package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/auth"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/db"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/gameconfig"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/repository"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/session"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/ws"
)

// recordingChannel collects the frames delivered to it.
type recordingChannel struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (c *recordingChannel) Send(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, m)
	return nil
}

func (c *recordingChannel) last() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

type testServer struct {
	router  *gin.Engine
	service *ws.Service
	repo    *repository.SessionRepository
}

func newTestServer(t *testing.T, authorizer auth.Authorizer) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(io.Discard)

	conn, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	repo := repository.NewSessionRepository(conn)

	svc := ws.NewService(logger, session.Config{Archive: repo}, ws.HandlerConfig{})
	t.Cleanup(func() { svc.Close() })
	planner := session.NewPlanner(gameconfig.StaticGenerator{}, repo, logger)

	r := gin.New()
	NewHealthHandler(svc.HubManager()).RegisterRoutes(r)
	NewWebSocketHandler(svc.Handler(), authorizer, logger).RegisterRoutes(r)
	api := r.Group("/api")
	NewSessionHandler(svc.Sessions(), planner, repo).RegisterRoutes(api)
	NewControlHandler(svc.Sessions()).RegisterRoutes(api)
	NewFeedHandler(svc.HubManager()).RegisterRoutes(api)

	return &testServer{router: r, service: svc, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) joinChild(childID string) *recordingChannel {
	ch := &recordingChannel{}
	s.service.HubManager().Join(childID, ch, protocol.RoleChild)
	return ch
}

func (s *testServer) joinCaretaker(childID string) *recordingChannel {
	ch := &recordingChannel{}
	s.service.HubManager().Join(childID, ch, protocol.RoleCaretaker)
	return ch
}

func TestSessionHandler_Start(t *testing.T) {
	t.Run("plans a config when none is given", func(t *testing.T) {
		s := newTestServer(t, nil)
		child := s.joinChild("c1")
		caretaker := s.joinCaretaker("c1")

		w := s.do(t, http.MethodPost, "/api/children/c1/sessions", map[string]any{"profile": map[string]any{"age": 6}})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[StartSessionResponse](t, w)
		assert.NotEmpty(t, resp.SessionID)
		assert.JSONEq(t, string(gameconfig.Fallback()), string(resp.Config))

		assert.Equal(t, "session_start", child.last()["type"])
		assert.Equal(t, resp.SessionID, child.last()["session_id"])
		assert.Equal(t, "session_started", caretaker.last()["type"])
	})

	t.Run("empty body is accepted", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(t, http.MethodPost, "/api/children/c1/sessions", nil)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("explicit config and coalesced restart", func(t *testing.T) {
		s := newTestServer(t, nil)

		w := s.do(t, http.MethodPost, "/api/children/c1/sessions", `{"config":{"difficulty":4}}`)
		require.Equal(t, http.StatusCreated, w.Code)
		first := decode[StartSessionResponse](t, w)
		assert.JSONEq(t, `{"difficulty":4}`, string(first.Config))

		w = s.do(t, http.MethodPost, "/api/children/c1/sessions", `{"config":{"difficulty":1}}`)
		require.Equal(t, http.StatusCreated, w.Code)
		second := decode[StartSessionResponse](t, w)
		assert.Equal(t, first.SessionID, second.SessionID)
		assert.JSONEq(t, `{"difficulty":4}`, string(second.Config))
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(t, http.MethodPost, "/api/children/c1/sessions", `{"config":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode[ErrorResponse](t, w).Error.Code)
	})
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	child := s.joinChild("c1")
	caretaker := s.joinCaretaker("c1")

	w := s.do(t, http.MethodPost, "/api/children/c1/sessions", `{"config":{"difficulty":2}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[StartSessionResponse](t, w).SessionID

	w = s.do(t, http.MethodPost, "/api/sessions/"+id+"/events", `{"event":{"kind":"tap"}}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "game_event", caretaker.last()["type"])

	w = s.do(t, http.MethodPost, "/api/sessions/"+id+"/events", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[SessionResponse](t, w)
	assert.Equal(t, "active", got.Status)
	require.Len(t, got.Events, 1)
	assert.JSONEq(t, `{"kind":"tap"}`, string(got.Events[0].Payload))

	w = s.do(t, http.MethodGet, "/api/sessions?status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]SessionResponse](t, w), 1)

	w = s.do(t, http.MethodPost, "/api/sessions/"+id+"/end", `{"summary":{"result":"ok"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ended := decode[SessionResponse](t, w)
	assert.Equal(t, "completed", ended.Status)
	assert.NotEmpty(t, ended.EndedAt)
	assert.Equal(t, "session_end", child.last()["type"])
	assert.Equal(t, "session_ended", caretaker.last()["type"])

	w = s.do(t, http.MethodPost, "/api/sessions/"+id+"/end", `{"summary":{}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/sessions?status=active", nil)
	assert.Empty(t, decode[[]SessionResponse](t, w))
	w = s.do(t, http.MethodGet, "/api/sessions?status=completed", nil)
	assert.Len(t, decode[[]SessionResponse](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/children/c1/summaries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summaries := decode[[]model.SessionSummary](t, w)
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].SessionID)
	assert.Equal(t, 1, summaries[0].EventCount)
	assert.JSONEq(t, `{"result":"ok"}`, string(summaries[0].Summary))
}

func TestSessionHandler_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"get unknown", http.MethodGet, "/api/sessions/missing", nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"end unknown", http.MethodPost, "/api/sessions/missing/end", nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"event for unknown", http.MethodPost, "/api/sessions/missing/events", `{"event":{}}`, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"bad status filter", http.MethodGet, "/api/sessions?status=paused", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad summary limit", http.MethodGet, "/api/children/c1/summaries?limit=-1", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error.Code)
		})
	}
}

func TestControlHandler(t *testing.T) {
	s := newTestServer(t, nil)
	child := s.joinChild("c1")
	caretaker := s.joinCaretaker("c1")

	w := s.do(t, http.MethodPost, "/api/children/c1/control", `{"control":{"action":"slow"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "caretaker_control", child.last()["type"])
	assert.Equal(t, map[string]any{"action": "slow"}, child.last()["control"])

	w = s.do(t, http.MethodPost, "/api/children/c1/surprise", `{"surprise_type":"color_change"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "surprise_trigger", child.last()["type"])
	assert.Equal(t, "surprise_triggered", caretaker.last()["type"])

	w = s.do(t, http.MethodPost, "/api/children/c1/pause", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "game_pause", child.last()["type"])
	assert.Equal(t, float64(session.DefaultPauseSeconds), child.last()["duration"])
	assert.Equal(t, float64(session.DefaultPauseSeconds), caretaker.last()["duration"])

	w = s.do(t, http.MethodPost, "/api/children/c1/pause", `{"duration":10}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(10), child.last()["duration"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/children/c1/surprise", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/children/c1/control", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/children/c1/pause", `{"duration":-5}`).Code)

	// A child with no connections is not an error for the caller.
	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/children/nobody/surprise", `{"surprise_type":"x"}`).Code)
}

func TestFeedHandler(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/children/c1/feed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	s.joinCaretaker("c1")
	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/children/c1/surprise", `{"surprise_type":"color_change"}`).Code)
	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/children/c1/pause", `{"duration":5}`).Code)

	w = s.do(t, http.MethodGet, "/api/children/c1/feed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[[]map[string]any](t, w)
	require.Len(t, feed, 2)
	assert.Equal(t, "surprise_triggered", feed[0]["type"])
	assert.Equal(t, "game_paused", feed[1]["type"])
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, nil)
	s.joinChild("c1")
	s.joinCaretaker("c1")
	s.joinCaretaker("c2")

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["connections"])
	assert.Equal(t, float64(2), body["subjects"])
}

func TestWebSocketHandler_Attach(t *testing.T) {
	authorizer := auth.NewJWTAuthorizer("secret", "", nil)
	s := newTestServer(t, authorizer)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token, err := authorizer.Sign(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		ChildIDs:         []string{"c1"},
	})
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/ws/c1?type=child", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token for another child", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/ws/c2?type=child&token="+token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/ws/c1?type=observer&token="+token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("valid token joins", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/c1?type=child"
		header := http.Header{"Authorization": []string{"Bearer " + token}}
		conn, _, err := websocket.DefaultDialer.Dial(url, header)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var confirm map[string]any
		require.NoError(t, conn.ReadJSON(&confirm))
		assert.Equal(t, "connection_confirmed", confirm["type"])
		assert.Equal(t, "child", confirm["role"])
		assert.NotNil(t, s.service.HubManager().Child("c1"))
	})
}
