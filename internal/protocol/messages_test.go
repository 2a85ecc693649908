package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
)

func decode(t *testing.T, m Outbound) map[string]any {
	t.Helper()
	data, err := Encode(m)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestOutboundShapes(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	cfg := json.RawMessage(`{"difficulty":2}`)

	t.Run("timestamp is UTC ISO-8601", func(t *testing.T) {
		out := decode(t, NewConnectionConfirmed("c1", RoleChild, at))
		assert.Equal(t, "2026-03-01T11:00:00Z", out["timestamp"])
		assert.Equal(t, "connection_confirmed", out["type"])
		assert.Equal(t, "c1", out["child_id"])
		assert.Equal(t, "child", out["role"])
	})

	t.Run("session start carries config", func(t *testing.T) {
		out := decode(t, NewSessionStart("s1", cfg, at))
		assert.Equal(t, "session_start", out["type"])
		assert.Equal(t, "s1", out["session_id"])
		assert.Equal(t, map[string]any{"difficulty": float64(2)}, out["config"])
	})

	t.Run("session started names child", func(t *testing.T) {
		out := decode(t, NewSessionStarted("s1", "c1", cfg, at))
		assert.Equal(t, "session_started", out["type"])
		assert.Equal(t, "c1", out["child_id"])
	})

	t.Run("nil summary encodes as null", func(t *testing.T) {
		out := decode(t, NewSessionEnd("s1", nil, at))
		v, ok := out["summary"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("auxiliary signals", func(t *testing.T) {
		assert.Equal(t, "color_change", decode(t, NewSurpriseTrigger("color_change", at))["surprise_type"])
		triggered := decode(t, NewSurpriseTriggered("c1", "color_change", at))
		assert.Equal(t, "c1", triggered["child_id"])
		assert.Equal(t, float64(30), decode(t, NewGamePause(30, at))["duration"])
		paused := decode(t, NewGamePaused("c1", 30, at))
		assert.Equal(t, "game_paused", paused["type"])
		assert.Equal(t, float64(30), paused["duration"])
	})

	t.Run("type accessor matches tag", func(t *testing.T) {
		var m Outbound = NewGameEvent("s1", "c1", json.RawMessage(`{}`), at)
		assert.Equal(t, TypeGameEvent, m.MessageType())
		assert.Equal(t, TypeCaretakerControl, NewCaretakerControl(nil, at).MessageType())
		assert.Equal(t, TypeSessionEnded, NewSessionEnded("s", "c", nil, at).MessageType())
	})
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("caretaker")
	require.NoError(t, err)
	assert.Equal(t, RoleCaretaker, role)

	_, err = ParseRole("doctor")
	assert.ErrorIs(t, err, model.ErrInvalidRole)
}

func TestParseInbound(t *testing.T) {
	t.Run("game event with nested event", func(t *testing.T) {
		msg, err := ParseInbound([]byte(`{"type":"game_event","session_id":"s1","event":{"kind":"tap"}}`))
		require.NoError(t, err)
		assert.Equal(t, TypeGameEvent, msg.Type)
		assert.Equal(t, "s1", msg.SessionID)
		assert.JSONEq(t, `{"kind":"tap"}`, string(msg.EventPayload()))
	})

	t.Run("flat event falls back to whole frame", func(t *testing.T) {
		frame := `{"type":"game_event","session_id":"s1","kind":"tap"}`
		msg, err := ParseInbound([]byte(frame))
		require.NoError(t, err)
		assert.JSONEq(t, frame, string(msg.EventPayload()))
	})

	t.Run("unknown fields survive in raw", func(t *testing.T) {
		frame := `{"type":"game_paused","extra":{"a":[1,2]}}`
		msg, err := ParseInbound([]byte(frame))
		require.NoError(t, err)
		assert.Equal(t, frame, string(msg.Raw))
	})

	t.Run("non-string session id is absent", func(t *testing.T) {
		msg, err := ParseInbound([]byte(`{"type":"game_event","session_id":42}`))
		require.NoError(t, err)
		assert.Empty(t, msg.SessionID)
	})

	t.Run("malformed input", func(t *testing.T) {
		for _, frame := range []string{`not json`, `[1,2]`, `null`, `"game_event"`} {
			_, err := ParseInbound([]byte(frame))
			assert.ErrorIs(t, err, ErrMalformed, frame)
		}
	})

	t.Run("missing type", func(t *testing.T) {
		for _, frame := range []string{`{}`, `{"type":""}`, `{"type":7}`} {
			_, err := ParseInbound([]byte(frame))
			assert.ErrorIs(t, err, ErrMissingType, frame)
		}
	})
}

func TestIsRelay(t *testing.T) {
	for _, typ := range []MessageType{TypeSessionStarted, TypeGamePaused, TypeGameResumed, TypeSessionEnded} {
		assert.True(t, IsRelay(typ), typ)
	}
	for _, typ := range []MessageType{TypeGameEvent, TypeControlCommand, "ping"} {
		assert.False(t, IsRelay(typ), typ)
	}
}
