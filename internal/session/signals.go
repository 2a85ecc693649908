package session

import (
	"encoding/json"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
)

// DefaultPauseSeconds is the pause length used when none is given.
const DefaultPauseSeconds = 30

// SendCaretakerControl forwards a caretaker's control payload to the child.
func (m *Manager) SendCaretakerControl(childID string, control json.RawMessage) {
	m.notifier.SendToChild(childID, protocol.NewCaretakerControl(control, m.now()))
	m.logger.Info().Str("child_id", childID).RawJSON("control", nonEmptyJSON(control)).Msg("Caretaker control sent")
}

// TriggerSurprise asks the child to play a surprise element and tells the
// caretakers about it.
func (m *Manager) TriggerSurprise(childID, surpriseType string) {
	now := m.now()
	m.notifier.SendToChild(childID, protocol.NewSurpriseTrigger(surpriseType, now))
	m.notifier.BroadcastToCaretakers(childID, protocol.NewSurpriseTriggered(childID, surpriseType, now))
}

// Pause asks the child to pause for seconds and tells the caretakers.
func (m *Manager) Pause(childID string, seconds int) {
	if seconds <= 0 {
		seconds = DefaultPauseSeconds
	}
	now := m.now()
	m.notifier.SendToChild(childID, protocol.NewGamePause(seconds, now))
	m.notifier.BroadcastToCaretakers(childID, protocol.NewGamePaused(childID, seconds, now))
}

func nonEmptyJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
