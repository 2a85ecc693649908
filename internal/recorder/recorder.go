// Package recorder writes a JSON-lines recording of each session: a header
// line followed by one line per logged event and a final line with the
// summary.
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FormatVersion is the version written in every recording header.
const FormatVersion = 1

// Record kinds.
const (
	KindEvent = "e"
	KindEnd   = "x"
)

// Header is the first line of a recording.
type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	ChildID   string `json:"child_id"`
	Timestamp int64  `json:"timestamp"`
}

// Entry is a single line after the header.
// Format: [time_offset, kind, payload]
type Entry struct {
	TimeOffset float64
	Kind       string
	Payload    json.RawMessage
}

// MarshalJSON encodes the entry as a three element array.
func (e Entry) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal([]any{e.TimeOffset, e.Kind, payload})
}

// UnmarshalJSON decodes a three element array.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid entry format: expected 3 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &e.TimeOffset); err != nil {
		return fmt.Errorf("invalid time offset: %w", err)
	}
	if err := json.Unmarshal(arr[1], &e.Kind); err != nil {
		return fmt.Errorf("invalid entry kind: %w", err)
	}
	e.Payload = arr[2]
	return nil
}

// Recorder appends entries for one session.
type Recorder struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// Create opens dir/<sessionID>.jsonl and writes the header.
func Create(dir, sessionID, childID string, start time.Time) (*Recorder, error) {
	file, err := os.Create(filepath.Join(dir, sessionID+".jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	r := &Recorder{writer: file, file: file, startTime: start}
	if err := r.writeHeader(sessionID, childID); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewWithWriter creates a Recorder that writes to w.
// This is useful for testing.
func NewWithWriter(w io.Writer, sessionID, childID string, start time.Time) (*Recorder, error) {
	r := &Recorder{writer: w, startTime: start}
	if err := r.writeHeader(sessionID, childID); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeHeader(sessionID, childID string) error {
	data, err := json.Marshal(Header{
		Version:   FormatVersion,
		SessionID: sessionID,
		ChildID:   childID,
		Timestamp: r.startTime.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteEvent records an event received at the given time.
func (r *Recorder) WriteEvent(at time.Time, payload json.RawMessage) error {
	return r.write(at, KindEvent, payload)
}

// WriteEnd records the session summary.
func (r *Recorder) WriteEnd(at time.Time, summary json.RawMessage) error {
	return r.write(at, KindEnd, summary)
}

func (r *Recorder) write(at time.Time, kind string, payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(Entry{
		TimeOffset: at.Sub(r.startTime).Seconds(),
		Kind:       kind,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// Close closes the recording file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// StartTime returns the start time of the recording.
func (r *Recorder) StartTime() time.Time {
	return r.startTime
}
