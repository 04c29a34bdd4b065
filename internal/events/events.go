// Package events defines the lifecycle events of an orchestration session
// and the sinks that receive them.
package events

import (
	"context"
	"time"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// Type is the kind of lifecycle event.
type Type string

const (
	TaskStart    Type = "task:start"
	TaskPlanned  Type = "task:planned"
	TaskComplete Type = "task:complete"
	TaskFailed   Type = "task:failed"

	SubtaskStart     Type = "subtask:start"
	SubtaskRetry     Type = "subtask:retry"
	SubtaskSuccess   Type = "subtask:success"
	SubtaskFailed    Type = "subtask:failed"
	SubtaskSkipped   Type = "subtask:skipped"
	SubtaskCorrected Type = "subtask:corrected"
	CorrectionStart  Type = "correction:start"

	VerificationStart  Type = "verification:start"
	VerificationPassed Type = "verification:passed"
	VerificationFailed Type = "verification:failed"

	Paused    Type = "paused"
	Resumed   Type = "resumed"
	Cancelled Type = "cancelled"
)

// Terminal returns true for events that end a session.
func (t Type) Terminal() bool {
	return t == TaskComplete || t == TaskFailed || t == Cancelled
}

// Event is one lifecycle notification. Only the fields relevant to Type are
// set.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	SubtaskID    string             `json:"subtask_id,omitempty"`
	SubtaskTitle string             `json:"subtask_title,omitempty"`
	SubtaskType  models.SubtaskType `json:"subtask_type,omitempty"`
	// Attempt is the 1-based execution or correction attempt.
	Attempt int    `json:"attempt,omitempty"`
	Score   *int   `json:"score,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Plan         *models.Plan               `json:"plan,omitempty"`
	Verification *models.VerificationResult `json:"verification,omitempty"`
	// Result is set on terminal events.
	Result *models.SessionResult `json:"result,omitempty"`
	// Progress is the index of the current subtask and the plan size.
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`
}

// Sink receives events. Emit must not block the caller for long and must
// not fail; delivery is fire-and-forget.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return multi(live)
}

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

type sessionKey struct{}

// WithSession returns a context carrying the session id that collaborators
// stamp on the events they emit.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session id set by WithSession, or "".
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
