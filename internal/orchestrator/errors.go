package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

var (
	// ErrSessionActive is returned when a session is started while another
	// one is still running on the same Orchestrator.
	ErrSessionActive = errors.New("a session is already active")
	// ErrInvalidTransition is returned by Pause, Resume and Cancel when the
	// current state does not allow them.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// AbortError stops a session: the failed subtask was expert-level or its
// error carried a fatal marker.
type AbortError struct {
	SubtaskID string
	Cause     error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted at subtask %s: %v", e.SubtaskID, e.Cause)
}

func (e *AbortError) Unwrap() error { return e.Cause }

// VerificationFailedError stops a session when every correction attempt
// failed and pausing on verification failure is enabled.
type VerificationFailedError struct {
	SubtaskID string
	Attempts  int
	Result    *models.VerificationResult
}

func (e *VerificationFailedError) Error() string {
	score := 0
	if e.Result != nil {
		score = e.Result.Score
	}
	return fmt.Sprintf("subtask %s failed verification after %d correction attempts (score %d)",
		e.SubtaskID, e.Attempts, score)
}

func transitionError(op string, from models.AgentState) error {
	return fmt.Errorf("%s from %s: %w", op, from, ErrInvalidTransition)
}
