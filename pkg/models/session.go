package models

import (
	"math"
	"time"
)

// SubtaskOutcome is the orchestrator's record for one reached subtask.
type SubtaskOutcome struct {
	SubtaskID string `json:"subtask_id"`
	Success   bool   `json:"success"`
	// Skipped is set when a prerequisite did not succeed.
	Skipped   bool `json:"skipped"`
	Corrected bool `json:"corrected"`
	// CorrectionAttempted is set when the correction loop ran.
	CorrectionAttempted bool `json:"correction_attempted,omitempty"`
	// Score is nil when the subtask never reached verification.
	Score              *int   `json:"score,omitempty"`
	CorrectionAttempts int    `json:"correction_attempts"`
	Error              string `json:"error,omitempty"`
	Reason             string `json:"reason,omitempty"`
	// Duration is the wall time spent on the subtask.
	Duration time.Duration `json:"duration"`
}

// SessionResult is the final aggregate of one orchestration run.
type SessionResult struct {
	SessionID       string `json:"session_id"`
	TaskDescription string `json:"task_description"`
	Total           int    `json:"total"`
	Successful      int    `json:"successful"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
	Corrected       int    `json:"corrected"`
	AverageScore    int    `json:"average_score"`
	// Success is true iff no subtask failed and the session was not aborted.
	Success   bool             `json:"success"`
	Cancelled bool             `json:"cancelled,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  time.Duration    `json:"duration"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Outcomes  []SubtaskOutcome `json:"outcomes"`
	Plan      *Plan            `json:"plan,omitempty"`
}

// Summarize fills the aggregate counters from outcomes. Total is the plan
// size when a plan is known, otherwise the number of outcomes.
func (r *SessionResult) Summarize(total int) {
	r.Total = total
	r.Successful, r.Failed, r.Skipped, r.Corrected = 0, 0, 0, 0
	sum, n := 0, 0
	for _, o := range r.Outcomes {
		switch {
		case o.Skipped:
			r.Skipped++
		case o.Success:
			r.Successful++
		default:
			r.Failed++
		}
		if o.Success && o.Corrected {
			r.Corrected++
		}
		if o.Score != nil {
			sum += *o.Score
			n++
		}
	}
	r.AverageScore = 0
	if n > 0 {
		r.AverageScore = int(math.Round(float64(sum) / float64(n)))
	}
	r.Success = r.Failed == 0 && r.Error == "" && !r.Cancelled
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
