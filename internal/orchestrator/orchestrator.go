// Package orchestrator runs one task at a time through planning, execution
// and verification, correcting subtasks that fail verification.
//
// A session moves through the states
//
//	idle -> planning -> executing <-> verifying -> completed | failed
//
// Pause and Resume hold the flow at the next subtask boundary. Cancel ends a
// session from any non-terminal state and returns what was recorded so far.
// Subtasks run strictly one after another in dependency order.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/internal/graph"
	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// fatalMarker matches execution errors that end the session.
var fatalMarker = regexp.MustCompile(`(?i)\b(critical|fatal)\b`)

// Progress is the position of the flow within the plan.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State     models.AgentState       `json:"state"`
	SessionID string                  `json:"session_id,omitempty"`
	Task      string                  `json:"task,omitempty"`
	Progress  Progress                `json:"progress"`
	Outcomes  []models.SubtaskOutcome `json:"outcomes,omitempty"`
}

// Orchestrator drives sessions. It is safe for concurrent use; only one
// session runs at a time.
type Orchestrator struct {
	planner  Planner
	executor Executor
	verifier Verifier
	opts     orchestratorOptions
	logger   *zap.Logger

	mu        sync.Mutex
	state     models.AgentState
	resumeTo  models.AgentState
	sessionID string
	task      string
	plan      *models.Plan
	// deps tracks which prerequisites have succeeded in this session.
	deps      *graph.DependencyGraph
	outcomes  []models.SubtaskOutcome
	current   int
	startedAt time.Time
	cancel    context.CancelFunc
	pause     *PauseController
	// cancelEmitted is set when Cancel already published the terminal event.
	cancelEmitted bool
}

// New creates an idle Orchestrator.
func New(cfg RequiredConfig, opts ...Option) (*Orchestrator, error) {
	switch {
	case cfg.Planner == nil:
		return nil, errors.New("orchestrator: planner is required")
	case cfg.Executor == nil:
		return nil, errors.New("orchestrator: executor is required")
	case cfg.Verifier == nil:
		return nil, errors.New("orchestrator: verifier is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Orchestrator{
		planner:  cfg.Planner,
		executor: cfg.Executor,
		verifier: cfg.Verifier,
		opts:     o,
		logger:   o.logger,
		state:    models.AgentStateIdle,
		pause:    NewPauseController(o.logger),
	}, nil
}

// ExecuteTask plans description and runs the plan. Failures during the
// session are reported in the result; the error is only set for misuse.
func (o *Orchestrator) ExecuteTask(ctx context.Context, description string, taskCtx map[string]any) (*models.SessionResult, error) {
	sctx, err := o.begin(ctx, description)
	if err != nil {
		return nil, err
	}
	o.emit(sctx, events.Event{Type: events.TaskStart, Message: description})

	plan, err := o.planner.DecomposeTask(sctx, description, taskCtx)
	if err != nil {
		return o.finish(sctx, fmt.Errorf("plan task: %w", err)), nil
	}
	deps, ordered, err := o.orderPlan(plan)
	if err != nil {
		return o.finish(sctx, fmt.Errorf("plan task: %w", err)), nil
	}
	return o.run(sctx, plan, deps, ordered, taskCtx), nil
}

// ExecutePlan runs a plan built elsewhere. A plan with unknown
// prerequisites or a cycle is rejected before the session starts.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *models.Plan, taskCtx map[string]any) (*models.SessionResult, error) {
	deps, ordered, err := o.orderPlan(plan)
	if err != nil {
		return nil, err
	}
	sctx, err := o.begin(ctx, plan.TaskDescription)
	if err != nil {
		return nil, err
	}
	o.emit(sctx, events.Event{Type: events.TaskStart, Message: plan.TaskDescription})
	return o.run(sctx, plan.Clone(), deps, ordered, taskCtx), nil
}

func (o *Orchestrator) orderPlan(plan *models.Plan) (*graph.DependencyGraph, []models.Subtask, error) {
	if plan == nil {
		return nil, nil, errors.New("plan is nil")
	}
	g := graph.New()
	g.SetLogger(o.logger)
	if err := g.Build(plan.Clone().Subtasks); err != nil {
		return nil, nil, fmt.Errorf("invalid plan: %w", err)
	}
	ordered, err := g.Ordered()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid plan: %w", err)
	}
	return g, ordered, nil
}

// begin claims the Orchestrator for a new session.
func (o *Orchestrator) begin(ctx context.Context, task string) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Accepting() {
		return nil, fmt.Errorf("%w (state %s)", ErrSessionActive, o.state)
	}

	o.sessionID = uuid.New().String()
	o.task = task
	o.plan = nil
	o.deps = nil
	o.outcomes = nil
	o.current = 0
	o.startedAt = time.Now()
	o.resumeTo = ""
	o.cancelEmitted = false
	o.pause = NewPauseController(o.logger.With(zap.String("session", o.sessionID)))
	o.state = models.AgentStatePlanning

	sctx, cancel := context.WithCancel(events.WithSession(ctx, o.sessionID))
	o.cancel = cancel
	o.logger.Info("session started", zap.String("session", o.sessionID), zap.String("task", task))
	return sctx, nil
}

func (o *Orchestrator) run(ctx context.Context, plan *models.Plan, deps *graph.DependencyGraph, ordered []models.Subtask, taskCtx map[string]any) *models.SessionResult {
	o.mu.Lock()
	o.plan = plan
	o.deps = deps
	pc := o.pause
	o.mu.Unlock()

	o.persistPlan(ctx, plan)
	o.emit(ctx, events.Event{Type: events.TaskPlanned, Plan: plan.Clone(), Total: len(ordered)})
	o.transition(models.AgentStateExecuting)

	var runErr error
	for i, st := range ordered {
		if err := pc.WaitIfPaused(ctx); err != nil {
			runErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		o.mu.Lock()
		o.current = i + 1
		o.mu.Unlock()

		if err := o.runSubtask(ctx, st, taskCtx, i+1, len(ordered)); err != nil {
			runErr = err
			break
		}
		o.transition(models.AgentStateExecuting)
	}
	return o.finish(ctx, runErr)
}

// runSubtask executes and verifies one subtask and records its outcome. It
// returns an error only when the session must stop.
func (o *Orchestrator) runSubtask(ctx context.Context, st models.Subtask, taskCtx map[string]any, current, total int) error {
	start := time.Now()
	log := o.logger.With(
		zap.String("session", events.SessionFromContext(ctx)),
		zap.String("subtask", st.ID),
		zap.String("type", string(st.Type)))

	if unmet := o.unmetPrerequisites(st); len(unmet) > 0 {
		reason := "unmet prerequisites: " + strings.Join(unmet, ", ")
		log.Info("skipping subtask", zap.Strings("unmet", unmet))
		o.record(models.SubtaskOutcome{SubtaskID: st.ID, Skipped: true, Reason: reason})
		o.emit(ctx, subtaskEvent(events.SubtaskSkipped, st, current, total, func(e *events.Event) {
			e.Message = reason
		}))
		return nil
	}

	res, err := o.executor.Execute(ctx, st, taskCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.record(models.SubtaskOutcome{SubtaskID: st.ID, Error: err.Error(), Duration: time.Since(start)})
		if ShouldAbort(st, err) {
			log.Error("aborting session", zap.Error(err))
			return &AbortError{SubtaskID: st.ID, Cause: err}
		}
		log.Warn("subtask failed, continuing", zap.Error(err))
		return nil
	}

	o.transition(models.AgentStateVerifying)
	vr := o.verify(ctx, st, res, 0)
	if vr.Passed {
		o.record(models.SubtaskOutcome{
			SubtaskID: st.ID,
			Success:   true,
			Score:     models.IntPtr(vr.Score),
			Duration:  time.Since(start),
		})
		return nil
	}

	fixed, attempts, last := o.autoCorrect(ctx, st, res, vr, taskCtx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if fixed {
		log.Info("subtask corrected", zap.Int("attempts", attempts), zap.Int("score", last.Score))
		o.record(models.SubtaskOutcome{
			SubtaskID:          st.ID,
			Success:            true,
			Corrected:          true,
			CorrectionAttempts: attempts,
			Score:              models.IntPtr(last.Score),
			Duration:           time.Since(start),
		})
		o.emit(ctx, subtaskEvent(events.SubtaskCorrected, st, current, total, func(e *events.Event) {
			e.Attempt = attempts
			e.Score = models.IntPtr(last.Score)
			e.Verification = last
		}))
		return nil
	}

	o.rememberVerificationFailure(ctx, st, last, attempts)
	o.record(models.SubtaskOutcome{
		SubtaskID:           st.ID,
		CorrectionAttempted: attempts > 0,
		CorrectionAttempts:  attempts,
		Score:               models.IntPtr(last.Score),
		Error:               fmt.Sprintf("verification failed with score %d", last.Score),
		Duration:            time.Since(start),
	})
	o.emit(ctx, subtaskEvent(events.SubtaskFailed, st, current, total, func(e *events.Event) {
		e.Attempt = attempts
		e.Score = models.IntPtr(last.Score)
		e.Verification = last
		e.Error = fmt.Sprintf("verification failed with score %d", last.Score)
	}))
	if o.opts.pauseOnFailure {
		return &VerificationFailedError{SubtaskID: st.ID, Attempts: attempts, Result: last}
	}
	log.Warn("verification failed, continuing", zap.Int("score", last.Score))
	return nil
}

// ShouldAbort reports whether a failed subtask ends the session.
func ShouldAbort(st models.Subtask, err error) bool {
	if st.Complexity == models.ComplexityExpert {
		return true
	}
	return err != nil && fatalMarker.MatchString(err.Error())
}

func (o *Orchestrator) verify(ctx context.Context, st models.Subtask, res *models.ExecutionResult, attempt int) *models.VerificationResult {
	o.emit(ctx, events.Event{
		Type:         events.VerificationStart,
		SubtaskID:    st.ID,
		SubtaskTitle: st.Title,
		SubtaskType:  st.Type,
		Attempt:      attempt,
	})
	vr := o.verifier.Verify(ctx, st, res)
	typ := events.VerificationFailed
	if vr.Passed {
		typ = events.VerificationPassed
	}
	o.emit(ctx, events.Event{
		Type:         typ,
		SubtaskID:    st.ID,
		SubtaskTitle: st.Title,
		SubtaskType:  st.Type,
		Attempt:      attempt,
		Score:        models.IntPtr(vr.Score),
		Verification: vr,
	})
	return vr
}

// unmetPrerequisites returns prerequisites without a successful outcome.
func (o *Orchestrator) unmetPrerequisites(st models.Subtask) []string {
	o.mu.Lock()
	deps := o.deps
	o.mu.Unlock()
	return deps.Unmet(st.ID)
}

// record appends an outcome unless the session was cancelled.
func (o *Orchestrator) record(out models.SubtaskOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == models.AgentStateCancelled {
		return
	}
	o.outcomes = append(o.outcomes, out)
	if out.Success && o.deps != nil {
		o.deps.MarkComplete(out.SubtaskID)
	}
}

// transition moves the flow to a working state. While paused the target is
// remembered for Resume; after Cancel nothing changes.
func (o *Orchestrator) transition(to models.AgentState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case models.AgentStateCancelled:
	case models.AgentStatePaused:
		o.resumeTo = to
	default:
		o.state = to
	}
}

// finish closes the session and builds its result.
func (o *Orchestrator) finish(ctx context.Context, runErr error) *models.SessionResult {
	o.mu.Lock()
	cancelled := o.state == models.AgentStateCancelled ||
		errors.Is(runErr, context.Canceled) || errors.Is(runErr, errStopped)
	errMsg := ""
	if runErr != nil && !cancelled {
		errMsg = runErr.Error()
	}
	result := o.snapshotLocked(cancelled, errMsg)

	final := models.AgentStateCompleted
	switch {
	case cancelled:
		final = models.AgentStateCancelled
	case runErr != nil:
		final = models.AgentStateFailed
	}
	o.state = final
	alreadyEmitted := o.cancelEmitted
	cancel := o.cancel
	o.cancel = nil
	pc := o.pause
	o.mu.Unlock()

	pc.Stop()
	// ctx may already be cancelled; persistence still has to happen.
	bg := context.WithoutCancel(ctx)
	o.persistSession(bg, result)
	o.rememberSession(bg, result)

	o.logger.Info("session finished",
		zap.String("session", result.SessionID),
		zap.String("state", string(final)),
		zap.Bool("success", result.Success),
		zap.Int("score", result.AverageScore),
		zap.Duration("duration", result.Duration))

	if !alreadyEmitted {
		typ := events.TaskComplete
		switch final {
		case models.AgentStateCancelled:
			typ = events.Cancelled
		case models.AgentStateFailed:
			typ = events.TaskFailed
		}
		o.emit(ctx, events.Event{Type: typ, Result: result, Error: errMsg})
	}
	if cancel != nil {
		cancel()
	}
	return result
}

// snapshotLocked builds a SessionResult from the recorded outcomes. o.mu
// must be held.
func (o *Orchestrator) snapshotLocked(cancelled bool, errMsg string) *models.SessionResult {
	now := time.Now()
	r := &models.SessionResult{
		SessionID:       o.sessionID,
		TaskDescription: o.task,
		Cancelled:       cancelled,
		Error:           errMsg,
		StartedAt:       o.startedAt,
		EndedAt:         now,
		Duration:        now.Sub(o.startedAt),
		Outcomes:        append([]models.SubtaskOutcome(nil), o.outcomes...),
		Plan:            o.plan.Clone(),
	}
	total := 0
	if o.plan != nil {
		total = len(o.plan.Subtasks)
	}
	r.Summarize(total)
	return r
}

// Pause holds the session at the next subtask boundary. Only valid while
// executing or verifying.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	if o.state != models.AgentStateExecuting && o.state != models.AgentStateVerifying {
		defer o.mu.Unlock()
		return transitionError("pause", o.state)
	}
	o.resumeTo = o.state
	o.state = models.AgentStatePaused
	o.pause.Pause()
	id := o.sessionID
	o.mu.Unlock()

	o.publish(id, events.Event{Type: events.Paused})
	return nil
}

// Resume continues a paused session.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	if o.state != models.AgentStatePaused {
		defer o.mu.Unlock()
		return transitionError("resume", o.state)
	}
	o.state = models.AgentStateExecuting
	if o.resumeTo != "" {
		o.state = o.resumeTo
	}
	o.resumeTo = ""
	o.pause.Resume()
	id := o.sessionID
	o.mu.Unlock()

	o.publish(id, events.Event{Type: events.Resumed})
	return nil
}

// Cancel ends the active session immediately and returns the outcomes
// recorded so far. Side effects of finished subtasks are kept.
func (o *Orchestrator) Cancel() (*models.SessionResult, error) {
	o.mu.Lock()
	if o.state == models.AgentStateIdle || o.state.IsTerminal() {
		defer o.mu.Unlock()
		return nil, transitionError("cancel", o.state)
	}
	o.state = models.AgentStateCancelled
	o.cancelEmitted = true
	result := o.snapshotLocked(true, "")
	cancel := o.cancel
	pc := o.pause
	id := o.sessionID
	o.mu.Unlock()

	pc.Stop()
	if cancel != nil {
		cancel()
	}
	o.logger.Info("session cancelled", zap.String("session", id))
	o.publish(id, events.Event{Type: events.Cancelled, Result: result})
	return result, nil
}

// State returns the current state.
func (o *Orchestrator) State() models.AgentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Plan returns a copy of the plan of the current or last session.
func (o *Orchestrator) Plan() *models.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan.Clone()
}

// Status returns a snapshot of the current or last session.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{
		State:     o.state,
		SessionID: o.sessionID,
		Task:      o.task,
		Outcomes:  append([]models.SubtaskOutcome(nil), o.outcomes...),
	}
	if o.plan != nil {
		s.Progress.Total = len(o.plan.Subtasks)
	}
	s.Progress.Current = o.current
	if s.Progress.Total > 0 {
		s.Progress.Percentage = int(math.Round(float64(len(o.outcomes)) * 100 / float64(s.Progress.Total)))
	}
	return s
}

func (o *Orchestrator) emit(ctx context.Context, e events.Event) {
	o.publish(events.SessionFromContext(ctx), e)
}

func (o *Orchestrator) publish(sessionID string, e events.Event) {
	if e.SessionID == "" {
		e.SessionID = sessionID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	o.opts.sink.Emit(e)
}

func subtaskEvent(typ events.Type, st models.Subtask, current, total int, fill func(*events.Event)) events.Event {
	e := events.Event{
		Type:         typ,
		SubtaskID:    st.ID,
		SubtaskTitle: st.Title,
		SubtaskType:  st.Type,
		Current:      current,
		Total:        total,
	}
	if fill != nil {
		fill(&e)
	}
	return e
}

func (o *Orchestrator) persistPlan(ctx context.Context, plan *models.Plan) {
	id := events.SessionFromContext(ctx)
	if o.opts.store != nil {
		if err := o.opts.store.SavePlan(ctx, id, plan); err != nil {
			o.logger.Warn("failed to save plan", zap.String("session", id), zap.Error(err))
		}
	}
	o.remember(ctx, memory.TypeTaskPlan, plan, 0.9, map[string]any{
		"session_id": id,
		"subtasks":   len(plan.Subtasks),
	})
}

func (o *Orchestrator) persistSession(ctx context.Context, result *models.SessionResult) {
	if o.opts.store == nil {
		return
	}
	if err := o.opts.store.SaveSession(ctx, result); err != nil {
		o.logger.Warn("failed to save session", zap.String("session", result.SessionID), zap.Error(err))
	}
}

func (o *Orchestrator) rememberSession(ctx context.Context, result *models.SessionResult) {
	typ, importance := memory.TypeSession, 1.0
	if !result.Success {
		typ, importance = memory.TypeSessionFailed, 0.8
	}
	summary := *result
	summary.Plan = nil
	o.remember(ctx, typ, summary, importance, map[string]any{
		"session_id": result.SessionID,
		"success":    result.Success,
	})
}

func (o *Orchestrator) rememberVerificationFailure(ctx context.Context, st models.Subtask, vr *models.VerificationResult, attempts int) {
	o.remember(ctx, memory.TypeVerificationFailure, map[string]any{
		"subtask":  st,
		"score":    vr.Score,
		"issues":   vr.Issues,
		"attempts": attempts,
	}, 0.7, map[string]any{"subtask_id": st.ID})
}

func (o *Orchestrator) remember(ctx context.Context, typ string, v any, importance float64, meta map[string]any) {
	if o.opts.memory == nil {
		return
	}
	content, err := json.Marshal(v)
	if err != nil {
		o.logger.Warn("failed to encode memory", zap.String("type", typ), zap.Error(err))
		return
	}
	if _, err := o.opts.memory.Store(ctx, memory.Entry{
		Type:       typ,
		Content:    string(content),
		Metadata:   meta,
		Importance: importance,
	}); err != nil {
		o.logger.Warn("failed to store memory", zap.String("type", typ), zap.Error(err))
	}
}
