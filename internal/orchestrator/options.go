package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// DefaultMaxAutoCorrections is the number of correction attempts after a
// failed verification.
const DefaultMaxAutoCorrections = 2

// Planner decomposes a task into an ordered plan.
type Planner interface {
	DecomposeTask(ctx context.Context, description string, taskCtx map[string]any) (*models.Plan, error)
}

// Executor runs one subtask with its retry policy.
type Executor interface {
	Execute(ctx context.Context, st models.Subtask, taskCtx map[string]any) (*models.ExecutionResult, error)
}

// Verifier scores an execution result.
type Verifier interface {
	Verify(ctx context.Context, st models.Subtask, res *models.ExecutionResult) *models.VerificationResult
}

// Memory records plans and session summaries.
type Memory interface {
	Store(ctx context.Context, e memory.Entry) (string, error)
}

// SessionStore persists plans when created and sessions when finished.
type SessionStore interface {
	SavePlan(ctx context.Context, sessionID string, plan *models.Plan) error
	SaveSession(ctx context.Context, result *models.SessionResult) error
}

// RequiredConfig holds the collaborators every Orchestrator needs.
type RequiredConfig struct {
	Planner  Planner
	Executor Executor
	Verifier Verifier
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	completer          llm.Completer
	memory             Memory
	store              SessionStore
	sink               events.Sink
	logger             *zap.Logger
	maxAutoCorrections int
	pauseOnFailure     bool
	correctionDelay    time.Duration
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		sink:               events.Nop,
		logger:             zap.NewNop(),
		maxAutoCorrections: DefaultMaxAutoCorrections,
		pauseOnFailure:     true,
	}
}

// WithCompleter sets the model used to plan corrections. Without one every
// correction uses the fallback description.
func WithCompleter(c llm.Completer) Option {
	return func(o *orchestratorOptions) { o.completer = c }
}

// WithMemory sets where plans and session summaries are remembered.
func WithMemory(m Memory) Option {
	return func(o *orchestratorOptions) { o.memory = m }
}

// WithStore sets the session store.
func WithStore(s SessionStore) Option {
	return func(o *orchestratorOptions) { o.store = s }
}

// WithSink sets the event sink.
func WithSink(s events.Sink) Option {
	return func(o *orchestratorOptions) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxAutoCorrections sets the correction attempts per failed
// verification. Zero disables correction.
func WithMaxAutoCorrections(n int) Option {
	return func(o *orchestratorOptions) { o.maxAutoCorrections = max(n, 0) }
}

// WithPauseOnVerificationFailure controls whether exhausting corrections
// ends the session (true) or records a failure and moves on (false).
func WithPauseOnVerificationFailure(b bool) Option {
	return func(o *orchestratorOptions) { o.pauseOnFailure = b }
}

// WithCorrectionDelay sets the wait before each correction attempt.
func WithCorrectionDelay(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.correctionDelay = d }
}
