// Package dispatch executes subtasks through type-specific handlers with a
// bounded, fixed-delay retry policy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

var (
	// ErrNoHandler is returned when no handler serves a subtask type and no
	// generic handler is registered.
	ErrNoHandler = errors.New("no handler for subtask type")
	// ErrNoFiles is returned when a code completion contains no files.
	ErrNoFiles = errors.New("completion produced no files")
)

// Handler executes one kind of subtask. Each call is one attempt.
type Handler interface {
	Type() models.SubtaskType
	Execute(ctx context.Context, st models.Subtask, taskCtx map[string]any) (*models.ExecutionResult, error)
}

// Registry maps subtask types to handlers.
type Registry map[models.SubtaskType]Handler

// Register adds h under its own type, replacing any previous handler.
func (r Registry) Register(h Handler) {
	r[h.Type()] = h
}

// Lookup returns the handler for typ, falling back to the generic handler.
func (r Registry) Lookup(typ models.SubtaskType) (Handler, error) {
	if h, ok := r[typ]; ok {
		return h, nil
	}
	if h, ok := r[models.SubtaskTypeGeneric]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoHandler, typ)
}

// Dispatcher routes subtasks to handlers and retries failed attempts.
type Dispatcher struct {
	handlers   Registry
	maxRetries int
	retryDelay time.Duration
	sink       events.Sink
	logger     *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxRetries sets the total number of attempts per execution.
// Values below 1 are treated as 1.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.maxRetries = n
	}
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay >= 0 {
			d.retryDelay = delay
		}
	}
}

// WithSink sets where lifecycle events go.
func WithSink(s events.Sink) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher over the given handlers.
func New(handlers Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:   handlers,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		sink:       events.Nop,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxRetries returns the attempt budget per execution.
func (d *Dispatcher) MaxRetries() int {
	return d.maxRetries
}

// Execute runs st through its handler. Failed attempts are retried after
// the fixed delay until the attempt budget is spent; the last error is then
// returned. Events are emitted in the order start, retry*, success|failed.
func (d *Dispatcher) Execute(ctx context.Context, st models.Subtask, taskCtx map[string]any) (*models.ExecutionResult, error) {
	h, err := d.handlers.Lookup(st.Type)
	if err != nil {
		return nil, err
	}

	log := d.logger.With(zap.String("subtask", st.ID), zap.String("type", string(st.Type)))
	d.emit(ctx, events.SubtaskStart, st, 1, nil)

	var (
		result  *models.ExecutionResult
		attempt int
	)
	op := func() error {
		attempt++
		res, err := h.Execute(ctx, st, taskCtx)
		if err != nil {
			log.Warn("attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		d.emit(ctx, events.SubtaskRetry, st, attempt+1, err)
		log.Info("retrying", zap.Int("attempt", attempt+1), zap.Duration("delay", wait))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryDelay), uint64(d.maxRetries-1)),
		ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		log.Error("subtask failed", zap.Int("attempts", attempt), zap.Error(err))
		d.emit(ctx, events.SubtaskFailed, st, attempt, err)
		return nil, err
	}

	if result == nil {
		result = &models.ExecutionResult{}
	}
	if result.Type == "" {
		result.Type = st.Type
	}
	result.SubtaskID = st.ID
	result.Attempts = attempt
	log.Info("subtask executed", zap.Int("attempts", attempt))
	d.emit(ctx, events.SubtaskSuccess, st, attempt, nil)
	return result, nil
}

func (d *Dispatcher) emit(ctx context.Context, typ events.Type, st models.Subtask, attempt int, err error) {
	e := events.Event{
		Type:         typ,
		SessionID:    events.SessionFromContext(ctx),
		Timestamp:    time.Now(),
		SubtaskID:    st.ID,
		SubtaskTitle: st.Title,
		SubtaskType:  st.Type,
		Attempt:      attempt,
	}
	if err != nil {
		e.Error = err.Error()
	}
	d.sink.Emit(e)
}
