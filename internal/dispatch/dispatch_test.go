package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// funcHandler counts calls and delegates to fn.
type funcHandler struct {
	typ   models.SubtaskType
	calls int
	fn    func(call int) (*models.ExecutionResult, error)
}

func (h *funcHandler) Type() models.SubtaskType { return h.typ }

func (h *funcHandler) Execute(context.Context, models.Subtask, map[string]any) (*models.ExecutionResult, error) {
	h.calls++
	return h.fn(h.calls)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestDispatcher(h Handler, rec *recorder) *Dispatcher {
	reg := make(Registry)
	reg.Register(h)
	return New(reg, WithRetryDelay(0), WithSink(rec))
}

func TestDispatcher_ExhaustsRetries(t *testing.T) {
	boom := errors.New("boom")
	h := &funcHandler{typ: models.SubtaskTypeCode, fn: func(int) (*models.ExecutionResult, error) {
		return nil, boom
	}}
	rec := &recorder{}
	d := newTestDispatcher(h, rec)

	res, err := d.Execute(context.Background(), models.Subtask{ID: "s1", Type: models.SubtaskTypeCode}, nil)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Equal(t, DefaultMaxRetries, h.calls)
	assert.Equal(t, []events.Type{
		events.SubtaskStart,
		events.SubtaskRetry,
		events.SubtaskRetry,
		events.SubtaskFailed,
	}, rec.types())
}

func TestDispatcher_SucceedsOnSecondAttempt(t *testing.T) {
	h := &funcHandler{typ: models.SubtaskTypeCode, fn: func(call int) (*models.ExecutionResult, error) {
		if call == 1 {
			return nil, errors.New("flaky")
		}
		return &models.ExecutionResult{Explanation: "done"}, nil
	}}
	rec := &recorder{}
	d := newTestDispatcher(h, rec)

	res, err := d.Execute(context.Background(), models.Subtask{ID: "s1", Type: models.SubtaskTypeCode}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, h.calls)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "s1", res.SubtaskID)
	assert.Equal(t, models.SubtaskTypeCode, res.Type)
	assert.Equal(t, []events.Type{events.SubtaskStart, events.SubtaskRetry, events.SubtaskSuccess}, rec.types())
	assert.Equal(t, 2, rec.events[1].Attempt)
	assert.Equal(t, "flaky", rec.events[1].Error)
}

func TestDispatcher_MaxRetriesOption(t *testing.T) {
	h := &funcHandler{typ: models.SubtaskTypeTest, fn: func(int) (*models.ExecutionResult, error) {
		return nil, errors.New("nope")
	}}
	reg := make(Registry)
	reg.Register(h)
	d := New(reg, WithRetryDelay(0), WithMaxRetries(1))

	_, err := d.Execute(context.Background(), models.Subtask{ID: "t", Type: models.SubtaskTypeTest}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, h.calls)
}

func TestDispatcher_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &funcHandler{typ: models.SubtaskTypeCode, fn: func(int) (*models.ExecutionResult, error) {
		cancel()
		return nil, context.Canceled
	}}
	d := newTestDispatcher(h, &recorder{})

	_, err := d.Execute(ctx, models.Subtask{ID: "s1", Type: models.SubtaskTypeCode}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.calls)
}

func TestDispatcher_StampsSession(t *testing.T) {
	h := &funcHandler{typ: models.SubtaskTypeCode, fn: func(int) (*models.ExecutionResult, error) {
		return &models.ExecutionResult{}, nil
	}}
	rec := &recorder{}
	d := newTestDispatcher(h, rec)

	ctx := events.WithSession(context.Background(), "sess-9")
	_, err := d.Execute(ctx, models.Subtask{ID: "s1", Type: models.SubtaskTypeCode}, nil)
	require.NoError(t, err)
	for _, e := range rec.events {
		assert.Equal(t, "sess-9", e.SessionID)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	generic := &funcHandler{typ: models.SubtaskTypeGeneric}
	code := &funcHandler{typ: models.SubtaskTypeCode}

	reg := make(Registry)
	reg.Register(code)
	_, err := reg.Lookup(models.SubtaskTypeDeploy)
	require.ErrorIs(t, err, ErrNoHandler)

	reg.Register(generic)
	h, err := reg.Lookup(models.SubtaskTypeDeploy)
	require.NoError(t, err)
	assert.Same(t, generic, h)

	h, err = reg.Lookup(models.SubtaskTypeCode)
	require.NoError(t, err)
	assert.Same(t, code, h)
}

func TestNewRegistry_CoversEveryType(t *testing.T) {
	reg := NewRegistry(Deps{})
	for _, typ := range []models.SubtaskType{
		models.SubtaskTypeResearch,
		models.SubtaskTypeCode,
		models.SubtaskTypeTest,
		models.SubtaskTypeDocument,
		models.SubtaskTypeDeploy,
		models.SubtaskTypeGeneric,
	} {
		h, ok := reg[typ]
		require.True(t, ok, "missing handler for %s", typ)
		assert.Equal(t, typ, h.Type())
	}
}
