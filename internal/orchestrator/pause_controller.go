package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// errStopped is returned by WaitIfPaused once the controller is stopped.
var errStopped = errors.New("session stopped")

// PauseController gates the session flow at subtask boundaries. Pausing
// never interrupts an in-flight subtask.
type PauseController struct {
	paused  bool
	stopped bool
	mu      sync.Mutex
	// cond is signalled on resume, stop and context cancellation.
	cond   *sync.Cond
	logger *zap.Logger
}

// NewPauseController creates an unpaused controller.
func NewPauseController(logger *zap.Logger) *PauseController {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PauseController{logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause holds the flow at the next boundary.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.logger.Info("paused, holding at next subtask boundary")
	}
}

// Resume releases a paused flow.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.logger.Info("resumed")
		p.cond.Broadcast()
	}
}

// Stop releases every waiter for good.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused reports whether the flow is held.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsStopped reports whether Stop was called.
func (p *PauseController) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// WaitIfPaused blocks while paused. It returns ctx.Err() when the context
// ends and errStopped after Stop.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// One watcher per wait; spurious wakeups loop without spawning more.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return errStopped
	}
	return nil
}
