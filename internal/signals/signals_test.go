package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

type fakeTarget struct {
	mu    sync.Mutex
	calls []Signal
	err   error
}

func (f *fakeTarget) record(s Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeTarget) Pause() error  { return f.record(Pause) }
func (f *fakeTarget) Resume() error { return f.record(Resume) }
func (f *fakeTarget) Cancel() (*models.SessionResult, error) {
	return &models.SessionResult{Cancelled: true}, f.record(Cancel)
}

func (f *fakeTarget) got() []Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Signal(nil), f.calls...)
}

func startWatcher(t *testing.T, root string, target Target) {
	t.Helper()
	w, err := NewWatcher(root, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, target)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
}

func TestWatcher_DeliversSignals(t *testing.T) {
	root := t.TempDir()
	target := &fakeTarget{}
	startWatcher(t, root, target)

	require.NoError(t, Send(root, Pause))
	require.Eventually(t, func() bool { return len(target.got()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, Send(root, Resume))
	require.Eventually(t, func() bool {
		calls := target.got()
		return len(calls) > 0 && calls[len(calls)-1] == Resume
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, Send(root, Cancel))
	require.Eventually(t, func() bool {
		calls := target.got()
		return len(calls) > 0 && calls[len(calls)-1] == Cancel
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, Pause, target.got()[0])
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(Dir(root), "cancel"))
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RejectedSignalKeepsRunning(t *testing.T) {
	root := t.TempDir()
	target := &fakeTarget{err: errors.New("invalid state transition")}
	startWatcher(t, root, target)

	require.NoError(t, Send(root, Resume))
	require.Eventually(t, func() bool { return len(target.got()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, Send(root, Pause))
	require.Eventually(t, func() bool {
		calls := target.got()
		return calls[len(calls)-1] == Pause
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewWatcher_ClearsStaleSignals(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Send(root, Cancel))

	w, err := NewWatcher(root, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(filepath.Join(Dir(root), "cancel"))
	assert.True(t, os.IsNotExist(err))
}

func TestSend_UnknownSignal(t *testing.T) {
	require.Error(t, Send(t.TempDir(), Signal("kill")))
}
