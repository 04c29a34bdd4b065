package state

import (
	"context"
	"io"
	"time"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// SessionWriter records plans as they are created and sessions as they end.
type SessionWriter interface {
	SavePlan(ctx context.Context, sessionID string, plan *models.Plan) error
	SaveSession(ctx context.Context, result *models.SessionResult) error
}

// SessionReader answers history queries.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, status *SessionStatus, limit int) ([]Session, error)
}

// Store is the full persistence surface used by the CLI.
type Store interface {
	io.Closer
	SessionWriter
	SessionReader
	Migrate(ctx context.Context) error
	RecoverInterrupted(ctx context.Context) ([]Session, error)
	PurgeOldSessions(ctx context.Context, olderThan time.Duration) (int64, error)
}

var (
	_ Store         = (*DB)(nil)
	_ SessionWriter = (*DB)(nil)
	_ SessionReader = (*DB)(nil)
)
