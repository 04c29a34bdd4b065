package state

import (
	"context"
	"fmt"
)

// RecoverInterrupted marks sessions left active by a process that never
// finished them as interrupted and returns them. Call it before starting a
// new session.
func (db *DB) RecoverInterrupted(ctx context.Context) ([]Session, error) {
	active := SessionActive
	stale, err := db.ListSessions(ctx, &active, 0)
	if err != nil {
		return nil, fmt.Errorf("find interrupted sessions: %w", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	if _, err := db.exec(ctx, `
		UPDATE sessions SET status = ?, error = COALESCE(error, 'interrupted')
		WHERE status = ?
	`, string(SessionInterrupted), string(SessionActive)); err != nil {
		return nil, fmt.Errorf("mark interrupted sessions: %w", err)
	}
	for i := range stale {
		stale[i].Status = SessionInterrupted
	}
	return stale, nil
}
