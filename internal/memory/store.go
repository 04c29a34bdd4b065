// Package memory provides a SQLite-backed store of knowledge entries with
// full-text recall.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry types written by the engine.
const (
	TypeResearch            = "research-task"
	TypeResearchKnowledge   = "research-knowledge"
	TypeCodeGeneration      = "code-generation"
	TypeTestExecution       = "test-execution"
	TypeDocumentation       = "documentation"
	TypeDeployment          = "deployment"
	TypeTaskPlan            = "task-plan"
	TypeSession             = "autonomous-session"
	TypeSessionFailed       = "autonomous-session-failed"
	TypeVerificationFailure = "verification-failure"
)

// Entry is one remembered item.
type Entry struct {
	ID   string
	Type string
	// Content is free text, usually JSON produced by the writer.
	Content  string
	Metadata map[string]any
	// Importance ranks recall results, 0.0-1.0.
	Importance float64
	CreatedAt  time.Time
}

// Store provides SQLite-backed storage for memory entries.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// DBPath returns the project-local memory database path.
func DBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".autopilot", "memory.db")
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Serialize writers; WAL still allows concurrent readers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: conn, dbPath: dbPath}
	if err := s.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate memory db: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
