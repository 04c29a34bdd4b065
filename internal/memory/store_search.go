package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// maxQueryTerms caps the number of words turned into an FTS query.
const maxQueryTerms = 16

// Recall returns up to limit entries matching query, best match first.
// An empty query returns the most recent entries.
func (s *Store) Recall(ctx context.Context, query string, limit int) ([]Entry, error) {
	match := ftsQuery(query)
	if match == "" {
		return s.Recent(ctx, limit)
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.type, e.content, e.metadata, e.importance, e.created_at
		FROM entries e
		JOIN entries_fts fts ON e.rowid = fts.rowid
		WHERE entries_fts MATCH ?
		ORDER BY rank, e.importance DESC
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("recall memory: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, importance, created_at
		FROM entries
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memory: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByType returns the newest entries of one type.
func (s *Store) ByType(ctx context.Context, typ string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, content, metadata, importance, created_at
		FROM entries
		WHERE type = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("list memory by type: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms, so
// punctuation in task text cannot break the MATCH syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "are": true, "was": true,
	"will": true, "should": true, "must": true, "have": true, "has": true,
}
