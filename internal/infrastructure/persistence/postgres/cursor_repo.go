package postgres

import (
	"context"
	"fmt"
)

// CursorStore persists per-job pagination cursors so interrupted batches
// resume where they stopped instead of rescanning from the start.
type CursorStore struct {
	conn *Connection
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(conn *Connection) *CursorStore {
	return &CursorStore{conn: conn}
}

// Get returns the saved cursor for a job, or "" when none is saved.
func (s *CursorStore) Get(ctx context.Context, jobName string) (string, error) {
	var cursor string
	err := s.conn.QueryRow(ctx,
		`SELECT cursor FROM job_cursors WHERE job_name = $1`, jobName).Scan(&cursor)
	if err != nil {
		if IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get job cursor: %w", err)
	}
	return cursor, nil
}

// Set upserts the cursor for a job.
func (s *CursorStore) Set(ctx context.Context, jobName, cursor string) error {
	query := `
		INSERT INTO job_cursors (job_name, cursor, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_name) DO UPDATE
		SET cursor = EXCLUDED.cursor, updated_at = NOW()
	`
	if _, err := s.conn.Exec(ctx, query, jobName, cursor); err != nil {
		return fmt.Errorf("failed to set job cursor: %w", err)
	}
	return nil
}

// Clear removes the cursor after a completed run.
func (s *CursorStore) Clear(ctx context.Context, jobName string) error {
	if _, err := s.conn.Exec(ctx,
		`DELETE FROM job_cursors WHERE job_name = $1`, jobName); err != nil {
		return fmt.Errorf("failed to clear job cursor: %w", err)
	}
	return nil
}
