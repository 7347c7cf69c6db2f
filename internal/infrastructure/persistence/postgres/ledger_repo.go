package postgres

import (
	"context"
	"fmt"
)

// TransitionLedger implements stats.Ledger on the applied_transitions table.
// Claim is a bare insert-if-absent: the primary key makes the first caller
// win and every replay lose, across processes and restarts.
type TransitionLedger struct {
	conn *Connection
}

// NewTransitionLedger creates a new TransitionLedger.
func NewTransitionLedger(conn *Connection) *TransitionLedger {
	return &TransitionLedger{conn: conn}
}

// Claim records that the transition's side effects have been applied.
// Returns true only for the caller that inserted the row.
func (l *TransitionLedger) Claim(ctx context.Context, aggregateID, transition string) (bool, error) {
	query := `
		INSERT INTO applied_transitions (aggregate_id, transition)
		VALUES ($1, $2)
		ON CONFLICT (aggregate_id, transition) DO NOTHING
	`
	tag, err := l.conn.Exec(ctx, query, aggregateID, transition)
	if err != nil {
		return false, fmt.Errorf("failed to claim transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes a claimed row so the transition can be claimed again.
// Used when the side effects behind a claim failed and should be retried
// by a later delivery. Releasing an absent row is a no-op.
func (l *TransitionLedger) Release(ctx context.Context, aggregateID, transition string) error {
	query := `
		DELETE FROM applied_transitions
		WHERE aggregate_id = $1 AND transition = $2
	`
	if _, err := l.conn.Exec(ctx, query, aggregateID, transition); err != nil {
		return fmt.Errorf("failed to release transition: %w", err)
	}
	return nil
}
