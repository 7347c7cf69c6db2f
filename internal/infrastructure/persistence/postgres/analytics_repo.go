package postgres

import (
	"context"
	"fmt"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
)

// AnalyticsRepository implements analytics.Repository over the singleton
// snapshot row. The row is seeded by migration, so reads never miss.
type AnalyticsRepository struct {
	conn *Connection
}

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository(conn *Connection) *AnalyticsRepository {
	return &AnalyticsRepository{conn: conn}
}

// Get returns the current snapshot.
func (r *AnalyticsRepository) Get(ctx context.Context) (*analytics.Snapshot, error) {
	query := `
		SELECT total_users, total_checkins, completed_checkins,
		       alerted_checkins, accepted_besties, rebuilt_at, updated_at
		FROM analytics_snapshot
		WHERE id = 1
	`
	var s analytics.Snapshot
	err := r.conn.QueryRow(ctx, query).Scan(
		&s.TotalUsers, &s.TotalCheckIns, &s.CompletedCheckIns,
		&s.AlertedCheckIns, &s.AcceptedBesties, &s.RebuiltAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics snapshot: %w", err)
	}
	return &s, nil
}

// Adjust applies a delta in one statement, clamping every counter at zero.
func (r *AnalyticsRepository) Adjust(ctx context.Context, delta analytics.Delta) error {
	if delta.IsZero() {
		return nil
	}
	query := `
		UPDATE analytics_snapshot
		SET total_users        = GREATEST(0, total_users + $1),
		    total_checkins     = GREATEST(0, total_checkins + $2),
		    completed_checkins = GREATEST(0, completed_checkins + $3),
		    alerted_checkins   = GREATEST(0, alerted_checkins + $4),
		    accepted_besties   = GREATEST(0, accepted_besties + $5),
		    updated_at         = NOW()
		WHERE id = 1
	`
	_, err := r.conn.Exec(ctx, query,
		delta.TotalUsers, delta.TotalCheckIns, delta.CompletedCheckIns,
		delta.AlertedCheckIns, delta.AcceptedBesties)
	if err != nil {
		return fmt.Errorf("failed to adjust analytics snapshot: %w", err)
	}
	return nil
}

// Overwrite replaces the snapshot with freshly recomputed values.
func (r *AnalyticsRepository) Overwrite(ctx context.Context, s *analytics.Snapshot) error {
	query := `
		UPDATE analytics_snapshot
		SET total_users        = $1,
		    total_checkins     = $2,
		    completed_checkins = $3,
		    alerted_checkins   = $4,
		    accepted_besties   = $5,
		    rebuilt_at         = $6,
		    updated_at         = NOW()
		WHERE id = 1
	`
	_, err := r.conn.Exec(ctx, query,
		s.TotalUsers, s.TotalCheckIns, s.CompletedCheckIns,
		s.AlertedCheckIns, s.AcceptedBesties, s.RebuiltAt)
	if err != nil {
		return fmt.Errorf("failed to overwrite analytics snapshot: %w", err)
	}
	return nil
}
