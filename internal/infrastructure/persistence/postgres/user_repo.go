package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `
	id, display_name, push_token, keep_forever, premium_plan,
	total_checkins, completed_checkins, alerted_checkins, total_besties,
	current_streak, longest_streak, days_active, last_active,
	badges, bestie_user_ids, created_at, updated_at
`

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var badges []string
	err := row.Scan(
		&u.ID, &u.DisplayName, &u.PushToken, &u.KeepForever, &u.PremiumPlan,
		&u.Stats.TotalCheckIns, &u.Stats.CompletedCheckIns, &u.Stats.AlertedCheckIns, &u.Stats.TotalBesties,
		&u.Stats.CurrentStreak, &u.Stats.LongestStreak, &u.Stats.DaysActive, &u.Stats.LastActive,
		&badges, &u.BestieUserIDs, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Badges = make([]user.BadgeID, len(badges))
	for i, b := range badges {
		u.Badges[i] = user.BadgeID(b)
	}
	return &u, nil
}

func badgeStrings(badges []user.BadgeID) []string {
	out := make([]string, len(badges))
	for i, b := range badges {
		out[i] = string(b)
	}
	return out
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (
			id, display_name, push_token, keep_forever, premium_plan,
			total_checkins, completed_checkins, alerted_checkins, total_besties,
			current_streak, longest_streak, days_active, last_active,
			badges, bestie_user_ids, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.conn.Exec(ctx, query,
		u.ID, u.DisplayName, u.PushToken, u.KeepForever, u.PremiumPlan,
		u.Stats.TotalCheckIns, u.Stats.CompletedCheckIns, u.Stats.AlertedCheckIns, u.Stats.TotalBesties,
		u.Stats.CurrentStreak, u.Stats.LongestStreak, u.Stats.DaysActive, u.Stats.LastActive,
		badgeStrings(u.Badges), u.BestieUserIDs, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByIDs returns users by IDs, skipping missing ones.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.conn.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// Update persists profile fields. Derived counters are not written here.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users
		SET display_name = $2, push_token = $3, keep_forever = $4,
		    premium_plan = $5, updated_at = $6
		WHERE id = $1
	`
	tag, err := r.conn.Exec(ctx, query,
		u.ID, u.DisplayName, u.PushToken, u.KeepForever, u.PremiumPlan, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// ClearPushToken removes a stale device token.
func (r *UserRepository) ClearPushToken(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE users SET push_token = '', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to clear push token: %w", err)
	}
	return nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListPage returns one bounded page of users ordered by ID, strictly after
// the cursor.
func (r *UserRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id > $1 ORDER BY id LIMIT $2`
	rows, err := r.conn.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]*user.User, error) {
	var result []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS WRITER IMPLEMENTATION
// Reserved for the stats engine. Every statement is conditional: counters
// clamp at zero, edges are presence-guarded, badges append-if-absent.
// ══════════════════════════════════════════════════════════════════════════════

// UserStatsWriter implements user.StatsWriter for PostgreSQL.
type UserStatsWriter struct {
	conn *Connection
}

// NewUserStatsWriter creates a new UserStatsWriter.
func NewUserStatsWriter(conn *Connection) *UserStatsWriter {
	return &UserStatsWriter{conn: conn}
}

// AdjustStats applies a counter delta in one statement, clamping at zero.
func (w *UserStatsWriter) AdjustStats(ctx context.Context, userID string, delta user.StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	query := `
		UPDATE users
		SET total_checkins     = GREATEST(0, total_checkins + $2),
		    completed_checkins = GREATEST(0, completed_checkins + $3),
		    alerted_checkins   = GREATEST(0, alerted_checkins + $4),
		    total_besties      = GREATEST(0, total_besties + $5),
		    updated_at         = NOW()
		WHERE id = $1
	`
	tag, err := w.conn.Exec(ctx, query,
		userID, delta.TotalCheckIns, delta.CompletedCheckIns, delta.AlertedCheckIns, delta.TotalBesties)
	if err != nil {
		return fmt.Errorf("failed to adjust stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// UpdateStreak overwrites the streak fields for one user. A carried
// last_active lands in the same statement; GREATEST skips NULLs, so a nil
// value leaves the column alone and a set value never moves it backwards.
func (w *UserStatsWriter) UpdateStreak(ctx context.Context, userID string, upd user.StreakUpdate) error {
	query := `
		UPDATE users
		SET current_streak = $2,
		    longest_streak = GREATEST(longest_streak, $3),
		    days_active    = $4,
		    last_active    = GREATEST(last_active, $5::timestamptz),
		    updated_at     = NOW()
		WHERE id = $1
	`
	tag, err := w.conn.Exec(ctx, query, userID, upd.CurrentStreak, upd.LongestStreak, upd.DaysActive, upd.LastActive)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// TouchLastActive advances last_active, never moving it backwards.
func (w *UserStatsWriter) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE users
		SET last_active = $2, updated_at = NOW()
		WHERE id = $1 AND (last_active IS NULL OR last_active < $2)
	`
	if _, err := w.conn.Exec(ctx, query, userID, at); err != nil {
		return fmt.Errorf("failed to touch last_active: %w", err)
	}
	return nil
}

// GrantBadges appends badges the user does not yet hold.
func (w *UserStatsWriter) GrantBadges(ctx context.Context, userID string, badges []user.BadgeID) error {
	if len(badges) == 0 {
		return nil
	}
	// array_agg over the deduplicated union keeps the column set-like even
	// if two grants race.
	query := `
		UPDATE users
		SET badges = (
			SELECT ARRAY(SELECT DISTINCT b FROM unnest(badges || $2::text[]) AS b)
		),
		updated_at = NOW()
		WHERE id = $1
	`
	tag, err := w.conn.Exec(ctx, query, userID, badgeStrings(badges))
	if err != nil {
		return fmt.Errorf("failed to grant badges: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// AddBestieEdge records the edge and bumps total_besties only when the edge
// is absent. The conditional WHERE is what makes a doubly-applied accept
// count once.
func (w *UserStatsWriter) AddBestieEdge(ctx context.Context, userID, otherID string) error {
	query := `
		UPDATE users
		SET bestie_user_ids = array_append(bestie_user_ids, $2),
		    total_besties   = total_besties + 1,
		    updated_at      = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(bestie_user_ids))
	`
	if _, err := w.conn.Exec(ctx, query, userID, otherID); err != nil {
		return fmt.Errorf("failed to add bestie edge: %w", err)
	}
	return nil
}

// RemoveBestieEdge removes the edge and decrements only when present.
func (w *UserStatsWriter) RemoveBestieEdge(ctx context.Context, userID, otherID string) error {
	query := `
		UPDATE users
		SET bestie_user_ids = array_remove(bestie_user_ids, $2),
		    total_besties   = GREATEST(0, total_besties - 1),
		    updated_at      = NOW()
		WHERE id = $1 AND $2 = ANY(bestie_user_ids)
	`
	if _, err := w.conn.Exec(ctx, query, userID, otherID); err != nil {
		return fmt.Errorf("failed to remove bestie edge: %w", err)
	}
	return nil
}

// OverwriteStats replaces every derived counter with recomputed values.
// Reserved for reconciliation.
func (w *UserStatsWriter) OverwriteStats(ctx context.Context, userID string, stats user.Stats) error {
	query := `
		UPDATE users
		SET total_checkins     = $2,
		    completed_checkins = $3,
		    alerted_checkins   = $4,
		    total_besties      = $5,
		    current_streak     = $6,
		    longest_streak     = $7,
		    days_active        = $8,
		    updated_at         = NOW()
		WHERE id = $1
	`
	tag, err := w.conn.Exec(ctx, query, userID,
		stats.TotalCheckIns, stats.CompletedCheckIns, stats.AlertedCheckIns, stats.TotalBesties,
		stats.CurrentStreak, stats.LongestStreak, stats.DaysActive)
	if err != nil {
		return fmt.Errorf("failed to overwrite stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}
