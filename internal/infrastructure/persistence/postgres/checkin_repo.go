package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CheckInRepository implements checkin.Repository for PostgreSQL.
//
// The lifecycle transitions are single conditional UPDATE statements with a
// status guard in the WHERE clause. Row-level atomicity of that statement is
// the entire concurrency story for the complete-vs-escalate race; there are
// no advisory locks and no serializable transactions here.
type CheckInRepository struct {
	conn *Connection
}

// NewCheckInRepository creates a new CheckInRepository.
func NewCheckInRepository(conn *Connection) *CheckInRepository {
	return &CheckInRepository{conn: conn}
}

const checkInColumns = `
	id, owner_id, status, alert_time, reminder_sent, circle_user_ids,
	note, photo_path, completed_at, alerted_at, created_at, updated_at
`

func scanCheckIn(row pgx.Row) (*checkin.CheckIn, error) {
	var c checkin.CheckIn
	var status string
	err := row.Scan(
		&c.ID, &c.OwnerID, &status, &c.AlertTime, &c.ReminderSent, &c.CircleUserIDs,
		&c.Note, &c.PhotoPath, &c.CompletedAt, &c.AlertedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = checkin.Status(status)
	return &c, nil
}

// Create persists a new check-in.
func (r *CheckInRepository) Create(ctx context.Context, c *checkin.CheckIn) error {
	query := `
		INSERT INTO check_ins (
			id, owner_id, status, alert_time, reminder_sent, circle_user_ids,
			note, photo_path, completed_at, alerted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.conn.Exec(ctx, query,
		c.ID, c.OwnerID, string(c.Status), c.AlertTime, c.ReminderSent, c.CircleUserIDs,
		c.Note, c.PhotoPath, c.CompletedAt, c.AlertedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("checkin", "Create", shared.ErrAlreadyExists, "check-in already exists", err)
		}
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

// GetByID returns a check-in by ID.
func (r *CheckInRepository) GetByID(ctx context.Context, id string) (*checkin.CheckIn, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE id = $1`
	c, err := scanCheckIn(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCheckInNotFound
		}
		return nil, fmt.Errorf("failed to get check-in: %w", err)
	}
	return c, nil
}

// CompleteIfActive atomically completes the check-in if it is still active.
func (r *CheckInRepository) CompleteIfActive(ctx context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	return r.transition(ctx, id, `
		UPDATE check_ins
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+checkInColumns, now)
}

// EscalateIfActive atomically escalates the check-in if it is still active.
func (r *CheckInRepository) EscalateIfActive(ctx context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	return r.transition(ctx, id, `
		UPDATE check_ins
		SET status = 'alerted', alerted_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+checkInColumns, now)
}

// MarkFalseAlarm atomically corrects an alerted check-in.
func (r *CheckInRepository) MarkFalseAlarm(ctx context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	return r.transition(ctx, id, `
		UPDATE check_ins
		SET status = 'false_alarm', updated_at = $2
		WHERE id = $1 AND status = 'alerted'
		RETURNING `+checkInColumns, now)
}

// transition runs one guarded UPDATE. When the guard does not match, the
// current row is re-read so the caller can see who won.
func (r *CheckInRepository) transition(ctx context.Context, id, query string, now time.Time) (*checkin.CheckIn, bool, error) {
	c, err := scanCheckIn(r.conn.QueryRow(ctx, query, id, now))
	if err == nil {
		return c, true, nil
	}
	if !IsNoRows(err) {
		return nil, false, fmt.Errorf("failed to transition check-in: %w", err)
	}

	c, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return c, false, nil
}

// ClaimReminders selects due unreminded check-ins, flipping the reminder
// flag in the same statement so each row is handed to exactly one sweep.
func (r *CheckInRepository) ClaimReminders(ctx context.Context, from, to time.Time, limit int) ([]*checkin.CheckIn, error) {
	query := `
		UPDATE check_ins
		SET reminder_sent = TRUE, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM check_ins
			WHERE status = 'active'
			  AND reminder_sent = FALSE
			  AND alert_time >= $1 AND alert_time < $2
			ORDER BY alert_time
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + checkInColumns
	rows, err := r.conn.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim reminders: %w", err)
	}
	defer rows.Close()
	return collectCheckIns(rows)
}

// FindOverdue returns active check-ins whose deadline has passed.
func (r *CheckInRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]*checkin.CheckIn, error) {
	query := `
		SELECT ` + checkInColumns + `
		FROM check_ins
		WHERE status = 'active' AND alert_time <= $1
		ORDER BY alert_time
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue check-ins: %w", err)
	}
	defer rows.Close()
	return collectCheckIns(rows)
}

// CountByOwnerAndStatus counts check-ins by owner and status. An empty
// ownerID counts across all owners.
func (r *CheckInRepository) CountByOwnerAndStatus(ctx context.Context, ownerID string, status checkin.Status) (int, error) {
	var count int
	var err error
	if ownerID == "" {
		err = r.conn.QueryRow(ctx,
			`SELECT COUNT(*) FROM check_ins WHERE status = $1`,
			string(status)).Scan(&count)
	} else {
		err = r.conn.QueryRow(ctx,
			`SELECT COUNT(*) FROM check_ins WHERE owner_id = $1 AND status = $2`,
			ownerID, string(status)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count check-ins: %w", err)
	}
	return count, nil
}

// CountCompletedInWindow counts the owner's completions inside [from, to).
func (r *CheckInRepository) CountCompletedInWindow(ctx context.Context, ownerID string, from, to time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM check_ins
		WHERE owner_id = $1 AND status = 'completed'
		  AND completed_at >= $2 AND completed_at < $3
	`, ownerID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions in window: %w", err)
	}
	return count, nil
}

// CountSharedCompleted counts completed check-ins shared by two users:
// either owns it with the other in the circle snapshot.
func (r *CheckInRepository) CountSharedCompleted(ctx context.Context, userA, userB string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM check_ins
		WHERE status = 'completed'
		  AND (
			(owner_id = $1 AND $2 = ANY(circle_user_ids)) OR
			(owner_id = $2 AND $1 = ANY(circle_user_ids))
		  )
	`, userA, userB).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count shared completions: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes terminal check-ins past the retention threshold
// for owners without indefinite retention, returning the photo paths of the
// deleted rows.
func (r *CheckInRepository) DeleteOlderThan(ctx context.Context, threshold time.Time, limit int) (int, []string, error) {
	query := `
		DELETE FROM check_ins
		WHERE id IN (
			SELECT c.id FROM check_ins c
			JOIN users u ON u.id = c.owner_id
			WHERE c.status <> 'active'
			  AND c.updated_at < $1
			  AND u.keep_forever = FALSE
			LIMIT $2
		)
		RETURNING photo_path
	`
	rows, err := r.conn.Query(ctx, query, threshold, limit)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to delete expired check-ins: %w", err)
	}
	defer rows.Close()

	deleted := 0
	var photoPaths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return deleted, photoPaths, fmt.Errorf("failed to scan deleted row: %w", err)
		}
		deleted++
		if path != "" {
			photoPaths = append(photoPaths, path)
		}
	}
	return deleted, photoPaths, rows.Err()
}

func collectCheckIns(rows pgx.Rows) ([]*checkin.CheckIn, error) {
	var result []*checkin.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
