package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BESTIE RELATIONSHIP REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// BestieRepository implements bestie.Repository for PostgreSQL.
type BestieRepository struct {
	conn *Connection
}

// NewBestieRepository creates a new BestieRepository.
func NewBestieRepository(conn *Connection) *BestieRepository {
	return &BestieRepository{conn: conn}
}

const bestieColumns = `
	id, requester_id, recipient_id, status, accepted_at, created_at, updated_at
`

func scanRelationship(row pgx.Row) (*bestie.Relationship, error) {
	var rel bestie.Relationship
	err := row.Scan(
		&rel.ID, &rel.RequesterID, &rel.RecipientID, &rel.Status,
		&rel.AcceptedAt, &rel.CreatedAt, &rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// Create persists a new pending relationship. The partial unique index on
// the normalized pair rejects a second live relationship in either direction.
func (r *BestieRepository) Create(ctx context.Context, rel *bestie.Relationship) error {
	query := `
		INSERT INTO bestie_relationships (
			id, requester_id, recipient_id, status, accepted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		rel.ID, rel.RequesterID, rel.RecipientID, rel.Status,
		rel.AcceptedAt, rel.CreatedAt, rel.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrBestieExists
		}
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

// GetByID returns a relationship by ID.
func (r *BestieRepository) GetByID(ctx context.Context, id string) (*bestie.Relationship, error) {
	query := `SELECT ` + bestieColumns + ` FROM bestie_relationships WHERE id = $1`
	rel, err := scanRelationship(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrBestieNotFound
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

// GetByPair returns the live relationship between two users regardless of
// direction.
func (r *BestieRepository) GetByPair(ctx context.Context, userA, userB string) (*bestie.Relationship, error) {
	query := `
		SELECT ` + bestieColumns + `
		FROM bestie_relationships
		WHERE LEAST(requester_id, recipient_id) = LEAST($1::text, $2::text)
		  AND GREATEST(requester_id, recipient_id) = GREATEST($1::text, $2::text)
		  AND status IN ('pending', 'accepted')
	`
	rel, err := scanRelationship(r.conn.QueryRow(ctx, query, userA, userB))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrBestieNotFound
		}
		return nil, fmt.Errorf("failed to get relationship by pair: %w", err)
	}
	return rel, nil
}

// UpdateStatus atomically moves the relationship from the expected status to
// the next one. The guarded WHERE clause means exactly one of two racing
// responders applies; the loser gets the current row back with applied=false.
func (r *BestieRepository) UpdateStatus(ctx context.Context, id string, expected, next bestie.Status, now time.Time) (*bestie.Relationship, bool, error) {
	query := `
		UPDATE bestie_relationships
		SET status = $3,
		    accepted_at = CASE WHEN $3 = 'accepted' THEN $4 ELSE accepted_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + bestieColumns
	rel, err := scanRelationship(r.conn.QueryRow(ctx, query, id, expected, next, now))
	if err == nil {
		return rel, true, nil
	}
	if !IsNoRows(err) {
		return nil, false, fmt.Errorf("failed to update relationship status: %w", err)
	}
	// Guard missed: re-read so the caller can see who won.
	rel, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return rel, false, nil
}

// Delete removes the relationship row entirely.
func (r *BestieRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM bestie_relationships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrBestieNotFound
	}
	return nil
}

// CountAcceptedFor counts accepted relationships involving the user.
func (r *BestieRepository) CountAcceptedFor(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bestie_relationships
		WHERE status = 'accepted' AND (requester_id = $1 OR recipient_id = $1)
	`
	var count int
	if err := r.conn.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accepted relationships: %w", err)
	}
	return count, nil
}

// CountAccepted counts all accepted relationships.
func (r *BestieRepository) CountAccepted(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM bestie_relationships WHERE status = 'accepted'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accepted relationships: %w", err)
	}
	return count, nil
}

// ListAcceptedPage returns one bounded page of accepted relationships
// ordered by ID, strictly after the cursor.
func (r *BestieRepository) ListAcceptedPage(ctx context.Context, afterID string, limit int) ([]*bestie.Relationship, error) {
	query := `
		SELECT ` + bestieColumns + `
		FROM bestie_relationships
		WHERE status = 'accepted' AND id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted relationships: %w", err)
	}
	defer rows.Close()

	var result []*bestie.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		result = append(result, rel)
	}
	return result, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERACTION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// InteractionRepository implements bestie.InteractionRepository for PostgreSQL.
type InteractionRepository struct {
	conn *Connection
}

// NewInteractionRepository creates a new InteractionRepository.
func NewInteractionRepository(conn *Connection) *InteractionRepository {
	return &InteractionRepository{conn: conn}
}

// Append persists an interaction. Interactions are never updated.
func (r *InteractionRepository) Append(ctx context.Context, i *bestie.Interaction) error {
	query := `
		INSERT INTO interactions (id, from_user_id, to_user_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.conn.Exec(ctx, query, i.ID, i.FromUserID, i.ToUserID, i.Kind, i.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("interaction", "Append", shared.ErrAlreadyExists, "interaction already recorded", err)
		}
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

// CountBetween counts interactions in either direction between two users.
func (r *InteractionRepository) CountBetween(ctx context.Context, userA, userB string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM interactions
		WHERE (from_user_id = $1 AND to_user_id = $2)
		   OR (from_user_id = $2 AND to_user_id = $1)
	`
	var count int
	if err := r.conn.QueryRow(ctx, query, userA, userB).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

// DeleteOlderThan bulk-removes interactions created before the threshold,
// at most limit rows per call.
func (r *InteractionRepository) DeleteOlderThan(ctx context.Context, threshold time.Time, limit int) (int, error) {
	query := `
		DELETE FROM interactions
		WHERE id IN (
			SELECT id FROM interactions
			WHERE created_at < $1
			ORDER BY created_at
			LIMIT $2
		)
	`
	tag, err := r.conn.Exec(ctx, query, threshold, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old interactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// MilestoneRepository implements bestie.MilestoneRepository for PostgreSQL.
type MilestoneRepository struct {
	conn *Connection
}

// NewMilestoneRepository creates a new MilestoneRepository.
func NewMilestoneRepository(conn *Connection) *MilestoneRepository {
	return &MilestoneRepository{conn: conn}
}

// Exists reports whether an identical milestone record is already present.
func (r *MilestoneRepository) Exists(ctx context.Context, relationshipID, userID string, kind bestie.MilestoneKind, value int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM milestones
			WHERE relationship_id = $1 AND user_id = $2 AND kind = $3 AND value = $4
		)
	`
	var exists bool
	if err := r.conn.QueryRow(ctx, query, relationshipID, userID, kind, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check milestone existence: %w", err)
	}
	return exists, nil
}

// Create persists a milestone record. The milestones_once constraint catches
// the concurrent-scan race the Exists check cannot.
func (r *MilestoneRepository) Create(ctx context.Context, m *bestie.Milestone) error {
	query := `
		INSERT INTO milestones (
			id, relationship_id, user_id, other_user_id, kind, value, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		m.ID, m.RelationshipID, m.UserID, m.OtherUserID, m.Kind, m.Value, m.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrMilestoneDuplicate
		}
		return fmt.Errorf("failed to create milestone: %w", err)
	}
	return nil
}

// ListForUser returns the user's milestones, newest first.
func (r *MilestoneRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*bestie.Milestone, error) {
	query := `
		SELECT id, relationship_id, user_id, other_user_id, kind, value, created_at
		FROM milestones
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var result []*bestie.Milestone
	for rows.Next() {
		var m bestie.Milestone
		err := rows.Scan(&m.ID, &m.RelationshipID, &m.UserID, &m.OtherUserID, &m.Kind, &m.Value, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}
