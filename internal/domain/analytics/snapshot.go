// Package analytics contains the system-wide aggregate cache model.
// The cache is a materialized view over the source collections - an
// accelerator, never ground truth. The rebuild-from-source operation is the
// designated repair path when anything drifts.
package analytics

import (
	"context"
	"time"
)

// Snapshot holds the system-wide aggregate counters. Each field follows the
// single-writer rule: only the stats engine adjusts it incrementally, and
// only the rebuild operation overwrites it wholesale.
type Snapshot struct {
	TotalUsers        int
	TotalCheckIns     int
	CompletedCheckIns int
	AlertedCheckIns   int
	AcceptedBesties   int

	// RebuiltAt is set when the snapshot was last rebuilt from source.
	RebuiltAt time.Time
	UpdatedAt time.Time
}

// Delta is a conditional adjustment to the aggregate counters, derived from
// a single authoritative transition.
type Delta struct {
	TotalUsers        int
	TotalCheckIns     int
	CompletedCheckIns int
	AlertedCheckIns   int
	AcceptedBesties   int
}

// IsZero returns true if the delta adjusts nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Repository defines storage for the persisted aggregate cache row.
type Repository interface {
	// Get returns the current snapshot.
	Get(ctx context.Context) (*Snapshot, error)

	// Adjust applies a delta in one conditional statement, clamping at
	// zero. Reserved for the stats engine.
	Adjust(ctx context.Context, delta Delta) error

	// Overwrite replaces the snapshot with freshly recomputed values.
	// Reserved for the rebuild operation.
	Overwrite(ctx context.Context, s *Snapshot) error
}

// Cache is the read-side accelerator copy of the snapshot (Redis). Callers
// fall back to the Repository on a miss; the cache is refreshed after every
// rebuild and is allowed to lag between rebuilds.
type Cache interface {
	Get(ctx context.Context) (*Snapshot, error)
	Set(ctx context.Context, s *Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}
