package stats

// In-memory storage fakes. They mirror the conditional-write semantics of
// the real repositories (zero clamping, presence-conditional edges,
// insert-if-absent ledger claims) because those semantics are exactly what
// the engine tests exercise.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

// ─── users ───────────────────────────────────────────────────────────────────

type memUsers struct {
	mu    sync.Mutex
	users map[string]*user.User

	// failStreakOnce makes the next UpdateStreak call fail, then clears.
	failStreakOnce error
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*user.User)}
}

func (m *memUsers) add(u *user.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	cp.Badges = append([]user.BadgeID(nil), u.Badges...)
	cp.BestieUserIDs = append([]string(nil), u.BestieUserIDs...)
	return &cp, nil
}

func (m *memUsers) GetByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, err := m.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) Update(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[u.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	stored.DisplayName = u.DisplayName
	stored.PushToken = u.PushToken
	stored.KeepForever = u.KeepForever
	stored.PremiumPlan = u.PremiumPlan
	return nil
}

func (m *memUsers) ClearPushToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.PushToken = ""
	return nil
}

func (m *memUsers) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memUsers) ListPage(_ context.Context, afterID string, limit int) ([]*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		cp := *m.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

// StatsWriter side.

func (m *memUsers) AdjustStats(_ context.Context, userID string, d user.StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Stats.TotalCheckIns = clamp(u.Stats.TotalCheckIns + d.TotalCheckIns)
	u.Stats.CompletedCheckIns = clamp(u.Stats.CompletedCheckIns + d.CompletedCheckIns)
	u.Stats.AlertedCheckIns = clamp(u.Stats.AlertedCheckIns + d.AlertedCheckIns)
	u.Stats.TotalBesties = clamp(u.Stats.TotalBesties + d.TotalBesties)
	return nil
}

func (m *memUsers) UpdateStreak(_ context.Context, userID string, upd user.StreakUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStreakOnce != nil {
		err := m.failStreakOnce
		m.failStreakOnce = nil
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Stats.CurrentStreak = upd.CurrentStreak
	u.Stats.DaysActive = upd.DaysActive
	if upd.LongestStreak > u.Stats.LongestStreak {
		u.Stats.LongestStreak = upd.LongestStreak
	}
	if upd.LastActive != nil && (u.Stats.LastActive == nil || u.Stats.LastActive.Before(*upd.LastActive)) {
		t := *upd.LastActive
		u.Stats.LastActive = &t
	}
	return nil
}

func (m *memUsers) TouchLastActive(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if u.Stats.LastActive == nil || u.Stats.LastActive.Before(at) {
		t := at
		u.Stats.LastActive = &t
	}
	return nil
}

func (m *memUsers) GrantBadges(_ context.Context, userID string, badges []user.BadgeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	for _, b := range badges {
		if !u.HasBadge(b) {
			u.Badges = append(u.Badges, b)
		}
	}
	return nil
}

func (m *memUsers) AddBestieEdge(_ context.Context, userID, otherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if u.HasBestie(otherID) {
		return nil
	}
	u.BestieUserIDs = append(u.BestieUserIDs, otherID)
	u.Stats.TotalBesties++
	return nil
}

func (m *memUsers) RemoveBestieEdge(_ context.Context, userID, otherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	for i, id := range u.BestieUserIDs {
		if id == otherID {
			u.BestieUserIDs = append(u.BestieUserIDs[:i], u.BestieUserIDs[i+1:]...)
			u.Stats.TotalBesties = clamp(u.Stats.TotalBesties - 1)
			return nil
		}
	}
	return nil
}

func (m *memUsers) OverwriteStats(_ context.Context, userID string, stats user.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Stats = stats
	return nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// ─── check-ins ───────────────────────────────────────────────────────────────

type memCheckins struct {
	mu       sync.Mutex
	checkins map[string]*checkin.CheckIn
}

func newMemCheckins() *memCheckins {
	return &memCheckins{checkins: make(map[string]*checkin.CheckIn)}
}

func (m *memCheckins) add(c *checkin.CheckIn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.checkins[c.ID] = &cp
}

func (m *memCheckins) Create(_ context.Context, c *checkin.CheckIn) error {
	m.add(c)
	return nil
}

func (m *memCheckins) GetByID(_ context.Context, id string) (*checkin.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, shared.ErrCheckInNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCheckins) CompleteIfActive(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, false, shared.ErrCheckInNotFound
	}
	if c.Status != checkin.StatusActive {
		cp := *c
		return &cp, false, nil
	}
	c.Status = checkin.StatusCompleted
	t := now
	c.CompletedAt = &t
	c.UpdatedAt = now
	cp := *c
	return &cp, true, nil
}

func (m *memCheckins) EscalateIfActive(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, false, shared.ErrCheckInNotFound
	}
	if c.Status != checkin.StatusActive {
		cp := *c
		return &cp, false, nil
	}
	c.Status = checkin.StatusAlerted
	t := now
	c.AlertedAt = &t
	c.UpdatedAt = now
	cp := *c
	return &cp, true, nil
}

func (m *memCheckins) MarkFalseAlarm(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkins[id]
	if !ok {
		return nil, false, shared.ErrCheckInNotFound
	}
	if c.Status != checkin.StatusAlerted {
		cp := *c
		return &cp, false, nil
	}
	c.Status = checkin.StatusFalseAlarm
	c.UpdatedAt = now
	cp := *c
	return &cp, true, nil
}

func (m *memCheckins) ClaimReminders(_ context.Context, from, to time.Time, limit int) ([]*checkin.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*checkin.CheckIn
	for _, c := range m.checkins {
		if len(out) >= limit {
			break
		}
		if c.Status == checkin.StatusActive && !c.ReminderSent &&
			!c.AlertTime.Before(from) && c.AlertTime.Before(to) {
			c.ReminderSent = true
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCheckins) FindOverdue(_ context.Context, now time.Time, limit int) ([]*checkin.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*checkin.CheckIn
	for _, c := range m.checkins {
		if len(out) >= limit {
			break
		}
		if c.Status == checkin.StatusActive && !now.Before(c.AlertTime) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCheckins) CountByOwnerAndStatus(_ context.Context, ownerID string, status checkin.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.checkins {
		if (ownerID == "" || c.OwnerID == ownerID) && c.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memCheckins) CountCompletedInWindow(_ context.Context, ownerID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.checkins {
		if c.OwnerID != ownerID || c.CompletedAt == nil {
			continue
		}
		if !c.CompletedAt.Before(from) && c.CompletedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *memCheckins) CountSharedCompleted(_ context.Context, userA, userB string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.checkins {
		if c.Status != checkin.StatusCompleted {
			continue
		}
		if (c.OwnerID == userA && inCircle(c, userB)) || (c.OwnerID == userB && inCircle(c, userA)) {
			n++
		}
	}
	return n, nil
}

func inCircle(c *checkin.CheckIn, userID string) bool {
	for _, id := range c.CircleUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (m *memCheckins) DeleteOlderThan(_ context.Context, threshold time.Time, limit int) (int, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	var paths []string
	for id, c := range m.checkins {
		if deleted >= limit {
			break
		}
		if c.Status.IsTerminal() && c.UpdatedAt.Before(threshold) {
			if c.PhotoPath != "" {
				paths = append(paths, c.PhotoPath)
			}
			delete(m.checkins, id)
			deleted++
		}
	}
	return deleted, paths, nil
}

// ─── besties ─────────────────────────────────────────────────────────────────

type memBesties struct {
	mu   sync.Mutex
	rels map[string]*bestie.Relationship
}

func newMemBesties() *memBesties {
	return &memBesties{rels: make(map[string]*bestie.Relationship)}
}

func (m *memBesties) add(r *bestie.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rels[r.ID] = &cp
}

func (m *memBesties) Create(_ context.Context, r *bestie.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.rels {
		if ex.Status != bestie.StatusPending && ex.Status != bestie.StatusAccepted {
			continue
		}
		if (ex.RequesterID == r.RequesterID && ex.RecipientID == r.RecipientID) ||
			(ex.RequesterID == r.RecipientID && ex.RecipientID == r.RequesterID) {
			return shared.ErrBestieExists
		}
	}
	cp := *r
	m.rels[r.ID] = &cp
	return nil
}

func (m *memBesties) GetByID(_ context.Context, id string) (*bestie.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rels[id]
	if !ok {
		return nil, shared.ErrBestieNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memBesties) GetByPair(_ context.Context, userA, userB string) (*bestie.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rels {
		if r.Status != bestie.StatusPending && r.Status != bestie.StatusAccepted {
			continue
		}
		if (r.RequesterID == userA && r.RecipientID == userB) ||
			(r.RequesterID == userB && r.RecipientID == userA) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, shared.ErrBestieNotFound
}

func (m *memBesties) UpdateStatus(_ context.Context, id string, expected, next bestie.Status, now time.Time) (*bestie.Relationship, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rels[id]
	if !ok {
		return nil, false, shared.ErrBestieNotFound
	}
	if r.Status != expected {
		cp := *r
		return &cp, false, nil
	}
	r.Status = next
	if next == bestie.StatusAccepted {
		t := now
		r.AcceptedAt = &t
	}
	r.UpdatedAt = now
	cp := *r
	return &cp, true, nil
}

func (m *memBesties) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rels[id]; !ok {
		return shared.ErrBestieNotFound
	}
	delete(m.rels, id)
	return nil
}

func (m *memBesties) CountAcceptedFor(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rels {
		if r.Status == bestie.StatusAccepted && r.InvolvesUser(userID) {
			n++
		}
	}
	return n, nil
}

func (m *memBesties) CountAccepted(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rels {
		if r.Status == bestie.StatusAccepted {
			n++
		}
	}
	return n, nil
}

func (m *memBesties) ListAcceptedPage(_ context.Context, afterID string, limit int) ([]*bestie.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rels))
	for id, r := range m.rels {
		if r.Status == bestie.StatusAccepted && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*bestie.Relationship, 0, len(ids))
	for _, id := range ids {
		cp := *m.rels[id]
		out = append(out, &cp)
	}
	return out, nil
}

// ─── analytics ───────────────────────────────────────────────────────────────

type memAnalytics struct {
	mu       sync.Mutex
	snapshot analytics.Snapshot
	failNext bool
}

func (m *memAnalytics) Get(_ context.Context) (*analytics.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.snapshot
	return &cp, nil
}

func (m *memAnalytics) Adjust(_ context.Context, d analytics.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return shared.ErrServiceUnavailable
	}
	m.snapshot.TotalUsers = clamp(m.snapshot.TotalUsers + d.TotalUsers)
	m.snapshot.TotalCheckIns = clamp(m.snapshot.TotalCheckIns + d.TotalCheckIns)
	m.snapshot.CompletedCheckIns = clamp(m.snapshot.CompletedCheckIns + d.CompletedCheckIns)
	m.snapshot.AlertedCheckIns = clamp(m.snapshot.AlertedCheckIns + d.AlertedCheckIns)
	m.snapshot.AcceptedBesties = clamp(m.snapshot.AcceptedBesties + d.AcceptedBesties)
	return nil
}

func (m *memAnalytics) Overwrite(_ context.Context, s *analytics.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = *s
	return nil
}

// ─── ledger ──────────────────────────────────────────────────────────────────

type memLedger struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

func newMemLedger() *memLedger {
	return &memLedger{claims: make(map[string]struct{})}
}

func (m *memLedger) Claim(_ context.Context, aggregateID, transition string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aggregateID + "|" + transition
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = struct{}{}
	return true, nil
}

func (m *memLedger) Release(_ context.Context, aggregateID, transition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, aggregateID+"|"+transition)
	return nil
}
