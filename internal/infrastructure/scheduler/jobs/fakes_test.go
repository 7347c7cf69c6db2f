package jobs

// Partial fakes for the sweep tests. Each embeds the repository interface
// and implements only what the sweep under test touches.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

type fakeCheckins struct {
	checkin.Repository

	mu       sync.Mutex
	checkins map[string]*checkin.CheckIn

	sharedCompleted map[string]int // "a|b" -> count
	countsByStatus  map[checkin.Status]int
}

func newFakeCheckins() *fakeCheckins {
	return &fakeCheckins{
		checkins:        make(map[string]*checkin.CheckIn),
		sharedCompleted: make(map[string]int),
		countsByStatus:  make(map[checkin.Status]int),
	}
}

func (f *fakeCheckins) add(c *checkin.CheckIn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.checkins[c.ID] = &cp
}

func (f *fakeCheckins) get(id string) *checkin.CheckIn {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.checkins[id]
	return &cp
}

func (f *fakeCheckins) ClaimReminders(_ context.Context, from, to time.Time, limit int) ([]*checkin.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*checkin.CheckIn
	for _, id := range f.sortedIDs() {
		c := f.checkins[id]
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

func (f *fakeCheckins) FindOverdue(_ context.Context, now time.Time, limit int) ([]*checkin.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*checkin.CheckIn
	for _, id := range f.sortedIDs() {
		c := f.checkins[id]
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

func (f *fakeCheckins) EscalateIfActive(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checkins[id]
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

func (f *fakeCheckins) CountSharedCompleted(_ context.Context, userA, userB string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.sharedCompleted[userA+"|"+userB]; ok {
		return n, nil
	}
	return f.sharedCompleted[userB+"|"+userA], nil
}

func (f *fakeCheckins) CountByOwnerAndStatus(_ context.Context, _ string, status checkin.Status) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countsByStatus[status], nil
}

func (f *fakeCheckins) DeleteOlderThan(_ context.Context, threshold time.Time, limit int) (int, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	var paths []string
	for _, id := range f.sortedIDs() {
		if deleted >= limit {
			break
		}
		c := f.checkins[id]
		if c.Status.IsTerminal() && c.UpdatedAt.Before(threshold) {
			if c.PhotoPath != "" {
				paths = append(paths, c.PhotoPath)
			}
			delete(f.checkins, id)
			deleted++
		}
	}
	return deleted, paths, nil
}

func (f *fakeCheckins) sortedIDs() []string {
	ids := make([]string, 0, len(f.checkins))
	for id := range f.checkins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeUsers struct {
	user.Repository

	mu            sync.Mutex
	users         map[string]*user.User
	clearedTokens []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*user.User)}
}

func (f *fakeUsers) add(u *user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ClearPushToken(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.PushToken = ""
	f.clearedTokens = append(f.clearedTokens, id)
	return nil
}

func (f *fakeUsers) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeUsers) ListPage(_ context.Context, afterID string, limit int) ([]*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
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
		cp := *f.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

type fakeBesties struct {
	bestie.Repository

	mu   sync.Mutex
	rels []*bestie.Relationship
}

func (f *fakeBesties) add(r *bestie.Relationship) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.rels = append(f.rels, &cp)
}

func (f *fakeBesties) ListAcceptedPage(_ context.Context, afterID string, limit int) ([]*bestie.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var accepted []*bestie.Relationship
	for _, r := range f.rels {
		if r.Status == bestie.StatusAccepted && r.ID > afterID {
			cp := *r
			accepted = append(accepted, &cp)
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].ID < accepted[j].ID })
	if len(accepted) > limit {
		accepted = accepted[:limit]
	}
	return accepted, nil
}

func (f *fakeBesties) CountAccepted(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rels {
		if r.Status == bestie.StatusAccepted {
			n++
		}
	}
	return n, nil
}

func (f *fakeBesties) CountAcceptedFor(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rels {
		if r.Status == bestie.StatusAccepted && r.InvolvesUser(userID) {
			n++
		}
	}
	return n, nil
}

type fakeMilestones struct {
	bestie.MilestoneRepository

	mu      sync.Mutex
	records []*bestie.Milestone
}

func (f *fakeMilestones) Exists(_ context.Context, relationshipID, userID string, kind bestie.MilestoneKind, value int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.records {
		if m.RelationshipID == relationshipID && m.UserID == userID && m.Kind == kind && m.Value == value {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMilestones) Create(_ context.Context, m *bestie.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.records {
		if ex.RelationshipID == m.RelationshipID && ex.UserID == m.UserID && ex.Kind == m.Kind && ex.Value == m.Value {
			return shared.ErrMilestoneDuplicate
		}
	}
	cp := *m
	f.records = append(f.records, &cp)
	return nil
}

type fakeInteractions struct {
	bestie.InteractionRepository

	mu      sync.Mutex
	batches []int // deletions returned per call, consumed in order
	calls   int
}

func (f *fakeInteractions) DeleteOlderThan(_ context.Context, _ time.Time, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.batches) {
		return 0, nil
	}
	n := f.batches[f.calls]
	f.calls++
	return n, nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   map[string][]notification.Message
	errFor map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		sent:   make(map[string][]notification.Message),
		errFor: make(map[string]error),
	}
}

func (f *fakeSender) Send(_ context.Context, userID string, msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errFor[userID]; ok {
		return err
	}
	f.sent[userID] = append(f.sent[userID], msg)
	return nil
}

func (f *fakeSender) sentTo(userID string) []notification.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[userID]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (f *fakePublisher) Publish(event shared.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type memCursors struct {
	mu      sync.Mutex
	cursors map[string]string
	sets    []string
}

func newMemCursors() *memCursors {
	return &memCursors{cursors: make(map[string]string)}
}

func (m *memCursors) Get(_ context.Context, jobName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[jobName], nil
}

func (m *memCursors) Set(_ context.Context, jobName, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[jobName] = cursor
	m.sets = append(m.sets, cursor)
	return nil
}

func (m *memCursors) Clear(_ context.Context, jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, jobName)
	return nil
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	errFor  map[string]error
}

func (f *fakeRemover) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errFor[path]; ok {
		return err
	}
	f.removed = append(f.removed, path)
	return nil
}

type fakeAnalytics struct {
	analytics.Repository

	mu       sync.Mutex
	snapshot *analytics.Snapshot
}

func (f *fakeAnalytics) Overwrite(_ context.Context, s *analytics.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.snapshot = &cp
	return nil
}

type fakeCache struct {
	mu  sync.Mutex
	set *analytics.Snapshot
	ttl time.Duration
	err error
}

func (f *fakeCache) Get(_ context.Context) (*analytics.Snapshot, error) {
	return nil, shared.ErrNotFound
}

func (f *fakeCache) Set(_ context.Context, s *analytics.Snapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *s
	f.set = &cp
	f.ttl = ttl
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context) error { return nil }
