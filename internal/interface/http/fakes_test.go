package http

// Partial fakes for the handler tests. Each embeds the repository interface
// and implements only what the routes under test touch.

import (
	"context"
	"sync"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

type fakeUsers struct {
	user.Repository

	mu   sync.Mutex
	byID map[string]*user.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*user.User)}
}

func (f *fakeUsers) add(u *user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.byID[u.ID] = &cp
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[u.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeCheckins struct {
	checkin.Repository

	mu   sync.Mutex
	byID map[string]*checkin.CheckIn
}

func newFakeCheckins() *fakeCheckins {
	return &fakeCheckins{byID: make(map[string]*checkin.CheckIn)}
}

func (f *fakeCheckins) add(c *checkin.CheckIn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
}

func (f *fakeCheckins) Create(_ context.Context, c *checkin.CheckIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeCheckins) GetByID(_ context.Context, id string) (*checkin.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrCheckInNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCheckins) CompleteIfActive(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
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
	cp := *c
	return &cp, true, nil
}

func (f *fakeCheckins) MarkFalseAlarm(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, false, shared.ErrCheckInNotFound
	}
	if c.Status != checkin.StatusAlerted {
		cp := *c
		return &cp, false, nil
	}
	c.Status = checkin.StatusFalseAlarm
	cp := *c
	return &cp, true, nil
}

func (f *fakeCheckins) CountByOwnerAndStatus(_ context.Context, ownerID string, status checkin.Status) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.byID {
		if c.OwnerID == ownerID && (status == "" || c.Status == status) {
			n++
		}
	}
	return n, nil
}

type fakeBesties struct {
	bestie.Repository

	mu   sync.Mutex
	byID map[string]*bestie.Relationship
}

func newFakeBesties() *fakeBesties {
	return &fakeBesties{byID: make(map[string]*bestie.Relationship)}
}

func (f *fakeBesties) add(r *bestie.Relationship) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.byID[r.ID] = &cp
}

func (f *fakeBesties) Create(_ context.Context, r *bestie.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.byID {
		if ex.InvolvesUser(r.RequesterID) && ex.InvolvesUser(r.RecipientID) {
			return shared.ErrBestieExists
		}
	}
	cp := *r
	f.byID[r.ID] = &cp
	return nil
}

func (f *fakeBesties) GetByID(_ context.Context, id string) (*bestie.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrBestieNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeBesties) GetByPair(_ context.Context, userA, userB string) (*bestie.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.InvolvesUser(userA) && r.InvolvesUser(userB) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, shared.ErrBestieNotFound
}

func (f *fakeBesties) UpdateStatus(_ context.Context, id string, expected, next bestie.Status, now time.Time) (*bestie.Relationship, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
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
	cp := *r
	return &cp, true, nil
}

func (f *fakeBesties) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return shared.ErrBestieNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeBesties) CountAcceptedFor(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.byID {
		if r.Status == bestie.StatusAccepted && r.InvolvesUser(userID) {
			n++
		}
	}
	return n, nil
}

type fakeMilestones struct {
	bestie.MilestoneRepository

	milestones []*bestie.Milestone
}

func (f *fakeMilestones) ListForUser(_ context.Context, userID string, limit int) ([]*bestie.Milestone, error) {
	var out []*bestie.Milestone
	for _, m := range f.milestones {
		if m.UserID == userID && len(out) < limit {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeInteractions struct {
	bestie.InteractionRepository

	mu       sync.Mutex
	appended []*bestie.Interaction
}

func (f *fakeInteractions) Append(_ context.Context, i *bestie.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *i
	f.appended = append(f.appended, &cp)
	return nil
}

type fakeAnalyticsRepo struct {
	analytics.Repository

	snapshot *analytics.Snapshot
}

func (f *fakeAnalyticsRepo) Get(context.Context) (*analytics.Snapshot, error) {
	if f.snapshot == nil {
		return nil, shared.ErrNotFound
	}
	cp := *f.snapshot
	return &cp, nil
}

type fakeCache struct {
	snapshot *analytics.Snapshot
}

func (f *fakeCache) Get(context.Context) (*analytics.Snapshot, error) {
	if f.snapshot == nil {
		return nil, shared.ErrNotFound
	}
	cp := *f.snapshot
	return &cp, nil
}

func (f *fakeCache) Set(_ context.Context, s *analytics.Snapshot, _ time.Duration) error {
	cp := *s
	f.snapshot = &cp
	return nil
}

func (f *fakeCache) Invalidate(context.Context) error {
	f.snapshot = nil
	return nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

type nopSender struct{}

func (nopSender) Send(context.Context, string, notification.Message) error { return nil }
