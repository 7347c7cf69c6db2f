package command

// Partial stubs for the command handler tests. Each embeds the repository
// interface and implements only what the handler under test touches.

import (
	"context"
	"sync"
	"time"

	"github.com/safecircle-app/safecircle/internal/domain/bestie"
	"github.com/safecircle-app/safecircle/internal/domain/checkin"
	"github.com/safecircle-app/safecircle/internal/domain/notification"
	"github.com/safecircle-app/safecircle/internal/domain/shared"
	"github.com/safecircle-app/safecircle/internal/domain/user"
)

type stubCheckins struct {
	checkin.Repository

	mu        sync.Mutex
	byID      map[string]*checkin.CheckIn
	created   []*checkin.CheckIn
	createErr error
}

func newStubCheckins() *stubCheckins {
	return &stubCheckins{byID: make(map[string]*checkin.CheckIn)}
}

func (s *stubCheckins) add(c *checkin.CheckIn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.byID[c.ID] = &cp
}

func (s *stubCheckins) Create(_ context.Context, c *checkin.CheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *c
	s.byID[c.ID] = &cp
	s.created = append(s.created, &cp)
	return nil
}

func (s *stubCheckins) GetByID(_ context.Context, id string) (*checkin.CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrCheckInNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *stubCheckins) CompleteIfActive(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
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

func (s *stubCheckins) MarkFalseAlarm(_ context.Context, id string, now time.Time) (*checkin.CheckIn, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
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

type stubBesties struct {
	bestie.Repository

	mu        sync.Mutex
	byID      map[string]*bestie.Relationship
	createErr error
	deleteErr error
}

func newStubBesties() *stubBesties {
	return &stubBesties{byID: make(map[string]*bestie.Relationship)}
}

func (s *stubBesties) add(r *bestie.Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.byID[r.ID] = &cp
}

func (s *stubBesties) Create(_ context.Context, r *bestie.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *r
	s.byID[r.ID] = &cp
	return nil
}

func (s *stubBesties) GetByID(_ context.Context, id string) (*bestie.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrBestieNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *stubBesties) GetByPair(_ context.Context, userA, userB string) (*bestie.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.InvolvesUser(userA) && r.InvolvesUser(userB) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, shared.ErrBestieNotFound
}

func (s *stubBesties) UpdateStatus(_ context.Context, id string, expected, next bestie.Status, now time.Time) (*bestie.Relationship, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
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

func (s *stubBesties) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.byID[id]; !ok {
		return shared.ErrBestieNotFound
	}
	delete(s.byID, id)
	return nil
}

type stubUsers struct {
	user.Repository

	mu        sync.Mutex
	byID      map[string]*user.User
	createErr error
}

func newStubUsers() *stubUsers {
	return &stubUsers{byID: make(map[string]*user.User)}
}

func (s *stubUsers) add(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.byID[u.ID] = &cp
}

func (s *stubUsers) Create(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byID[u.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	cp := *u
	s.byID[u.ID] = &cp
	return nil
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type stubInteractions struct {
	bestie.InteractionRepository

	mu       sync.Mutex
	appended []*bestie.Interaction
}

func (s *stubInteractions) Append(_ context.Context, i *bestie.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.appended = append(s.appended, &cp)
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (s *stubPublisher) Publish(event shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubPublisher) types() []shared.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]shared.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType())
	}
	return out
}

type stubSender struct {
	mu     sync.Mutex
	sent   map[string][]notification.Message
	errFor map[string]error
}

func newStubSender() *stubSender {
	return &stubSender{
		sent:   make(map[string][]notification.Message),
		errFor: make(map[string]error),
	}
}

func (s *stubSender) Send(_ context.Context, userID string, msg notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errFor[userID]; ok {
		return err
	}
	s.sent[userID] = append(s.sent[userID], msg)
	return nil
}

type stubRegistrar struct {
	mu         sync.Mutex
	registered []string
	err        error
}

func (s *stubRegistrar) RegisterUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.registered = append(s.registered, userID)
	return nil
}
