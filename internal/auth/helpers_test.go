package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/store/memory"
)

// countingStore wraps the memory store and records calls the tests care about.
type countingStore struct {
	*memory.Store

	mu            sync.Mutex
	listPatents   int
	userFamilies  int
	lastAdded     []uuid.UUID
	lastRemoved   []uuid.UUID
	failUserByKey error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New()}
}

func (s *countingStore) ListPatents(ctx context.Context) ([]*auth.Patent, error) {
	s.mu.Lock()
	s.listPatents++
	s.mu.Unlock()
	return s.Store.ListPatents(ctx)
}

func (s *countingStore) UserFamilies(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	s.mu.Lock()
	s.userFamilies++
	s.mu.Unlock()
	return s.Store.UserFamilies(ctx, ids)
}

func (s *countingStore) UpdateFamily(ctx context.Context, f *auth.Family, added, removed []uuid.UUID) error {
	s.mu.Lock()
	s.lastAdded, s.lastRemoved = added, removed
	s.mu.Unlock()
	return s.Store.UpdateFamily(ctx, f, added, removed)
}

func (s *countingStore) GetUserByName(ctx context.Context, name string) (*auth.User, error) {
	if s.failUserByKey != nil {
		return nil, s.failUserByKey
	}
	return s.Store.GetUserByName(ctx, name)
}

func (s *countingStore) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPatents
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// constReader yields the same byte forever, so every generated id is identical.
type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

type fixture struct {
	store *countingStore
	clock *testClock
	perms *auth.PermissionService
	users *auth.UserService
	login *auth.LoginService
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	f := &fixture{store: newCountingStore(), clock: newTestClock()}
	base := []auth.Option{auth.WithClock(f.clock.Now), auth.WithLogger(zerolog.Nop())}
	opts = append(base, opts...)

	var err error
	if f.perms, err = auth.NewPermissionService(f.store, opts...); err != nil {
		t.Fatalf("NewPermissionService: %v", err)
	}
	if f.users, err = auth.NewUserService(f.store, f.perms, opts...); err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	if f.login, err = auth.NewLoginService(f.users, opts...); err != nil {
		t.Fatalf("NewLoginService: %v", err)
	}
	return f
}

func (f *fixture) patent(t *testing.T, name string) *auth.Patent {
	t.Helper()
	p := auth.NewPatent(name)
	if err := f.perms.Insert(context.Background(), p); err != nil {
		t.Fatalf("insert patent %s: %v", name, err)
	}
	return p
}

func (f *fixture) family(t *testing.T, name string, children ...auth.Component) *auth.Family {
	t.Helper()
	fam := auth.NewFamily(name, children...)
	if err := f.perms.Insert(context.Background(), fam); err != nil {
		t.Fatalf("insert family %s: %v", name, err)
	}
	return fam
}

func (f *fixture) user(t *testing.T, name, role string) *auth.User {
	t.Helper()
	u := &auth.User{Name: name, Password: "secret-" + name, IsActive: true, Role: role}
	if err := f.users.Insert(context.Background(), u); err != nil {
		t.Fatalf("insert user %s: %v", name, err)
	}
	return u
}
