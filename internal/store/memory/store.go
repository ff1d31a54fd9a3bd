// Package memory keeps the permission catalog and users in process memory.
// It backs tests and the "memory" storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"stockhelper.org/internal/auth"
)

type userRow struct {
	name     string
	password string
	active   bool
}

// Store implements auth.Store with in-process concurrency safety.
// Each call is atomic: it validates everything before mutating.
type Store struct {
	mu sync.RWMutex

	patents  map[uuid.UUID]string
	families map[uuid.UUID]string
	links    map[uuid.UUID]map[uuid.UUID]struct{} // family -> patents
	users    map[uuid.UUID]userRow
	members  map[uuid.UUID]map[uuid.UUID]struct{} // user -> families
}

var _ auth.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		patents:  make(map[uuid.UUID]string),
		families: make(map[uuid.UUID]string),
		links:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		users:    make(map[uuid.UUID]userRow),
		members:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// --- patents ---

func (s *Store) ListPatents(ctx context.Context) ([]*auth.Patent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.Patent, 0, len(s.patents))
	for id, name := range s.patents {
		out = append(out, &auth.Patent{Meta: auth.Meta{ID: id, Name: name}})
	}
	sortPatents(out)
	return out, nil
}

func (s *Store) GetPatent(ctx context.Context, id uuid.UUID) (*auth.Patent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.patents[id]
	if !ok {
		return nil, fmt.Errorf("%w: patent %s", auth.ErrNotFound, id)
	}
	return &auth.Patent{Meta: auth.Meta{ID: id, Name: name}}, nil
}

func (s *Store) CreatePatent(ctx context.Context, p *auth.Patent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patents[p.ID]; ok {
		return fmt.Errorf("%w: patent id %s already exists", auth.ErrBusinessRule, p.ID)
	}
	if nameTaken(s.patents, p.Name, p.ID) {
		return fmt.Errorf("%w: patent %q already exists", auth.ErrBusinessRule, p.Name)
	}
	s.patents[p.ID] = p.Name
	return nil
}

func (s *Store) UpdatePatent(ctx context.Context, p *auth.Patent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patents[p.ID]; !ok {
		return fmt.Errorf("%w: patent %s", auth.ErrNotFound, p.ID)
	}
	if nameTaken(s.patents, p.Name, p.ID) {
		return fmt.Errorf("%w: patent %q already exists", auth.ErrBusinessRule, p.Name)
	}
	s.patents[p.ID] = p.Name
	return nil
}

func (s *Store) DeletePatent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patents[id]; !ok {
		return fmt.Errorf("%w: patent %s", auth.ErrNotFound, id)
	}
	for _, children := range s.links {
		delete(children, id)
	}
	delete(s.patents, id)
	return nil
}

// --- families ---

func (s *Store) ListFamilies(ctx context.Context) ([]*auth.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.Family, 0, len(s.families))
	for id := range s.families {
		out = append(out, s.family(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetFamily(ctx context.Context, id uuid.UUID) (*auth.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.families[id]; !ok {
		return nil, fmt.Errorf("%w: family %s", auth.ErrNotFound, id)
	}
	return s.family(id), nil
}

func (s *Store) GetFamilyByName(ctx context.Context, name string) (*auth.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, n := range s.families {
		if n == name {
			return s.family(id), nil
		}
	}
	return nil, fmt.Errorf("%w: family %q", auth.ErrNotFound, name)
}

func (s *Store) CreateFamily(ctx context.Context, f *auth.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.families[f.ID]; ok {
		return fmt.Errorf("%w: family id %s already exists", auth.ErrBusinessRule, f.ID)
	}
	if nameTaken(s.families, f.Name, f.ID) {
		return fmt.Errorf("%w: family %q already exists", auth.ErrBusinessRule, f.Name)
	}
	children := make(map[uuid.UUID]struct{})
	for _, id := range f.ChildIDs() {
		if _, ok := s.patents[id]; !ok {
			return fmt.Errorf("%w: patent %s", auth.ErrReferenceNotFound, id)
		}
		children[id] = struct{}{}
	}
	s.families[f.ID] = f.Name
	s.links[f.ID] = children
	return nil
}

func (s *Store) UpdateFamily(ctx context.Context, f *auth.Family, added, removed []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.families[f.ID]; !ok {
		return fmt.Errorf("%w: family %s", auth.ErrNotFound, f.ID)
	}
	if nameTaken(s.families, f.Name, f.ID) {
		return fmt.Errorf("%w: family %q already exists", auth.ErrBusinessRule, f.Name)
	}
	for _, id := range added {
		if _, ok := s.patents[id]; !ok {
			return fmt.Errorf("%w: patent %s", auth.ErrReferenceNotFound, id)
		}
	}
	children := s.links[f.ID]
	if children == nil {
		children = make(map[uuid.UUID]struct{})
		s.links[f.ID] = children
	}
	for _, id := range added {
		children[id] = struct{}{}
	}
	for _, id := range removed {
		delete(children, id)
	}
	s.families[f.ID] = f.Name
	return nil
}

func (s *Store) DeleteFamily(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.families[id]; !ok {
		return fmt.Errorf("%w: family %s", auth.ErrNotFound, id)
	}
	for _, fams := range s.members {
		if _, ok := fams[id]; ok {
			return fmt.Errorf("%w: family %s still has members", auth.ErrBusinessRule, id)
		}
	}
	delete(s.links, id)
	delete(s.families, id)
	return nil
}

func (s *Store) FamilyMembers(ctx context.Context, id uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for uid, fams := range s.members {
		if _, ok := fams[id]; ok {
			names = append(names, s.users[uid].name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *auth.User, familyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("%w: user id %s already exists", auth.ErrBusinessRule, u.ID)
	}
	if s.userNameTaken(u.Name, u.ID) {
		return fmt.Errorf("%w: user %q already exists", auth.ErrBusinessRule, u.Name)
	}
	if _, ok := s.families[familyID]; !ok {
		return fmt.Errorf("%w: family %s", auth.ErrReferenceNotFound, familyID)
	}
	s.users[u.ID] = userRow{name: u.Name, password: u.Password, active: u.IsActive}
	s.members[u.ID] = map[uuid.UUID]struct{}{familyID: {}}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	return toUser(id, row), nil
}

func (s *Store) GetUserByName(ctx context.Context, name string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, row := range s.users {
		if row.name == name {
			return toUser(id, row), nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", auth.ErrNotFound, name)
}

func (s *Store) ListUsers(ctx context.Context, activeOnly bool) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*auth.User
	for id, row := range s.users {
		if activeOnly && !row.active {
			continue
		}
		out = append(out, toUser(id, row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *auth.User, familyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, u.ID)
	}
	if s.userNameTaken(u.Name, u.ID) {
		return fmt.Errorf("%w: user %q already exists", auth.ErrBusinessRule, u.Name)
	}
	if familyID != uuid.Nil {
		if _, ok := s.families[familyID]; !ok {
			return fmt.Errorf("%w: family %s", auth.ErrReferenceNotFound, familyID)
		}
		s.members[u.ID] = map[uuid.UUID]struct{}{familyID: {}}
	}
	s.users[u.ID] = userRow{name: u.Name, password: u.Password, active: u.IsActive}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	delete(s.members, id)
	delete(s.users, id)
	return nil
}

func (s *Store) UserFamilies(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID][]uuid.UUID, len(userIDs))
	for _, uid := range userIDs {
		for fid := range s.members[uid] {
			out[uid] = append(out[uid], fid)
		}
	}
	return out, nil
}

// --- helpers ---

// family builds a detached family with its patents ordered by name. Caller holds the lock.
func (s *Store) family(id uuid.UUID) *auth.Family {
	var children []*auth.Patent
	for pid := range s.links[id] {
		children = append(children, &auth.Patent{Meta: auth.Meta{ID: pid, Name: s.patents[pid]}})
	}
	sortPatents(children)
	f := auth.NewFamily(s.families[id])
	f.ID = id
	for _, p := range children {
		_ = f.AddChild(p)
	}
	return f
}

func (s *Store) userNameTaken(name string, self uuid.UUID) bool {
	for id, row := range s.users {
		if row.name == name && id != self {
			return true
		}
	}
	return false
}

func nameTaken(names map[uuid.UUID]string, name string, self uuid.UUID) bool {
	for id, n := range names {
		if n == name && id != self {
			return true
		}
	}
	return false
}

func sortPatents(ps []*auth.Patent) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
}

func toUser(id uuid.UUID, row userRow) *auth.User {
	return &auth.User{ID: id, Name: row.name, Password: row.password, IsActive: row.active}
}
