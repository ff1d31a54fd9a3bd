package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const minUserNameLen = 3

// UserService manages users and their role membership.
type UserService struct {
	store UserStore
	perms *PermissionService
	cfg   settings
}

// NewUserService constructs the service. Roles are resolved through perms.
func NewUserService(store UserStore, perms *PermissionService, opts ...Option) (*UserService, error) {
	if store == nil {
		return nil, errors.New("auth: user store is required")
	}
	if perms == nil {
		return nil, errors.New("auth: permission service is required")
	}
	cfg, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	cfg.log = cfg.log.With().Str("component", "users").Logger()
	return &UserService{store: store, perms: perms, cfg: cfg}, nil
}

// Insert creates u and links it to the family named by u.Role.
// On success u carries its new id, the stored password and its family.
func (s *UserService) Insert(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if err := normalizeUser(u, true); err != nil {
		return err
	}

	if _, err := s.store.GetUserByName(ctx, u.Name); err == nil {
		return fmt.Errorf("%w: user %q already exists", ErrBusinessRule, u.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	family, err := s.roleFamily(ctx, u.Role)
	if err != nil {
		return err
	}
	id, err := NewUniqueID(ctx, s.cfg.random, s.cfg.idAttempts, s.Exists)
	if err != nil {
		return err
	}
	stored, err := s.storedPassword(u.Password)
	if err != nil {
		return err
	}

	row := *u
	row.ID = id
	row.Password = stored
	row.Permissions = nil
	if err := s.store.CreateUser(ctx, &row, family.ID); err != nil {
		return err
	}

	u.ID = id
	u.Password = stored
	u.Permissions = []Component{family}
	s.cfg.log.Info().
		Str("id", id.String()).
		Str("user", u.Name).
		Str("role", family.Name).
		Msg("user created")
	return nil
}

// Update rewrites name, activity, password and role of an existing user.
// An empty password keeps the stored one; an empty role keeps the membership.
func (s *UserService) Update(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if u.ID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := normalizeUser(u, false); err != nil {
		return err
	}

	current, err := s.store.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if current.Name != u.Name {
		if other, err := s.store.GetUserByName(ctx, u.Name); err == nil && other.ID != u.ID {
			return fmt.Errorf("%w: user %q already exists", ErrBusinessRule, u.Name)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	row := *u
	row.Permissions = nil
	switch {
	case u.Password == "":
		row.Password = current.Password
	case u.Password != current.Password:
		if row.Password, err = s.storedPassword(u.Password); err != nil {
			return err
		}
	}

	familyID := uuid.Nil
	var family *Family
	if u.Role != "" {
		if family, err = s.roleFamily(ctx, u.Role); err != nil {
			return err
		}
		familyID = family.ID
	}
	if err := s.store.UpdateUser(ctx, &row, familyID); err != nil {
		return err
	}

	u.Password = row.Password
	if family != nil {
		u.Permissions = []Component{family}
	}
	s.cfg.log.Info().Str("id", u.ID.String()).Str("user", u.Name).Msg("user updated")
	return nil
}

// Delete removes the user and its membership links.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.cfg.log.Info().Str("id", id.String()).Msg("user deleted")
	return nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, []*User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) GetByName(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	u, err := s.store.GetUserByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, []*User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

// GetAllActive returns active users with their families attached.
func (s *UserService) GetAllActive(ctx context.Context) ([]*User, error) {
	return s.list(ctx, true)
}

// GetAll returns every user with their families attached.
func (s *UserService) GetAll(ctx context.Context) ([]*User, error) {
	return s.list(ctx, false)
}

func (s *UserService) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.store.GetUser(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *UserService) list(ctx context.Context, activeOnly bool) ([]*User, error) {
	users, err := s.store.ListUsers(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// hydrate attaches families to users with one membership query for the whole batch.
func (s *UserService) hydrate(ctx context.Context, users []*User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	links, err := s.store.UserFamilies(ctx, ids)
	if err != nil {
		return err
	}
	cat, err := s.perms.snapshot(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		var families []*Family
		for _, fid := range links[u.ID] {
			if f, ok := cat.byID[fid].(*Family); ok {
				families = append(families, f)
			}
		}
		sort.Slice(families, func(i, j int) bool { return families[i].Name < families[j].Name })
		u.Permissions = make([]Component, 0, len(families))
		for _, f := range families {
			u.Permissions = append(u.Permissions, f)
		}
		if len(families) > 0 {
			u.Role = families[0].Name
		}
	}
	return nil
}

func (s *UserService) roleFamily(ctx context.Context, role string) (*Family, error) {
	family, err := s.perms.FamilyByName(ctx, role)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: role %q", ErrReferenceNotFound, role)
	}
	return family, err
}

func (s *UserService) storedPassword(password string) (string, error) {
	if s.cfg.passwordMode == PasswordModePlain {
		return password, nil
	}
	return HashPassword(password)
}

func normalizeUser(u *User, creating bool) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Role = strings.TrimSpace(u.Role)
	if u.Name == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(u.Name) < minUserNameLen {
		return fmt.Errorf("%w: user name must be at least %d characters", ErrInvalidInput, minUserNameLen)
	}
	if creating && u.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if creating && u.Role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	return nil
}
