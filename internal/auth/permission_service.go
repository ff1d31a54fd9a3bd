package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stockhelper.org/internal/cache"
	"stockhelper.org/internal/obs"
)

// PermissionService owns the patent and family catalog and the cache in front of it.
// Components it returns are shared with the cache; mutate them only to pass them back to Update.
type PermissionService struct {
	store ComponentStore
	cfg   settings
	cache *cache.Snapshot[*catalog]
}

type catalog struct {
	all      []Component
	byID     map[uuid.UUID]Component
	patents  []*Patent
	families []*Family
}

// NewPermissionService constructs the service over store.
func NewPermissionService(store ComponentStore, opts ...Option) (*PermissionService, error) {
	if store == nil {
		return nil, errors.New("auth: component store is required")
	}
	cfg, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	cfg.log = cfg.log.With().Str("component", "permissions").Logger()
	return &PermissionService{
		store: store,
		cfg:   cfg,
		cache: cache.New[*catalog](cfg.cacheTTL, cfg.now),
	}, nil
}

// GetAll returns every patent followed by every family.
func (s *PermissionService) GetAll(ctx context.Context) ([]Component, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]Component(nil), c.all...), nil
}

// Patents returns the cached patents ordered by name.
func (s *PermissionService) Patents(ctx context.Context) ([]*Patent, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]*Patent(nil), c.patents...), nil
}

// Families returns the cached families ordered by name.
func (s *PermissionService) Families(ctx context.Context) ([]*Family, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]*Family(nil), c.families...), nil
}

// GetByID returns the component with id, or nil when there is none.
func (s *PermissionService) GetByID(ctx context.Context, id uuid.UUID) (Component, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	comp, ok := c.byID[id]
	if !ok {
		return nil, nil
	}
	return comp, nil
}

func (s *PermissionService) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	comp, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return comp != nil, nil
}

// FamilyByName looks a family up by its exact name.
func (s *PermissionService) FamilyByName(ctx context.Context, name string) (*Family, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range c.families {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: family %q", ErrNotFound, name)
}

// Insert persists a new component. Patents keep a preset id; families always get a fresh one.
func (s *PermissionService) Insert(ctx context.Context, c Component) error {
	if c == nil {
		return fmt.Errorf("%w: component is required", ErrInvalidInput)
	}
	meta := c.Identity()
	meta.Name = strings.TrimSpace(meta.Name)
	if meta.Name == "" {
		return fmt.Errorf("%w: component name is required", ErrInvalidInput)
	}
	defer s.InvalidateCache()

	prevID := meta.ID
	var err error
	switch v := c.(type) {
	case *Patent:
		if v.ID == uuid.Nil {
			if v.ID, err = s.newID(ctx); err != nil {
				return err
			}
		}
		err = s.store.CreatePatent(ctx, v)
	case *Family:
		if v.ID, err = s.newID(ctx); err != nil {
			meta.ID = prevID
			return err
		}
		err = s.store.CreateFamily(ctx, v)
	default:
		return fmt.Errorf("%w: unsupported component kind %q", ErrInvalidInput, c.Kind())
	}
	if err != nil {
		meta.ID = prevID
		return err
	}
	s.cfg.log.Info().
		Str("kind", string(c.Kind())).
		Str("id", meta.ID.String()).
		Str("name", meta.Name).
		Msg("component created")
	return nil
}

// Update rewrites a stored component. For a family the child links are diffed against the store.
func (s *PermissionService) Update(ctx context.Context, c Component) error {
	if c == nil {
		return fmt.Errorf("%w: component is required", ErrInvalidInput)
	}
	meta := c.Identity()
	meta.Name = strings.TrimSpace(meta.Name)
	if meta.ID == uuid.Nil {
		return fmt.Errorf("%w: component id is required", ErrInvalidInput)
	}
	if meta.Name == "" {
		return fmt.Errorf("%w: component name is required", ErrInvalidInput)
	}
	defer s.InvalidateCache()

	switch v := c.(type) {
	case *Patent:
		if err := s.store.UpdatePatent(ctx, v); err != nil {
			return err
		}
	case *Family:
		current, err := s.store.GetFamily(ctx, v.ID)
		if err != nil {
			return err
		}
		added, removed := DiffChildren(current.ChildIDs(), v.ChildIDs())
		if err := s.store.UpdateFamily(ctx, v, added, removed); err != nil {
			return err
		}
		s.cfg.log.Debug().
			Str("id", v.ID.String()).
			Int("added", len(added)).
			Int("removed", len(removed)).
			Msg("family links updated")
	default:
		return fmt.Errorf("%w: unsupported component kind %q", ErrInvalidInput, c.Kind())
	}
	s.cfg.log.Info().
		Str("kind", string(c.Kind())).
		Str("id", meta.ID.String()).
		Msg("component updated")
	return nil
}

// Delete removes a component. A family still held by users is kept and
// the call fails with *FamilyInUseError.
func (s *PermissionService) Delete(ctx context.Context, id uuid.UUID) error {
	defer s.InvalidateCache()

	comp, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if comp == nil {
		return fmt.Errorf("%w: component %s", ErrNotFound, id)
	}
	switch comp.Kind() {
	case KindFamily:
		members, err := s.store.FamilyMembers(ctx, id)
		if err != nil {
			return err
		}
		if len(members) > 0 {
			s.cfg.log.Warn().
				Str("family", comp.Identity().Name).
				Strs("users", members).
				Msg("family delete refused")
			return &FamilyInUseError{Family: comp.Identity().Name, Users: members}
		}
		err = s.store.DeleteFamily(ctx, id)
	default:
		err = s.store.DeletePatent(ctx, id)
	}
	if err != nil {
		return err
	}
	s.cfg.log.Info().
		Str("kind", string(comp.Kind())).
		Str("id", id.String()).
		Msg("component deleted")
	return nil
}

// InvalidateCache drops the snapshot so the next read reloads from the store.
func (s *PermissionService) InvalidateCache() {
	s.cache.Invalidate()
}

func (s *PermissionService) newID(ctx context.Context) (uuid.UUID, error) {
	return NewUniqueID(ctx, s.cfg.random, s.cfg.idAttempts, s.Exists)
}

func (s *PermissionService) snapshot(ctx context.Context) (*catalog, error) {
	c, refreshed, err := s.cache.Get(ctx, s.load)
	switch {
	case err != nil:
		obs.PermissionCacheRefreshes.WithLabelValues("error").Inc()
		return nil, err
	case refreshed:
		obs.PermissionCacheRefreshes.WithLabelValues("ok").Inc()
		obs.PermissionCacheLookups.WithLabelValues("miss").Inc()
	default:
		obs.PermissionCacheLookups.WithLabelValues("hit").Inc()
	}
	return c, nil
}

func (s *PermissionService) load(ctx context.Context) (*catalog, error) {
	patents, err := s.store.ListPatents(ctx)
	if err != nil {
		return nil, err
	}
	families, err := s.store.ListFamilies(ctx)
	if err != nil {
		return nil, err
	}

	c := &catalog{
		byID:     make(map[uuid.UUID]Component, len(patents)+len(families)),
		patents:  patents,
		families: families,
	}
	pos := make(map[uuid.UUID]int, len(patents)+len(families))
	add := func(comp Component) {
		id := comp.Identity().ID
		if i, ok := pos[id]; ok {
			s.cfg.log.Warn().Str("id", id.String()).Msg("component id shared by patent and family; family wins")
			c.all[i] = comp
		} else {
			pos[id] = len(c.all)
			c.all = append(c.all, comp)
		}
		c.byID[id] = comp
	}
	for _, p := range patents {
		add(p)
	}
	for _, f := range families {
		add(f)
	}
	s.cfg.log.Debug().
		Int("patents", len(patents)).
		Int("families", len(families)).
		Msg("permission cache refreshed")
	return c, nil
}
