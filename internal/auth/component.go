package auth

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the component variants.
type Kind string

const (
	KindPatent Kind = "patent"
	KindFamily Kind = "family"
)

// Meta holds the identity shared by patents and families.
type Meta struct {
	ID   uuid.UUID
	Name string
}

// Identity exposes the mutable identity of the component embedding m.
func (m *Meta) Identity() *Meta { return m }

// Component is a node of the permission tree: either an atomic Patent or a Family of components.
type Component interface {
	Identity() *Meta
	Kind() Kind
	Children() []Component
	AddChild(c Component) error
	RemoveChild(c Component) error
	// HasPermission reports whether the component is named name or contains a component that is.
	HasPermission(name string) bool
}

var (
	_ Component = (*Patent)(nil)
	_ Component = (*Family)(nil)
)

// Patent is an atomic permission.
type Patent struct {
	Meta
}

// NewPatent returns a patent without an identifier; the permission service assigns one on insert.
func NewPatent(name string) *Patent {
	return &Patent{Meta: Meta{Name: name}}
}

func (p *Patent) Kind() Kind { return KindPatent }

func (p *Patent) Children() []Component { return nil }

func (p *Patent) AddChild(Component) error { return ErrLeafComponent }

func (p *Patent) RemoveChild(Component) error { return ErrLeafComponent }

func (p *Patent) HasPermission(name string) bool { return p.Name == name }

// Family groups components and acts as a role.
type Family struct {
	Meta
	children []Component
}

// NewFamily returns a family holding the given children in order.
func NewFamily(name string, children ...Component) *Family {
	f := &Family{Meta: Meta{Name: name}}
	f.children = append(f.children, children...)
	return f
}

func (f *Family) Kind() Kind { return KindFamily }

// Children returns the live child list.
func (f *Family) Children() []Component { return f.children }

// AddChild appends c. Duplicates and cycles are not rejected.
func (f *Family) AddChild(c Component) error {
	if c == nil {
		return fmt.Errorf("%w: child is required", ErrInvalidInput)
	}
	f.children = append(f.children, c)
	return nil
}

// RemoveChild removes the first child that is the same instance as c.
func (f *Family) RemoveChild(c Component) error {
	for i, child := range f.children {
		if child == c {
			f.children = append(f.children[:i], f.children[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *Family) HasPermission(name string) bool {
	if f.Name == name {
		return true
	}
	for _, child := range f.children {
		if child.HasPermission(name) {
			return true
		}
	}
	return false
}

// ChildIDs returns the identifiers of the direct children in order.
func (f *Family) ChildIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(f.children))
	for _, child := range f.children {
		out = append(out, child.Identity().ID)
	}
	return out
}

// Atomic collects every patent reachable from c, c included.
func Atomic(c Component) []*Patent {
	var out []*Patent
	var walk func(Component)
	walk = func(n Component) {
		if p, ok := n.(*Patent); ok {
			out = append(out, p)
			return
		}
		for _, child := range n.Children() {
			walk(child)
		}
	}
	if c != nil {
		walk(c)
	}
	return out
}

// DiffChildren compares two child id sets and returns the ids to link and unlink.
func DiffChildren(current, next []uuid.UUID) (added, removed []uuid.UUID) {
	have := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[uuid.UUID]struct{}, len(next))
	for _, id := range next {
		if _, dup := want[id]; dup {
			continue
		}
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			added = append(added, id)
		}
	}
	seen := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
