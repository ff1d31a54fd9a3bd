package auth

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// User is an operator of the application. Permissions holds the families the user belongs to.
type User struct {
	ID          uuid.UUID
	Name        string
	Password    string
	IsActive    bool
	Role        string
	Permissions []Component
}

func (u *User) HasPermission(name string) bool {
	if u == nil || strings.TrimSpace(name) == "" {
		return false
	}
	for _, c := range u.Permissions {
		if c.HasPermission(name) {
			return true
		}
	}
	return false
}

func (u *User) HasAllPermissions(names ...string) bool {
	if u == nil || len(names) == 0 {
		return false
	}
	for _, name := range names {
		if !u.HasPermission(name) {
			return false
		}
	}
	return true
}

func (u *User) HasAnyPermission(names ...string) bool {
	if u == nil {
		return false
	}
	for _, name := range names {
		if u.HasPermission(name) {
			return true
		}
	}
	return false
}

// AtomicPermissions flattens the user's tree into distinct patents.
func (u *User) AtomicPermissions() []*Patent {
	if u == nil {
		return nil
	}
	seen := make(map[uuid.UUID]struct{})
	var out []*Patent
	for _, c := range u.Permissions {
		for _, p := range Atomic(c) {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Roles returns the families among the user's permissions.
func (u *User) Roles() []*Family {
	if u == nil {
		return nil
	}
	var out []*Family
	for _, c := range u.Permissions {
		if f, ok := c.(*Family); ok {
			out = append(out, f)
		}
	}
	return out
}

func (u *User) HasRole(name string) bool {
	if u == nil || strings.TrimSpace(name) == "" {
		return false
	}
	for _, f := range u.Roles() {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// PermissionNames returns the sorted distinct names of the user's atomic permissions.
func (u *User) PermissionNames() []string {
	set := make(map[string]struct{})
	for _, p := range u.AtomicPermissions() {
		set[p.Name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
