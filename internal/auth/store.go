package auth

import (
	"context"

	"github.com/google/uuid"
)

// PatentStore persists atomic permissions.
type PatentStore interface {
	ListPatents(ctx context.Context) ([]*Patent, error)
	GetPatent(ctx context.Context, id uuid.UUID) (*Patent, error)
	CreatePatent(ctx context.Context, p *Patent) error
	UpdatePatent(ctx context.Context, p *Patent) error
	// DeletePatent removes the patent and its family links atomically.
	DeletePatent(ctx context.Context, id uuid.UUID) error
}

// FamilyStore persists families and the patent links they own.
// Families are returned with their child patents attached.
type FamilyStore interface {
	ListFamilies(ctx context.Context) ([]*Family, error)
	GetFamily(ctx context.Context, id uuid.UUID) (*Family, error)
	GetFamilyByName(ctx context.Context, name string) (*Family, error)
	// CreateFamily writes the row and every child link in one transaction.
	// A child that is not a stored patent fails with ErrReferenceNotFound.
	CreateFamily(ctx context.Context, f *Family) error
	// UpdateFamily applies the link changes and the row update in one transaction.
	UpdateFamily(ctx context.Context, f *Family, added, removed []uuid.UUID) error
	// DeleteFamily removes the family's links and row in one transaction.
	// A family that still has members fails with ErrBusinessRule.
	DeleteFamily(ctx context.Context, id uuid.UUID) error
	// FamilyMembers returns the names of users linked to the family.
	FamilyMembers(ctx context.Context, id uuid.UUID) ([]string, error)
}

// UserStore persists users and their family membership.
// Loaded users carry no Permissions; the user service attaches them.
type UserStore interface {
	// CreateUser writes the row and the membership link in one transaction.
	CreateUser(ctx context.Context, u *User, familyID uuid.UUID) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByName(ctx context.Context, name string) (*User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]*User, error)
	// UpdateUser rewrites the row; a non-nil familyID replaces every membership link.
	UpdateUser(ctx context.Context, u *User, familyID uuid.UUID) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	// UserFamilies returns the family ids linked to each of the given users.
	UserFamilies(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
}

// ComponentStore is what the permission service needs.
type ComponentStore interface {
	PatentStore
	FamilyStore
}

// Store bundles every persistence concern of the permission core.
type Store interface {
	PatentStore
	FamilyStore
	UserStore
	Ping(ctx context.Context) error
}
