// Package storetest holds behaviour checks shared by every auth.Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockhelper.org/internal/auth"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) auth.Store

// Run exercises the auth.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(t *testing.T, s auth.Store){
		"patents":                   testPatents,
		"family with children":      testFamilyWithChildren,
		"family missing child":      testFamilyMissingChild,
		"family link changes":       testFamilyLinkChanges,
		"delete patent drops links": testDeletePatentDropsLinks,
		"users and membership":      testUsers,
		"family with members":       testFamilyWithMembers,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func patent(t *testing.T, s auth.Store, name string) *auth.Patent {
	t.Helper()
	p := auth.NewPatent(name)
	p.ID = uuid.New()
	require.NoError(t, s.CreatePatent(context.Background(), p))
	return p
}

func family(t *testing.T, s auth.Store, name string, children ...auth.Component) *auth.Family {
	t.Helper()
	f := auth.NewFamily(name, children...)
	f.ID = uuid.New()
	require.NoError(t, s.CreateFamily(context.Background(), f))
	return f
}

func names(cs []auth.Component) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Identity().Name)
	}
	return out
}

func testPatents(t *testing.T, s auth.Store) {
	ctx := context.Background()
	b := patent(t, s, "Reports")
	a := patent(t, s, "Audit")

	list, err := s.ListPatents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Audit", list[0].Name)
	assert.Equal(t, b.ID, list[1].ID)

	dup := auth.NewPatent("Audit")
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreatePatent(ctx, dup), auth.ErrBusinessRule)

	a.Name = "Auditing"
	require.NoError(t, s.UpdatePatent(ctx, a))
	got, err := s.GetPatent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Auditing", got.Name)

	a.Name = "Reports"
	assert.ErrorIs(t, s.UpdatePatent(ctx, a), auth.ErrBusinessRule)

	ghost := auth.NewPatent("Ghost")
	ghost.ID = uuid.New()
	assert.ErrorIs(t, s.UpdatePatent(ctx, ghost), auth.ErrNotFound)
	_, err = s.GetPatent(ctx, ghost.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, s.DeletePatent(ctx, ghost.ID), auth.ErrNotFound)
}

func testFamilyWithChildren(t *testing.T, s auth.Store) {
	ctx := context.Background()
	b := patent(t, s, "B")
	a := patent(t, s, "A")
	f := family(t, s, "Role", b, a)
	family(t, s, "Empty")

	got, err := s.GetFamily(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Role", got.Name)
	assert.Equal(t, []string{"A", "B"}, names(got.Children()))

	byName, err := s.GetFamilyByName(ctx, "Role")
	require.NoError(t, err)
	assert.Equal(t, f.ID, byName.ID)

	list, err := s.ListFamilies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Empty", list[0].Name)
	assert.Empty(t, list[0].Children())
	assert.Equal(t, []string{"A", "B"}, names(list[1].Children()))

	_, err = s.GetFamilyByName(ctx, "role")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	dup := auth.NewFamily("Role")
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateFamily(ctx, dup), auth.ErrBusinessRule)
}

func testFamilyMissingChild(t *testing.T, s auth.Store) {
	ctx := context.Background()
	reports := patent(t, s, "Reports")
	ghost := auth.NewPatent("Ghost")
	ghost.ID = uuid.New()

	f := auth.NewFamily("Auditor", reports, ghost)
	f.ID = uuid.New()
	assert.ErrorIs(t, s.CreateFamily(ctx, f), auth.ErrReferenceNotFound)

	_, err := s.GetFamily(ctx, f.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	list, err := s.ListFamilies(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testFamilyLinkChanges(t *testing.T, s auth.Store) {
	ctx := context.Background()
	a := patent(t, s, "A")
	b := patent(t, s, "B")
	c := patent(t, s, "C")
	f := family(t, s, "Role", a, b)

	f.Name = "Renamed"
	require.NoError(t, s.UpdateFamily(ctx, f, []uuid.UUID{c.ID, a.ID}, []uuid.UUID{b.ID}))
	got, err := s.GetFamily(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, []string{"A", "C"}, names(got.Children()))

	ghost := uuid.New()
	assert.ErrorIs(t, s.UpdateFamily(ctx, f, []uuid.UUID{ghost}, []uuid.UUID{a.ID}), auth.ErrReferenceNotFound)
	got, err = s.GetFamily(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, names(got.Children()), "failed update must not apply removals")

	missing := auth.NewFamily("Missing")
	missing.ID = uuid.New()
	assert.ErrorIs(t, s.UpdateFamily(ctx, missing, nil, nil), auth.ErrNotFound)
}

func testDeletePatentDropsLinks(t *testing.T, s auth.Store) {
	ctx := context.Background()
	a := patent(t, s, "A")
	b := patent(t, s, "B")
	f := family(t, s, "Role", a, b)

	require.NoError(t, s.DeletePatent(ctx, a.ID))
	got, err := s.GetFamily(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(got.Children()))

	require.NoError(t, s.DeleteFamily(ctx, f.ID))
	_, err = s.GetFamily(ctx, f.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, s.DeleteFamily(ctx, f.ID), auth.ErrNotFound)

	_, err = s.GetPatent(ctx, b.ID)
	assert.NoError(t, err, "deleting a family keeps its patents")
}

func testUsers(t *testing.T, s auth.Store) {
	ctx := context.Background()
	admin := family(t, s, "Admin")
	guest := family(t, s, "Guest")

	alice := &auth.User{ID: uuid.New(), Name: "alice", Password: "pw", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, alice, admin.ID))
	bob := &auth.User{ID: uuid.New(), Name: "bob", Password: "pw", IsActive: false}
	require.NoError(t, s.CreateUser(ctx, bob, guest.ID))

	ghost := &auth.User{ID: uuid.New(), Name: "ghost", Password: "pw", IsActive: true}
	assert.ErrorIs(t, s.CreateUser(ctx, ghost, uuid.New()), auth.ErrReferenceNotFound)
	_, err := s.GetUser(ctx, ghost.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	dup := &auth.User{ID: uuid.New(), Name: "alice", Password: "pw"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup, admin.ID), auth.ErrBusinessRule)

	got, err := s.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.True(t, got.IsActive)
	assert.Empty(t, got.Permissions)

	_, err = s.GetUserByName(ctx, "ALICE")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	all, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Name)
	active, err := s.ListUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Name)

	fams, err := s.UserFamilies(ctx, []uuid.UUID{alice.ID, bob.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin.ID}, fams[alice.ID])
	assert.Equal(t, []uuid.UUID{guest.ID}, fams[bob.ID])
	assert.Len(t, fams, 2)

	bob.IsActive = true
	bob.Name = "robert"
	require.NoError(t, s.UpdateUser(ctx, bob, admin.ID))
	got, err = s.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "robert", got.Name)
	assert.True(t, got.IsActive)
	fams, err = s.UserFamilies(ctx, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin.ID}, fams[bob.ID])

	// a nil family keeps membership
	bob.Password = "changed"
	require.NoError(t, s.UpdateUser(ctx, bob, uuid.Nil))
	fams, err = s.UserFamilies(ctx, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin.ID}, fams[bob.ID])

	bob.Name = "alice"
	assert.ErrorIs(t, s.UpdateUser(ctx, bob, uuid.Nil), auth.ErrBusinessRule)
	bob.Name = "robert"
	assert.ErrorIs(t, s.UpdateUser(ctx, bob, uuid.New()), auth.ErrReferenceNotFound)
	assert.ErrorIs(t, s.UpdateUser(ctx, ghost, uuid.Nil), auth.ErrNotFound)

	require.NoError(t, s.DeleteUser(ctx, bob.ID))
	assert.ErrorIs(t, s.DeleteUser(ctx, bob.ID), auth.ErrNotFound)
	fams, err = s.UserFamilies(ctx, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	assert.Empty(t, fams)

	empty, err := s.UserFamilies(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testFamilyWithMembers(t *testing.T, s auth.Store) {
	ctx := context.Background()
	staff := family(t, s, "Staff")
	for _, name := range []string{"zoe", "adam"} {
		u := &auth.User{ID: uuid.New(), Name: name, Password: "pw", IsActive: true}
		require.NoError(t, s.CreateUser(ctx, u, staff.ID))
	}

	members, err := s.FamilyMembers(ctx, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"adam", "zoe"}, members)

	assert.ErrorIs(t, s.DeleteFamily(ctx, staff.ID), auth.ErrBusinessRule)
	_, err = s.GetFamily(ctx, staff.ID)
	assert.NoError(t, err)

	none, err := s.FamilyMembers(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
