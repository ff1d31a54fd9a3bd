package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) auth.Store { return New() })
}

func TestFamilyRenameKeepsChildren(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := auth.NewPatent("StockControl")
	p.ID = uuid.New()
	if err := s.CreatePatent(ctx, p); err != nil {
		t.Fatalf("CreatePatent: %v", err)
	}
	f := auth.NewFamily("InventoryManager", p)
	f.ID = uuid.New()
	if err := s.CreateFamily(ctx, f); err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	f.Name = "Inventory"
	if err := s.UpdateFamily(ctx, f, nil, nil); err != nil {
		t.Fatalf("UpdateFamily: %v", err)
	}
	got, err := s.GetFamilyByName(ctx, "Inventory")
	if err != nil {
		t.Fatalf("GetFamilyByName: %v", err)
	}
	if len(got.Children()) != 1 || got.Children()[0].Identity().ID != p.ID {
		t.Fatalf("unexpected children: %v", got.ChildIDs())
	}
	if got.Children()[0] == auth.Component(p) {
		t.Fatal("loaded family must not share caller patents")
	}
}

func TestUserMembership(t *testing.T) {
	ctx := context.Background()
	s := New()
	f := auth.NewFamily("Cashier")
	f.ID = uuid.New()
	if err := s.CreateFamily(ctx, f); err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	u := &auth.User{ID: uuid.New(), Name: "bob", Password: "pw", IsActive: true}
	if err := s.CreateUser(ctx, u, f.ID); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	dup := &auth.User{ID: uuid.New(), Name: "bob", Password: "pw"}
	if err := s.CreateUser(ctx, dup, f.ID); !errors.Is(err, auth.ErrBusinessRule) {
		t.Fatalf("expected ErrBusinessRule, got %v", err)
	}

	members, _ := s.FamilyMembers(ctx, f.ID)
	if len(members) != 1 || members[0] != "bob" {
		t.Fatalf("unexpected members: %v", members)
	}
	links, _ := s.UserFamilies(ctx, []uuid.UUID{u.ID})
	if len(links[u.ID]) != 1 || links[u.ID][0] != f.ID {
		t.Fatalf("unexpected links: %v", links)
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	members, _ = s.FamilyMembers(ctx, f.ID)
	if len(members) != 0 {
		t.Fatalf("expected no members, got %v", members)
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
