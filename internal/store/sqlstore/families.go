package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stockhelper.org/internal/auth"
)

type familyLink struct {
	familyID uuid.UUID
	patent   *auth.Patent
}

func (s *Store) ListFamilies(ctx context.Context) ([]*auth.Family, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from families order by name`)
	if err != nil {
		return nil, s.fail("list families", err)
	}
	var out []*auth.Family
	byID := make(map[uuid.UUID]*auth.Family)
	for rows.Next() {
		f := auth.NewFamily("")
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			rows.Close()
			return nil, s.fail("list families", err)
		}
		out = append(out, f)
		byID[f.ID] = f
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, s.fail("list families", err)
	}

	links, err := s.links(ctx, s.db, `
		select pf.family_id, p.id, p.name
		from patents_families pf
		join patents p on p.id = pf.patent_id
		order by p.name`)
	if err != nil {
		return nil, s.fail("list families", err)
	}
	for _, l := range links {
		if f, ok := byID[l.familyID]; ok {
			_ = f.AddChild(l.patent)
		}
	}
	return out, nil
}

func (s *Store) GetFamily(ctx context.Context, id uuid.UUID) (*auth.Family, error) {
	return s.getFamily(ctx, `select id, name from families where id = $1`, id)
}

func (s *Store) GetFamilyByName(ctx context.Context, name string) (*auth.Family, error) {
	return s.getFamily(ctx, `select id, name from families where name = $1`, name)
}

func (s *Store) getFamily(ctx context.Context, query string, key any) (*auth.Family, error) {
	f := auth.NewFamily("")
	err := s.db.QueryRowContext(ctx, query, key).Scan(&f.ID, &f.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: family %v", auth.ErrNotFound, key)
	}
	if err != nil {
		return nil, s.fail("get family", err)
	}
	links, err := s.links(ctx, s.db, `
		select pf.family_id, p.id, p.name
		from patents_families pf
		join patents p on p.id = pf.patent_id
		where pf.family_id = $1
		order by p.name`, f.ID)
	if err != nil {
		return nil, s.fail("get family", err)
	}
	for _, l := range links {
		_ = f.AddChild(l.patent)
	}
	return f, nil
}

func (s *Store) links(ctx context.Context, q queryer, query string, args ...any) ([]familyLink, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []familyLink
	for rows.Next() {
		l := familyLink{patent: &auth.Patent{}}
		if err := rows.Scan(&l.familyID, &l.patent.ID, &l.patent.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CreateFamily(ctx context.Context, f *auth.Family) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("create family", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `insert into families (id, name) values ($1, $2)`, f.ID, f.Name); err != nil {
		return s.fail("create family", err)
	}
	for _, pid := range f.ChildIDs() {
		if err := linkPatent(ctx, tx, f.ID, pid); err != nil {
			return s.fail("create family", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail("create family", err)
	}
	return nil
}

func (s *Store) UpdateFamily(ctx context.Context, f *auth.Family, added, removed []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("update family", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update families set name = $2 where id = $1`, f.ID, f.Name)
	if err != nil {
		return s.fail("update family", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("update family", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: family %s", auth.ErrNotFound, f.ID)
	}
	for _, pid := range added {
		if err := linkPatent(ctx, tx, f.ID, pid); err != nil {
			return s.fail("update family", err)
		}
	}
	for _, pid := range removed {
		if _, err := tx.ExecContext(ctx, `delete from patents_families where family_id = $1 and patent_id = $2`, f.ID, pid); err != nil {
			return s.fail("update family", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail("update family", err)
	}
	return nil
}

// linkPatent verifies the patent and (re)creates the link; linking twice is a no-op.
func linkPatent(ctx context.Context, tx *sql.Tx, familyID, patentID uuid.UUID) error {
	ok, err := exists(ctx, tx, "patents", patentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: patent %s", auth.ErrReferenceNotFound, patentID)
	}
	if _, err := tx.ExecContext(ctx, `delete from patents_families where family_id = $1 and patent_id = $2`, familyID, patentID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `insert into patents_families (patent_id, family_id) values ($1, $2)`, patentID, familyID)
	return err
}

func (s *Store) DeleteFamily(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("delete family", err)
	}
	defer func() { _ = tx.Rollback() }()

	var members int
	if err := tx.QueryRowContext(ctx, `select count(*) from users_families where family_id = $1`, id).Scan(&members); err != nil {
		return s.fail("delete family", err)
	}
	if members > 0 {
		return fmt.Errorf("%w: family %s still has members", auth.ErrBusinessRule, id)
	}
	if _, err := tx.ExecContext(ctx, `delete from patents_families where family_id = $1`, id); err != nil {
		return s.fail("delete family", err)
	}
	res, err := tx.ExecContext(ctx, `delete from families where id = $1`, id)
	if err != nil {
		return s.fail("delete family", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("delete family", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: family %s", auth.ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return s.fail("delete family", err)
	}
	return nil
}

func (s *Store) FamilyMembers(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.name
		from users_families uf
		join users u on u.id = uf.user_id
		where uf.family_id = $1
		order by u.name`, id)
	if err != nil {
		return nil, s.fail("family members", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.fail("family members", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("family members", err)
	}
	return names, nil
}
