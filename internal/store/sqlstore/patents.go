package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stockhelper.org/internal/auth"
)

func (s *Store) ListPatents(ctx context.Context) ([]*auth.Patent, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from patents order by name`)
	if err != nil {
		return nil, s.fail("list patents", err)
	}
	defer rows.Close()

	var out []*auth.Patent
	for rows.Next() {
		p := &auth.Patent{}
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, s.fail("list patents", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list patents", err)
	}
	return out, nil
}

func (s *Store) GetPatent(ctx context.Context, id uuid.UUID) (*auth.Patent, error) {
	p := &auth.Patent{}
	err := s.db.QueryRowContext(ctx, `select id, name from patents where id = $1`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: patent %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, s.fail("get patent", err)
	}
	return p, nil
}

func (s *Store) CreatePatent(ctx context.Context, p *auth.Patent) error {
	if _, err := s.db.ExecContext(ctx, `insert into patents (id, name) values ($1, $2)`, p.ID, p.Name); err != nil {
		return s.fail("create patent", err)
	}
	return nil
}

func (s *Store) UpdatePatent(ctx context.Context, p *auth.Patent) error {
	res, err := s.db.ExecContext(ctx, `update patents set name = $2 where id = $1`, p.ID, p.Name)
	if err != nil {
		return s.fail("update patent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("update patent", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: patent %s", auth.ErrNotFound, p.ID)
	}
	return nil
}

func (s *Store) DeletePatent(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("delete patent", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from patents_families where patent_id = $1`, id); err != nil {
		return s.fail("delete patent", err)
	}
	res, err := tx.ExecContext(ctx, `delete from patents where id = $1`, id)
	if err != nil {
		return s.fail("delete patent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("delete patent", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: patent %s", auth.ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return s.fail("delete patent", err)
	}
	return nil
}
