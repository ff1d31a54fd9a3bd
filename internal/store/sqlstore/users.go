package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stockhelper.org/internal/auth"
)

const userColumns = `id, name, password, is_active`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	u := &auth.User{}
	if err := row.Scan(&u.ID, &u.Name, &u.Password, &u.IsActive); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User, familyID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("create user", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireFamily(ctx, tx, familyID); err != nil {
		return s.fail("create user", err)
	}
	if _, err := tx.ExecContext(ctx, `insert into users (id, name, password, is_active) values ($1, $2, $3, $4)`,
		u.ID, u.Name, u.Password, u.IsActive); err != nil {
		return s.fail("create user", err)
	}
	if _, err := tx.ExecContext(ctx, `insert into users_families (user_id, family_id) values ($1, $2)`, u.ID, familyID); err != nil {
		return s.fail("create user", err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail("create user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, s.fail("get user", err)
	}
	return u, nil
}

func (s *Store) GetUserByName(ctx context.Context, name string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", auth.ErrNotFound, name)
	}
	if err != nil {
		return nil, s.fail("get user", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, activeOnly bool) ([]*auth.User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if activeOnly {
		rows, err = s.db.QueryContext(ctx, `select `+userColumns+` from users where is_active = $1 order by name`, true)
	} else {
		rows, err = s.db.QueryContext(ctx, `select `+userColumns+` from users order by name`)
	}
	if err != nil {
		return nil, s.fail("list users", err)
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, s.fail("list users", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list users", err)
	}
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *auth.User, familyID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("update user", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update users set name = $2, password = $3, is_active = $4 where id = $1`,
		u.ID, u.Name, u.Password, u.IsActive)
	if err != nil {
		return s.fail("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("update user", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, u.ID)
	}
	if familyID != uuid.Nil {
		if err := requireFamily(ctx, tx, familyID); err != nil {
			return s.fail("update user", err)
		}
		if _, err := tx.ExecContext(ctx, `delete from users_families where user_id = $1`, u.ID); err != nil {
			return s.fail("update user", err)
		}
		if _, err := tx.ExecContext(ctx, `insert into users_families (user_id, family_id) values ($1, $2)`, u.ID, familyID); err != nil {
			return s.fail("update user", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail("update user", err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("delete user", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from users_families where user_id = $1`, id); err != nil {
		return s.fail("delete user", err)
	}
	res, err := tx.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return s.fail("delete user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("delete user", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %s", auth.ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return s.fail("delete user", err)
	}
	return nil
}

func (s *Store) UserFamilies(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`select user_id, family_id from users_families where user_id in (%s)`, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("user families", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid, fid uuid.UUID
		if err := rows.Scan(&uid, &fid); err != nil {
			return nil, s.fail("user families", err)
		}
		out[uid] = append(out[uid], fid)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("user families", err)
	}
	return out, nil
}

func requireFamily(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	ok, err := exists(ctx, tx, "families", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: family %s", auth.ErrReferenceNotFound, id)
	}
	return nil
}
