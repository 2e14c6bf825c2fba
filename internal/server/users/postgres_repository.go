package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/resvault/internal/common"
	"github.com/dmitrijs2005/resvault/internal/dbx"
)

const uniqueViolation = "23505"

// PostgresRepository keeps the directory in the users table. Every write
// is durable on its own, so Load and Save do nothing.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Load(context.Context) error { return nil }

func (r *PostgresRepository) Save(context.Context) error { return nil }

func (r *PostgresRepository) Create(ctx context.Context, user *User) (*User, error) {
	u := *user
	u.UserName = common.NormalizeUsername(u.UserName)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO users (id, username, salt, password_hash, token)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.UserName, u.Salt, u.PasswordHash, nullString(u.Token)).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &u, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*User, error) {
	query :=
		`SELECT id, username, salt, password_hash, token, created_at FROM users
		 WHERE username = $1
		 `
	return r.getOne(ctx, query, common.NormalizeUsername(userName))
}

func (r *PostgresRepository) GetUserByToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	query :=
		`SELECT id, username, salt, password_hash, token, created_at FROM users
		 WHERE token = $1
		 `
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{}
	var token sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.UserName, &u.Salt, &u.PasswordHash, &token, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Token = token.String
	return u, nil
}

func (r *PostgresRepository) UpdateToken(ctx context.Context, userID, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET token = $1 WHERE id = $2`, nullString(token), userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Remove(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, salt, password_hash, token, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var list []*User
	for rows.Next() {
		u := &User{}
		var token sql.NullString
		if err := rows.Scan(&u.ID, &u.UserName, &u.Salt, &u.PasswordHash, &token, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		u.Token = token.String
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repository = (*PostgresRepository)(nil)
