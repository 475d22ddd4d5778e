package repository

import (
	"context"
	"database/sql"
	"fmt"
	"lifeos_api/internal/domain/model"
	"lifeos_api/internal/platform/database"
	"strings"
	"time"
)

type sqliteUserRepository struct {
	conn *sql.DB
	db   database.DBTX
}

func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{conn: db, db: db}
}

func (r *sqliteUserRepository) WithTx(ctx context.Context, fn func(repo UserRepository) error) error {
	if _, inTx := r.db.(*sql.Tx); inTx {
		return fn(r)
	}
	return database.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(&sqliteUserRepository{conn: r.conn, db: tx})
	})
}

func (r *sqliteUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (username, email, password_hash, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash, now, now)
	if err != nil {
		if field, ok := sqliteUniqueField(err); ok {
			return &UniqueViolationError{Field: field, Err: err}
		}
		return fmt.Errorf("sqliteUserRepository.Create: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqliteUserRepository.Create: last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *sqliteUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users WHERE email = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, wrapFindErr("sqliteUserRepository.FindByEmail", err)
	}
	return user, nil
}

func (r *sqliteUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users WHERE username = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, wrapFindErr("sqliteUserRepository.FindByUsername", err)
	}
	return user, nil
}

func (r *sqliteUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapFindErr("sqliteUserRepository.FindByID", err)
	}
	return user, nil
}

// sqliteUniqueField recognizes "UNIQUE constraint failed: users.<col>".
func sqliteUniqueField(err error) (string, bool) {
	const marker = "UNIQUE constraint failed:"
	msg := err.Error()
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	return fieldFromIdentifier(msg[idx+len(marker):]), true
}
