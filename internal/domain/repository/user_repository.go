package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"lifeos_api/internal/common"
	"lifeos_api/internal/domain/model"
	"lifeos_api/internal/platform/database"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUniqueViolation matches every *UniqueViolationError via errors.Is.
var ErrUniqueViolation = errors.New("unique constraint violation")

// UniqueViolationError is returned by Create when the storage layer rejects
// a duplicate. Field is "username", "email" or "" when the violated
// constraint could not be attributed to a column.
type UniqueViolationError struct {
	Field string
	Err   error
}

func (e *UniqueViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unique constraint violation: %v", e.Err)
	}
	return fmt.Sprintf("unique constraint violation on %s: %v", e.Field, e.Err)
}

func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

func (e *UniqueViolationError) Unwrap() error { return e.Err }

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	// WithTx runs fn against a repository bound to one transaction. The
	// transaction commits only if fn returns nil.
	WithTx(ctx context.Context, fn func(repo UserRepository) error) error
}

// NewUserRepository picks the implementation matching the database driver.
func NewUserRepository(driver string, db *sql.DB) (UserRepository, error) {
	switch driver {
	case "postgres":
		return NewPgUserRepository(db), nil
	case "sqlite":
		return NewSQLiteUserRepository(db), nil
	default:
		return nil, fmt.Errorf("no user repository for driver %q", driver)
	}
}

type pgUserRepository struct {
	conn *sql.DB
	db   database.DBTX
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{conn: db, db: db}
}

func (r *pgUserRepository) WithTx(ctx context.Context, fn func(repo UserRepository) error) error {
	if _, inTx := r.db.(*sql.Tx); inTx {
		return fn(r)
	}
	return database.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(&pgUserRepository{conn: r.conn, db: tx})
	})
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (username, email, password_hash)
	          VALUES ($1, $2, $3)
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint violation
			return &UniqueViolationError{Field: pgUniqueField(pgErr), Err: err}
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, wrapFindErr("pgUserRepository.FindByEmail", err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, wrapFindErr("pgUserRepository.FindByUsername", err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at
	          FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapFindErr("pgUserRepository.FindByID", err)
	}
	return user, nil
}

// pgUniqueField attributes a 23505 error to a column, from the constraint
// (index) name first and the "Key (col)=(...)" detail second.
func pgUniqueField(pgErr *pgconn.PgError) string {
	if field := fieldFromIdentifier(pgErr.ConstraintName); field != "" {
		return field
	}
	if rest, ok := strings.CutPrefix(pgErr.Detail, "Key ("); ok {
		if col, _, found := strings.Cut(rest, ")="); found {
			return fieldFromIdentifier(col)
		}
	}
	return ""
}

func fieldFromIdentifier(ident string) string {
	switch {
	case strings.Contains(ident, "username"):
		return "username"
	case strings.Contains(ident, "email"):
		return "email"
	default:
		return ""
	}
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func wrapFindErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
