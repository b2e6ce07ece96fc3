package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schoolhub/apiserver/types"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, school_id, branch_id,
		is_active, last_login_at, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one user row. Rows with an unknown role are rejected
// rather than loaded with an unusable role.
func scanUser(row rowScanner) (types.User, error) {
	var (
		user      types.User
		role      string
		branchID  sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&role,
		&user.SchoolID,
		&branchID,
		&user.IsActive,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return types.User{}, err
	}

	parsed, err := types.ParseRole(role)
	if err != nil {
		return types.User{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Role = parsed
	if branchID.Valid {
		id := branchID.String
		user.BranchID = &id
	}
	if lastLogin.Valid {
		at := lastLogin.Time
		user.LastLoginAt = &at
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail looks a user up by email regardless of active status.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindActiveByID returns ErrNotFound for missing and inactive users alike.
func (r *UserRepository) FindActiveByID(ctx context.Context, id string) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active = TRUE`, id)
}

func (r *UserRepository) ListByBranch(ctx context.Context, branchID string, offset, limit int) ([]types.User, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	if _, err := uuid.Parse(branchID); err != nil {
		return []types.User{}, 0, nil
	}

	const countQuery = `SELECT COUNT(1) FROM users WHERE branch_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, branchID).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + userColumns + `
		FROM users
		WHERE branch_id = $1
		ORDER BY last_name, first_name, id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, branchID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if !user.Role.Valid() {
		return types.User{}, fmt.Errorf("invalid role %q", user.Role)
	}
	now := time.Now()
	user.ID = uuid.NewString()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, school_id, branch_id,
			is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		string(user.Role),
		user.SchoolID,
		nullString(user.BranchID),
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $1 WHERE id = $2`
	return r.execOne(ctx, query, at, id)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	const query = `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, active, time.Now(), id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
