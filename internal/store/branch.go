package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schoolhub/apiserver/types"
)

// BranchRepository handles persistence for schools and their branches.
type BranchRepository struct {
	db *sql.DB
}

func NewBranchRepository(db *sql.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

func (r *BranchRepository) Get(ctx context.Context, id string) (types.Branch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Branch{}, ErrNotFound
	}
	const query = `
		SELECT id, school_id, name, code, created_at, updated_at
		FROM branches
		WHERE id = $1`
	var branch types.Branch
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&branch.ID,
		&branch.SchoolID,
		&branch.Name,
		&branch.Code,
		&branch.CreatedAt,
		&branch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Branch{}, ErrNotFound
		}
		return types.Branch{}, err
	}
	return branch, nil
}

func (r *BranchRepository) ListBySchool(ctx context.Context, schoolID string) ([]types.Branch, error) {
	if _, err := uuid.Parse(schoolID); err != nil {
		return []types.Branch{}, nil
	}
	const query = `
		SELECT id, school_id, name, code, created_at, updated_at
		FROM branches
		WHERE school_id = $1
		ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]types.Branch, 0)
	for rows.Next() {
		var branch types.Branch
		if err := rows.Scan(
			&branch.ID,
			&branch.SchoolID,
			&branch.Name,
			&branch.Code,
			&branch.CreatedAt,
			&branch.UpdatedAt,
		); err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (r *BranchRepository) CreateSchool(ctx context.Context, name string) (types.School, error) {
	school := types.School{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	const query = `INSERT INTO schools (id, name, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, school.ID, school.Name, school.CreatedAt); err != nil {
		return types.School{}, mapWriteError(err)
	}
	return school, nil
}

func (r *BranchRepository) Create(ctx context.Context, branch types.Branch) (types.Branch, error) {
	now := time.Now()
	branch.ID = uuid.NewString()
	branch.CreatedAt = now
	branch.UpdatedAt = now

	const query = `
		INSERT INTO branches (id, school_id, name, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		branch.ID,
		branch.SchoolID,
		branch.Name,
		branch.Code,
		branch.CreatedAt,
		branch.UpdatedAt,
	); err != nil {
		return types.Branch{}, mapWriteError(err)
	}
	return branch, nil
}
