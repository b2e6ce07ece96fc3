package services

import (
	"context"

	"github.com/schoolhub/apiserver/types"
)

// BranchRepository defines persistence operations for branches.
type BranchRepository interface {
	Get(ctx context.Context, id string) (types.Branch, error)
	ListBySchool(ctx context.Context, schoolID string) ([]types.Branch, error)
}

// BranchService encapsulates branch use-cases.
type BranchService struct {
	repo BranchRepository
}

func NewBranchService(repo BranchRepository) *BranchService {
	return &BranchService{repo: repo}
}

func (s *BranchService) Get(ctx context.Context, id string) (types.Branch, error) {
	return s.repo.Get(ctx, id)
}

func (s *BranchService) ListBySchool(ctx context.Context, schoolID string) ([]types.Branch, error) {
	return s.repo.ListBySchool(ctx, schoolID)
}
