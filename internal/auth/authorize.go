package auth

import (
	"errors"
	"log"
	"slices"

	"github.com/schoolhub/apiserver/types"
)

// ErrForbidden is returned when an authenticated user may not perform an
// operation.
var ErrForbidden = errors.New("forbidden")

// Rule names reported for branch decisions.
const (
	RuleGlobalScope    = "global_scope"
	RuleBranchRole     = "branch_role"
	RuleOwnBranch      = "own_branch"
	RuleBranchMismatch = "branch_mismatch"
)

// HasPermission reports whether role is one of allowed.
func HasPermission(role types.Role, allowed ...types.Role) bool {
	return role.Valid() && slices.Contains(allowed, role)
}

// CanAccessBranch reports whether user may touch data scoped to branchID.
func CanAccessBranch(user types.AuthUser, branchID string) bool {
	allowed, _ := branchDecision(user, branchID)
	return allowed
}

// branchDecision evaluates the branch rules in order; the first match wins.
func branchDecision(user types.AuthUser, branchID string) (bool, string) {
	switch {
	case user.Role == types.RoleSuperAdmin:
		return true, RuleGlobalScope
	case (user.Role == types.RoleBranchAdmin || user.Role == types.RoleRegistrar) && user.InBranch(branchID):
		return true, RuleBranchRole
	case user.Role.Valid() && user.InBranch(branchID):
		return true, RuleOwnBranch
	default:
		return false, RuleBranchMismatch
	}
}

// Authorizer applies the role and branch gates and reports each branch
// decision. Denials are logged; every decision goes to the observer.
type Authorizer struct {
	logger  *log.Logger
	observe func(rule string, allowed bool)
}

func NewAuthorizer(logger *log.Logger, observe func(rule string, allowed bool)) *Authorizer {
	if logger == nil {
		logger = log.Default()
	}
	if observe == nil {
		observe = func(string, bool) {}
	}
	return &Authorizer{logger: logger, observe: observe}
}

// CanAccessBranch is CanAccessBranch with diagnostics.
func (a *Authorizer) CanAccessBranch(user types.AuthUser, branchID string) bool {
	allowed, rule := branchDecision(user, branchID)
	a.observe(rule, allowed)
	if !allowed {
		a.logger.Printf("branch access denied user_id=%s role=%s user_branch=%s requested_branch=%s",
			user.ID, user.Role, branchLabel(user.BranchID), branchID)
	}
	return allowed
}

// CanAccessSchool reports whether user belongs to the school. Every role,
// SUPER_ADMIN included, is confined to its own tenant.
func (a *Authorizer) CanAccessSchool(user types.AuthUser, schoolID string) bool {
	if schoolID != "" && user.SchoolID == schoolID {
		return true
	}
	a.logger.Printf("school access denied user_id=%s role=%s user_school=%s requested_school=%s",
		user.ID, user.Role, user.SchoolID, schoolID)
	return false
}

// Authorize applies the coarse role gate, then the branch gate.
func (a *Authorizer) Authorize(user types.AuthUser, branchID string, allowed ...types.Role) error {
	if !HasPermission(user.Role, allowed...) {
		return ErrForbidden
	}
	if !a.CanAccessBranch(user, branchID) {
		return ErrForbidden
	}
	return nil
}

func branchLabel(branchID *string) string {
	if branchID == nil {
		return "-"
	}
	return *branchID
}
