package types

import "time"

// User represents an account in the system.
// It contains identity, tenancy scope, and login metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Email is the user's login address. Stored lower-cased.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Role is the user's authorization role within their school.
	Role Role `json:"role" db:"role"`

	// SchoolID identifies the school (tenant) that owns the user.
	SchoolID string `json:"school_id" db:"school_id"`

	// BranchID identifies the branch the user belongs to.
	// It is nil for school-wide accounts such as SUPER_ADMIN.
	BranchID *string `json:"branch_id,omitempty" db:"branch_id"`

	// IsActive reports whether the account may sign in and use sessions.
	IsActive bool `json:"is_active" db:"is_active"`

	// LastLoginAt is the timestamp of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AuthUser is the password-free projection of a User. It is the only user
// representation carried in a session token or returned to callers.
type AuthUser struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Role      Role    `json:"role"`
	SchoolID  string  `json:"school_id"`
	BranchID  *string `json:"branch_id,omitempty"`
}

// AuthUser projects the user onto its password-free form.
func (u User) AuthUser() AuthUser {
	var branchID *string
	if u.BranchID != nil {
		id := *u.BranchID
		branchID = &id
	}
	return AuthUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		SchoolID:  u.SchoolID,
		BranchID:  branchID,
	}
}

// InBranch reports whether the user is assigned to the given branch.
func (u AuthUser) InBranch(branchID string) bool {
	return branchID != "" && u.BranchID != nil && *u.BranchID == branchID
}

// Equal reports whether two projections carry the same fields.
func (u AuthUser) Equal(other AuthUser) bool {
	if u.ID != other.ID ||
		u.Email != other.Email ||
		u.FirstName != other.FirstName ||
		u.LastName != other.LastName ||
		u.Role != other.Role ||
		u.SchoolID != other.SchoolID {
		return false
	}
	if u.BranchID == nil || other.BranchID == nil {
		return u.BranchID == nil && other.BranchID == nil
	}
	return *u.BranchID == *other.BranchID
}
