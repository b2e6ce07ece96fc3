package types

import "time"

// School is the top-level tenant. It owns one or more branches.
type School struct {
	// ID is the unique identifier of the school.
	ID string `json:"id" db:"id"`

	// Name is the display name of the school.
	Name string `json:"name" db:"name"`

	// CreatedAt is the timestamp when the school was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Branch is a campus or site within a school. Branch-scoped roles only
// see data belonging to their own branch.
type Branch struct {
	// ID is the unique identifier of the branch.
	ID string `json:"id" db:"id"`

	// SchoolID identifies the owning school.
	SchoolID string `json:"school_id" db:"school_id"`

	// Name is the display name of the branch.
	Name string `json:"name" db:"name"`

	// Code is a short, school-unique label (e.g. "NORTH").
	Code string `json:"code" db:"code"`

	// CreatedAt is the timestamp when the branch was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the branch.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Document describes an object stored for a branch.
type Document struct {
	// BranchID identifies the branch that owns the document.
	BranchID string `json:"branch_id"`

	// Name is the document's file name within the branch.
	Name string `json:"name"`

	// ContentType is the MIME type recorded at upload.
	ContentType string `json:"content_type"`

	// Size is the document size in bytes.
	Size int64 `json:"size"`
}
