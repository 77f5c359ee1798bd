package groups

import "time"

// ReservedGroupName is the implicit "all registered users" group created at
// bootstrap. It collects every known user and can never be deleted.
const ReservedGroupName = "Registered"

// Group is a named node in the single-parent hierarchy. ParentID is nil for
// roots; the parent relation is kept acyclic by the hierarchy validator.
type Group struct {
	ID          int64
	Name        string
	Description string
	ParentID    *int64
	CreatorID   *int64
	IsSystem    bool
	CreatedAt   time.Time
}

// ListGroupsRequest filters and orders group listings.
type ListGroupsRequest struct {
	Search   string
	ParentID *int64
	SortBy   string // "id" or "name"
	SortDir  string // "asc" or "desc"
}

// CreateGroupRequest carries the fields for a new group.
type CreateGroupRequest struct {
	Name        string
	Description string
	ParentID    *int64
	CreatorID   *int64
}

// UpdateGroupRequest carries a partial update. Nil fields are left
// untouched; SetParent distinguishes "keep parent" from "detach" when
// ParentID is nil.
type UpdateGroupRequest struct {
	Name        *string
	Description *string
	SetParent   bool
	ParentID    *int64
}
