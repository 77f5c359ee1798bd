package capabilities

import "time"

// ReservedReadLabel marks the capability used to gate read access to
// restricted content. It is seeded at bootstrap and can never be deleted or
// relabeled away from this identity.
const ReservedReadLabel = "read_gated_content"

// Capability is a unique permission token attachable to groups or directly
// to users. Class and Object optionally scope the token to a resource type
// or a specific resource instance.
type Capability struct {
	ID          int64
	Label       string
	Class       string
	Object      string
	Name        string
	Description string
	CreatedAt   time.Time
}

// CreateCapabilityRequest carries the fields for a new capability.
type CreateCapabilityRequest struct {
	Label       string
	Class       string
	Object      string
	Name        string
	Description string
}

// UpdateCapabilityRequest carries a partial update. Nil fields are left
// untouched.
type UpdateCapabilityRequest struct {
	Label       *string
	Class       *string
	Object      *string
	Name        *string
	Description *string
}
