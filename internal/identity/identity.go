// Package identity resolves opaque actor references supplied by the host
// system into stable user ids and trust flags. The core never owns user
// records; it only consumes this port.
package identity

import (
	"context"
	"strconv"

	"github.com/groupgate/groupgate/internal/shared"
)

// Resolver is the consumed identity-provider boundary.
type Resolver interface {
	// Resolve maps an opaque actor reference to a stable user id.
	Resolve(ctx context.Context, ref string) (int64, error)
	// IsPrivileged reports whether the user holds the privileged override
	// trust flag that bypasses group-based read gating entirely.
	IsPrivileged(ctx context.Context, userID int64) (bool, error)
}

// StaticResolver is a config-backed resolver: actor references are decimal
// user ids and the privileged set is fixed at startup.
type StaticResolver struct {
	privileged map[int64]struct{}
}

// NewStaticResolver builds a resolver trusting the given user ids.
func NewStaticResolver(privilegedIDs []int64) *StaticResolver {
	set := make(map[int64]struct{}, len(privilegedIDs))
	for _, id := range privilegedIDs {
		set[id] = struct{}{}
	}
	return &StaticResolver{privileged: set}
}

// Resolve parses the reference as a decimal user id.
func (r *StaticResolver) Resolve(ctx context.Context, ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}

// IsPrivileged reports membership in the configured privileged set.
func (r *StaticResolver) IsPrivileged(ctx context.Context, userID int64) (bool, error) {
	_, ok := r.privileged[userID]
	return ok, nil
}
