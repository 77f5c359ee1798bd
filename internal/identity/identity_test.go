package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupgate/groupgate/internal/shared"
)

func TestStaticResolverResolve(t *testing.T) {
	resolver := NewStaticResolver(nil)
	ctx := context.Background()

	id, err := resolver.Resolve(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = resolver.Resolve(ctx, "not-a-number")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = resolver.Resolve(ctx, "-1")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestStaticResolverIsPrivileged(t *testing.T) {
	resolver := NewStaticResolver([]int64{7, 9})
	ctx := context.Background()

	ok, err := resolver.IsPrivileged(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.IsPrivileged(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}
