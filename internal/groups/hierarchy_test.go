package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupgate/groupgate/internal/shared"
)

// memorySource is an in-memory forest keyed by parent id.
type memorySource struct {
	children map[int64][]int64
	total    int64
	calls    int
}

func (m *memorySource) ChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error) {
	m.calls++
	var out []int64
	for _, parent := range parentIDs {
		out = append(out, m.children[parent]...)
	}
	return out, nil
}

func (m *memorySource) Count(ctx context.Context) (int64, error) {
	return m.total, nil
}

func TestSuccessorSet(t *testing.T) {
	// 1 -> 2 -> 3, 1 -> 4; 5 is unrelated.
	src := &memorySource{
		children: map[int64][]int64{1: {2, 4}, 2: {3}},
		total:    5,
	}

	set, err := SuccessorSet(context.Background(), src, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}, 3: {}, 4: {}}, set)

	set, err = SuccessorSet(context.Background(), src, 3)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{3: {}}, set)

	set, err = SuccessorSet(context.Background(), src, 5)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{5: {}}, set)
}

func TestSuccessorSetTerminatesOnCorruptHierarchy(t *testing.T) {
	// 1 -> 2 -> 1 should never exist, but the traversal must still stop.
	src := &memorySource{
		children: map[int64][]int64{1: {2}, 2: {1}},
		total:    2,
	}
	set, err := SuccessorSet(context.Background(), src, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, set)
}

func TestValidateParent(t *testing.T) {
	src := &memorySource{
		children: map[int64][]int64{1: {2}, 2: {3}},
		total:    4,
	}
	ctx := context.Background()

	require.NoError(t, ValidateParent(ctx, src, 1, nil), "detach is always valid")

	four := int64(4)
	require.NoError(t, ValidateParent(ctx, src, 1, &four), "unrelated parent is valid")

	one := int64(1)
	err := ValidateParent(ctx, src, 1, &one)
	assert.True(t, errors.Is(err, shared.ErrCycle), "self parent must be a cycle")

	three := int64(3)
	err = ValidateParent(ctx, src, 1, &three)
	assert.True(t, errors.Is(err, shared.ErrCycle), "transitive descendant must be a cycle")

	err = ValidateParent(ctx, src, 2, &three)
	assert.True(t, errors.Is(err, shared.ErrCycle), "direct child must be a cycle")

	err = ValidateParent(ctx, src, 3, &one)
	assert.NoError(t, err, "re-parenting a leaf under the root is valid")
}
