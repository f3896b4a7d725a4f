//go:build integration

package listqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink/pkg/testutil/containers"
)

func TestRedis_FIFOAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	q := NewRedis[item](rc.Client, "bloodlink:test")

	require.NoError(t, q.Enqueue(ctx, item{N: 1}))
	require.NoError(t, q.Enqueue(ctx, item{N: 2}))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.N)

	require.NoError(t, q.DeadLetter(ctx, got))
	dead, err := q.DeadLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	_, _, err = q.Dequeue(ctx)
	require.NoError(t, err)
	_, ok, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
