package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolCounts(t *testing.T) {
	pool, err := NewPool(5, 100, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, pool.NumTasks())

	for i := 0; i < 5; i++ {
		buf, err := pool.At(i)
		require.NoError(t, err)
		assert.Equal(t, 100, buf.MaxCapacity())
		assert.Equal(t, 0, buf.Capacity())
	}
}

func TestNewPoolZeroTasks(t *testing.T) {
	pool, err := NewPool(0, 100, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, pool.NumTasks())

	_, err = pool.At(0)
	assert.Error(t, err)
}

func TestNewPoolNegativeTasks(t *testing.T) {
	_, err := NewPool(-1, 100, 2, 1, 0)
	assert.Error(t, err)
}

func TestPoolAtOutOfRange(t *testing.T) {
	pool, err := NewPool(3, 100, 2, 1, 0)
	require.NoError(t, err)

	_, err = pool.At(-1)
	assert.Error(t, err)
	_, err = pool.At(3)
	assert.Error(t, err)
}

func TestPoolBuffersIndependent(t *testing.T) {
	pool, err := NewPool(3, 100, 2, 1, 0)
	require.NoError(t, err)

	buf0, err := pool.At(0)
	require.NoError(t, err)
	require.NoError(t, buf0.Add(transitionWithReward(1)))
	require.NoError(t, buf0.Add(transitionWithReward(2)))

	// Adding to one task's buffer leaves the others untouched
	for i := 1; i < 3; i++ {
		buf, err := pool.At(i)
		require.NoError(t, err)
		assert.Equal(t, 0, buf.Capacity())
	}
	assert.Equal(t, 2, buf0.Capacity())
}

func TestPoolReset(t *testing.T) {
	pool, err := NewPool(2, 100, 2, 1, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		buf, err := pool.At(i)
		require.NoError(t, err)
		require.NoError(t, buf.Add(transitionWithReward(float64(i))))
	}

	require.NoError(t, pool.Reset())

	assert.Equal(t, 2, pool.NumTasks())
	for i := 0; i < 2; i++ {
		buf, err := pool.At(i)
		require.NoError(t, err)
		assert.Equal(t, 0, buf.Capacity())
	}
}

func TestPoolResetIdempotent(t *testing.T) {
	pool, err := NewPool(2, 100, 2, 1, 0)
	require.NoError(t, err)

	require.NoError(t, pool.Reset())
	require.NoError(t, pool.Reset())
	assert.Equal(t, 2, pool.NumTasks())
}
