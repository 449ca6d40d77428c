package vkng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/vkbase/gpu"
)

func TestArena(t *testing.T) {
	var a arena[gpu.BufferID, string]

	_, ok := a.get(0)
	assert.False(t, ok)
	assert.Zero(t, a.len())

	first := a.put("vertex")
	second := a.put("index")
	assert.NotZero(t, first)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, a.len())

	item, ok := a.get(second)
	require.True(t, ok)
	assert.Equal(t, "index", item)

	item, ok = a.take(first)
	require.True(t, ok)
	assert.Equal(t, "vertex", item)
	assert.Equal(t, 1, a.len())

	_, ok = a.take(first)
	assert.False(t, ok)
}

func TestArena_IDsNotReused(t *testing.T) {
	var a arena[gpu.FenceID, int]

	seen := map[gpu.FenceID]bool{}
	for i := 0; i < 8; i++ {
		id := a.put(i)
		assert.False(t, seen[id])
		seen[id] = true
		a.take(id)
	}
	assert.Zero(t, a.len())
	assert.False(t, seen[0])
}

func TestPresentStatus(t *testing.T) {
	status, stale := presentStatus(0)
	assert.False(t, stale)
	assert.Equal(t, gpu.StatusSuccess, status)
}
