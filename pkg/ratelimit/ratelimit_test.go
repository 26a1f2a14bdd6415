package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBurstThenThrottle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	policy := Policy{RPS: 1, Burst: 3}

	for i := 0; i < 3; i++ {
		ok, err := s.Allow(ctx, "alice", policy, 1)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be inside the burst", i)
	}

	ok, err := s.Allow(ctx, "alice", policy, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreIsolatesActors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	policy := Policy{RPS: 1, Burst: 1}

	ok, err := s.Allow(ctx, "alice", policy, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Allow(ctx, "alice", policy, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different actor gets a separate bucket.
	ok, err = s.Allow(ctx, "bob", policy, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreCost(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	policy := Policy{RPS: 1, Burst: 4}

	ok, err := s.Allow(ctx, "alice", policy, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	// One token left; a cost-2 spend fails, a cost-1 succeeds.
	ok, err = s.Allow(ctx, "alice", policy, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Allow(ctx, "alice", policy, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
