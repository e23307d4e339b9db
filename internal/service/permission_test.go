package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPerms struct {
	calls   int
	allowed bool
	err     error
}

func (p *countingPerms) Check(context.Context, string, string) (bool, error) {
	p.calls++
	return p.allowed, p.err
}

func TestCachedPermissionerCachesDecisions(t *testing.T) {
	next := &countingPerms{allowed: true}
	cached, err := NewCachedPermissioner(next, 16)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := cached.Check(ctx, "agent-1", "room:join:quote")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.Equal(t, 1, next.calls)

	// A different pair misses the cache.
	_, err = cached.Check(ctx, "agent-2", "room:join:quote")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedPermissionerCachesDenials(t *testing.T) {
	next := &countingPerms{allowed: false}
	cached, err := NewCachedPermissioner(next, 16)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		allowed, err := cached.Check(context.Background(), "agent-1", "room:join:admin")
		require.NoError(t, err)
		assert.False(t, allowed)
	}
	assert.Equal(t, 1, next.calls)
}

func TestCachedPermissionerDoesNotCacheErrors(t *testing.T) {
	next := &countingPerms{err: errors.New("auth backend down")}
	cached, err := NewCachedPermissioner(next, 16)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := cached.Check(ctx, "agent-1", "room:join:quote")
		require.Error(t, err)
		assert.False(t, allowed)
	}
	assert.Equal(t, 3, next.calls, "errors must reach the collaborator every time")

	// Recovery is picked up and then cached.
	next.err = nil
	next.allowed = true
	allowed, err := cached.Check(ctx, "agent-1", "room:join:quote")
	require.NoError(t, err)
	assert.True(t, allowed)
	_, _ = cached.Check(ctx, "agent-1", "room:join:quote")
	assert.Equal(t, 4, next.calls)
}

func TestCachedPermissionerRejectsBadSize(t *testing.T) {
	_, err := NewCachedPermissioner(AllowAll{}, 0)
	assert.Error(t, err)
}

func TestPermissionMiddlewarePassesThrough(t *testing.T) {
	next := &countingPerms{allowed: true}
	mw := NewPermissionMiddleware(next, slog.Default())

	allowed, err := mw.Check(context.Background(), "agent-1", "room:join:quote")
	require.NoError(t, err)
	assert.True(t, allowed)

	next.allowed = false
	allowed, err = mw.Check(context.Background(), "agent-1", "room:join:admin")
	require.NoError(t, err)
	assert.False(t, allowed)

	next.err = errors.New("boom")
	_, err = mw.Check(context.Background(), "agent-1", "room:join:quote")
	assert.Error(t, err)
}
