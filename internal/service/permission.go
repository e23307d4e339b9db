// Package service hosts the collaborator-facing services around the core:
// permission checks and the queue delivery worker.
package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Permissioner answers allow/deny for a (subject, permission) pair. The
// real implementation lives with the platform's auth stack; the core only
// consumes this interface.
type Permissioner interface {
	Check(ctx context.Context, subjectID, permission string) (bool, error)
}

// AllowAll is the development default: every check passes.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string, string) (bool, error) { return true, nil }

// CachedPermissioner wraps a Permissioner with a cache-aside LRU so room
// subscribe bursts do not hammer the permission collaborator.
type CachedPermissioner struct {
	next  Permissioner
	cache *lru.Cache[string, bool]
}

func NewCachedPermissioner(next Permissioner, size int) (*CachedPermissioner, error) {
	cache, err := lru.New[string, bool](size)
	if err != nil {
		return nil, fmt.Errorf("permission cache: %w", err)
	}
	return &CachedPermissioner{next: next, cache: cache}, nil
}

func (p *CachedPermissioner) Check(ctx context.Context, subjectID, permission string) (bool, error) {
	key := subjectID + "\x00" + permission
	if allowed, ok := p.cache.Get(key); ok {
		return allowed, nil
	}

	allowed, err := p.next.Check(ctx, subjectID, permission)
	if err != nil {
		// Denials on error are not cached: the collaborator may recover.
		return false, err
	}
	p.cache.Add(key, allowed)
	return allowed, nil
}
