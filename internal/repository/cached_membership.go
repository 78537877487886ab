package repository

import (
	"context"
	"errors"
	"time"

	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/pkg/cache"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
)

// CachedMembership read-through Redis cache in front of MembershipRepository.
// Cache failures fall back to the database.
type CachedMembership struct {
	next  *MembershipRepository
	cache cache.Service
	ttl   time.Duration
}

// NewCachedMembership creates a new CachedMembership
func NewCachedMembership(next *MembershipRepository, c cache.Service, ttl time.Duration) *CachedMembership {
	if ttl <= 0 {
		ttl = cache.TTLMembership
	}
	return &CachedMembership{next: next, cache: c, ttl: ttl}
}

// GetUserDetailsInForum implements service.RoleResolver
func (r *CachedMembership) GetUserDetailsInForum(ctx context.Context, forum domain.ForumRef, userID string) (*domain.Membership, error) {
	if forum.IsGlobal() || userID == "" {
		return r.next.GetUserDetailsInForum(ctx, forum, userID)
	}

	key := cache.MembershipKey(string(forum.Type), forum.ID, userID)
	var cached domain.Membership
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		pkglogger.GetLogger().Warn().Err(err).Str("key", key).Msg("membership cache read failed")
	}

	m, err := r.next.GetUserDetailsInForum(ctx, forum, userID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, m, r.ttl); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("key", key).Msg("membership cache write failed")
	}
	return m, nil
}

// Upsert writes through and drops the cached entry
func (r *CachedMembership) Upsert(ctx context.Context, forum domain.ForumRef, userID, nickname string, role domain.Role) error {
	if err := r.next.Upsert(ctx, forum, userID, nickname, role); err != nil {
		return err
	}
	return r.cache.Delete(ctx, cache.MembershipKey(string(forum.Type), forum.ID, userID))
}
