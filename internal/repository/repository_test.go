package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/migration"
	"github.com/damoang/angple-rules/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(db))
	return db
}

func TestQuotaRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	quota := NewQuotaRepository(db, 2)

	require.NoError(t, quota.CheckAndIncrement(ctx, nil, "u1"))
	require.NoError(t, quota.CheckAndIncrement(ctx, nil, "u1"))
	assert.ErrorIs(t, quota.CheckAndIncrement(ctx, nil, "u1"), common.ErrQuotaExceeded)

	used, err := quota.Used(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	used, err = quota.Used(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestQuotaRepository_RollsBackWithTransaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	quota := NewQuotaRepository(db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, quota.CheckAndIncrement(ctx, tx, "u1"))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	used, err := quota.Used(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestRedisQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()
	quota := NewRedisQuota(client, 2)

	require.NoError(t, quota.CheckAndIncrement(ctx, nil, "u1"))
	require.NoError(t, quota.CheckAndIncrement(ctx, nil, "u1"))
	assert.ErrorIs(t, quota.CheckAndIncrement(ctx, nil, "u1"), common.ErrQuotaExceeded)

	used, err := quota.Used(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, used, "a refused reservation leaves the counter alone")

	require.NoError(t, quota.Release(ctx, "u1"))
	used, err = quota.Used(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, used)
	require.NoError(t, quota.CheckAndIncrement(ctx, nil, "u1"))
}

func TestRedisQuota_ReleaseNeverGoesNegative(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()
	quota := NewRedisQuota(client, 2)

	require.NoError(t, quota.Release(ctx, "u1"))
	used, err := quota.Used(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestMembershipRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	members := NewMembershipRepository(db)
	club := domain.Club("c1")

	m, err := members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.False(t, m.IsMember)

	require.NoError(t, members.Upsert(ctx, club, "u1", "alice", domain.RoleMember))
	require.NoError(t, members.Upsert(ctx, club, "u1", "alice", domain.RoleAdmin))

	m, err = members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.True(t, m.IsMember)
	assert.Equal(t, domain.RoleAdmin, m.Role)
	assert.True(t, m.IsManager())
	assert.Equal(t, "alice", m.UserDetails.Nickname)

	m, err = members.GetUserDetailsInForum(ctx, domain.Node("c1"), "u1")
	require.NoError(t, err)
	assert.False(t, m.IsMember, "membership is per forum type")

	m, err = members.GetUserDetailsInForum(ctx, domain.Global(), "u1")
	require.NoError(t, err)
	assert.False(t, m.IsMember)
}

func TestFeedRepository_UpdateScopesAdoptions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	feed := NewFeedRepository(db)

	require.NoError(t, feed.CreateFeed(ctx, nil, &domain.FeedEntry{
		ForumType: domain.ForumClub, ForumID: "c1", ContentType: domain.FeedContentRule, ContentID: "r1",
	}))
	require.NoError(t, feed.CreateFeed(ctx, nil, &domain.FeedEntry{
		ForumType: domain.ForumClub, ForumID: "c2", ContentType: domain.FeedContentRule, ContentID: "r1",
		AdoptionType: domain.FeedAdoptionRule, AdoptionID: "a1",
	}))

	require.NoError(t, feed.UpdateFeed(ctx, nil, "r1", domain.FeedArchived))

	visible := func(forumID string) int64 {
		var n int64
		require.NoError(t, db.Model(&domain.FeedEntry{}).
			Where("forum_id = ? AND state = ?", forumID, domain.FeedPublished).
			Count(&n).Error)
		return n
	}
	assert.Zero(t, visible("c1"))
	assert.Equal(t, int64(1), visible("c2"), "adoption entries follow their own lifecycle")

	require.NoError(t, feed.UpdateFeed(ctx, nil, "a1", domain.FeedDeleted))
	assert.Zero(t, visible("c2"))
}

func TestRuleRepository_KeysetAndSearch(t *testing.T) {
	db := setupTestDB(t)
	rules := NewRuleRepository(db)
	club := domain.Club("c1")
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, title := range []string{"Alpha", "beta_rule", "Gamma", "deleted"} {
		r := &domain.Rule{
			ID:              string(rune('a' + i)),
			Title:           title,
			PublishedStatus: domain.RulePublished,
			IsPublic:        true,
			IsDeleted:       title == "deleted",
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
		}
		r.SetForum(club)
		require.NoError(t, rules.Create(r))
	}

	f := RuleFilter{Forum: &club, Clauses: []RuleClause{{Statuses: []domain.RuleStatus{domain.RulePublished}}}}
	page, err := rules.ListPage(f, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Gamma", page[0].Title)
	assert.Equal(t, "beta_rule", page[1].Title)

	rest, err := rules.ListPage(f, &Keyset{CreatedAt: page[1].CreatedAt, ID: page[1].ID}, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "Alpha", rest[0].Title)

	total, err := rules.Count(f)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	f.Search = "_RULE"
	found, err := rules.ListPage(f, nil, 10)
	require.NoError(t, err)
	require.Len(t, found, 1, "underscore is matched literally")
	assert.Equal(t, "beta_rule", found[0].Title)
}

func TestRuleRepository_SearchMatchesTagValues(t *testing.T) {
	db := setupTestDB(t)
	rules := NewRuleRepository(db)
	club := domain.Club("c1")

	for i, r := range []*domain.Rule{
		{ID: "untagged", Title: "alpha"},
		{ID: "tagged", Title: "beta", Tags: domain.StringList{"spam", "Q&A"}},
	} {
		r.PublishedStatus = domain.RulePublished
		r.IsPublic = true
		r.CreatedAt = time.Date(2026, 2, 1, i, 0, 0, 0, time.UTC)
		r.SetForum(club)
		require.NoError(t, rules.Create(r))
	}

	search := func(q string) []string {
		f := RuleFilter{Forum: &club, Clauses: []RuleClause{{Statuses: []domain.RuleStatus{domain.RulePublished}}}, Search: q}
		found, err := rules.ListPage(f, nil, 10)
		require.NoError(t, err)
		ids := make([]string, len(found))
		for i, r := range found {
			ids[i] = r.ID
		}
		return ids
	}

	assert.Empty(t, search("["), "array brackets are not content")
	assert.Empty(t, search(`","`))
	assert.Equal(t, []string{"tagged"}, search("SPAM"))
	assert.Equal(t, []string{"tagged"}, search("q&a"))
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, IsDuplicateKey(nil))
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(assertErr("Error 1062 (23000): Duplicate entry 'x' for key 'idx_adoption_live'")))
	assert.True(t, IsDuplicateKey(assertErr("UNIQUE constraint failed: rule_adoptions.rule_id")))
	assert.False(t, IsDuplicateKey(assertErr("connection refused")))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestCachedMembership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	members := NewCachedMembership(NewMembershipRepository(db), cache.NewService(client), time.Minute)
	club := domain.Club("c1")
	require.NoError(t, members.Upsert(ctx, club, "u1", "Alice", domain.RoleMember))

	m, err := members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, m.Role)
	assert.True(t, mr.Exists(cache.MembershipKey("club", "c1", "u1")))

	// 캐시가 있으면 DB 를 보지 않는다
	require.NoError(t, db.Model(&domain.ForumMember{}).Where("user_id = ?", "u1").Update("role", domain.RoleAdmin).Error)
	m, err = members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, m.Role)

	mr.Del(cache.MembershipKey("club", "c1", "u1"))
	m, err = members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, m.Role)

	require.NoError(t, members.Upsert(ctx, club, "u1", "Alice", domain.RoleOwner))
	m, err = members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, m.Role)

	// Redis 장애 시 DB 로 fallback
	mr.Close()
	m, err = members.GetUserDetailsInForum(ctx, club, "u1")
	require.NoError(t, err)
	assert.True(t, m.IsMember)
}

func TestAdoptionRepository_UpdateFromGuardsStatus(t *testing.T) {
	db := setupTestDB(t)
	adoptions := NewAdoptionRepository(db)
	require.NoError(t, adoptions.Create(&domain.RuleAdoption{
		ID:        "a1",
		RuleID:    "r1",
		ForumType: domain.ForumClub,
		ForumID:   "c1",
		LiveSlot:  domain.LiveSlotValue(),
		Status:    domain.AdoptionProposed,
	}))

	moved, err := adoptions.UpdateFrom("a1", domain.AdoptionProposed, map[string]interface{}{"published_status": domain.AdoptionPublished})
	require.NoError(t, err)
	assert.True(t, moved)

	// a second writer still expecting proposed loses
	moved, err = adoptions.UpdateFrom("a1", domain.AdoptionProposed, map[string]interface{}{"published_status": domain.AdoptionRejected})
	require.NoError(t, err)
	assert.False(t, moved)

	locked, err := adoptions.FindByIDForUpdate("a1")
	require.NoError(t, err)
	assert.Equal(t, domain.AdoptionPublished, locked.Status)
}
