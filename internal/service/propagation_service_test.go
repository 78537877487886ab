package service

import (
	"testing"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_FillsLateChapters(t *testing.T) {
	f := newFixture(t)
	club := domain.Club("c1")
	f.chapter(t, "early", "c1", domain.ChapterPublished)
	first := f.publish(t, club, "first")
	second := f.publish(t, club, "second")
	assert.Equal(t, int64(2), f.countRows(t, &domain.ChapterRule{}, ""))

	f.chapter(t, "late", "c1", domain.ChapterPublished)

	n, err := f.propagation.Reconcile(f.ctx, "owner-c1", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, rule := range []*domain.Rule{first, second} {
		records, err := f.propagation.ListForRule(f.ctx, "owner-c1", rule.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	}

	n, err = f.propagation.Reconcile(f.ctx, "owner-c1", "c1")
	require.NoError(t, err)
	assert.Zero(t, n, "existing pairs are skipped")
	assert.Equal(t, int64(4), f.countRows(t, &domain.ChapterRule{}, ""))
}

func TestReconcile_ManagersOnly(t *testing.T) {
	f := newFixture(t)
	f.join(t, domain.Club("c1"), "m1", domain.RoleMember)

	_, err := f.propagation.Reconcile(f.ctx, "m1", "c1")
	assert.ErrorIs(t, err, common.ErrNotManager)
	_, err = f.propagation.Reconcile(f.ctx, "", "c1")
	assert.ErrorIs(t, err, common.ErrMissingCaller)
}

func TestPropagate_SkipsNonClubRules(t *testing.T) {
	f := newFixture(t)
	f.chapter(t, "ch1", "n1", domain.ChapterPublished)
	f.publish(t, domain.Node("n1"), "node rule")

	assert.Equal(t, int64(0), f.countRows(t, &domain.ChapterRule{}, ""))
}

func TestSetChapterStatus(t *testing.T) {
	f := newFixture(t)
	f.chapter(t, "ch1", "c1", domain.ChapterPublished)
	rule := f.publish(t, domain.Club("c1"), "r")
	f.join(t, domain.ChapterForum("ch1"), "lead", domain.RoleOwner)
	f.join(t, domain.ChapterForum("ch1"), "reader", domain.RoleMember)

	records, err := f.propagation.ListForRule(f.ctx, "owner-c1", rule.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = f.propagation.SetChapterStatus(f.ctx, "reader", records[0].ID, domain.RuleArchived)
	assert.ErrorIs(t, err, common.ErrNotManager)
	_, err = f.propagation.SetChapterStatus(f.ctx, "lead", records[0].ID, domain.RuleDraft)
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = f.propagation.SetChapterStatus(f.ctx, "lead", "missing", domain.RuleArchived)
	assert.ErrorIs(t, err, common.ErrChapterRuleNotFound)

	updated, err := f.propagation.SetChapterStatus(f.ctx, "lead", records[0].ID, domain.RuleRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleRejected, updated.Status)
	assert.Equal(t, domain.RulePublished, f.loadRule(t, rule.ID).PublishedStatus, "the club's rule is untouched")
}

func TestListForRule_FollowsRuleVisibility(t *testing.T) {
	f := newFixture(t)
	club := domain.Club("c1")
	f.chapter(t, "ch1", "c1", domain.ChapterPublished)
	rule := f.publish(t, club, "members only")
	f.join(t, club, "m1", domain.RoleMember)

	records, err := f.propagation.ListForRule(f.ctx, "", rule.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "public rules are listed for anyone")

	_, err = f.rules.SetVisibility(f.ctx, "owner-c1", rule.ID, false)
	require.NoError(t, err)

	_, err = f.propagation.ListForRule(f.ctx, "stranger", rule.ID)
	assert.ErrorIs(t, err, common.ErrPrivateRule)
	_, err = f.propagation.ListForRule(f.ctx, "", rule.ID)
	assert.ErrorIs(t, err, common.ErrPrivateRule)

	records, err = f.propagation.ListForRule(f.ctx, "m1", rule.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = f.propagation.ListForRule(f.ctx, "m1", "missing")
	assert.ErrorIs(t, err, common.ErrRuleNotFound)
}
