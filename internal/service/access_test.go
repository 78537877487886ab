package service

import (
	"testing"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role domain.Role
		act  action
		want bool
	}{
		{domain.RoleOwner, actionManage, true},
		{domain.RoleAdmin, actionReview, true},
		{domain.RoleModerator, actionPublish, true},
		{domain.RoleModerator, actionReview, false},
		{domain.RoleModerator, actionManage, false},
		{domain.RoleMember, actionPropose, true},
		{domain.RoleMember, actionPublish, false},
		{domain.Role(""), actionView, false},
		{domain.Role("guest"), actionView, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, can(tt.role, tt.act), "%s/%s", tt.role, tt.act)
	}
}

func TestAllowed_RequiresMembership(t *testing.T) {
	assert.False(t, allowed(nil, actionView))
	assert.False(t, allowed(&domain.Membership{Role: domain.RoleOwner}, actionView))
	assert.True(t, allowed(&domain.Membership{IsMember: true, Role: domain.RoleOwner}, actionManage))
}

func TestCreationStatus(t *testing.T) {
	club := domain.Club("c1")
	member := &domain.Membership{IsMember: true, Role: domain.RoleMember}
	admin := &domain.Membership{IsMember: true, Role: domain.RoleAdmin}

	tests := []struct {
		name      string
		forum     domain.ForumRef
		m         *domain.Membership
		requested domain.RuleStatus
		want      domain.RuleStatus
		wantErr   error
	}{
		{"member default", club, member, "", domain.RuleProposed, nil},
		{"member asks published", club, member, domain.RulePublished, domain.RuleProposed, nil},
		{"member draft", club, member, domain.RuleDraft, domain.RuleDraft, nil},
		{"admin default", club, admin, "", domain.RulePublished, nil},
		{"admin draft", club, admin, domain.RuleDraft, domain.RuleDraft, nil},
		{"global", domain.Global(), &domain.Membership{}, domain.RuleProposed, domain.RulePublished, nil},
		{"non member", club, &domain.Membership{}, "", "", common.ErrNotMember},
		{"bad status", club, admin, domain.RuleArchived, "", common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := creationStatus(tt.forum, tt.m, tt.requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckView(t *testing.T) {
	member := &domain.Membership{IsMember: true, Role: domain.RoleMember}
	owner := &domain.Membership{IsMember: true, Role: domain.RoleOwner}
	none := &domain.Membership{}

	published := &domain.Rule{CreatedBy: "a", PublishedStatus: domain.RulePublished, IsPublic: true}
	private := &domain.Rule{CreatedBy: "a", PublishedStatus: domain.RulePublished}
	archived := &domain.Rule{CreatedBy: "a", PublishedStatus: domain.RulePublished, IsPublic: true, IsArchived: true}
	proposed := &domain.Rule{CreatedBy: "a", PublishedStatus: domain.RuleProposed}

	assert.NoError(t, checkView(none, published, "x"))
	assert.ErrorIs(t, checkView(none, private, "x"), common.ErrPrivateRule)
	assert.NoError(t, checkView(member, private, "x"))
	assert.ErrorIs(t, checkView(member, archived, "x"), common.ErrArchivedRule)
	assert.NoError(t, checkView(owner, archived, "x"))
	assert.ErrorIs(t, checkView(member, proposed, "x"), common.ErrProposalsHidden)
	assert.NoError(t, checkView(owner, proposed, "x"))
	assert.NoError(t, checkView(none, proposed, "a"), "authors always see their own rules")
}
