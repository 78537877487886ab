package service

import (
	"context"
	"time"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/pkg/storage"
	"gorm.io/gorm"
)

// RoleResolver looks up a caller's membership and role inside a forum
type RoleResolver interface {
	GetUserDetailsInForum(ctx context.Context, forum domain.ForumRef, userID string) (*domain.Membership, error)
}

// QuotaGateway per-user publication quota. CheckAndIncrement runs inside the
// caller's transaction; Release gives back a reservation the rollback did not undo.
type QuotaGateway interface {
	CheckAndIncrement(ctx context.Context, tx *gorm.DB, userID string) error
	Release(ctx context.Context, userID string) error
}

// FeedGateway forum activity feed, written through the caller's transaction
type FeedGateway interface {
	CreateFeed(ctx context.Context, tx *gorm.DB, entry *domain.FeedEntry) error
	UpdateFeed(ctx context.Context, tx *gorm.DB, contentID string, state domain.FeedState) error
}

// FileStore attachment storage
type FileStore interface {
	Upload(ctx context.Context, data []byte, name, mimeType, bucket string) (*storage.StoredFile, error)
	Delete(ctx context.Context, url string) error
}

// action something a forum role may be allowed to do
type action string

const (
	actionView    action = "view"
	actionPropose action = "propose"
	actionPublish action = "publish" // skip the proposal queue
	actionReview  action = "review"  // accept or reject proposals
	actionManage  action = "manage"  // archive, delete, visibility, reconcile
)

// can role permission table
func can(role domain.Role, a action) bool {
	switch role {
	case domain.RoleOwner, domain.RoleAdmin:
		return true
	case domain.RoleModerator:
		return a == actionView || a == actionPropose || a == actionPublish
	case domain.RoleMember:
		return a == actionView || a == actionPropose
	default:
		return false
	}
}

// allowed like can, but only for actual members
func allowed(m *domain.Membership, a action) bool {
	return m != nil && m.IsMember && can(m.Role, a)
}

// creationStatus status a new rule gets. Global rules have no forum roles:
// they are published unless kept as a draft.
func creationStatus(forum domain.ForumRef, m *domain.Membership, requested domain.RuleStatus) (domain.RuleStatus, error) {
	if requested != "" && requested != domain.RuleDraft && requested != domain.RulePublished && requested != domain.RuleProposed {
		return "", common.Invalid("status must be draft, proposed or published")
	}
	if forum.IsGlobal() {
		if requested == domain.RuleDraft {
			return domain.RuleDraft, nil
		}
		return domain.RulePublished, nil
	}
	if !allowed(m, actionPropose) {
		return "", common.ErrNotMember
	}
	if requested == domain.RuleDraft {
		return domain.RuleDraft, nil
	}
	if allowed(m, actionPublish) {
		return domain.RulePublished, nil
	}
	return domain.RuleProposed, nil
}

func isCreator(rule *domain.Rule, userID string) bool {
	return userID != "" && rule.CreatedBy == userID
}

// canManageRule managers of the owning forum, or the creator while the rule is private
func canManageRule(m *domain.Membership, rule *domain.Rule, userID string) bool {
	if allowed(m, actionManage) {
		return true
	}
	return isCreator(rule, userID) && !rule.IsPublic
}

// canEditRule managers of the owning forum or the creator
func canEditRule(m *domain.Membership, rule *domain.Rule, userID string) bool {
	return allowed(m, actionManage) || isCreator(rule, userID)
}

// checkView single-rule read gate
func checkView(m *domain.Membership, rule *domain.Rule, userID string) error {
	if isCreator(rule, userID) {
		return nil
	}
	switch rule.PublishedStatus {
	case domain.RuleDraft:
		return common.ErrNotOwner
	case domain.RuleProposed, domain.RuleRejected:
		if !allowed(m, actionReview) {
			return common.ErrProposalsHidden
		}
	}
	if !rule.IsPublic && !allowed(m, actionView) {
		return common.ErrPrivateRule
	}
	if rule.IsArchived && !allowed(m, actionManage) {
		return common.ErrArchivedRule
	}
	return nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
