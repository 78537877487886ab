package service

import (
	"context"
	"strings"
	"time"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/repository"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	"github.com/google/uuid"
)

// AdoptInput request of a club or node to take over another forum's rule
type AdoptInput struct {
	RuleID  string `validate:"required,max=36"`
	Target  domain.ForumRef
	Message string `validate:"max=2000"`
}

// AdoptionService adoption of public rules by other forums
type AdoptionService struct {
	store *repository.Store
	roles RoleResolver
	feed  FeedGateway
	now   func() time.Time
}

// NewAdoptionService creates a new AdoptionService
func NewAdoptionService(store *repository.Store, roles RoleResolver, feed FeedGateway) *AdoptionService {
	return &AdoptionService{store: store, roles: roles, feed: feed, now: utcNow}
}

// SetClock replaces the time source (tests)
func (s *AdoptionService) SetClock(now func() time.Time) {
	s.now = now
}

// Adopt records the adoption of a rule by in.Target. Members propose with a
// justification, moderators and managers adopt directly. A forum holds at
// most one live adoption per rule.
func (s *AdoptionService) Adopt(ctx context.Context, userID string, in AdoptInput) (*domain.RuleAdoption, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !in.Target.IsAdoptionTarget() {
		return nil, common.ErrInvalidForum
	}

	rule, err := s.store.WithContext(ctx).Rules.FindByID(in.RuleID)
	if repository.IsNotFound(err) {
		return nil, common.ErrRuleNotFound
	}
	if err != nil {
		return nil, fail("load rule", err)
	}
	if !rule.IsAdoptable() {
		return nil, common.ErrNotAdoptable
	}
	if rule.Forum() == in.Target {
		return nil, common.ErrSelfAdoption
	}

	m, err := resolveMembership(ctx, s.roles, in.Target, userID)
	if err != nil {
		return nil, err
	}
	if !allowed(m, actionPropose) {
		return nil, common.ErrNotMember
	}
	status := domain.AdoptionProposed
	if allowed(m, actionPublish) {
		status = domain.AdoptionPublished
	}
	message := strings.TrimSpace(in.Message)
	if status == domain.AdoptionProposed && message == "" {
		return nil, common.ErrMessageRequired
	}

	now := s.now()
	adoption := &domain.RuleAdoption{
		ID:         uuid.NewString(),
		RuleID:     rule.ID,
		ForumType:  in.Target.Type,
		ForumID:    in.Target.ID,
		LiveSlot:   domain.LiveSlotValue(),
		ProposedBy: userID,
		Status:     status,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == domain.AdoptionPublished {
		acceptedBy := userID
		adoption.AcceptedBy = &acceptedBy
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		locked, err := tx.Rules.FindByIDForUpdate(rule.ID)
		if repository.IsNotFound(err) {
			return common.ErrRuleNotFound
		}
		if err != nil {
			return err
		}
		if !locked.IsAdoptable() {
			return common.ErrNotAdoptable
		}

		if _, err := tx.Adoptions.FindLive(rule.ID, in.Target); err == nil {
			return common.ErrAlreadyAdopted
		} else if !repository.IsNotFound(err) {
			return err
		}
		if err := tx.Adoptions.Create(adoption); err != nil {
			if repository.IsDuplicateKey(err) {
				return common.ErrAlreadyAdopted
			}
			return err
		}

		column, list := adoptedList(locked, in.Target.Type)
		list = append(list, domain.AdoptedForum{
			ForumID:    in.Target.ID,
			AdoptionID: adoption.ID,
			AdoptedBy:  userID,
			AdoptedAt:  now,
		})
		if err := tx.Rules.Update(rule.ID, map[string]interface{}{column: list}); err != nil {
			return err
		}

		if err := tx.Adoptions.AddHistory(&domain.AdoptionStatusChange{
			AdoptionID: adoption.ID,
			ToStatus:   status,
			ChangedBy:  userID,
			Note:       "adopted",
			ChangedAt:  now,
		}); err != nil {
			return err
		}
		if status == domain.AdoptionPublished {
			return s.feed.CreateFeed(ctx, tx.DB(), adoptionFeed(adoption))
		}
		return nil
	})
	if err != nil {
		return nil, fail("adopt rule", err)
	}

	statusTransitions.WithLabelValues("adoption", string(status)).Inc()
	pkglogger.GetLogger().Info().
		Str("rule_id", rule.ID).
		Str("adoption_id", adoption.ID).
		Str("forum", in.Target.String()).
		Str("status", string(status)).
		Msg("rule adopted")
	return adoption, nil
}

// Review accepts or rejects a proposed adoption
func (s *AdoptionService) Review(ctx context.Context, userID, id, act string) (*domain.RuleAdoption, error) {
	var to domain.AdoptionStatus
	switch act {
	case "accept":
		to = domain.AdoptionPublished
	case "reject":
		to = domain.AdoptionRejected
	default:
		return nil, common.ErrInvalidAction
	}
	return s.transition(ctx, userID, id, actionReview, domain.AdoptionProposed, to, act)
}

// Remove takes a published adoption out of the forum ("removeadoption") or
// brings a rejected one back ("re-adopt")
func (s *AdoptionService) Remove(ctx context.Context, userID, id, act string) (*domain.RuleAdoption, error) {
	switch act {
	case "removeadoption":
		return s.transition(ctx, userID, id, actionReview, domain.AdoptionPublished, domain.AdoptionRejected, "removed")
	case "re-adopt":
		return s.transition(ctx, userID, id, actionReview, domain.AdoptionRejected, domain.AdoptionPublished, "re-adopted")
	default:
		return nil, common.ErrInvalidAction
	}
}

// Archive archives a published adoption ("archive") or restores it ("unarchive")
func (s *AdoptionService) Archive(ctx context.Context, userID, id, act string) (*domain.RuleAdoption, error) {
	switch act {
	case "archive":
		return s.transition(ctx, userID, id, actionManage, domain.AdoptionPublished, domain.AdoptionArchived, "archived")
	case "unarchive":
		return s.transition(ctx, userID, id, actionManage, domain.AdoptionArchived, domain.AdoptionPublished, "unarchived")
	default:
		return nil, common.ErrInvalidAction
	}
}

// Delete soft-deletes an adoption. The pair (rule, forum) becomes free for a new adoption.
func (s *AdoptionService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return common.ErrMissingCaller
	}
	adoption, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	m, err := resolveMembership(ctx, s.roles, adoption.Forum(), userID)
	if err != nil {
		return err
	}
	if !allowed(m, actionManage) {
		return common.ErrNotManager
	}

	now := s.now()
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Adoptions.FindByIDForUpdate(id); err != nil {
			return err
		}
		if err := tx.Adoptions.Update(id, map[string]interface{}{
			"is_deleted": true,
			"live_slot":  nil,
			"updated_at": now,
		}); err != nil {
			return err
		}
		if err := s.dropFromRule(tx, adoption); err != nil {
			return err
		}
		if err := tx.Adoptions.AddHistory(&domain.AdoptionStatusChange{
			AdoptionID: id,
			FromStatus: adoption.Status,
			ToStatus:   adoption.Status,
			ChangedBy:  userID,
			Note:       "deleted",
			ChangedAt:  now,
		}); err != nil {
			return err
		}
		return s.feed.UpdateFeed(ctx, tx.DB(), id, domain.FeedDeleted)
	})
	if repository.IsNotFound(err) {
		return common.ErrAdoptionNotFound
	}
	if err != nil {
		return fail("delete adoption", err)
	}
	return nil
}

// History audit trail of an adoption, visible to members of the adopting forum
func (s *AdoptionService) History(ctx context.Context, userID, id string) ([]*domain.AdoptionStatusChange, error) {
	adoption, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := resolveMembership(ctx, s.roles, adoption.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if !allowed(m, actionView) {
		return nil, common.ErrNotMember
	}
	changes, err := s.store.WithContext(ctx).Adoptions.ListHistory(id)
	if err != nil {
		return nil, fail("adoption history", err)
	}
	return changes, nil
}

// transition moves an adoption from `from` to `to` for a caller allowed to do a
func (s *AdoptionService) transition(ctx context.Context, userID, id string, a action, from, to domain.AdoptionStatus, note string) (*domain.RuleAdoption, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	adoption, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if adoption.Status != from || !from.CanTransition(to) {
		return nil, common.ErrInvalidTransition
	}
	m, err := resolveMembership(ctx, s.roles, adoption.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if !allowed(m, a) {
		return nil, common.ErrNotManager
	}

	now := s.now()
	var firstPublish bool
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		current, err := tx.Adoptions.FindByIDForUpdate(id)
		if err != nil {
			return err
		}
		if current.Status != from {
			return common.ErrInvalidTransition
		}
		// a record that never reached published has no feed entry yet
		firstPublish = to == domain.AdoptionPublished && current.AcceptedBy == nil
		fields := map[string]interface{}{"published_status": to, "updated_at": now}
		if firstPublish {
			fields["accepted_by"] = userID
		}
		moved, err := tx.Adoptions.UpdateFrom(id, from, fields)
		if err != nil {
			return err
		}
		if !moved {
			return common.ErrInvalidTransition
		}
		if err := tx.Adoptions.AddHistory(&domain.AdoptionStatusChange{
			AdoptionID: id,
			FromStatus: from,
			ToStatus:   to,
			ChangedBy:  userID,
			Note:       note,
			ChangedAt:  now,
		}); err != nil {
			return err
		}
		if firstPublish {
			return s.feed.CreateFeed(ctx, tx.DB(), adoptionFeed(current))
		}
		return s.feed.UpdateFeed(ctx, tx.DB(), id, feedStateOf(to))
	})
	if repository.IsNotFound(err) {
		return nil, common.ErrAdoptionNotFound
	}
	if err != nil {
		return nil, fail("adoption transition", err)
	}

	statusTransitions.WithLabelValues("adoption", string(to)).Inc()
	adoption.Status = to
	adoption.UpdatedAt = now
	if firstPublish {
		acceptedBy := userID
		adoption.AcceptedBy = &acceptedBy
	}
	return adoption, nil
}

func (s *AdoptionService) load(ctx context.Context, id string) (*domain.RuleAdoption, error) {
	adoption, err := s.store.WithContext(ctx).Adoptions.FindByID(id)
	if repository.IsNotFound(err) {
		return nil, common.ErrAdoptionNotFound
	}
	if err != nil {
		return nil, fail("load adoption", err)
	}
	return adoption, nil
}

// dropFromRule removes the adoption from the rule's denormalized adopter list
func (s *AdoptionService) dropFromRule(tx *repository.Store, adoption *domain.RuleAdoption) error {
	rule, err := tx.Rules.FindByIDForUpdate(adoption.RuleID)
	if repository.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	column, list := adoptedList(rule, adoption.ForumType)
	return tx.Rules.Update(rule.ID, map[string]interface{}{column: list.Without(adoption.ID)})
}

func adoptedList(rule *domain.Rule, t domain.ForumType) (string, domain.AdoptedForumList) {
	if t == domain.ForumNode {
		return "adopted_nodes", rule.AdoptedNodes
	}
	return "adopted_clubs", rule.AdoptedClubs
}

func adoptionFeed(a *domain.RuleAdoption) *domain.FeedEntry {
	return &domain.FeedEntry{
		ForumType:    a.ForumType,
		ForumID:      a.ForumID,
		ContentType:  domain.FeedContentRule,
		ContentID:    a.RuleID,
		AdoptionType: domain.FeedAdoptionRule,
		AdoptionID:   a.ID,
	}
}

func feedStateOf(s domain.AdoptionStatus) domain.FeedState {
	switch s {
	case domain.AdoptionPublished:
		return domain.FeedPublished
	case domain.AdoptionArchived:
		return domain.FeedArchived
	default:
		return domain.FeedDeleted
	}
}
