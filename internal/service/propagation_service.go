package service

import (
	"context"
	"time"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/repository"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	"github.com/google/uuid"
)

// PropagationService copies club rules into the club's published chapters
type PropagationService struct {
	store *repository.Store
	roles RoleResolver
	now   func() time.Time
}

// NewPropagationService creates a new PropagationService
func NewPropagationService(store *repository.Store, roles RoleResolver) *PropagationService {
	return &PropagationService{store: store, roles: roles, now: utcNow}
}

// SetClock replaces the time source (tests)
func (s *PropagationService) SetClock(now func() time.Time) {
	s.now = now
}

// Propagate writes one chapter rule per published chapter of the rule's club.
// It runs on the caller's transaction; pairs that already exist are skipped.
func (s *PropagationService) Propagate(tx *repository.Store, rule *domain.Rule) (int64, error) {
	if rule.ForumType != domain.ForumClub || rule.PublishedStatus != domain.RulePublished {
		return 0, nil
	}
	chapters, err := tx.Chapters.ListPublishedByClub(rule.ForumID)
	if err != nil {
		return 0, err
	}
	if len(chapters) == 0 {
		return 0, nil
	}

	now := s.now()
	records := make([]*domain.ChapterRule, 0, len(chapters))
	for _, ch := range chapters {
		records = append(records, &domain.ChapterRule{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			ChapterID: ch.ID,
			ClubID:    rule.ForumID,
			Status:    rule.PublishedStatus,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	n, err := tx.ChapterRules.CreateBatch(records)
	if err != nil {
		return 0, err
	}
	propagatedRecords.Add(float64(n))
	return n, nil
}

// Reconcile propagates every published rule of a club again, filling in
// chapters published after the rules were
func (s *PropagationService) Reconcile(ctx context.Context, userID, clubID string) (int64, error) {
	if userID == "" {
		return 0, common.ErrMissingCaller
	}
	m, err := resolveMembership(ctx, s.roles, domain.Club(clubID), userID)
	if err != nil {
		return 0, err
	}
	if !allowed(m, actionManage) {
		return 0, common.ErrNotManager
	}

	var total int64
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		rules, err := tx.Rules.ListPublishedByClub(clubID)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			n, err := s.Propagate(tx, rule)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fail("reconcile chapters", err)
	}
	pkglogger.GetLogger().Info().Str("club_id", clubID).Int64("created", total).Msg("chapter rules reconciled")
	return total, nil
}

// SetChapterStatus changes a propagated record's status inside its chapter,
// the club's original rule is untouched
func (s *PropagationService) SetChapterStatus(ctx context.Context, userID, id string, status domain.RuleStatus) (*domain.ChapterRule, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	switch status {
	case domain.RulePublished, domain.RuleArchived, domain.RuleRejected:
	default:
		return nil, common.Invalid("chapter rule status must be published, archived or rejected")
	}

	repo := s.store.WithContext(ctx).ChapterRules
	record, err := repo.FindByID(id)
	if repository.IsNotFound(err) {
		return nil, common.ErrChapterRuleNotFound
	}
	if err != nil {
		return nil, fail("load chapter rule", err)
	}
	m, err := resolveMembership(ctx, s.roles, domain.ChapterForum(record.ChapterID), userID)
	if err != nil {
		return nil, err
	}
	if !allowed(m, actionManage) {
		return nil, common.ErrNotManager
	}

	if err := repo.UpdateStatus(id, status); err != nil {
		return nil, fail("update chapter rule", err)
	}
	statusTransitions.WithLabelValues("chapter_rule", string(status)).Inc()
	record.Status = status
	return record, nil
}

// ListForRule chapter propagation records of one rule, visible to whoever may read the rule
func (s *PropagationService) ListForRule(ctx context.Context, userID, ruleID string) ([]*domain.ChapterRule, error) {
	repos := s.store.WithContext(ctx)
	rule, err := repos.Rules.FindByID(ruleID)
	if repository.IsNotFound(err) {
		return nil, common.ErrRuleNotFound
	}
	if err != nil {
		return nil, fail("load rule", err)
	}
	m, err := resolveMembership(ctx, s.roles, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if err := checkView(m, rule, userID); err != nil {
		return nil, err
	}

	records, err := repos.ChapterRules.ListByRule(ruleID)
	if err != nil {
		return nil, fail("list chapter rules", err)
	}
	return records, nil
}
