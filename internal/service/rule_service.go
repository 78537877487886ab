package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/repository"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	"github.com/damoang/angple-rules/pkg/storage"
	"github.com/google/uuid"
)

// FileUpload attachment payload received with a create or update request
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// CreateRuleInput new rule, or the final submission of an existing draft when DraftID is set
type CreateRuleInput struct {
	DraftID      string
	Forum        domain.ForumRef
	Title        string   `validate:"required,max=255"`
	Description  string   `validate:"max=20000"`
	Category     string   `validate:"max=100"`
	Significance string   `validate:"max=5000"`
	Tags         []string `validate:"max=20,dive,max=50"`
	Domain       string   `validate:"max=100"`
	IsPublic     bool
	// Status only draft is honored, anything else is decided by the caller's role
	Status      domain.RuleStatus
	Attachments []FileUpload
}

// UpdateRuleInput partial edit. Nil fields are left unchanged.
type UpdateRuleInput struct {
	Title        *string  `validate:"omitempty,max=255"`
	Description  *string  `validate:"omitempty,max=20000"`
	Category     *string  `validate:"omitempty,max=100"`
	Significance *string  `validate:"omitempty,max=5000"`
	Tags         []string `validate:"omitempty,max=20,dive,max=50"`
	Domain       *string  `validate:"omitempty,max=100"`

	RemoveAttachmentIDs []uint64
	Attachments         []FileUpload
}

// RuleService rule lifecycle: creation, editing, review, archive, visibility, deletion
type RuleService struct {
	store       *repository.Store
	roles       RoleResolver
	quota       QuotaGateway
	feed        FeedGateway
	files       FileStore
	propagation *PropagationService
	now         func() time.Time
}

// NewRuleService creates a new RuleService. files may be nil when attachments are disabled.
func NewRuleService(
	store *repository.Store,
	roles RoleResolver,
	quota QuotaGateway,
	feed FeedGateway,
	files FileStore,
	propagation *PropagationService,
) *RuleService {
	return &RuleService{
		store:       store,
		roles:       roles,
		quota:       quota,
		feed:        feed,
		files:       files,
		propagation: propagation,
		now:         utcNow,
	}
}

// SetClock replaces the time source (tests)
func (s *RuleService) SetClock(now func() time.Time) {
	s.now = now
}

// Create stores a new rule. Members propose, moderators and managers publish
// directly; requesting draft keeps the rule private to its author.
func (s *RuleService) Create(ctx context.Context, userID string, in CreateRuleInput) (*domain.Rule, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !in.Forum.Valid() {
		return nil, common.Invalid("forum reference must name exactly one club, node or chapter")
	}
	if len(in.Attachments) > domain.MaxRuleAttachments {
		return nil, common.ErrTooManyAttachments
	}
	if in.DraftID != "" {
		return s.finalizeDraft(ctx, userID, in)
	}

	m, err := s.membership(ctx, in.Forum, userID)
	if err != nil {
		return nil, err
	}
	status, err := creationStatus(in.Forum, m, in.Status)
	if err != nil {
		return nil, err
	}

	stored, err := s.upload(ctx, in.Attachments)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rule := &domain.Rule{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     in.Description,
		Category:        in.Category,
		Significance:    in.Significance,
		Tags:            domain.StringList(in.Tags),
		Domain:          in.Domain,
		CreatedBy:       userID,
		PublishedStatus: status,
		IsPublic:        in.IsPublic,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rule.SetForum(in.Forum)
	if status == domain.RulePublished {
		markPublished(rule, userID, now)
	}
	atts := attachmentRows(rule.ID, userID, in.Attachments, stored)

	reserved := false
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Rules.Create(rule); err != nil {
			return err
		}
		if err := tx.Rules.AddAttachments(atts); err != nil {
			return err
		}
		if status == domain.RulePublished {
			return s.publishEffects(ctx, tx, rule, &reserved)
		}
		return nil
	})
	if err != nil {
		s.undo(ctx, rule.CreatedBy, reserved, stored)
		return nil, fail("create rule", err)
	}

	statusTransitions.WithLabelValues("rule", string(status)).Inc()
	rule.Attachments = atts
	pkglogger.GetLogger().Info().
		Str("rule_id", rule.ID).
		Str("forum", in.Forum.String()).
		Str("status", string(status)).
		Msg("rule created")
	return rule, nil
}

func (s *RuleService) finalizeDraft(ctx context.Context, userID string, in CreateRuleInput) (*domain.Rule, error) {
	draft, err := s.store.WithContext(ctx).Rules.FindByID(in.DraftID)
	if repository.IsNotFound(err) {
		return nil, common.ErrDraftNotFound
	}
	if err != nil {
		return nil, fail("load draft", err)
	}
	if draft.PublishedStatus != domain.RuleDraft || draft.CreatedBy != userID {
		return nil, common.ErrDraftNotFound
	}
	forum := draft.Forum()
	if !in.Forum.IsGlobal() && in.Forum != forum {
		return nil, common.Invalid("a draft cannot move to another forum")
	}
	if len(draft.Attachments)+len(in.Attachments) > domain.MaxRuleAttachments {
		return nil, common.ErrTooManyAttachments
	}

	m, err := s.membership(ctx, forum, userID)
	if err != nil {
		return nil, err
	}
	status, err := creationStatus(forum, m, in.Status)
	if err != nil {
		return nil, err
	}

	stored, err := s.upload(ctx, in.Attachments)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fields := map[string]interface{}{
		"title":            in.Title,
		"description":      in.Description,
		"category":         in.Category,
		"significance":     in.Significance,
		"tags":             domain.StringList(in.Tags),
		"domain":           in.Domain,
		"is_public":        in.IsPublic,
		"published_status": status,
		"updated_at":       now,
	}
	if status == domain.RulePublished {
		fields["published_by"] = userID
		fields["is_active"] = true
		fields["published_at"] = now
	}
	atts := attachmentRows(draft.ID, userID, in.Attachments, stored)

	reserved := false
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		locked, err := tx.Rules.FindByIDForUpdate(draft.ID)
		if err != nil {
			return err
		}
		if locked.PublishedStatus != domain.RuleDraft {
			return common.ErrDraftNotFound
		}
		if err := tx.Rules.Update(draft.ID, fields); err != nil {
			return err
		}
		if err := tx.Rules.AddAttachments(atts); err != nil {
			return err
		}
		if status != domain.RulePublished {
			return nil
		}
		locked.PublishedStatus = status
		return s.publishEffects(ctx, tx, locked, &reserved)
	})
	if err != nil {
		s.undo(ctx, draft.CreatedBy, reserved, stored)
		return nil, fail("finalize draft", err)
	}

	if status != domain.RuleDraft {
		statusTransitions.WithLabelValues("rule", string(status)).Inc()
	}
	return s.reload(ctx, draft.ID)
}

// Update edits a rule. Editing a published rule snapshots the previous body
// into its version history and bumps the version.
func (s *RuleService) Update(ctx context.Context, userID, id string, in UpdateRuleInput) (*domain.Rule, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, common.Invalid("title cannot be empty")
		}
		in.Title = &t
	}

	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if !canEditRule(m, rule, userID) {
		return nil, common.ErrNotOwner
	}
	if rule.PublishedStatus == domain.RuleRejected {
		return nil, common.ErrInvalidTransition
	}
	if remainingAttachments(rule.Attachments, in.RemoveAttachmentIDs)+len(in.Attachments) > domain.MaxRuleAttachments {
		return nil, common.ErrTooManyAttachments
	}

	stored, err := s.upload(ctx, in.Attachments)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fields := bodyFields(in)
	atts := attachmentRows(rule.ID, userID, in.Attachments, stored)
	var removed []domain.RuleAttachment

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		locked, err := tx.Rules.FindByIDForUpdate(id)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			if locked.PublishedStatus == domain.RulePublished {
				if err := tx.Rules.CreateVersion(locked.Snapshot(userID, now)); err != nil {
					return err
				}
				fields["version"] = locked.Version + 1
			}
			fields["updated_at"] = now
			if err := tx.Rules.Update(id, fields); err != nil {
				return err
			}
		}
		removed, err = tx.Rules.DeleteAttachments(id, in.RemoveAttachmentIDs)
		if err != nil {
			return err
		}
		// recheck under the row lock, a concurrent edit may have added files
		kept, err := tx.Rules.CountAttachments(id)
		if err != nil {
			return err
		}
		if int(kept)+len(atts) > domain.MaxRuleAttachments {
			return common.ErrTooManyAttachments
		}
		return tx.Rules.AddAttachments(atts)
	})
	if err != nil {
		s.undo(ctx, "", false, stored)
		return nil, fail("update rule", err)
	}

	urls := make([]string, 0, len(removed))
	for _, a := range removed {
		urls = append(urls, a.URL)
	}
	s.discard(ctx, urls)
	return s.reload(ctx, id)
}

// AcceptProposed accepts or rejects a proposed rule. Accepting publishes it
// and charges the author's quota.
func (s *RuleService) AcceptProposed(ctx context.Context, userID, id, act string) (*domain.Rule, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	var to domain.RuleStatus
	switch act {
	case "accept":
		to = domain.RulePublished
	case "reject":
		to = domain.RuleRejected
	default:
		return nil, common.ErrInvalidAction
	}

	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.PublishedStatus != domain.RuleProposed {
		return nil, common.ErrNotProposed
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if !allowed(m, actionReview) {
		return nil, common.ErrNotManager
	}

	now := s.now()
	reserved := false
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		locked, err := tx.Rules.FindByIDForUpdate(id)
		if err != nil {
			return err
		}
		if !locked.PublishedStatus.CanTransition(to) || locked.PublishedStatus != domain.RuleProposed {
			return common.ErrNotProposed
		}
		fields := map[string]interface{}{"published_status": to, "updated_at": now}
		if to == domain.RulePublished {
			fields["published_by"] = userID
			fields["is_active"] = true
			fields["published_at"] = now
		}
		if err := tx.Rules.Update(id, fields); err != nil {
			return err
		}
		if to != domain.RulePublished {
			return nil
		}
		locked.PublishedStatus = to
		return s.publishEffects(ctx, tx, locked, &reserved)
	})
	if err != nil {
		s.undo(ctx, rule.CreatedBy, reserved, nil)
		return nil, fail("review rule", err)
	}

	statusTransitions.WithLabelValues("rule", string(to)).Inc()
	return s.reload(ctx, id)
}

// Archive sets or clears the archived flag and moves the rule's feed entries along
func (s *RuleService) Archive(ctx context.Context, userID, id, act string) (*domain.Rule, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	var archived bool
	switch act {
	case "archive":
		archived = true
	case "unarchive":
	default:
		return nil, common.ErrInvalidAction
	}

	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if !canManageRule(m, rule, userID) {
		return nil, common.ErrNotOwner
	}

	state := domain.FeedPublished
	if archived {
		state = domain.FeedArchived
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Rules.Update(id, map[string]interface{}{"is_archived": archived, "updated_at": s.now()}); err != nil {
			return err
		}
		return s.feed.UpdateFeed(ctx, tx.DB(), id, state)
	})
	if err != nil {
		return nil, fail("archive rule", err)
	}

	if archived {
		statusTransitions.WithLabelValues("rule", "archived").Inc()
	}
	return s.reload(ctx, id)
}

// SetVisibility makes a rule public or private
func (s *RuleService) SetVisibility(ctx context.Context, userID, id string, public bool) (*domain.Rule, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if !canManageRule(m, rule, userID) {
		return nil, common.ErrNotOwner
	}
	if err := s.store.WithContext(ctx).Rules.Update(id, map[string]interface{}{"is_public": public, "updated_at": s.now()}); err != nil {
		return nil, fail("set visibility", err)
	}
	return s.reload(ctx, id)
}

// SoftDelete hides a private rule for good. Public rules must be made private first.
func (s *RuleService) SoftDelete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return common.ErrMissingCaller
	}
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return err
	}
	if rule.IsPublic {
		return common.ErrPublicRuleDelete
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return err
	}
	if !canManageRule(m, rule, userID) {
		return common.ErrNotOwner
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Rules.Update(id, map[string]interface{}{
			"is_deleted":    true,
			"adopted_clubs": domain.AdoptedForumList{},
			"adopted_nodes": domain.AdoptedForumList{},
			"updated_at":    s.now(),
		}); err != nil {
			return err
		}
		if err := s.feed.UpdateFeed(ctx, tx.DB(), id, domain.FeedDeleted); err != nil {
			return err
		}
		// adoption records stay, their feed entries go with the rule
		adoptions, err := tx.Adoptions.ListLiveByRule(id)
		if err != nil {
			return err
		}
		for _, a := range adoptions {
			if err := s.feed.UpdateFeed(ctx, tx.DB(), a.ID, domain.FeedDeleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail("delete rule", err)
	}
	pkglogger.GetLogger().Info().Str("rule_id", id).Str("user_id", userID).Msg("rule deleted")
	return nil
}

// Get returns a single rule with its reaction counts and counts the view
func (s *RuleService) Get(ctx context.Context, userID, id string) (*domain.RuleDetail, error) {
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if err := checkView(m, rule, userID); err != nil {
		return nil, err
	}

	repo := s.store.WithContext(ctx).Rules
	if err := repo.IncrementViews(id); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("rule_id", id).Msg("failed to count rule view")
	} else {
		rule.Views++
	}
	summary, err := repo.ReactionSummary(id, userID)
	if err != nil {
		return nil, fail("reaction summary", err)
	}
	return &domain.RuleDetail{Rule: rule, Reactions: summary}, nil
}

// React toggles the caller's relevance vote. Voting the same kind twice removes the vote.
func (s *RuleService) React(ctx context.Context, userID, id string, kind domain.ReactionKind) (*domain.ReactionSummary, error) {
	if userID == "" {
		return nil, common.ErrMissingCaller
	}
	if kind != domain.ReactionRelevant && kind != domain.ReactionIrrelevant {
		return nil, common.Invalid("reaction must be relevant or irrelevant")
	}
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if err := checkView(m, rule, userID); err != nil {
		return nil, err
	}
	if rule.PublishedStatus != domain.RulePublished {
		return nil, common.Invalid("only published rules take reactions")
	}

	var summary domain.ReactionSummary
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		existing, err := tx.Rules.FindReaction(id, userID)
		switch {
		case err == nil && existing.Kind == kind:
			err = tx.Rules.DeleteReaction(id, userID)
		case err == nil || repository.IsNotFound(err):
			err = tx.Rules.SaveReaction(&domain.RuleReaction{RuleID: id, UserID: userID, Kind: kind})
		}
		if err != nil {
			return err
		}
		summary, err = tx.Rules.ReactionSummary(id, userID)
		return err
	})
	if err != nil {
		return nil, fail("react", err)
	}
	return &summary, nil
}

// Versions returns the earlier snapshots of a rule, newest first
func (s *RuleService) Versions(ctx context.Context, userID, id string) ([]*domain.RuleVersion, error) {
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.membership(ctx, rule.Forum(), userID)
	if err != nil {
		return nil, err
	}
	if err := checkView(m, rule, userID); err != nil {
		return nil, err
	}
	versions, err := s.store.WithContext(ctx).Rules.ListVersions(id)
	if err != nil {
		return nil, fail("list versions", err)
	}
	return versions, nil
}

// publishEffects quota charge, feed entry and chapter propagation of a rule
// entering published. reserved is set once the quota has been charged.
func (s *RuleService) publishEffects(ctx context.Context, tx *repository.Store, rule *domain.Rule, reserved *bool) error {
	if err := s.quota.CheckAndIncrement(ctx, tx.DB(), rule.CreatedBy); err != nil {
		if errors.Is(err, common.ErrQuotaExceeded) {
			quotaRejections.Inc()
		}
		return err
	}
	*reserved = true

	entry := &domain.FeedEntry{
		ForumType:   rule.ForumType,
		ForumID:     rule.ForumID,
		ContentType: domain.FeedContentRule,
		ContentID:   rule.ID,
	}
	if err := s.feed.CreateFeed(ctx, tx.DB(), entry); err != nil {
		return err
	}
	if s.propagation == nil {
		return nil
	}
	_, err := s.propagation.Propagate(tx, rule)
	return err
}

// undo compensates side effects outside the rolled back transaction
func (s *RuleService) undo(ctx context.Context, quotaUser string, reserved bool, stored []*storage.StoredFile) {
	if reserved {
		if err := s.quota.Release(ctx, quotaUser); err != nil {
			pkglogger.GetLogger().Error().Err(err).Str("user_id", quotaUser).Msg("failed to release quota")
		}
	}
	urls := make([]string, 0, len(stored))
	for _, f := range stored {
		urls = append(urls, f.URL)
	}
	s.discard(ctx, urls)
}

func (s *RuleService) upload(ctx context.Context, files []FileUpload) ([]*storage.StoredFile, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.files == nil {
		return nil, common.Invalid("attachments are not enabled")
	}
	stored := make([]*storage.StoredFile, 0, len(files))
	for _, f := range files {
		sf, err := s.files.Upload(ctx, f.Data, f.Name, f.MimeType, "")
		if err != nil {
			s.undo(ctx, "", false, stored)
			return nil, fail("upload attachment", err)
		}
		stored = append(stored, sf)
	}
	return stored, nil
}

func (s *RuleService) discard(ctx context.Context, urls []string) {
	if s.files == nil {
		return
	}
	for _, url := range urls {
		if err := s.files.Delete(ctx, url); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Str("url", url).Msg("failed to delete attachment file")
		}
	}
}

func (s *RuleService) loadRule(ctx context.Context, id string) (*domain.Rule, error) {
	rule, err := s.store.WithContext(ctx).Rules.FindByID(id)
	if repository.IsNotFound(err) {
		return nil, common.ErrRuleNotFound
	}
	if err != nil {
		return nil, fail("load rule", err)
	}
	return rule, nil
}

func (s *RuleService) reload(ctx context.Context, id string) (*domain.Rule, error) {
	rule, err := s.store.WithContext(ctx).Rules.FindByID(id)
	if err != nil {
		return nil, fail("reload rule", err)
	}
	return rule, nil
}

func (s *RuleService) membership(ctx context.Context, forum domain.ForumRef, userID string) (*domain.Membership, error) {
	return resolveMembership(ctx, s.roles, forum, userID)
}

// resolveMembership global scope and anonymous callers resolve to a non-member
func resolveMembership(ctx context.Context, roles RoleResolver, forum domain.ForumRef, userID string) (*domain.Membership, error) {
	if forum.IsGlobal() || userID == "" {
		return &domain.Membership{}, nil
	}
	m, err := roles.GetUserDetailsInForum(ctx, forum, userID)
	if err != nil {
		return nil, fail("resolve role", err)
	}
	if m == nil {
		m = &domain.Membership{}
	}
	return m, nil
}

func markPublished(rule *domain.Rule, userID string, at time.Time) {
	publishedBy := userID
	rule.PublishedBy = &publishedBy
	rule.IsActive = true
	rule.PublishedAt = &at
}

func attachmentRows(ruleID, userID string, files []FileUpload, stored []*storage.StoredFile) []domain.RuleAttachment {
	atts := make([]domain.RuleAttachment, 0, len(stored))
	for i, sf := range stored {
		atts = append(atts, domain.RuleAttachment{
			RuleID:     ruleID,
			URL:        sf.URL,
			Filename:   files[i].Name,
			MimeType:   files[i].MimeType,
			UploadedBy: userID,
		})
	}
	return atts
}

func remainingAttachments(current []domain.RuleAttachment, remove []uint64) int {
	drop := make(map[uint64]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	n := 0
	for _, a := range current {
		if !drop[a.ID] {
			n++
		}
	}
	return n
}

func bodyFields(in UpdateRuleInput) map[string]interface{} {
	fields := make(map[string]interface{})
	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Category != nil {
		fields["category"] = *in.Category
	}
	if in.Significance != nil {
		fields["significance"] = *in.Significance
	}
	if in.Tags != nil {
		fields["tags"] = domain.StringList(in.Tags)
	}
	if in.Domain != nil {
		fields["domain"] = *in.Domain
	}
	return fields
}
