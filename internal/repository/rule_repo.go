package repository

import (
	"strings"

	"github.com/damoang/angple-rules/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RuleClause one AND-group of a rule listing filter. Empty fields do not filter.
type RuleClause struct {
	Statuses   []domain.RuleStatus
	CreatedBy  string
	PublicOnly bool
	ActiveOnly bool
	// Archived rows are excluded unless IncludeArchived is set or the row was
	// created by ArchivedVisibleTo
	IncludeArchived   bool
	ArchivedVisibleTo string
}

// RuleFilter rule listing filter: Forum scope (nil = every forum), the OR of
// Clauses, and an optional search term
type RuleFilter struct {
	Forum   *domain.ForumRef
	Clauses []RuleClause
	Search  string
}

// RuleRepository rule data access
type RuleRepository interface {
	Create(rule *domain.Rule) error
	FindByID(id string) (*domain.Rule, error)
	FindByIDForUpdate(id string) (*domain.Rule, error)
	Update(id string, fields map[string]interface{}) error
	IncrementViews(id string) error

	// olderVersions
	CreateVersion(v *domain.RuleVersion) error
	ListVersions(ruleID string) ([]*domain.RuleVersion, error)

	// attachments
	AddAttachments(atts []domain.RuleAttachment) error
	DeleteAttachments(ruleID string, ids []uint64) ([]domain.RuleAttachment, error)
	CountAttachments(ruleID string) (int64, error)

	// reactions
	FindReaction(ruleID, userID string) (*domain.RuleReaction, error)
	SaveReaction(r *domain.RuleReaction) error
	DeleteReaction(ruleID, userID string) error
	ReactionSummary(ruleID, userID string) (domain.ReactionSummary, error)

	// listing
	ListPage(f RuleFilter, after *Keyset, limit int) ([]*domain.Rule, error)
	Count(f RuleFilter) (int64, error)
	ListPublishedByClub(clubID string) ([]*domain.Rule, error)
}

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new RuleRepository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(rule *domain.Rule) error {
	return r.db.Omit(clause.Associations).Create(rule).Error
}

// FindByID returns a non-deleted rule with its attachments
func (r *ruleRepository) FindByID(id string) (*domain.Rule, error) {
	var rule domain.Rule
	err := r.db.Preload("Attachments").
		Where("id = ? AND is_deleted = ?", id, false).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindByIDForUpdate like FindByID but locks the row for the current transaction
func (r *ruleRepository) FindByIDForUpdate(id string) (*domain.Rule, error) {
	var rule domain.Rule
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) Update(id string, fields map[string]interface{}) error {
	return r.db.Model(&domain.Rule{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ruleRepository) IncrementViews(id string) error {
	return r.db.Model(&domain.Rule{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

func (r *ruleRepository) CreateVersion(v *domain.RuleVersion) error {
	return r.db.Create(v).Error
}

func (r *ruleRepository) ListVersions(ruleID string) ([]*domain.RuleVersion, error) {
	var versions []*domain.RuleVersion
	err := r.db.Where("rule_id = ?", ruleID).Order("version DESC").Find(&versions).Error
	return versions, err
}

func (r *ruleRepository) AddAttachments(atts []domain.RuleAttachment) error {
	if len(atts) == 0 {
		return nil
	}
	return r.db.Create(&atts).Error
}

// DeleteAttachments removes the given attachment rows of ruleID and returns them
func (r *ruleRepository) DeleteAttachments(ruleID string, ids []uint64) ([]domain.RuleAttachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var atts []domain.RuleAttachment
	if err := r.db.Where("rule_id = ? AND id IN ?", ruleID, ids).Find(&atts).Error; err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return nil, nil
	}
	if err := r.db.Where("rule_id = ? AND id IN ?", ruleID, ids).Delete(&domain.RuleAttachment{}).Error; err != nil {
		return nil, err
	}
	return atts, nil
}

func (r *ruleRepository) CountAttachments(ruleID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.RuleAttachment{}).Where("rule_id = ?", ruleID).Count(&count).Error
	return count, err
}

func (r *ruleRepository) FindReaction(ruleID, userID string) (*domain.RuleReaction, error) {
	var reaction domain.RuleReaction
	err := r.db.Where("rule_id = ? AND user_id = ?", ruleID, userID).First(&reaction).Error
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

// SaveReaction inserts the reaction or switches the kind of an existing one
func (r *ruleRepository) SaveReaction(reaction *domain.RuleReaction) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind"}),
	}).Create(reaction).Error
}

func (r *ruleRepository) DeleteReaction(ruleID, userID string) error {
	return r.db.Where("rule_id = ? AND user_id = ?", ruleID, userID).Delete(&domain.RuleReaction{}).Error
}

func (r *ruleRepository) ReactionSummary(ruleID, userID string) (domain.ReactionSummary, error) {
	var summary domain.ReactionSummary
	var rows []struct {
		Kind  domain.ReactionKind
		Total int64
	}
	if err := r.db.Model(&domain.RuleReaction{}).
		Select("kind, COUNT(*) AS total").
		Where("rule_id = ?", ruleID).
		Group("kind").
		Scan(&rows).Error; err != nil {
		return summary, err
	}
	for _, row := range rows {
		switch row.Kind {
		case domain.ReactionRelevant:
			summary.Relevant = row.Total
		case domain.ReactionIrrelevant:
			summary.Irrelevant = row.Total
		}
	}
	if userID != "" {
		mine, err := r.FindReaction(ruleID, userID)
		if err == nil {
			summary.Mine = mine.Kind
		} else if !IsNotFound(err) {
			return summary, err
		}
	}
	return summary, nil
}

// ListPage returns up to limit rules matching f, strictly after the keyset
func (r *ruleRepository) ListPage(f RuleFilter, after *Keyset, limit int) ([]*domain.Rule, error) {
	q := r.filtered(f)
	if after != nil {
		cond, args := keysetClause("rules", after)
		q = q.Where(cond, args...)
	}
	var rules []*domain.Rule
	err := q.Order(keysetOrder("rules")).Limit(limit).Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) Count(f RuleFilter) (int64, error) {
	var total int64
	err := r.filtered(f).Count(&total).Error
	return total, err
}

// ListPublishedByClub live published rules owned by the club
func (r *ruleRepository) ListPublishedByClub(clubID string) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	err := r.db.Where("forum_type = ? AND forum_id = ?", domain.ForumClub, clubID).
		Where("published_status = ? AND is_deleted = ?", domain.RulePublished, false).
		Order("created_at ASC").
		Find(&rules).Error
	return rules, err
}

func (r *ruleRepository) filtered(f RuleFilter) *gorm.DB {
	q := r.db.Model(&domain.Rule{}).Where("rules.is_deleted = ?", false)
	if f.Forum != nil {
		q = q.Where("rules.forum_type = ? AND rules.forum_id = ?", f.Forum.Type, f.Forum.ID)
	}
	if cond, args := ruleClauses(f.Clauses); cond != "" {
		q = q.Where(cond, args...)
	}
	if f.Search != "" {
		cond, args := searchClause("rules", f.Search)
		q = q.Where(cond, args...)
	}
	return q
}

func ruleClauses(clauses []RuleClause) (string, []interface{}) {
	if len(clauses) == 0 {
		return "", nil
	}
	var groups []string
	var args []interface{}
	for _, c := range clauses {
		var parts []string
		if len(c.Statuses) > 0 {
			parts = append(parts, "rules.published_status IN ?")
			args = append(args, statusStrings(c.Statuses))
		}
		if c.CreatedBy != "" {
			parts = append(parts, "rules.created_by = ?")
			args = append(args, c.CreatedBy)
		}
		if c.PublicOnly {
			parts = append(parts, "rules.is_public = ?")
			args = append(args, true)
		}
		if c.ActiveOnly {
			parts = append(parts, "rules.is_active = ?")
			args = append(args, true)
		}
		if !c.IncludeArchived {
			if c.ArchivedVisibleTo != "" {
				parts = append(parts, "(rules.is_archived = ? OR rules.created_by = ?)")
				args = append(args, false, c.ArchivedVisibleTo)
			} else {
				parts = append(parts, "rules.is_archived = ?")
				args = append(args, false)
			}
		}
		if len(parts) == 0 {
			parts = append(parts, "1 = 1")
		}
		groups = append(groups, "("+strings.Join(parts, " AND ")+")")
	}
	return "(" + strings.Join(groups, " OR ") + ")", args
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
