package repository

import (
	"github.com/damoang/angple-rules/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChapterRepository chapter forum lookups
type ChapterRepository interface {
	ListPublishedByClub(clubID string) ([]*domain.Chapter, error)
}

type chapterRepository struct {
	db *gorm.DB
}

// NewChapterRepository creates a new ChapterRepository
func NewChapterRepository(db *gorm.DB) ChapterRepository {
	return &chapterRepository{db: db}
}

// ListPublishedByClub published, non-deleted chapters of a club
func (r *chapterRepository) ListPublishedByClub(clubID string) ([]*domain.Chapter, error) {
	var chapters []*domain.Chapter
	err := r.db.Where("club_id = ? AND status = ? AND is_deleted = ?", clubID, domain.ChapterPublished, false).
		Order("created_at ASC").
		Find(&chapters).Error
	return chapters, err
}

// ChapterRuleFilter listing filter of a chapter's propagated rules
type ChapterRuleFilter struct {
	ChapterID string
	Statuses  []domain.RuleStatus
	Search    string
}

// ChapterRuleRepository chapter propagation records
type ChapterRuleRepository interface {
	// CreateBatch inserts records, skipping (rule, chapter) pairs that already
	// exist; returns the number of rows written
	CreateBatch(records []*domain.ChapterRule) (int64, error)
	FindByID(id string) (*domain.ChapterRule, error)
	UpdateStatus(id string, status domain.RuleStatus) error
	ListByRule(ruleID string) ([]*domain.ChapterRule, error)

	ListPage(f ChapterRuleFilter, after *Keyset, limit int) ([]*domain.ChapterRule, error)
	Count(f ChapterRuleFilter) (int64, error)
}

type chapterRuleRepository struct {
	db *gorm.DB
}

// NewChapterRuleRepository creates a new ChapterRuleRepository
func NewChapterRuleRepository(db *gorm.DB) ChapterRuleRepository {
	return &chapterRuleRepository{db: db}
}

func (r *chapterRuleRepository) CreateBatch(records []*domain.ChapterRule) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	result := r.db.Omit("Rule").
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, 100)
	return result.RowsAffected, result.Error
}

func (r *chapterRuleRepository) FindByID(id string) (*domain.ChapterRule, error) {
	var cr domain.ChapterRule
	err := r.db.Preload("Rule").Where("id = ?", id).First(&cr).Error
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *chapterRuleRepository) UpdateStatus(id string, status domain.RuleStatus) error {
	return r.db.Model(&domain.ChapterRule{}).Where("id = ?", id).Update("published_status", status).Error
}

func (r *chapterRuleRepository) ListByRule(ruleID string) ([]*domain.ChapterRule, error) {
	var records []*domain.ChapterRule
	err := r.db.Where("rule_id = ?", ruleID).Order("created_at ASC").Find(&records).Error
	return records, err
}

func (r *chapterRuleRepository) ListPage(f ChapterRuleFilter, after *Keyset, limit int) ([]*domain.ChapterRule, error) {
	q := r.filtered(f)
	if after != nil {
		cond, args := keysetClause("chapter_rules", after)
		q = q.Where(cond, args...)
	}
	var records []*domain.ChapterRule
	err := q.Select("chapter_rules.*").
		Preload("Rule").
		Order(keysetOrder("chapter_rules")).
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *chapterRuleRepository) Count(f ChapterRuleFilter) (int64, error) {
	var total int64
	err := r.filtered(f).Count(&total).Error
	return total, err
}

func (r *chapterRuleRepository) filtered(f ChapterRuleFilter) *gorm.DB {
	q := r.db.Model(&domain.ChapterRule{}).
		Joins("JOIN rules ON rules.id = chapter_rules.rule_id").
		Where("chapter_rules.chapter_id = ? AND rules.is_deleted = ?", f.ChapterID, false)
	if len(f.Statuses) > 0 {
		q = q.Where("chapter_rules.published_status IN ?", statusStrings(f.Statuses))
	}
	if f.Search != "" {
		cond, args := searchClause("rules", f.Search)
		q = q.Where(cond, args...)
	}
	return q
}
