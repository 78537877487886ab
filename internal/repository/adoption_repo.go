package repository

import (
	"github.com/damoang/angple-rules/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdoptionFilter adoption listing filter, the adopted rule is joined for search
type AdoptionFilter struct {
	Forum    domain.ForumRef
	Statuses []domain.AdoptionStatus
	Search   string
}

// AdoptionRepository adoption record data access
type AdoptionRepository interface {
	Create(a *domain.RuleAdoption) error
	FindByID(id string) (*domain.RuleAdoption, error)
	FindByIDForUpdate(id string) (*domain.RuleAdoption, error)
	FindLive(ruleID string, forum domain.ForumRef) (*domain.RuleAdoption, error)
	ListLiveByRule(ruleID string) ([]*domain.RuleAdoption, error)
	Update(id string, fields map[string]interface{}) error
	UpdateFrom(id string, from domain.AdoptionStatus, fields map[string]interface{}) (bool, error)
	AddHistory(change *domain.AdoptionStatusChange) error
	ListHistory(adoptionID string) ([]*domain.AdoptionStatusChange, error)

	ListPage(f AdoptionFilter, after *Keyset, limit int) ([]*domain.RuleAdoption, error)
	Count(f AdoptionFilter) (int64, error)
}

type adoptionRepository struct {
	db *gorm.DB
}

// NewAdoptionRepository creates a new AdoptionRepository
func NewAdoptionRepository(db *gorm.DB) AdoptionRepository {
	return &adoptionRepository{db: db}
}

func (r *adoptionRepository) Create(a *domain.RuleAdoption) error {
	return r.db.Omit("Rule").Create(a).Error
}

// FindByID returns a non-deleted adoption
func (r *adoptionRepository) FindByID(id string) (*domain.RuleAdoption, error) {
	var a domain.RuleAdoption
	err := r.db.Where("id = ? AND is_deleted = ?", id, false).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByIDForUpdate like FindByID but locks the row for the current transaction
func (r *adoptionRepository) FindByIDForUpdate(id string) (*domain.RuleAdoption, error) {
	var a domain.RuleAdoption
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindLive returns the non-deleted adoption of ruleID by forum
func (r *adoptionRepository) FindLive(ruleID string, forum domain.ForumRef) (*domain.RuleAdoption, error) {
	var a domain.RuleAdoption
	err := r.db.Where("rule_id = ? AND forum_type = ? AND forum_id = ? AND is_deleted = ?",
		ruleID, forum.Type, forum.ID, false).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListLiveByRule non-deleted adoptions of one rule
func (r *adoptionRepository) ListLiveByRule(ruleID string) ([]*domain.RuleAdoption, error) {
	var adoptions []*domain.RuleAdoption
	err := r.db.Where("rule_id = ? AND is_deleted = ?", ruleID, false).
		Order("created_at ASC, id ASC").
		Find(&adoptions).Error
	return adoptions, err
}

func (r *adoptionRepository) Update(id string, fields map[string]interface{}) error {
	return r.db.Model(&domain.RuleAdoption{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateFrom applies fields only while the adoption is still in status from.
// false means another writer moved it first.
func (r *adoptionRepository) UpdateFrom(id string, from domain.AdoptionStatus, fields map[string]interface{}) (bool, error) {
	res := r.db.Model(&domain.RuleAdoption{}).
		Where("id = ? AND published_status = ? AND is_deleted = ?", id, from, false).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}

func (r *adoptionRepository) AddHistory(change *domain.AdoptionStatusChange) error {
	return r.db.Create(change).Error
}

func (r *adoptionRepository) ListHistory(adoptionID string) ([]*domain.AdoptionStatusChange, error) {
	var changes []*domain.AdoptionStatusChange
	err := r.db.Where("adoption_id = ?", adoptionID).Order("changed_at ASC, id ASC").Find(&changes).Error
	return changes, err
}

// ListPage returns up to limit adoptions with their rules, strictly after the keyset
func (r *adoptionRepository) ListPage(f AdoptionFilter, after *Keyset, limit int) ([]*domain.RuleAdoption, error) {
	q := r.filtered(f)
	if after != nil {
		cond, args := keysetClause("rule_adoptions", after)
		q = q.Where(cond, args...)
	}
	var adoptions []*domain.RuleAdoption
	err := q.Select("rule_adoptions.*").
		Preload("Rule").
		Order(keysetOrder("rule_adoptions")).
		Limit(limit).
		Find(&adoptions).Error
	return adoptions, err
}

func (r *adoptionRepository) Count(f AdoptionFilter) (int64, error) {
	var total int64
	err := r.filtered(f).Count(&total).Error
	return total, err
}

func (r *adoptionRepository) filtered(f AdoptionFilter) *gorm.DB {
	q := r.db.Model(&domain.RuleAdoption{}).
		Joins("JOIN rules ON rules.id = rule_adoptions.rule_id").
		Where("rule_adoptions.is_deleted = ? AND rules.is_deleted = ?", false, false).
		Where("rule_adoptions.forum_type = ? AND rule_adoptions.forum_id = ?", f.Forum.Type, f.Forum.ID)
	if len(f.Statuses) > 0 {
		q = q.Where("rule_adoptions.published_status IN ?", statusStrings(f.Statuses))
	}
	if f.Search != "" {
		cond, args := searchClause("rules", f.Search)
		q = q.Where(cond, args...)
	}
	return q
}
