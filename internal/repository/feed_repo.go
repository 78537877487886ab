package repository

import (
	"context"

	"github.com/damoang/angple-rules/internal/domain"
	"gorm.io/gorm"
)

// FeedRepository writes feed entries through the caller's transaction handle
type FeedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new FeedRepository; db is used when no transaction is passed
func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

func (r *FeedRepository) handle(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

// CreateFeed inserts a published feed entry
func (r *FeedRepository) CreateFeed(ctx context.Context, tx *gorm.DB, entry *domain.FeedEntry) error {
	if entry.State == "" {
		entry.State = domain.FeedPublished
	}
	return r.handle(ctx, tx).Create(entry).Error
}

// UpdateFeed moves the entries of contentID to state. A rule id matches the
// rule's own entries, an adoption id matches the entries of that adoption.
func (r *FeedRepository) UpdateFeed(ctx context.Context, tx *gorm.DB, contentID string, state domain.FeedState) error {
	return r.handle(ctx, tx).Model(&domain.FeedEntry{}).
		Where("(content_id = ? AND adoption_id = '') OR adoption_id = ?", contentID, contentID).
		Update("state", state).Error
}
