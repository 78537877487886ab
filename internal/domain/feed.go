package domain

import "time"

// FeedState visibility of a feed entry
type FeedState string

const (
	FeedPublished FeedState = "published"
	FeedArchived  FeedState = "archived"
	FeedDeleted   FeedState = "deleted"
)

// Feed content type names
const (
	FeedContentRule  = "rule"
	FeedAdoptionRule = "rule_adoption"
)

// FeedEntry activity feed item. Adoption entries point at the adoption
// record through AdoptionID; ContentID always holds the original rule.
type FeedEntry struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ForumType    ForumType `gorm:"column:forum_type;type:varchar(10);index:idx_feed_forum,priority:1" json:"forum_type,omitempty"`
	ForumID      string    `gorm:"column:forum_id;type:varchar(36);index:idx_feed_forum,priority:2" json:"forum_id,omitempty"`
	ContentType  string    `gorm:"column:content_type;type:varchar(32)" json:"content_type"`
	ContentID    string    `gorm:"column:content_id;type:varchar(36);index" json:"content_id"`
	AdoptionType string    `gorm:"column:adoption_type;type:varchar(32)" json:"adoption_type,omitempty"`
	AdoptionID   string    `gorm:"column:adoption_id;type:varchar(36);index" json:"adoption_id,omitempty"`
	State        FeedState `gorm:"column:state;type:varchar(16)" json:"state"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (FeedEntry) TableName() string { return "feed_entries" }

// QuotaCounter per-user count of published creations
type QuotaCounter struct {
	UserID    string    `gorm:"column:user_id;type:varchar(64);primaryKey" json:"user_id"`
	Used      int       `gorm:"column:used" json:"used"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (QuotaCounter) TableName() string { return "quota_counters" }
