package domain

import "time"

// AdoptionStatus lifecycle of an adoption record, independent of the adopted rule
type AdoptionStatus string

const (
	AdoptionProposed  AdoptionStatus = "proposed"
	AdoptionPublished AdoptionStatus = "published"
	AdoptionRejected  AdoptionStatus = "rejected"
	AdoptionArchived  AdoptionStatus = "archived"
)

// CanTransition reports whether an adoption may move from s to next
func (s AdoptionStatus) CanTransition(next AdoptionStatus) bool {
	switch s {
	case AdoptionProposed:
		return next == AdoptionPublished || next == AdoptionRejected
	case AdoptionPublished:
		return next == AdoptionRejected || next == AdoptionArchived
	case AdoptionRejected:
		return next == AdoptionPublished
	case AdoptionArchived:
		return next == AdoptionPublished
	default:
		return false
	}
}

// RuleAdoption links a published public rule into another club or node.
// LiveSlot is 1 while the record is not deleted and NULL afterwards, so the
// unique index allows any number of deleted rows but one live row per pair.
type RuleAdoption struct {
	ID         string         `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	RuleID     string         `gorm:"column:rule_id;type:varchar(36);uniqueIndex:idx_adoption_live,priority:1" json:"rule_id"`
	ForumType  ForumType      `gorm:"column:forum_type;type:varchar(10);uniqueIndex:idx_adoption_live,priority:2;index:idx_adoption_forum,priority:1" json:"forum_type"`
	ForumID    string         `gorm:"column:forum_id;type:varchar(36);uniqueIndex:idx_adoption_live,priority:3;index:idx_adoption_forum,priority:2" json:"forum_id"`
	LiveSlot   *int           `gorm:"column:live_slot;uniqueIndex:idx_adoption_live,priority:4" json:"-"`
	ProposedBy string         `gorm:"column:proposed_by;type:varchar(64)" json:"proposed_by"`
	AcceptedBy *string        `gorm:"column:accepted_by;type:varchar(64)" json:"accepted_by,omitempty"`
	Status     AdoptionStatus `gorm:"column:published_status;type:varchar(16);index" json:"published_status"`
	Message    string         `gorm:"column:message;type:text" json:"message,omitempty"`
	IsDeleted  bool           `gorm:"column:is_deleted" json:"-"`
	CreatedAt  time.Time      `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updated_at"`

	Rule *Rule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}

func (RuleAdoption) TableName() string { return "rule_adoptions" }

// Forum returns the adopting forum
func (a *RuleAdoption) Forum() ForumRef {
	return ForumRef{Type: a.ForumType, ID: a.ForumID}
}

// LiveSlotValue value stored in LiveSlot for non-deleted adoptions
func LiveSlotValue() *int {
	v := 1
	return &v
}

// AdoptionStatusChange audit trail entry of an adoption
type AdoptionStatusChange struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AdoptionID string         `gorm:"column:adoption_id;type:varchar(36);index" json:"adoption_id"`
	FromStatus AdoptionStatus `gorm:"column:from_status;type:varchar(16)" json:"from_status,omitempty"`
	ToStatus   AdoptionStatus `gorm:"column:to_status;type:varchar(16)" json:"to_status"`
	ChangedBy  string         `gorm:"column:changed_by;type:varchar(64)" json:"changed_by"`
	Note       string         `gorm:"column:note;type:varchar(255)" json:"note,omitempty"`
	ChangedAt  time.Time      `gorm:"column:changed_at" json:"changed_at"`
}

func (AdoptionStatusChange) TableName() string { return "rule_adoption_history" }

// ChapterRule propagation of a club rule into one of the club's chapters.
// Status starts as the rule's status and is managed by the chapter afterwards.
type ChapterRule struct {
	ID        string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	RuleID    string     `gorm:"column:rule_id;type:varchar(36);uniqueIndex:idx_chapter_rule,priority:1" json:"rule_id"`
	ChapterID string     `gorm:"column:chapter_id;type:varchar(36);uniqueIndex:idx_chapter_rule,priority:2;index" json:"chapter_id"`
	ClubID    string     `gorm:"column:club_id;type:varchar(36);index" json:"club_id"`
	Status    RuleStatus `gorm:"column:published_status;type:varchar(16)" json:"published_status"`
	CreatedAt time.Time  `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`

	Rule *Rule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}

func (ChapterRule) TableName() string { return "chapter_rules" }
