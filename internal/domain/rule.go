package domain

import "time"

// RuleStatus publication status of a rule
type RuleStatus string

const (
	RuleDraft     RuleStatus = "draft"
	RuleProposed  RuleStatus = "proposed"
	RulePublished RuleStatus = "published"
	RuleRejected  RuleStatus = "rejected"
	RuleArchived  RuleStatus = "archived"
)

// ParseRuleStatus returns the status for s, or false when s is unknown
func ParseRuleStatus(s string) (RuleStatus, bool) {
	switch RuleStatus(s) {
	case RuleDraft, RuleProposed, RulePublished, RuleRejected, RuleArchived:
		return RuleStatus(s), true
	default:
		return "", false
	}
}

// CanTransition reports whether a rule may move from s to next
func (s RuleStatus) CanTransition(next RuleStatus) bool {
	switch s {
	case RuleDraft:
		return next == RuleDraft || next == RuleProposed || next == RulePublished
	case RuleProposed:
		return next == RulePublished || next == RuleRejected
	case RulePublished:
		return next == RuleArchived
	case RuleArchived:
		return next == RulePublished
	case RuleRejected:
		return false
	default:
		return false
	}
}

// Rule governance content owned by a forum (or global when the forum columns are empty)
type Rule struct {
	ID              string           `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	ForumType       ForumType        `gorm:"column:forum_type;type:varchar(10);index:idx_rules_forum,priority:1" json:"forum_type,omitempty"`
	ForumID         string           `gorm:"column:forum_id;type:varchar(36);index:idx_rules_forum,priority:2" json:"forum_id,omitempty"`
	Title           string           `gorm:"column:title;type:varchar(255)" json:"title"`
	Description     string           `gorm:"column:description;type:text" json:"description"`
	Category        string           `gorm:"column:category;type:varchar(100)" json:"category"`
	Significance    string           `gorm:"column:significance;type:text" json:"significance"`
	Tags            StringList       `gorm:"column:tags;type:text" json:"tags"`
	Domain          string           `gorm:"column:domain;type:varchar(100)" json:"domain"`
	CreatedBy       string           `gorm:"column:created_by;type:varchar(64);index" json:"created_by"`
	PublishedBy     *string          `gorm:"column:published_by;type:varchar(64)" json:"published_by,omitempty"`
	PublishedStatus RuleStatus       `gorm:"column:published_status;type:varchar(16);index" json:"published_status"`
	IsPublic        bool             `gorm:"column:is_public" json:"is_public"`
	IsActive        bool             `gorm:"column:is_active" json:"is_active"`
	IsArchived      bool             `gorm:"column:is_archived" json:"is_archived"`
	IsDeleted       bool             `gorm:"column:is_deleted;index" json:"-"`
	Version         uint             `gorm:"column:version" json:"version"`
	Views           uint             `gorm:"column:views" json:"views"`
	AdoptedClubs    AdoptedForumList `gorm:"column:adopted_clubs;type:text" json:"adopted_clubs"`
	AdoptedNodes    AdoptedForumList `gorm:"column:adopted_nodes;type:text" json:"adopted_nodes"`
	PublishedAt     *time.Time       `gorm:"column:published_at" json:"published_at,omitempty"`
	CreatedAt       time.Time        `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"column:updated_at" json:"updated_at"`

	Attachments []RuleAttachment `gorm:"foreignKey:RuleID" json:"attachments,omitempty"`
}

func (Rule) TableName() string { return "rules" }

// Forum returns the owning forum reference
func (r *Rule) Forum() ForumRef {
	return ForumRef{Type: r.ForumType, ID: r.ForumID}
}

// SetForum stores f in the forum columns
func (r *Rule) SetForum(f ForumRef) {
	r.ForumType = f.Type
	r.ForumID = f.ID
}

// IsAdoptable only live, public, published rules can be adopted
func (r *Rule) IsAdoptable() bool {
	return !r.IsDeleted && !r.IsArchived && r.IsPublic && r.PublishedStatus == RulePublished
}

// Snapshot copies the versioned body fields into a RuleVersion row
func (r *Rule) Snapshot(editedBy string, at time.Time) *RuleVersion {
	tags := make(StringList, len(r.Tags))
	copy(tags, r.Tags)
	return &RuleVersion{
		RuleID:       r.ID,
		Version:      r.Version,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Significance: r.Significance,
		Tags:         tags,
		Domain:       r.Domain,
		IsPublic:     r.IsPublic,
		EditedBy:     editedBy,
		EditedAt:     at,
	}
}

// RuleVersion pre-update snapshot of a published rule (olderVersions)
type RuleVersion struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RuleID       string     `gorm:"column:rule_id;type:varchar(36);index" json:"rule_id"`
	Version      uint       `gorm:"column:version" json:"version"`
	Title        string     `gorm:"column:title;type:varchar(255)" json:"title"`
	Description  string     `gorm:"column:description;type:text" json:"description"`
	Category     string     `gorm:"column:category;type:varchar(100)" json:"category"`
	Significance string     `gorm:"column:significance;type:text" json:"significance"`
	Tags         StringList `gorm:"column:tags;type:text" json:"tags"`
	Domain       string     `gorm:"column:domain;type:varchar(100)" json:"domain"`
	IsPublic     bool       `gorm:"column:is_public" json:"is_public"`
	EditedBy     string     `gorm:"column:edited_by;type:varchar(64)" json:"edited_by"`
	EditedAt     time.Time  `gorm:"column:edited_at" json:"edited_at"`
}

func (RuleVersion) TableName() string { return "rule_versions" }

// MaxRuleAttachments upper bound of attachments per rule
const MaxRuleAttachments = 5

// RuleAttachment file attached to a rule
type RuleAttachment struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RuleID     string    `gorm:"column:rule_id;type:varchar(36);index" json:"rule_id"`
	URL        string    `gorm:"column:url;type:varchar(500)" json:"url"`
	Filename   string    `gorm:"column:filename;type:varchar(255)" json:"filename"`
	MimeType   string    `gorm:"column:mime_type;type:varchar(100)" json:"mime_type"`
	UploadedBy string    `gorm:"column:uploaded_by;type:varchar(64)" json:"uploaded_by"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RuleAttachment) TableName() string { return "rule_attachments" }

// ReactionKind relevance vote on a rule
type ReactionKind string

const (
	ReactionRelevant   ReactionKind = "relevant"
	ReactionIrrelevant ReactionKind = "irrelevant"
)

// RuleReaction one user's vote on a rule
type RuleReaction struct {
	ID        uint64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RuleID    string       `gorm:"column:rule_id;type:varchar(36);uniqueIndex:idx_rule_reaction,priority:1" json:"rule_id"`
	UserID    string       `gorm:"column:user_id;type:varchar(64);uniqueIndex:idx_rule_reaction,priority:2" json:"user_id"`
	Kind      ReactionKind `gorm:"column:kind;type:varchar(16)" json:"kind"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RuleReaction) TableName() string { return "rule_reactions" }

// ReactionSummary counts of both reaction sets plus the caller's own vote
type ReactionSummary struct {
	Relevant   int64        `json:"relevant"`
	Irrelevant int64        `json:"irrelevant"`
	Mine       ReactionKind `json:"mine,omitempty"`
}

// RuleDetail single rule view
type RuleDetail struct {
	*Rule
	Reactions ReactionSummary `json:"reactions"`
}
