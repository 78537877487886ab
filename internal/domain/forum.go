package domain

import "time"

// ForumType community container kind
type ForumType string

const (
	ForumClub    ForumType = "club"
	ForumNode    ForumType = "node"
	ForumChapter ForumType = "chapter"
)

// ParseForumType returns the forum type for s, or false when s is not a known type
func ParseForumType(s string) (ForumType, bool) {
	switch ForumType(s) {
	case ForumClub, ForumNode, ForumChapter:
		return ForumType(s), true
	default:
		return "", false
	}
}

// ForumRef identifies exactly one forum. The zero value is the global scope.
type ForumRef struct {
	Type ForumType `json:"type,omitempty"`
	ID   string    `json:"id,omitempty"`
}

// Club returns a reference to the club with the given id
func Club(id string) ForumRef { return ForumRef{Type: ForumClub, ID: id} }

// Node returns a reference to the node with the given id
func Node(id string) ForumRef { return ForumRef{Type: ForumNode, ID: id} }

// ChapterForum returns a reference to the chapter with the given id
func ChapterForum(id string) ForumRef { return ForumRef{Type: ForumChapter, ID: id} }

// Global returns the forum-less scope
func Global() ForumRef { return ForumRef{} }

// IsGlobal reports whether the reference names no forum
func (f ForumRef) IsGlobal() bool { return f.Type == "" && f.ID == "" }

// Valid reports whether f is either global or a typed reference with an id
func (f ForumRef) Valid() bool {
	if f.IsGlobal() {
		return true
	}
	if _, ok := ParseForumType(string(f.Type)); !ok {
		return false
	}
	return f.ID != ""
}

// IsAdoptionTarget reports whether f may receive adoptions (clubs and nodes only)
func (f ForumRef) IsAdoptionTarget() bool {
	return (f.Type == ForumClub || f.Type == ForumNode) && f.ID != ""
}

func (f ForumRef) String() string {
	if f.IsGlobal() {
		return "global"
	}
	return string(f.Type) + ":" + f.ID
}

// Role member role inside a forum
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// IsManager owner 또는 admin
func (r Role) IsManager() bool {
	return r == RoleOwner || r == RoleAdmin
}

// MemberDetails public profile of a forum member
type MemberDetails struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
}

// Membership result of resolving a user inside a forum
type Membership struct {
	IsMember    bool           `json:"is_member"`
	Role        Role           `json:"role,omitempty"`
	UserDetails *MemberDetails `json:"user_details,omitempty"`
}

// IsManager reports whether the membership is an owner/admin one
func (m *Membership) IsManager() bool {
	return m != nil && m.IsMember && m.Role.IsManager()
}

// ForumMember forum membership row
type ForumMember struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ForumType ForumType `gorm:"column:forum_type;type:varchar(10);uniqueIndex:idx_forum_member,priority:1" json:"forum_type"`
	ForumID   string    `gorm:"column:forum_id;type:varchar(36);uniqueIndex:idx_forum_member,priority:2" json:"forum_id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);uniqueIndex:idx_forum_member,priority:3" json:"user_id"`
	Nickname  string    `gorm:"column:nickname;type:varchar(100)" json:"nickname"`
	Role      Role      `gorm:"column:role;type:varchar(16);default:'member'" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ForumMember) TableName() string { return "forum_members" }

// ChapterStatus lifecycle of a chapter forum
type ChapterStatus string

const (
	ChapterDraft     ChapterStatus = "draft"
	ChapterPublished ChapterStatus = "published"
)

// Chapter forum nested under a club
type Chapter struct {
	ID        string        `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	ClubID    string        `gorm:"column:club_id;type:varchar(36);index" json:"club_id"`
	Name      string        `gorm:"column:name;type:varchar(100)" json:"name"`
	Status    ChapterStatus `gorm:"column:status;type:varchar(16);default:'draft'" json:"status"`
	IsDeleted bool          `gorm:"column:is_deleted;default:false" json:"is_deleted"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Chapter) TableName() string { return "chapters" }
