package repository

import (
	"context"

	"github.com/damoang/angple-rules/internal/domain"
	"gorm.io/gorm"
)

// MembershipRepository resolves forum roles from the forum_members table
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// GetUserDetailsInForum returns the caller's membership in forum. A user
// without a row is reported as a non-member, not as an error.
func (r *MembershipRepository) GetUserDetailsInForum(ctx context.Context, forum domain.ForumRef, userID string) (*domain.Membership, error) {
	if forum.IsGlobal() || userID == "" {
		return &domain.Membership{}, nil
	}

	var member domain.ForumMember
	err := r.db.WithContext(ctx).
		Where("forum_type = ? AND forum_id = ? AND user_id = ?", forum.Type, forum.ID, userID).
		First(&member).Error
	if IsNotFound(err) {
		return &domain.Membership{}, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.Membership{
		IsMember: true,
		Role:     member.Role,
		UserDetails: &domain.MemberDetails{
			UserID:   member.UserID,
			Nickname: member.Nickname,
		},
	}, nil
}

// Upsert adds userID to forum with role, or changes the role of an existing member
func (r *MembershipRepository) Upsert(ctx context.Context, forum domain.ForumRef, userID, nickname string, role domain.Role) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member domain.ForumMember
		err := tx.Where("forum_type = ? AND forum_id = ? AND user_id = ?", forum.Type, forum.ID, userID).
			First(&member).Error
		if IsNotFound(err) {
			return tx.Create(&domain.ForumMember{
				ForumType: forum.Type,
				ForumID:   forum.ID,
				UserID:    userID,
				Nickname:  nickname,
				Role:      role,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&member).Updates(map[string]interface{}{"role": role, "nickname": nickname}).Error
	})
}
