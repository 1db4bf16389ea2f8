package groups

import (
	"context"
	"errors"
	"strings"

	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/policy"
	"gorm.io/gorm"
)

// Member is one entry of a group's member list
type Member struct {
	User    models.User
	IsOwner bool
}

// ListMembers returns the owner followed by every edge member, ascending by
// user id. Strangers get a Forbidden error.
func (s *Service) ListMembers(ctx context.Context, requester, groupID uint) ([]Member, error) {
	db := s.db.WithContext(ctx)

	group, err := policy.RequireMember(db, groupID, requester)
	if err != nil {
		return nil, err
	}

	var owner models.User
	if err := db.First(&owner, group.OwnerID).Error; err != nil {
		return nil, err
	}

	var memberships []models.GroupMembership
	if err := db.Preload("User").
		Where("group_id = ? AND user_id != ?", groupID, group.OwnerID).
		Order("user_id ASC").
		Find(&memberships).Error; err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(memberships)+1)
	members = append(members, Member{User: owner, IsOwner: true})
	for _, m := range memberships {
		members = append(members, Member{User: m.User})
	}
	return members, nil
}

// AddMember adds userID to the group. Owner only. Adding someone who is
// already a member, or the owner, succeeds without writing anything.
func (s *Service) AddMember(ctx context.Context, requester, groupID, userID uint) (bool, error) {
	if userID == 0 {
		return false, apperr.Validation("user_id is required")
	}

	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := policy.RequireOwner(tx, groupID, requester)
		if err != nil {
			return err
		}

		var target models.User
		if err := tx.First(&target, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("User %d not found", userID)
			}
			return err
		}

		if target.ID == group.OwnerID {
			return nil
		}
		exists, err := policy.HasEdge(tx, groupID, userID)
		if err != nil || exists {
			return err
		}

		if err := tx.Create(&models.GroupMembership{GroupID: groupID, UserID: userID}).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if added {
		s.log.Info().Uint("group_id", groupID).Uint("user_id", userID).Msg("member added")
	}
	return added, nil
}

// RemoveMember removes userID's edge. Owner only, including for members
// removing themselves. Removing a non-member succeeds without writing.
func (s *Service) RemoveMember(ctx context.Context, requester, groupID, userID uint) (bool, error) {
	if userID == 0 {
		return false, apperr.Validation("user_id is required")
	}

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := policy.RequireOwner(tx, groupID, requester); err != nil {
			return err
		}

		result := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMembership{})
		removed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return false, err
	}

	if removed > 0 {
		s.log.Info().Uint("group_id", groupID).Uint("user_id", userID).Msg("member removed")
	}
	return removed > 0, nil
}

// UserIDByEmail looks up a user id for member requests that name users by email
func (s *Service) UserIDByEmail(ctx context.Context, email string) (uint, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("User %s not found", email)
		}
		return 0, err
	}
	return user.ID, nil
}
