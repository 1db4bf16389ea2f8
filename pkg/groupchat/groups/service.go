package groups

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/policy"
	"gorm.io/gorm"
)

// Service owns group records and their membership edges.
// Every guarded mutation runs its policy check and its write in one transaction.
type Service struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewService creates a new groups service
func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "groups").Logger()}
}

// GroupView is a group as seen by one caller
type GroupView struct {
	Group       models.Group
	Tier        policy.Tier
	MemberCount int
}

// CreateCommand holds the input for Create
type CreateCommand struct {
	Name        string `json:"name" validate:"required,max=60"`
	Description string `json:"description" validate:"max=1024"`
}

// GroupRef names a group either by id or by name. ID wins when both are set.
type GroupRef struct {
	ID   uint
	Name string
}

type memberCount struct {
	GroupID uint
	Count   int
}

// List returns the groups requester owns or belongs to, ascending by id
func (s *Service) List(ctx context.Context, requester uint) ([]GroupView, error) {
	db := s.db.WithContext(ctx)

	ids, err := policy.VisibleGroupIDs(db, requester)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []GroupView{}, nil
	}

	var groups []models.Group
	if err := db.Where("id IN ?", ids).Order("id ASC").Find(&groups).Error; err != nil {
		return nil, err
	}

	counts, err := s.memberCounts(db, ids)
	if err != nil {
		return nil, err
	}

	views := make([]GroupView, len(groups))
	for i, g := range groups {
		tier := policy.TierMember
		if g.OwnerID == requester {
			tier = policy.TierOwner
		}
		views[i] = GroupView{Group: g, Tier: tier, MemberCount: counts[g.ID] + 1}
	}
	return views, nil
}

// Get returns one group to a member or its owner
func (s *Service) Get(ctx context.Context, requester, groupID uint) (GroupView, error) {
	db := s.db.WithContext(ctx)

	group, tier, err := policy.Resolve(db, groupID, requester)
	if err != nil {
		return GroupView{}, err
	}
	if tier < policy.TierMember {
		return GroupView{}, apperr.Forbidden("Not a member of this group")
	}

	counts, err := s.memberCounts(db, []uint{groupID})
	if err != nil {
		return GroupView{}, err
	}
	return GroupView{Group: group, Tier: tier, MemberCount: counts[groupID] + 1}, nil
}

// Create creates a group owned by requester
func (s *Service) Create(ctx context.Context, requester uint, cmd CreateCommand) (models.Group, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := apperr.ValidateStruct(cmd); err != nil {
		return models.Group{}, err
	}
	if requester == 0 {
		return models.Group{}, apperr.Forbidden("Authentication required")
	}

	var group models.Group
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.First(&owner, requester).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("User %d not found", requester)
			}
			return err
		}

		if err := ensureNameFree(tx, requester, cmd.Name, 0); err != nil {
			return err
		}

		group = models.Group{
			OwnerID:     requester,
			Name:        cmd.Name,
			Description: cmd.Description,
		}
		return tx.Create(&group).Error
	})
	if err != nil {
		return models.Group{}, err
	}

	s.log.Info().Uint("group_id", group.ID).Uint("owner_id", requester).Str("name", group.Name).Msg("group created")
	return group, nil
}

// Rename changes a group's name. Owner only.
func (s *Service) Rename(ctx context.Context, requester, groupID uint, newName string) (models.Group, error) {
	newName = strings.TrimSpace(newName)
	if err := apperr.ValidateStruct(struct {
		Name string `json:"newname" validate:"required,max=60"`
	}{newName}); err != nil {
		return models.Group{}, err
	}

	var group models.Group
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		group, err = policy.RequireOwner(tx, groupID, requester)
		if err != nil {
			return err
		}
		if group.Name == newName {
			return nil
		}
		if err := ensureNameFree(tx, requester, newName, group.ID); err != nil {
			return err
		}
		group.Name = newName
		return tx.Model(&group).Update("name", newName).Error
	})
	if err != nil {
		return models.Group{}, err
	}

	s.log.Info().Uint("group_id", group.ID).Str("name", newName).Msg("group renamed")
	return group, nil
}

// Delete removes a group with its memberships and messages. Owner only.
func (s *Service) Delete(ctx context.Context, requester uint, ref GroupRef) (models.Group, error) {
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.ID == 0 && ref.Name == "" {
		return models.Group{}, apperr.Validation("name or group_id is required")
	}

	var group models.Group
	var deletedMessages int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := resolveRef(tx, requester, ref)
		if err != nil {
			return err
		}
		group, err = policy.RequireOwner(tx, found.ID, requester)
		if err != nil {
			return err
		}

		result := tx.Where("recipient_type = ? AND recipient_id = ?", models.RecipientTypeGroup, group.ID).
			Delete(&models.Message{})
		if result.Error != nil {
			return result.Error
		}
		deletedMessages = result.RowsAffected

		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, group.ID).Error
	})
	if err != nil {
		return models.Group{}, err
	}

	s.log.Info().
		Uint("group_id", group.ID).
		Int64("messages_deleted", deletedMessages).
		Msg("group deleted")
	return group, nil
}

// resolveRef finds the group a GroupRef points at. A name resolves to the
// requester's own group first, then to anyone's group with that name.
func resolveRef(tx *gorm.DB, requester uint, ref GroupRef) (models.Group, error) {
	if ref.ID != 0 {
		return policy.LoadGroup(tx, ref.ID)
	}

	var candidates []models.Group
	if err := tx.Where("name = ?", ref.Name).Order("id ASC").Find(&candidates).Error; err != nil {
		return models.Group{}, err
	}
	if len(candidates) == 0 {
		return models.Group{}, apperr.NotFound("Group %q not found", ref.Name)
	}
	for _, g := range candidates {
		if g.OwnerID == requester {
			return g, nil
		}
	}
	return candidates[0], nil
}

// ensureNameFree rejects a name the owner already uses on another group
func ensureNameFree(tx *gorm.DB, ownerID uint, name string, excludeID uint) error {
	query := tx.Model(&models.Group{}).Where("owner_id = ? AND name = ?", ownerID, name)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Validation("You already own a group named %q", name)
	}
	return nil
}

// memberCounts returns the explicit edge count per group
func (s *Service) memberCounts(db *gorm.DB, groupIDs []uint) (map[uint]int, error) {
	var rows []memberCount
	if err := db.Model(&models.GroupMembership{}).
		Select("group_id, COUNT(*) as count").
		Where("group_id IN ?", groupIDs).
		Group("group_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.GroupID] = r.Count
	}
	return counts, nil
}
