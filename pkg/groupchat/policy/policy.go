// Package policy resolves a caller's authorization tier over a group.
//
// A caller is the owner when group.OwnerID matches, a member when they are the
// owner or hold a membership edge, and a stranger otherwise. Owners get write
// access to membership, group identity and bulk message deletion; members get
// read access and may send; strangers get nothing.
//
// Every function takes the *gorm.DB to query so callers can pass the
// transaction their mutation runs in, keeping check and write atomic.
package policy

import (
	"errors"
	"slices"

	"github.com/samber/lo"
	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"gorm.io/gorm"
)

// Tier is a caller's standing within one group
type Tier int

const (
	TierStranger Tier = iota
	TierMember
	TierOwner
)

func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "owner"
	case TierMember:
		return "member"
	default:
		return "stranger"
	}
}

// TierFor derives the tier from the group and whether userID has an edge.
// User 0 is the unauthenticated caller and is always a stranger.
func TierFor(group models.Group, userID uint, hasEdge bool) Tier {
	switch {
	case userID == 0:
		return TierStranger
	case group.OwnerID == userID:
		return TierOwner
	case hasEdge:
		return TierMember
	default:
		return TierStranger
	}
}

// LoadGroup fetches a group or returns a NotFound error
func LoadGroup(db *gorm.DB, groupID uint) (models.Group, error) {
	var group models.Group
	if err := db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Group{}, apperr.NotFound("Group %d not found", groupID)
		}
		return models.Group{}, err
	}
	return group, nil
}

// HasEdge reports whether an explicit membership edge exists
func HasEdge(db *gorm.DB, groupID, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	var count int64
	if err := db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Resolve loads the group and the caller's tier within it
func Resolve(db *gorm.DB, groupID, userID uint) (models.Group, Tier, error) {
	group, err := LoadGroup(db, groupID)
	if err != nil {
		return models.Group{}, TierStranger, err
	}
	if group.OwnerID == userID && userID != 0 {
		return group, TierOwner, nil
	}
	hasEdge, err := HasEdge(db, groupID, userID)
	if err != nil {
		return models.Group{}, TierStranger, err
	}
	return group, TierFor(group, userID, hasEdge), nil
}

// RequireOwner returns the group when userID owns it, Forbidden otherwise
func RequireOwner(db *gorm.DB, groupID, userID uint) (models.Group, error) {
	group, tier, err := Resolve(db, groupID, userID)
	if err != nil {
		return models.Group{}, err
	}
	if tier != TierOwner {
		return models.Group{}, apperr.Forbidden("Only the group owner can do this")
	}
	return group, nil
}

// RequireMember returns the group when userID is the owner or a member
func RequireMember(db *gorm.DB, groupID, userID uint) (models.Group, error) {
	group, tier, err := Resolve(db, groupID, userID)
	if err != nil {
		return models.Group{}, err
	}
	if tier < TierMember {
		return models.Group{}, apperr.Forbidden("Not a member of this group")
	}
	return group, nil
}

// VisibleGroupIDs returns, ascending, every group userID owns or belongs to
func VisibleGroupIDs(db *gorm.DB, userID uint) ([]uint, error) {
	if userID == 0 {
		return []uint{}, nil
	}

	var owned []uint
	if err := db.Model(&models.Group{}).Where("owner_id = ?", userID).Pluck("id", &owned).Error; err != nil {
		return nil, err
	}

	var joined []uint
	if err := db.Model(&models.GroupMembership{}).Where("user_id = ?", userID).Pluck("group_id", &joined).Error; err != nil {
		return nil, err
	}

	ids := lo.Union(owned, joined)
	slices.Sort(ids)
	return ids, nil
}
