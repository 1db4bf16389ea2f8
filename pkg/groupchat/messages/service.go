// Package messages stores messages addressed to groups.
//
// Message ids come from the AUTOINCREMENT primary key, which gives one
// strictly increasing order across every group. The timeline package relies
// on that order.
package messages

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/policy"
	"github.com/tijee/groupchat/pkg/groupchat/render"
	"gorm.io/gorm"
)

// Service sends, lists and bulk-deletes group messages
type Service struct {
	db       *gorm.DB
	renderer render.Renderer
	log      zerolog.Logger
}

// NewService creates a new messages service
func NewService(db *gorm.DB, renderer render.Renderer, log zerolog.Logger) *Service {
	return &Service{
		db:       db,
		renderer: renderer,
		log:      log.With().Str("component", "messages").Logger(),
	}
}

// SendCommand is the input for Send. An empty recipient type means "group".
type SendCommand struct {
	RecipientType string `json:"message_type_name" validate:"oneof=group"`
	RecipientID   uint   `json:"recipient_id" validate:"required"`
	Content       string `json:"message_content" validate:"required"`
	Subject       string `json:"subject_name" validate:"max=60"`
}

func (cmd *SendCommand) normalize() {
	cmd.RecipientType = strings.ToLower(strings.TrimSpace(cmd.RecipientType))
	if cmd.RecipientType == "" {
		cmd.RecipientType = string(models.RecipientTypeGroup)
	}
	cmd.Subject = strings.TrimSpace(cmd.Subject)
	if strings.TrimSpace(cmd.Content) == "" {
		cmd.Content = ""
	}
}

// Send stores a message from requester to a group they belong to.
// Content is rendered exactly once, after the membership check passes.
func (s *Service) Send(ctx context.Context, requester uint, cmd SendCommand) (models.Message, error) {
	cmd.normalize()
	if err := apperr.ValidateStruct(cmd); err != nil {
		return models.Message{}, err
	}

	subject := cmd.Subject
	if subject == "" {
		subject = models.DefaultSubject
	}

	var msg models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := policy.RequireMember(tx, cmd.RecipientID, requester); err != nil {
			return err
		}

		rendered, err := s.renderer.Render(cmd.Content)
		if err != nil {
			return err
		}

		msg = models.Message{
			SenderID:        requester,
			RecipientType:   models.RecipientTypeGroup,
			RecipientID:     cmd.RecipientID,
			Subject:         subject,
			RawContent:      cmd.Content,
			RenderedContent: rendered,
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return models.Message{}, err
	}

	s.log.Debug().
		Uint("message_id", msg.ID).
		Uint("group_id", msg.RecipientID).
		Uint("sender_id", requester).
		Msg("message sent")
	return msg, nil
}

// ListForGroup returns every message addressed to the group, ascending by id.
// Any caller may read; only the group's existence is checked.
func (s *Service) ListForGroup(ctx context.Context, groupID uint) ([]models.Message, error) {
	db := s.db.WithContext(ctx)

	if _, err := policy.LoadGroup(db, groupID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	if err := db.Scopes(AddressedTo(groupID)).Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteAllForGroup removes every message addressed to the group. Owner only.
func (s *Service) DeleteAllForGroup(ctx context.Context, requester, groupID uint) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := policy.RequireOwner(tx, groupID, requester); err != nil {
			return err
		}

		result := tx.Scopes(AddressedTo(groupID)).Delete(&models.Message{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Uint("group_id", groupID).Int64("deleted", deleted).Msg("group messages deleted")
	return deleted, nil
}

// AddressedTo restricts a query to messages addressed to the given groups
func AddressedTo(groupIDs ...uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("recipient_type = ? AND recipient_id IN ?", models.RecipientTypeGroup, groupIDs)
	}
}
