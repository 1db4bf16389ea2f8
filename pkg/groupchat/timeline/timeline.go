// Package timeline serves a user's messages across every group they can see,
// as one window around an anchor message id.
package timeline

import (
	"context"
	"math"
	"slices"

	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/apperr"
	"github.com/tijee/groupchat/pkg/groupchat/messages"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/policy"
	"gorm.io/gorm"
)

const (
	// DefaultMaxWindow caps num_before and num_after when no limit is configured
	DefaultMaxWindow = 1000

	// AnchorNewest sits past every id, so the window ends at the newest message
	AnchorNewest int64 = math.MaxInt64
	// AnchorOldest sits before every id, so the window starts at the oldest message
	AnchorOldest int64 = 0
)

// Query selects a window: up to NumBefore messages older than the anchor
// message, the anchor message, and up to NumAfter newer ones.
type Query struct {
	Anchor    int64 `json:"anchor" validate:"gte=0"`
	NumBefore int   `json:"num_before" validate:"gte=0"`
	NumAfter  int   `json:"num_after" validate:"gte=0"`
}

// Window is the result of Fetch. Messages are ascending by id.
type Window struct {
	Messages []models.Message
	// AnchorID is the id of the message the window was built around, 0 when empty
	AnchorID uint
	// FoundAnchor reports that a message with exactly the requested id is visible
	FoundAnchor bool
	// FoundOldest reports that no visible message precedes the window
	FoundOldest bool
	// FoundNewest reports that no visible message follows the window
	FoundNewest bool
}

// Service fetches timeline windows
type Service struct {
	db        *gorm.DB
	maxWindow int
	log       zerolog.Logger
}

// NewService creates a timeline service. maxWindow <= 0 means DefaultMaxWindow.
func NewService(db *gorm.DB, maxWindow int, log zerolog.Logger) *Service {
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	return &Service{
		db:        db,
		maxWindow: maxWindow,
		log:       log.With().Str("component", "timeline").Logger(),
	}
}

func (s *Service) validate(q Query) error {
	if err := apperr.ValidateStruct(q); err != nil {
		return err
	}
	if q.NumBefore > s.maxWindow {
		return apperr.Validation("num_before must be at most %d", s.maxWindow)
	}
	if q.NumAfter > s.maxWindow {
		return apperr.Validation("num_after must be at most %d", s.maxWindow)
	}
	return nil
}

// Fetch returns the window of userID's visible messages around q.Anchor.
//
// The anchor message is the oldest visible message with id >= q.Anchor. When
// there is none, it is the newest visible message, so an anchor past every id
// with no surrounding messages requested yields just the newest message.
// Users who see no groups get an empty window, never an error.
func (s *Service) Fetch(ctx context.Context, userID uint, q Query) (Window, error) {
	if err := s.validate(q); err != nil {
		return Window{}, err
	}

	var w Window
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groupIDs, err := policy.VisibleGroupIDs(tx, userID)
		if err != nil {
			return err
		}
		if len(groupIDs) == 0 {
			w = emptyWindow()
			return nil
		}
		visible := messages.AddressedTo(groupIDs...)

		anchor, ok, err := findAnchor(tx.Scopes(visible), q.Anchor)
		if err != nil {
			return err
		}
		if !ok {
			w = emptyWindow()
			return nil
		}

		var before []models.Message
		if err := tx.Scopes(visible).
			Where("id < ?", anchor.ID).
			Order("id DESC").
			Limit(q.NumBefore + 1).
			Find(&before).Error; err != nil {
			return err
		}
		w.FoundOldest = len(before) <= q.NumBefore
		before = before[:min(len(before), q.NumBefore)]
		slices.Reverse(before)

		var after []models.Message
		if err := tx.Scopes(visible).
			Where("id > ?", anchor.ID).
			Order("id ASC").
			Limit(q.NumAfter + 1).
			Find(&after).Error; err != nil {
			return err
		}
		w.FoundNewest = len(after) <= q.NumAfter
		after = after[:min(len(after), q.NumAfter)]

		w.Messages = make([]models.Message, 0, len(before)+1+len(after))
		w.Messages = append(w.Messages, before...)
		w.Messages = append(w.Messages, anchor)
		w.Messages = append(w.Messages, after...)
		w.AnchorID = anchor.ID
		w.FoundAnchor = int64(anchor.ID) == q.Anchor
		return nil
	})
	if err != nil {
		return Window{}, err
	}

	s.log.Debug().
		Uint("user_id", userID).
		Int64("anchor", q.Anchor).
		Uint("anchor_id", w.AnchorID).
		Int("count", len(w.Messages)).
		Msg("timeline fetched")
	return w, nil
}

// findAnchor returns the oldest message with id >= anchor, falling back to
// the newest message. ok is false only when no message is visible at all.
func findAnchor(db *gorm.DB, anchor int64) (models.Message, bool, error) {
	var found []models.Message
	if err := db.Session(&gorm.Session{}).Where("id >= ?", anchor).Order("id ASC").Limit(1).Find(&found).Error; err != nil {
		return models.Message{}, false, err
	}
	if len(found) == 0 {
		if err := db.Session(&gorm.Session{}).Order("id DESC").Limit(1).Find(&found).Error; err != nil {
			return models.Message{}, false, err
		}
	}
	if len(found) == 0 {
		return models.Message{}, false, nil
	}
	return found[0], true, nil
}

func emptyWindow() Window {
	return Window{Messages: []models.Message{}, FoundOldest: true, FoundNewest: true}
}
