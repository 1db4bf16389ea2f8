package server

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/config"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"gorm.io/gorm"
)

// EnsureAdmin creates the bootstrap admin account when no admin exists.
// Nothing happens when no bootstrap email is configured.
func EnsureAdmin(db *gorm.DB, cfg config.BootstrapConfig, log zerolog.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        strings.ToLower(cfg.AdminEmail),
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Info().Str("email", admin.Email).Uint("user_id", admin.ID).Msg("created bootstrap admin user")
	return nil
}
