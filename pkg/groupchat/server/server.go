// Package server assembles the HTTP router and runs it until the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/admin"
	"github.com/tijee/groupchat/pkg/groupchat/apikeys"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/config"
	"github.com/tijee/groupchat/pkg/groupchat/groups"
	"github.com/tijee/groupchat/pkg/groupchat/logging"
	"github.com/tijee/groupchat/pkg/groupchat/messages"
	"github.com/tijee/groupchat/pkg/groupchat/render"
	"github.com/tijee/groupchat/pkg/groupchat/timeline"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the gin engine with every route mounted
func NewRouter(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	keys := apikeys.NewResolver(db)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "groupchat",
			})
		})

		// Accounts (public, /me resolves identity itself)
		auth.NewHandler(db).RegisterRoutes(api.Group("/auth"), keys)

		// API key management (JWT or API key, login required)
		apikeys.NewHandler(db).RegisterRoutes(api.Group("", auth.IdentityMiddleware(keys), auth.RequireAuth()))

		// Groups, members, messages and the timeline. Identity is optional:
		// anonymous callers act as strangers.
		groupRoutes := api.Group("/group", auth.IdentityMiddleware(keys))
		groupSvc := groups.NewService(db, log)
		groups.NewHandler(groupSvc).RegisterRoutes(groupRoutes)

		messageSvc := messages.NewService(db, render.NewMarkdown(), log)
		messages.NewHandler(messageSvc).RegisterRoutes(groupRoutes)

		timelineSvc := timeline.NewService(db, cfg.TimelineMaxWindow, log)
		timeline.NewHandler(timelineSvc).RegisterRoutes(groupRoutes)

		// Admin (JWT only, admin role required)
		adminRoutes := api.Group("/admin", auth.AuthMiddleware(), auth.RequireAdmin())
		admin.NewHandler(db).RegisterRoutes(adminRoutes)
	}

	return r
}

// Run serves handler on cfg.ListenAddr until ctx is cancelled, then drains
// in-flight requests.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting groupchat server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
