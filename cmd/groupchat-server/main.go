package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/config"
	"github.com/tijee/groupchat/pkg/groupchat/database"
	"github.com/tijee/groupchat/pkg/groupchat/logging"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"github.com/tijee/groupchat/pkg/groupchat/server"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	app := &cli.Command{
		Name:    "groupchat-server",
		Usage:   "Serve groups, memberships and group messages over HTTP",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
				Sources: cli.EnvVars("GROUPCHAT_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "address to listen on",
				Sources: cli.EnvVars("GROUPCHAT_LISTEN_ADDR"),
				Value:   config.DefaultListenAddr,
			},
			&cli.StringFlag{
				Name:    "db-path",
				Usage:   "path to the SQLite database",
				Sources: cli.EnvVars("GROUPCHAT_DB_PATH"),
				Value:   config.DefaultDBPath,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (trace, debug, info, warn, error)",
				Sources: cli.EnvVars("GROUPCHAT_LOG_LEVEL"),
				Value:   config.DefaultLogLevel,
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "path to log file (optional)",
				Sources: cli.EnvVars("GROUPCHAT_LOG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "write JSON log lines instead of console output",
				Sources: cli.EnvVars("GROUPCHAT_LOG_JSON"),
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "secret used to sign session tokens",
				Sources: cli.EnvVars("GROUPCHAT_JWT_SECRET", "JWT_SECRET"),
			},
			&cli.DurationFlag{
				Name:    "token-ttl",
				Usage:   "session token lifetime",
				Sources: cli.EnvVars("GROUPCHAT_TOKEN_TTL"),
				Value:   config.DefaultTokenTTL,
			},
			&cli.IntFlag{
				Name:    "timeline-max-window",
				Usage:   "largest num_before/num_after accepted by the timeline",
				Sources: cli.EnvVars("GROUPCHAT_TIMELINE_MAX_WINDOW"),
				Value:   config.DefaultTimelineMaxWindow,
			},
			&cli.StringFlag{
				Name:    "admin-email",
				Usage:   "email of the admin account created when none exists",
				Sources: cli.EnvVars("GROUPCHAT_ADMIN_EMAIL"),
			},
			&cli.StringFlag{
				Name:    "admin-password",
				Usage:   "password of the bootstrap admin account",
				Sources: cli.EnvVars("GROUPCHAT_ADMIN_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "gin-mode",
				Usage:   "gin mode (debug, release, test)",
				Sources: cli.EnvVars("GROUPCHAT_GIN_MODE", "GIN_MODE"),
				Value:   config.DefaultGinMode,
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "groupchat-server: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger := log.With().Str("service", "groupchat").Logger()

	if err := database.Connect(cfg.DBPath, logger); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	db := database.GetDB()

	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Str("db_path", cfg.DBPath).Msg("database migrations completed")

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("no jwt secret configured, using the development default")
	}
	auth.Configure(cfg.JWTSecret, cfg.TokenTTL)

	if err := server.EnsureAdmin(db, cfg.Bootstrap, logger); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	router := server.NewRouter(db, cfg, logger)

	return server.Run(ctx, cfg, router, logger)
}

// loadConfig reads the config file, then lets flags and env vars that were
// actually set override it.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	overrides := map[string]func(){
		"listen":              func() { cfg.ListenAddr = c.String("listen") },
		"db-path":             func() { cfg.DBPath = c.String("db-path") },
		"log-level":           func() { cfg.LogLevel = c.String("log-level") },
		"log-file":            func() { cfg.LogFile = c.String("log-file") },
		"log-json":            func() { cfg.LogJSON = c.Bool("log-json") },
		"jwt-secret":          func() { cfg.JWTSecret = c.String("jwt-secret") },
		"token-ttl":           func() { cfg.TokenTTL = c.Duration("token-ttl") },
		"timeline-max-window": func() { cfg.TimelineMaxWindow = int(c.Int("timeline-max-window")) },
		"admin-email":         func() { cfg.Bootstrap.AdminEmail = c.String("admin-email") },
		"admin-password":      func() { cfg.Bootstrap.AdminPassword = c.String("admin-password") },
		"gin-mode":            func() { cfg.GinMode = c.String("gin-mode") },
	}
	for name, apply := range overrides {
		if c.IsSet(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
