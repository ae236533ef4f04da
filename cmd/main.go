package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-cz/devslog"
	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/cache"
	"github.com/siahsang/notes/internal/config"
	"github.com/siahsang/notes/internal/database"
	"github.com/siahsang/notes/internal/notes"
	"github.com/siahsang/notes/internal/notify"
)

type application struct {
	config     *config.Config
	logger     *slog.Logger
	auth       *auth.Auth
	notes      *notes.Service
	dispatcher *notify.Dispatcher
}

func newApplication(cfg *config.Config, logger *slog.Logger, catalog notes.Catalog, c *cache.Cache, notifier notes.Notifier, clk clock.Clock) *application {
	return &application{
		config: cfg,
		logger: logger,
		auth:   auth.New(cfg.Auth.JWTSecret, clk),
		notes: notes.NewService(catalog, c, notifier, logger, notes.Config{
			TaxonomyTTL: cfg.Cache.TaxonomyTTL,
			ListingTTL:  cfg.Cache.ListingTTL,
			LatestCount: cfg.Content.LatestCount,
		}),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "notes",
		Short:        "Publishing API for notes, with moderation",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newUserCommand())
	return root
}

func configLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	handlerOptions := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}

	var handler slog.Handler
	if cfg.Env == config.EnvDevelopment && cfg.Log.Format != "json" {
		handler = devslog.NewHandler(
			os.Stdout, &devslog.Options{
				HandlerOptions:  handlerOptions,
				NewLineAfterLog: false,
			})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, handlerOptions)
	}

	return slog.New(handler)
}

// bootstrap loads the configuration and opens the database every command needs.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return nil, nil, nil, err
	}

	logger := configLogger(cfg)
	db, err := database.Open(ctx, database.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxIdleTime:  cfg.Database.MaxIdleTime,
	})
	if err != nil {
		logger.Error("Errors opening database connection", "error", err)
		return nil, nil, nil, err
	}

	logger.Info("Database connection established successfully")
	return cfg, logger, db, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("Errors closing database connection", "error", err)
	}
}
