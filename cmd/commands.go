package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/cache"
	"github.com/siahsang/notes/internal/config"
	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/database"
	"github.com/siahsang/notes/internal/metrics"
	"github.com/siahsang/notes/internal/notes"
	"github.com/siahsang/notes/internal/notify"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

const poolStatsInterval = 15 * time.Second

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, logger, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, logger)

	if migrate {
		if err := database.Migrate(db, logger); err != nil {
			logger.Error("Migration failed", "error", xerrors.Sprint(err))
			return err
		}
	}

	backend, closeBackend, err := newCacheBackend(cfg)
	if err != nil {
		logger.Error("Cache backend unavailable", "error", xerrors.Sprint(err))
		return err
	}
	defer closeBackend()

	sender, err := newSender(cfg, logger)
	if err != nil {
		logger.Error("Mail sender unavailable", "error", xerrors.Sprint(err))
		return err
	}
	dispatcher := notify.NewDispatcher(sender, logger, notify.Options{
		From:       cfg.Mail.From,
		AdminEmail: cfg.Mail.AdminEmail,
		SiteName:   cfg.Mail.SiteName,
		Timeout:    cfg.Mail.Timeout,
		Location:   cfg.Location(),
	})

	collector := metrics.NewPoolStatsCollector(db)
	collector.Start(poolStatsInterval)
	defer collector.Stop()

	var layer *cache.Cache
	if backend != nil {
		layer = cache.New(backend, logger, cfg.Cache.Timeout)
	}

	app := newApplication(cfg, logger, core.NewCore(db, logger, cfg.Database.QueryTimeout), layer, dispatcher, clock.WallClock)
	app.dispatcher = dispatcher

	if err := app.serve(ctx); err != nil {
		logger.Error("ErrorStack starting server", "error", xerrors.Sprint(err))
		return err
	}
	return nil
}

// newCacheBackend returns nil when caching is disabled.
func newCacheBackend(cfg *config.Config) (cache.Backend, func(), error) {
	switch cfg.Cache.Backend {
	case config.CacheSQLite:
		backend, err := cache.OpenSQLite(cfg.Cache.Path, clock.WallClock)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	case config.CacheMemory:
		return cache.NewMemoryBackend(clock.WallClock), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func newSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Mail.SMTPHost == "" {
		logger.Warn("No SMTP host configured, notifications are only logged")
		return notify.LogSender{Log: logger}, nil
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Mail.SMTPPassword,
		TLS:      cfg.Mail.SMTPTLS,
		Timeout:  cfg.Mail.Timeout,
	})
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			if err := database.Migrate(db, logger); err != nil {
				logger.Error("Migration failed", "error", xerrors.Sprint(err))
				return err
			}
			return nil
		},
	}
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

type userCreateOptions struct {
	username     string
	email        string
	password     string
	superuser    bool
	staff        bool
	capabilities []string
}

func newUserCreateCommand() *cobra.Command {
	var opts userCreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user, optionally with administrative rights",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := opts.user()
			if err != nil {
				return err
			}

			_, logger, db, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			if err := core.NewCore(db, logger, 0).CreateUser(cmd.Context(), user); err != nil {
				logger.Error("Creating user failed", "error", xerrors.Sprint(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.username, "username", "", "login name")
	flags.StringVar(&opts.email, "email", "", "email address")
	flags.StringVar(&opts.password, "password", "", "password, at least 8 characters")
	flags.BoolVar(&opts.superuser, "superuser", false, "grant every permission")
	flags.BoolVar(&opts.staff, "staff", false, "allow moderating content")
	flags.StringSliceVar(&opts.capabilities, "capability", nil, "grant a capability (can-author, can-moderate); repeatable")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (opts userCreateOptions) user() (*auth.User, error) {
	v := validator.New()
	notes.ValidateRegistration(v, notes.Registration{Username: opts.username, Email: opts.email, Password: opts.password})

	user := &auth.User{
		Username:    opts.username,
		Email:       opts.email,
		IsStaff:     opts.staff,
		IsSuperuser: opts.superuser,
	}
	for _, name := range opts.capabilities {
		capability, ok := models.ParseCapability(strings.TrimSpace(name))
		if !ok {
			v.AddError("capability", fmt.Sprintf("unknown capability %q", name))
			continue
		}
		user.Capabilities = append(user.Capabilities, capability)
	}
	if !v.IsValid() {
		return nil, xerrors.Newf("invalid user: %v", v.Errors)
	}

	if err := user.SetPassword(opts.password); err != nil {
		return nil, err
	}
	return user, nil
}
