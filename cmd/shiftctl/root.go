package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/app"
	"github.com/charlesng35/shiftlog/internal/database"
	"github.com/charlesng35/shiftlog/internal/services"
)

// cli carries the global flags shared by every subcommand.
type cli struct {
	out        io.Writer
	configPath string
	asJSON     bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "shiftlog-ctl",
		Short:         "Administer a shiftlog deployment",
		Long:          "shiftlog-ctl runs operator tasks against the shiftlog database: schema migration, account approval, shift sweeps, ledger inspection and security audits.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to configuration directory or file")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "output JSON")

	root.AddCommand(
		c.migrateCmd(),
		c.usersCmd(),
		c.shiftsCmd(),
		c.actionsCmd(),
		c.notificationsCmd(),
		c.auditCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*app.Config, error) {
	path := strings.TrimSpace(c.configPath)
	if path == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path %q: %w", path, err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}

// withDatabase opens the configured database, applies migrations and closes it afterwards.
func (c *cli) withDatabase(fn func(cfg *app.Config, db *gorm.DB) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := app.ConfigureLogging("error"); err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.DatabaseConnection())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := database.AutoMigrateAndSeed(db, cfg.Bootstrap.SeedOptions()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return fn(cfg, db)
}

// withStack builds the service stack without a realtime publisher; offline changes
// are picked up by clients on their next unread count refresh.
func (c *cli) withStack(fn func(ctx context.Context, stack *services.Stack) error) error {
	return c.withDatabase(func(cfg *app.Config, db *gorm.DB) error {
		stack, err := services.NewStack(db, nil, cfg.StackConfig())
		if err != nil {
			return err
		}
		return fn(context.Background(), stack)
	})
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) userByName(ctx context.Context, users *services.UserService, username string) (string, error) {
	user, err := users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return "", fmt.Errorf("user %q not found", username)
		}
		return "", err
	}
	return user.ID, nil
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed the bootstrap administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDatabase(func(cfg *app.Config, _ *gorm.DB) error {
				fmt.Fprintf(c.out, "database %s migrated\n", cfg.Database.DatabaseConnection().Driver)
				return nil
			})
		},
	}
}
