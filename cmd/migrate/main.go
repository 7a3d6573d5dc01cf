package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/infrastructure/config"
	"github.com/asakaida/placement/internal/infrastructure/database"
	"github.com/asakaida/placement/internal/infrastructure/logging"
)

var (
	envFlag string
	pg      *database.Postgres
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for the placement policy store",
	Long: `Database migration tool for the placement policy store.
Manages PostgreSQL schema migrations using golang-migrate.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupDatabase,
	PersistentPostRunE: closeDatabase,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long:  `Apply all pending migrations to the database.`,
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Long:  `Migrate to a specific version number.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Long:  `Display the current migration version of the database.`,
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	// Initialize configuration from .env.{env} file
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Log.Format = "console"
	if logger, err = logging.New(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("using environment", zap.String("env", envFlag))

	pg, err = database.NewPostgres(context.Background(), &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func closeDatabase(cmd *cobra.Command, args []string) error {
	_ = logger.Sync()
	if pg != nil {
		return pg.Close()
	}
	return nil
}

func newMigrate() (*migrate.Migrate, error) {
	root, err := config.ProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	migrationsPath := filepath.Join(root, database.MigrationsPath)
	logger.Debug("using migrations path", zap.String("path", migrationsPath))
	return pg.NewMigrate(migrationsPath)
}

func runUp(cmd *cobra.Command, args []string) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	logger.Info("migration up completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1 // Default: rollback 1 migration
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("steps must be a positive integer, got %q", args[0])
		}
		steps = n
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	logger.Info("migration down completed successfully", zap.Int("steps", steps))
	return nil
}

func runGoto(cmd *cobra.Command, args []string) error {
	target, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Migrate(uint(target))
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("already at version", zap.Uint64("version", target))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}

	logger.Info("migration goto completed successfully", zap.Uint64("version", target))
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	current, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "Current version: No migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty - migration may have failed)\n", current)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d\n", current)
	}
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	target, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("version must be an integer, got %q", args[0])
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(target); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}

	logger.Info("migration forced", zap.Int("version", target))
	return nil
}
