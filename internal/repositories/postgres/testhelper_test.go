package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/infrastructure/config"
	"github.com/asakaida/placement/internal/infrastructure/database"
)

// SetupTestDB connects to the test database and runs migrations.
// The test is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}
	if !cfg.Database.Enabled {
		t.Skip("Skipping database test: DB_ENABLED=false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(ctx, &cfg.Database, zap.NewNop())
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}

	root, err := config.ProjectRoot()
	if err != nil {
		t.Fatalf("Failed to find project root: %v", err)
	}
	if err := pg.RunMigrations(filepath.Join(root, database.MigrationsPath)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanupTables(t, pg.DB)
	return pg.DB
}

// CleanupTestDB removes test data and closes the connection
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	cleanupTables(t, db)
	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec("DELETE FROM policy_overrides"); err != nil {
		t.Logf("Warning: Failed to clean up table policy_overrides: %v", err)
	}
}
