package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/repositories"
)

// PostgresRuleOverrideRepository implements RuleOverrideRepository using PostgreSQL
type PostgresRuleOverrideRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRuleOverrideRepository creates a new PostgreSQL override repository
func NewPostgresRuleOverrideRepository(db *sql.DB) repositories.RuleOverrideRepository {
	return &PostgresRuleOverrideRepository{db: db, now: time.Now}
}

// Upsert creates or replaces the override for a rule
func (r *PostgresRuleOverrideRepository) Upsert(ctx context.Context, override *entities.RuleOverride) error {
	if override.Name == "" {
		return fmt.Errorf("override name is required")
	}

	query := `
		INSERT INTO policy_overrides (name, check_str, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name)
		DO UPDATE SET check_str = EXCLUDED.check_str,
		              updated_by = EXCLUDED.updated_by,
		              updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	now := r.now().UTC()
	err := r.db.QueryRowContext(ctx, query, override.Name, override.CheckStr, override.UpdatedBy, now).
		Scan(&override.CreatedAt, &override.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert policy override: %w", err)
	}
	return nil
}

// Get retrieves the override for a rule
func (r *PostgresRuleOverrideRepository) Get(ctx context.Context, name string) (*entities.RuleOverride, error) {
	query := `
		SELECT name, check_str, updated_by, created_at, updated_at
		FROM policy_overrides
		WHERE name = $1
	`
	override := &entities.RuleOverride{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&override.Name,
		&override.CheckStr,
		&override.UpdatedBy,
		&override.CreatedAt,
		&override.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repositories.ErrOverrideNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy override: %w", err)
	}
	return override, nil
}

// List retrieves all overrides ordered by rule name
func (r *PostgresRuleOverrideRepository) List(ctx context.Context) ([]*entities.RuleOverride, error) {
	query := `
		SELECT name, check_str, updated_by, created_at, updated_at
		FROM policy_overrides
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*entities.RuleOverride
	for rows.Next() {
		override := &entities.RuleOverride{}
		if err := rows.Scan(
			&override.Name,
			&override.CheckStr,
			&override.UpdatedBy,
			&override.CreatedAt,
			&override.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy override: %w", err)
		}
		overrides = append(overrides, override)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policy overrides: %w", err)
	}

	return overrides, nil
}

// Delete removes the override for a rule
func (r *PostgresRuleOverrideRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM policy_overrides WHERE name = $1`
	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete policy override: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", repositories.ErrOverrideNotFound, name)
	}

	return nil
}
