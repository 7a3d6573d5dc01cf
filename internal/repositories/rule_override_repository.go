package repositories

import (
	"context"
	"errors"

	"github.com/asakaida/placement/internal/entities"
)

// ErrOverrideNotFound is returned when no override exists for a rule
var ErrOverrideNotFound = errors.New("policy override not found")

// RuleOverrideRepository defines the interface for stored policy overrides
type RuleOverrideRepository interface {
	// Upsert creates or replaces the override for a rule
	Upsert(ctx context.Context, override *entities.RuleOverride) error

	// Get retrieves the override for a rule
	Get(ctx context.Context, name string) (*entities.RuleOverride, error)

	// List retrieves all overrides ordered by rule name
	List(ctx context.Context) ([]*entities.RuleOverride, error)

	// Delete removes the override for a rule
	Delete(ctx context.Context, name string) error
}

// ToMap flattens overrides into the name to check string form the
// enforcer accepts
func ToMap(overrides []*entities.RuleOverride) map[string]string {
	out := make(map[string]string, len(overrides))
	for _, o := range overrides {
		out[o.Name] = o.CheckStr
	}
	return out
}
