package entities

import (
	"errors"
	"fmt"
	"slices"
)

// Scope types a rule can apply to.
const (
	ScopeSystem  = "system"
	ScopeDomain  = "domain"
	ScopeProject = "project"
)

var validScopes = []string{ScopeSystem, ScopeDomain, ScopeProject}

// RuleDefault is the default definition of a named policy rule.
// Example: admin_api = "role:admin", scoped to "system"
type RuleDefault struct {
	Name        string   // Rule name (unique within an enforcer)
	CheckStr    string   // Check string, e.g. "role:admin"
	Description string   // Human-readable rationale
	ScopeTypes  []string // Scopes the rule applies to (empty = any)
}

// Validate checks the rule definition itself (not its check string syntax).
func (r *RuleDefault) Validate() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.Description == "" {
		return fmt.Errorf("rule %s: description is required", r.Name)
	}
	seen := make(map[string]struct{}, len(r.ScopeTypes))
	for _, s := range r.ScopeTypes {
		if !slices.Contains(validScopes, s) {
			return fmt.Errorf("rule %s: unknown scope type %q", r.Name, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("rule %s: duplicate scope type %q", r.Name, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// HasScope reports whether the rule applies to the given scope.
// A rule without scope types applies everywhere.
func (r *RuleDefault) HasScope(scope string) bool {
	if len(r.ScopeTypes) == 0 {
		return true
	}
	return slices.Contains(r.ScopeTypes, scope)
}

// Clone returns a deep copy so callers cannot mutate a registered table.
func (r RuleDefault) Clone() RuleDefault {
	r.ScopeTypes = slices.Clone(r.ScopeTypes)
	return r
}
