package entities

import (
	"fmt"
	"strings"
)

// Credentials describe the caller being authorized.
type Credentials struct {
	UserID         string
	ProjectID      string
	DomainID       string
	Roles          []string
	SystemScope    string // "all" for system-scoped tokens, empty otherwise
	IsAdminProject bool
	Extra          map[string]interface{} // additional attributes for generic checks
}

// Scope returns the scope the credentials were issued for.
func (c *Credentials) Scope() string {
	switch {
	case c.SystemScope != "":
		return ScopeSystem
	case c.DomainID != "" && c.ProjectID == "":
		return ScopeDomain
	default:
		return ScopeProject
	}
}

// HasRole reports whether the credentials carry the role, case-insensitively.
func (c *Credentials) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// AsMap flattens the credentials into the key space used by generic checks
// and CEL expressions.
func (c *Credentials) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"user_id":          c.UserID,
		"project_id":       c.ProjectID,
		"domain_id":        c.DomainID,
		"system_scope":     c.SystemScope,
		"is_admin_project": c.IsAdminProject,
	}
	roles := make([]interface{}, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = r
	}
	m["roles"] = roles
	for k, v := range c.Extra {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return m
}

// Target holds the attributes of the object being acted upon.
type Target map[string]interface{}

// Lookup resolves a key in a nested map. Exact keys win over dotted paths so
// "a.b" stored flat is still found.
func Lookup(m map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	child, ok := m[head]
	if !ok {
		return nil, false
	}
	switch nested := child.(type) {
	case map[string]interface{}:
		return Lookup(nested, rest)
	case Target:
		return Lookup(nested, rest)
	default:
		return nil, false
	}
}

// Stringify renders a scalar value the way check strings compare them.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(val)
	}
}
