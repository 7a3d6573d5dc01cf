// Package base holds the generic placement rules other policy modules build on.
package base

import "github.com/asakaida/placement/internal/entities"

// Generic check strings shared by placement policy modules.
const (
	RuleAdminAPI                = "rule:admin_api"
	SystemAdmin                 = "role:admin and system_scope:all"
	SystemReader                = "role:reader and system_scope:all"
	ProjectReader               = "role:reader and project_id:%(project_id)s"
	ProjectReaderOrSystemReader = "(" + SystemReader + ") or (" + ProjectReader + ")"
)

var rules = []entities.RuleDefault{
	{
		Name:        "admin_api",
		CheckStr:    "role:admin",
		Description: "Default rule for most placement APIs.",
		ScopeTypes:  []string{entities.ScopeSystem},
	},
}

// ListRules returns a copy of the rule defaults owned by this module.
func ListRules() []entities.RuleDefault {
	out := make([]entities.RuleDefault, len(rules))
	for i, r := range rules {
		out[i] = r.Clone()
	}
	return out
}
