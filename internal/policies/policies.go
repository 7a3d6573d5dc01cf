// Package policies aggregates the rule defaults of every placement policy
// module so they can be registered with an enforcer in one call.
package policies

import (
	"fmt"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/policies/base"
)

// modules lists the rule accessors of every policy module, in registration order.
var modules = []func() []entities.RuleDefault{
	base.ListRules,
}

func init() {
	if _, err := collect(modules); err != nil {
		panic(err)
	}
}

// ListRules returns every placement rule default.
func ListRules() []entities.RuleDefault {
	rules, _ := collect(modules)
	return rules
}

func collect(sources []func() []entities.RuleDefault) ([]entities.RuleDefault, error) {
	var out []entities.RuleDefault
	seen := make(map[string]struct{})
	for _, list := range sources {
		for _, r := range list() {
			if _, dup := seen[r.Name]; dup {
				return nil, fmt.Errorf("policy rule %q is defined more than once", r.Name)
			}
			seen[r.Name] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}
