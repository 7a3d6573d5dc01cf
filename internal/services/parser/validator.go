package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/asakaida/placement/internal/entities"
)

// Validator checks the rule references of a whole rule table
type Validator struct {
	rules  map[string]entities.Check
	names  []string
	errors []string
}

// NewValidator creates a new Validator over parsed rules keyed by name
func NewValidator(rules map[string]entities.Check) *Validator {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Validator{
		rules:  rules,
		names:  names,
		errors: []string{},
	}
}

// Validate returns an error if any rule references itself, directly or
// through other rules.
func (v *Validator) Validate() error {
	v.errors = v.errors[:0]
	v.validateCircularReferences()

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// UndefinedReferences lists "rule:" references to rules missing from the table.
// These evaluate to false rather than failing registration.
func (v *Validator) UndefinedReferences() []string {
	var out []string
	for _, name := range v.names {
		for _, ref := range RuleReferences(v.rules[name]) {
			if _, ok := v.rules[ref]; !ok {
				out = append(out, fmt.Sprintf("rule %s references undefined rule: %s", name, ref))
			}
		}
	}
	return out
}

// validateCircularReferences checks for circular rule references
func (v *Validator) validateCircularReferences() {
	reported := make(map[string]bool)
	for _, name := range v.names {
		visited := map[string]bool{name: true}
		v.checkCircularRule(v.rules[name], visited, []string{name}, reported)
	}
}

// checkCircularRule recursively follows rule references
func (v *Validator) checkCircularRule(check entities.Check, visited map[string]bool, path []string, reported map[string]bool) {
	for _, ref := range RuleReferences(check) {
		next, ok := v.rules[ref]
		if !ok {
			continue
		}

		if visited[ref] {
			cycle := append(append([]string{}, path...), ref)
			key := canonicalCycle(cycle)
			if !reported[key] {
				reported[key] = true
				v.errors = append(v.errors, fmt.Sprintf("circular rule reference: %s", strings.Join(cycle, " -> ")))
			}
			continue
		}

		visited[ref] = true
		v.checkCircularRule(next, visited, append(path, ref), reported)
		delete(visited, ref)
	}
}

// canonicalCycle identifies a cycle independently of its starting rule
func canonicalCycle(cycle []string) string {
	start := cycle[len(cycle)-1]
	idx := 0
	for i, n := range cycle {
		if n == start {
			idx = i
			break
		}
	}
	members := append([]string{}, cycle[idx:len(cycle)-1]...)
	sort.Strings(members)
	return strings.Join(members, ",")
}

// RuleReferences returns the rule names a check refers to, in order of appearance.
func RuleReferences(check entities.Check) []string {
	var refs []string
	var walk func(entities.Check)
	walk = func(c entities.Check) {
		switch node := c.(type) {
		case *entities.RuleCheck:
			refs = append(refs, node.Rule)
		case *entities.AndCheck:
			for _, child := range node.Checks {
				walk(child)
			}
		case *entities.OrCheck:
			for _, child := range node.Checks {
				walk(child)
			}
		case *entities.NotCheck:
			walk(node.Check)
		}
	}
	walk(check)
	return refs
}
