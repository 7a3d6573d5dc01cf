package parser

import (
	"fmt"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/asakaida/placement/internal/entities"
)

// Normalize parses a check string and renders it in canonical form.
// Normalize(Normalize(s)) == Normalize(s) for every valid s.
func Normalize(checkStr string) (string, error) {
	check, err := Parse(checkStr)
	if err != nil {
		return "", err
	}
	return check.String(), nil
}

// Generator renders rule tables as policy file documents
type Generator struct {
	commentPrefix string
}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{
		commentPrefix: "#",
	}
}

// GenerateSample renders a commented YAML sample policy file for the given
// defaults, every rule commented out so the file is a no-op until edited.
func (g *Generator) GenerateSample(defaults []entities.RuleDefault) (string, error) {
	sorted := append([]entities.RuleDefault{}, defaults...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var sb strings.Builder
	for i, rule := range sorted {
		if i > 0 {
			sb.WriteString("\n")
		}
		out, err := g.generateRule(rule)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// generateRule renders one commented rule
func (g *Generator) generateRule(rule entities.RuleDefault) (string, error) {
	var sb strings.Builder

	for _, line := range strings.Split(rule.Description, "\n") {
		sb.WriteString(g.commentPrefix + " ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if len(rule.ScopeTypes) > 0 {
		sb.WriteString(fmt.Sprintf("%s Intended scope(s): %s\n", g.commentPrefix, strings.Join(rule.ScopeTypes, ", ")))
	}

	entry, err := ruleEntry(rule.Name, rule.CheckStr)
	if err != nil {
		return "", fmt.Errorf("rule %s: %w", rule.Name, err)
	}
	sb.WriteString(g.commentPrefix)
	sb.WriteString(entry)

	return sb.String(), nil
}

// ruleEntry encodes `"name": "check"` as a one-line YAML mapping. Double
// quoted style escapes newlines, so the entry stays on the commented line.
func ruleEntry(name, checkStr string) (string, error) {
	node := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: name},
			{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: checkStr},
		},
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
