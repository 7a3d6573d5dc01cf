package parser

import (
	"strings"
	"testing"

	"go.yaml.in/yaml/v3"

	"github.com/asakaida/placement/internal/entities"
)

func TestGenerator_GenerateSample(t *testing.T) {
	defaults := []entities.RuleDefault{
		{
			Name:        "zeta",
			CheckStr:    "@",
			Description: "Last rule.\nSpans two lines.",
		},
		{
			Name:        "admin_api",
			CheckStr:    "role:admin",
			Description: "Default rule for most placement APIs.",
			ScopeTypes:  []string{entities.ScopeSystem},
		},
	}

	got, err := NewGenerator().GenerateSample(defaults)
	if err != nil {
		t.Fatalf("GenerateSample() error: %v", err)
	}
	want := `# Default rule for most placement APIs.
# Intended scope(s): system
#"admin_api": "role:admin"

# Last rule.
# Spans two lines.
#"zeta": "@"
`

	if got != want {
		t.Errorf("GenerateSample() mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
	if defaults[0].Name != "zeta" {
		t.Error("GenerateSample must not reorder the caller's slice")
	}
}

// Uncommenting a sample entry must give back the same rule
func TestGenerator_GenerateSample_YAMLQuoting(t *testing.T) {
	tests := []struct {
		name     string
		checkStr string
	}{
		{name: "quoted match", checkStr: `name:"a b"`},
		{name: "backslash", checkStr: `name:"a\\b"`},
		{name: "cel with newline", checkStr: "cel:\"target.x ==\n 'y'\""},
		{name: "yaml indicators", checkStr: "'member':%(role)s # not a comment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewGenerator().GenerateSample([]entities.RuleDefault{
				{Name: "rule: odd", CheckStr: tt.checkStr, Description: "d"},
			})
			if err != nil {
				t.Fatalf("GenerateSample() error: %v", err)
			}

			lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
			entry := lines[len(lines)-1]
			if !strings.HasPrefix(entry, "#") {
				t.Fatalf("entry is not commented: %q", entry)
			}

			var doc map[string]string
			if err := yaml.Unmarshal([]byte(strings.TrimPrefix(entry, "#")), &doc); err != nil {
				t.Fatalf("entry is not valid YAML: %v", err)
			}
			if doc["rule: odd"] != tt.checkStr {
				t.Errorf("round trip = %q, want %q", doc["rule: odd"], tt.checkStr)
			}
		})
	}
}
