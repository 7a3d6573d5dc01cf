package policy

import (
	"bytes"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// LoadPolicyFile reads rule overrides from a YAML or JSON policy file.
// The document must be a mapping of rule name to check string; an empty
// file yields no overrides.
func LoadPolicyFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicyDocument(data)
}

// ParsePolicyDocument parses the contents of a policy file. JSON documents
// are accepted because they are valid YAML.
func ParsePolicyDocument(data []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(doc.Content) == 0 {
		// Comment-only documents, such as a generated sample file.
		return map[string]string{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("policy file must be a mapping of rule names to check strings (line %d)", root.Line)
	}

	rules := make(map[string]string, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("rule %q: check string must be a string (line %d)", key.Value, value.Line)
		}
		if _, dup := rules[key.Value]; dup {
			return nil, fmt.Errorf("rule %q is defined more than once (line %d)", key.Value, key.Line)
		}
		rules[key.Value] = value.Value
	}
	return rules, nil
}
