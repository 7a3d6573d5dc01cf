package entities

import "strings"

// Check is a node in a parsed policy check string.
// Example: "role:admin or (role:reader and system_scope:all)"
type Check interface {
	String() string
	isCheck()
}

// TrueCheck always passes. Written as "@" (or an empty check string).
type TrueCheck struct{}

func (c *TrueCheck) isCheck()       {}
func (c *TrueCheck) String() string { return "@" }

// FalseCheck never passes. Written as "!".
type FalseCheck struct{}

func (c *FalseCheck) isCheck()       {}
func (c *FalseCheck) String() string { return "!" }

// RoleCheck passes when the credentials carry the role (case-insensitive).
// Example: "role:admin"
type RoleCheck struct {
	Role string
}

func (c *RoleCheck) isCheck()       {}
func (c *RoleCheck) String() string { return "role:" + quoteMatch(c.Role) }

// RuleCheck delegates to another registered rule.
// Example: "rule:admin_api"
type RuleCheck struct {
	Rule string
}

func (c *RuleCheck) isCheck()       {}
func (c *RuleCheck) String() string { return "rule:" + quoteMatch(c.Rule) }

// GenericCheck compares a credential (or a literal) with a value that may be
// substituted from the target.
// Example: "project_id:%(project_id)s", "system_scope:all", "'member':%(role)s"
type GenericCheck struct {
	Key     string // credential key, or the constant when Literal is set
	Match   string // right-hand side, may contain %(name)s substitutions
	Literal bool   // Key was quoted and is compared as a constant
}

func (c *GenericCheck) isCheck() {}
func (c *GenericCheck) String() string {
	key := c.Key
	if c.Literal {
		key = "'" + key + "'"
		if strings.Contains(c.Key, "'") {
			key = quoteString(c.Key)
		}
	}
	return key + ":" + quoteMatch(c.Match)
}

// quoteMatch quotes a match that would not survive re-tokenizing as a bare word.
func quoteMatch(m string) string {
	if m == "" || strings.ContainsAny(m, " \t\r\n'\"\\") || strings.ContainsAny(stripSubstitutions(m), "()") {
		return quoteString(m)
	}
	return m
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quoteString double-quotes s. Only backslash and double quote are escaped;
// every other byte, newlines included, is kept as is.
func quoteString(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// stripSubstitutions removes the %(name)s substitutions a bare word may
// carry. Scanning stops at the first malformed one.
func stripSubstitutions(s string) string {
	var sb strings.Builder
	for {
		start := strings.Index(s, "%(")
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start:], ')')
		if end < 0 || !strings.HasPrefix(s[start+end:], ")s") {
			break
		}
		sb.WriteString(s[:start])
		s = s[start+end+2:]
	}
	sb.WriteString(s)
	return sb.String()
}

// CELCheck evaluates a CEL expression against the target and credentials.
// Example: `cel:"target.project_id == credentials.project_id"`
type CELCheck struct {
	Expression string
}

func (c *CELCheck) isCheck()       {}
func (c *CELCheck) String() string { return "cel:" + quoteString(c.Expression) }

// AndCheck passes when every operand passes.
type AndCheck struct {
	Checks []Check
}

func (c *AndCheck) isCheck()       {}
func (c *AndCheck) String() string { return joinChecks(c.Checks, " and ") }

// OrCheck passes when any operand passes.
type OrCheck struct {
	Checks []Check
}

func (c *OrCheck) isCheck()       {}
func (c *OrCheck) String() string { return joinChecks(c.Checks, " or ") }

// NotCheck inverts its operand.
type NotCheck struct {
	Check Check
}

func (c *NotCheck) isCheck() {}
func (c *NotCheck) String() string {
	return "not " + wrap(c.Check)
}

func joinChecks(checks []Check, sep string) string {
	parts := make([]string, 0, len(checks))
	for _, c := range checks {
		parts = append(parts, wrap(c))
	}
	return strings.Join(parts, sep)
}

// wrap parenthesizes compound operands so the rendered string re-parses to
// the same tree.
func wrap(c Check) string {
	switch c.(type) {
	case *AndCheck, *OrCheck:
		return "(" + c.String() + ")"
	default:
		return c.String()
	}
}
