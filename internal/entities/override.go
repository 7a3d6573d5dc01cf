package entities

import "time"

// RuleOverride is an operator-supplied check string replacing a rule's
// default, or defining a rule with no default.
type RuleOverride struct {
	Name      string
	CheckStr  string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
