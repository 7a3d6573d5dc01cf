package policy

import "errors"

var (
	// ErrPolicyNotAuthorized is returned when a rule evaluates to false.
	ErrPolicyNotAuthorized = errors.New("policy does not allow this action")

	// ErrPolicyNotRegistered is returned when authorizing an unknown rule.
	ErrPolicyNotRegistered = errors.New("policy rule is not registered")

	// ErrInvalidScope is returned when the caller's token scope is not one of
	// the rule's scope types and scope enforcement is on.
	ErrInvalidScope = errors.New("invalid scope for policy rule")

	// ErrDuplicateRule is returned when a default is registered twice.
	ErrDuplicateRule = errors.New("policy rule already registered")

	// ErrInvalidRule is returned for malformed rule definitions.
	ErrInvalidRule = errors.New("invalid policy rule")

	// ErrInvalidCheck is returned when a check string does not parse.
	ErrInvalidCheck = errors.New("invalid check string")

	// ErrRecursionLimit is returned when rule references nest too deeply.
	ErrRecursionLimit = errors.New("maximum rule recursion depth exceeded")
)
