package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/entities"
)

const (
	// MaxDepth is the maximum nesting of "rule:" references
	MaxDepth = 10
)

var substitutionPattern = regexp.MustCompile(`%\(([^)]+)\)s`)

// RuleResolver returns the parsed check for a rule name
type RuleResolver interface {
	ResolveRule(name string) (entities.Check, bool)
}

// RuleResolverFunc adapts a function to RuleResolver
type RuleResolverFunc func(name string) (entities.Check, bool)

// ResolveRule calls f(name)
func (f RuleResolverFunc) ResolveRule(name string) (entities.Check, bool) {
	return f(name)
}

// Evaluator evaluates check trees
type Evaluator struct {
	rules     RuleResolver
	celEngine *CELEngine
	logger    *zap.Logger
}

// EvaluationRequest contains all the context needed for check evaluation
type EvaluationRequest struct {
	Target      entities.Target
	Credentials *entities.Credentials
	Depth       int // Current rule recursion depth

	creds map[string]interface{} // flattened Credentials, built lazily
}

// NewEvaluator creates a new Evaluator
func NewEvaluator(rules RuleResolver, celEngine *CELEngine, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		rules:     rules,
		celEngine: celEngine,
		logger:    logger,
	}
}

// Evaluate returns true if the check passes for the request
func (e *Evaluator) Evaluate(ctx context.Context, req *EvaluationRequest, check entities.Check) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if req.Depth > MaxDepth {
		return false, fmt.Errorf("%w (depth: %d)", ErrRecursionLimit, req.Depth)
	}

	switch c := check.(type) {
	case *entities.TrueCheck:
		return true, nil
	case *entities.FalseCheck:
		return false, nil
	case *entities.RoleCheck:
		return e.evaluateRole(req, c), nil
	case *entities.RuleCheck:
		return e.evaluateRule(ctx, req, c)
	case *entities.GenericCheck:
		return e.evaluateGeneric(req, c), nil
	case *entities.CELCheck:
		return e.evaluateCEL(req, c), nil
	case *entities.AndCheck:
		for _, child := range c.Checks {
			ok, err := e.Evaluate(ctx, req, child)
			if err != nil {
				return false, fmt.Errorf("failed to evaluate AND operand: %w", err)
			}
			if !ok {
				return false, nil // Short-circuit on false
			}
		}
		return true, nil
	case *entities.OrCheck:
		for _, child := range c.Checks {
			ok, err := e.Evaluate(ctx, req, child)
			if err != nil {
				return false, fmt.Errorf("failed to evaluate OR operand: %w", err)
			}
			if ok {
				return true, nil // Short-circuit on true
			}
		}
		return false, nil
	case *entities.NotCheck:
		ok, err := e.Evaluate(ctx, req, c.Check)
		if err != nil {
			return false, fmt.Errorf("failed to evaluate NOT expression: %w", err)
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown check type: %T", check)
	}
}

// evaluateRole passes when the credentials carry the (possibly substituted) role
func (e *Evaluator) evaluateRole(req *EvaluationRequest, c *entities.RoleCheck) bool {
	role, ok := substitute(c.Role, req.Target)
	if !ok || req.Credentials == nil {
		return false
	}
	return req.Credentials.HasRole(role)
}

// evaluateRule follows a "rule:" reference. Unknown rules fail closed.
func (e *Evaluator) evaluateRule(ctx context.Context, req *EvaluationRequest, c *entities.RuleCheck) (bool, error) {
	check, ok := e.rules.ResolveRule(c.Rule)
	if !ok {
		e.logger.Debug("rule reference to undefined rule", zap.String("rule", c.Rule))
		return false, nil
	}

	nested := *req
	nested.Depth = req.Depth + 1
	result, err := e.Evaluate(ctx, &nested, check)
	req.creds = nested.creds
	if err != nil {
		return false, fmt.Errorf("rule %s: %w", c.Rule, err)
	}
	return result, nil
}

// evaluateGeneric compares a credential attribute (or a quoted constant)
// with the substituted match
func (e *Evaluator) evaluateGeneric(req *EvaluationRequest, c *entities.GenericCheck) bool {
	match, ok := substitute(c.Match, req.Target)
	if !ok {
		return false
	}

	if c.Literal {
		return c.Key == match
	}

	value, ok := entities.Lookup(req.credentialMap(), c.Key)
	if !ok {
		return false
	}

	switch values := value.(type) {
	case []interface{}:
		for _, v := range values {
			if entities.Stringify(v) == match {
				return true
			}
		}
		return false
	case []string:
		for _, v := range values {
			if v == match {
				return true
			}
		}
		return false
	default:
		return entities.Stringify(value) == match
	}
}

// evaluateCEL runs a CEL expression; evaluation errors fail closed
func (e *Evaluator) evaluateCEL(req *EvaluationRequest, c *entities.CELCheck) bool {
	if e.celEngine == nil {
		e.logger.Warn("cel check without a CEL engine", zap.String("expression", c.Expression))
		return false
	}

	ok, err := e.celEngine.Evaluate(c.Expression, req.Target, req.credentialMap())
	if err != nil {
		e.logger.Debug("cel check failed", zap.String("expression", c.Expression), zap.Error(err))
		return false
	}
	return ok
}

func (r *EvaluationRequest) credentialMap() map[string]interface{} {
	if r.creds == nil {
		if r.Credentials == nil {
			r.creds = map[string]interface{}{}
		} else {
			r.creds = r.Credentials.AsMap()
		}
	}
	return r.creds
}

// substitute replaces every %(key)s in s with the target's value for key.
// It reports false when any key is missing from the target.
func substitute(s string, target entities.Target) (string, bool) {
	if !strings.Contains(s, "%(") {
		return s, true
	}

	ok := true
	out := substitutionPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := substitutionPattern.FindStringSubmatch(m)[1]
		v, found := entities.Lookup(target, key)
		if !found {
			ok = false
			return ""
		}
		return entities.Stringify(v)
	})
	return out, ok
}
