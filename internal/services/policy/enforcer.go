package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/services/parser"
	"github.com/asakaida/placement/pkg/cache"
)

// DecisionRecorder receives the outcome of every authorization
type DecisionRecorder interface {
	RecordDecision(rule string, allowed bool)
}

// Options configure an Enforcer
type Options struct {
	// EnforceScope rejects credentials whose scope is not one of the rule's
	// scope types. When false, mismatches are only logged.
	EnforceScope bool

	// CheckCache caches parsed ad-hoc check strings (optional)
	CheckCache cache.Cache
	CacheTTL   time.Duration

	// CELEngine evaluates "cel:" checks; one is created when nil
	CELEngine *CELEngine

	Logger   *zap.Logger
	Recorder DecisionRecorder
}

// compiledRule is a rule in the effective table
type compiledRule struct {
	checkStr   string
	check      entities.Check
	overridden bool
}

// Enforcer holds the registered rule defaults, any overrides, and evaluates
// authorization requests against them. It is safe for concurrent use.
type Enforcer struct {
	mu            sync.RWMutex
	defaults      map[string]entities.RuleDefault
	defaultChecks map[string]entities.Check
	order         []string // registration order of defaults
	rules         map[string]*compiledRule
	overrides     map[string]string

	opts      Options
	logger    *zap.Logger
	evaluator *Evaluator
}

// NewEnforcer creates an Enforcer with no rules registered
func NewEnforcer(opts Options) (*Enforcer, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CELEngine == nil {
		engine, err := NewCELEngine()
		if err != nil {
			return nil, err
		}
		opts.CELEngine = engine
	}

	e := &Enforcer{
		defaults:      make(map[string]entities.RuleDefault),
		defaultChecks: make(map[string]entities.Check),
		rules:         make(map[string]*compiledRule),
		overrides:     make(map[string]string),
		opts:          opts,
		logger:        opts.Logger,
	}
	e.evaluator = NewEvaluator(RuleResolverFunc(e.resolveRule), opts.CELEngine, opts.Logger)
	return e, nil
}

// resolveRule looks up the effective check of a rule. Callers must hold e.mu.
func (e *Enforcer) resolveRule(name string) (entities.Check, bool) {
	r, ok := e.rules[name]
	if !ok {
		return nil, false
	}
	return r.check, true
}

// RegisterDefault registers one rule default
func (e *Enforcer) RegisterDefault(rule entities.RuleDefault) error {
	return e.RegisterDefaults([]entities.RuleDefault{rule})
}

// RegisterDefaults registers rule defaults. Either all of them are
// registered or none is.
func (e *Enforcer) RegisterDefaults(rules []entities.RuleDefault) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make(map[string]*compiledRule, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		if _, exists := e.defaults[rule.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
		}
		if _, exists := compiled[rule.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
		}
		check, err := e.compile(rule.CheckStr)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		compiled[rule.Name] = &compiledRule{checkStr: rule.CheckStr, check: check}
	}

	table := e.cloneTable()
	for name, c := range compiled {
		// An override loaded before the default keeps precedence.
		if existing, ok := table[name]; ok && existing.overridden {
			continue
		}
		table[name] = c
	}
	if err := e.validateTable(table); err != nil {
		return err
	}

	for _, rule := range rules {
		e.defaults[rule.Name] = rule.Clone()
		e.defaultChecks[rule.Name] = compiled[rule.Name].check
		e.order = append(e.order, rule.Name)
	}
	e.rules = table
	return nil
}

// SetRules applies check string overrides. With overwrite, previously
// applied overrides are dropped first. Overrides for unknown names add
// undeclared rules.
func (e *Enforcer) SetRules(overrides map[string]string, overwrite bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := make(map[string]string)
	if !overwrite {
		for name, checkStr := range e.overrides {
			merged[name] = checkStr
		}
	}
	for name, checkStr := range overrides {
		if name == "" {
			return fmt.Errorf("%w: empty rule name", ErrInvalidRule)
		}
		merged[name] = checkStr
	}

	table := make(map[string]*compiledRule, len(e.defaults)+len(merged))
	for name, def := range e.defaults {
		table[name] = &compiledRule{checkStr: def.CheckStr, check: e.defaultChecks[name]}
	}
	for name, checkStr := range merged {
		check, err := e.compile(checkStr)
		if err != nil {
			return fmt.Errorf("rule %s: %w", name, err)
		}
		table[name] = &compiledRule{checkStr: checkStr, check: check, overridden: true}
	}

	if err := e.validateTable(table); err != nil {
		return err
	}

	for name := range merged {
		if _, declared := e.defaults[name]; !declared {
			e.logger.Warn("policy override for undeclared rule", zap.String("rule", name))
		}
	}

	e.overrides = merged
	e.rules = table
	return nil
}

// LoadFile replaces all overrides with the rules in a YAML or JSON policy file
func (e *Enforcer) LoadFile(path string) error {
	overrides, err := LoadPolicyFile(path)
	if err != nil {
		return err
	}
	if err := e.SetRules(overrides, true); err != nil {
		return fmt.Errorf("failed to apply policy file %s: %w", path, err)
	}
	e.logger.Info("loaded policy file", zap.String("path", path), zap.Int("rules", len(overrides)))
	return nil
}

// Authorize returns nil when the rule allows the action, ErrPolicyNotAuthorized
// when it does not, and another error when the rule cannot be evaluated.
func (e *Enforcer) Authorize(ctx context.Context, rule string, target entities.Target, creds *entities.Credentials) error {
	allowed, err := e.Enforce(ctx, rule, target, creds)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrPolicyNotAuthorized, rule)
	}
	return nil
}

// Enforce evaluates a registered rule
func (e *Enforcer) Enforce(ctx context.Context, rule string, target entities.Target, creds *entities.Credentials) (bool, error) {
	if creds == nil {
		creds = &entities.Credentials{}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	compiled, ok := e.rules[rule]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrPolicyNotRegistered, rule)
	}

	if def, declared := e.defaults[rule]; declared && !def.HasScope(creds.Scope()) {
		if e.opts.EnforceScope {
			e.record(rule, false)
			return false, fmt.Errorf("%w: %s requires scope %v, token scope is %s",
				ErrInvalidScope, rule, def.ScopeTypes, creds.Scope())
		}
		e.logger.Warn("policy rule evaluated with a token of the wrong scope",
			zap.String("rule", rule),
			zap.Strings("scope_types", def.ScopeTypes),
			zap.String("token_scope", creds.Scope()))
	}

	allowed, err := e.evaluator.Evaluate(ctx, &EvaluationRequest{Target: target, Credentials: creds}, compiled.check)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rule %s: %w", rule, err)
	}

	e.record(rule, allowed)
	e.logger.Debug("policy decision",
		zap.String("rule", rule),
		zap.String("user_id", creds.UserID),
		zap.Bool("allowed", allowed))
	return allowed, nil
}

// EnforceCheck evaluates an ad-hoc check string, which may reference
// registered rules
func (e *Enforcer) EnforceCheck(ctx context.Context, checkStr string, target entities.Target, creds *entities.Credentials) (bool, error) {
	if creds == nil {
		creds = &entities.Credentials{}
	}

	check, err := e.cachedParse(ctx, checkStr)
	if err != nil {
		return false, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.evaluator.Evaluate(ctx, &EvaluationRequest{Target: target, Credentials: creds}, check)
}

// Rules returns the effective rule table sorted by name. Declared rules keep
// their description and scope; undeclared overrides have neither.
func (e *Enforcer) Rules() []entities.RuleDefault {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]entities.RuleDefault, 0, len(e.rules))
	for name, r := range e.rules {
		rule := entities.RuleDefault{Name: name}
		if def, ok := e.defaults[name]; ok {
			rule = def.Clone()
		}
		rule.CheckStr = r.checkStr
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Defaults returns the registered defaults in registration order
func (e *Enforcer) Defaults() []entities.RuleDefault {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]entities.RuleDefault, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.defaults[name].Clone())
	}
	return out
}

// Overrides returns a copy of the applied overrides
func (e *Enforcer) Overrides() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string, len(e.overrides))
	for k, v := range e.overrides {
		out[k] = v
	}
	return out
}

// ValidateCheck reports whether a check string parses and its CEL
// expressions compile
func (e *Enforcer) ValidateCheck(checkStr string) error {
	_, err := e.compile(checkStr)
	return err
}

// compile parses a check string and validates embedded CEL expressions
func (e *Enforcer) compile(checkStr string) (entities.Check, error) {
	check, err := parser.Parse(checkStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheck, err)
	}
	if err := e.validateCEL(check); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheck, err)
	}
	return check, nil
}

func (e *Enforcer) validateCEL(check entities.Check) error {
	switch c := check.(type) {
	case *entities.CELCheck:
		return e.opts.CELEngine.ValidateExpression(c.Expression)
	case *entities.AndCheck:
		for _, child := range c.Checks {
			if err := e.validateCEL(child); err != nil {
				return err
			}
		}
	case *entities.OrCheck:
		for _, child := range c.Checks {
			if err := e.validateCEL(child); err != nil {
				return err
			}
		}
	case *entities.NotCheck:
		return e.validateCEL(c.Check)
	}
	return nil
}

// cachedParse compiles an ad-hoc check string through the check cache
func (e *Enforcer) cachedParse(ctx context.Context, checkStr string) (entities.Check, error) {
	if e.opts.CheckCache != nil {
		if cached, found := e.opts.CheckCache.Get(ctx, checkStr); found {
			if check, ok := cached.(entities.Check); ok {
				return check, nil
			}
		}
	}

	check, err := e.compile(checkStr)
	if err != nil {
		return nil, err
	}

	if e.opts.CheckCache != nil {
		if err := e.opts.CheckCache.Set(ctx, checkStr, check, e.opts.CacheTTL); err != nil {
			e.logger.Debug("failed to cache parsed check", zap.Error(err))
		}
	}
	return check, nil
}

// validateTable rejects circular references and logs dangling ones
func (e *Enforcer) validateTable(table map[string]*compiledRule) error {
	checks := make(map[string]entities.Check, len(table))
	for name, r := range table {
		checks[name] = r.check
	}

	v := parser.NewValidator(checks)
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	for _, msg := range v.UndefinedReferences() {
		e.logger.Warn(msg)
	}
	return nil
}

func (e *Enforcer) cloneTable() map[string]*compiledRule {
	table := make(map[string]*compiledRule, len(e.rules))
	for k, v := range e.rules {
		table[k] = v
	}
	return table
}

func (e *Enforcer) record(rule string, allowed bool) {
	if e.opts.Recorder != nil {
		e.opts.Recorder.RecordDecision(rule, allowed)
	}
}

// IsNotAuthorized reports whether err is a policy denial, including scope
// mismatches
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrPolicyNotAuthorized) || errors.Is(err, ErrInvalidScope)
}
