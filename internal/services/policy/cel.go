package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEngine evaluates the expressions of "cel:" checks
type CELEngine struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

// NewCELEngine creates a CEL engine exposing the "target" and "credentials"
// variables as string-keyed maps
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("target", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("credentials", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEngine{env: env}, nil
}

// ValidateExpression compiles an expression and checks that it yields a boolean
func (e *CELEngine) ValidateExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return fmt.Errorf("CEL expression must return boolean, got: %s", ast.OutputType())
	}

	return nil
}

// Evaluate runs an expression against a target and flattened credentials
func (e *CELEngine) Evaluate(expression string, target, credentials map[string]interface{}) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	if target == nil {
		target = map[string]interface{}{}
	}
	if credentials == nil {
		credentials = map[string]interface{}{}
	}

	result, _, err := program.Eval(map[string]interface{}{
		"target":      target,
		"credentials": credentials,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not evaluate to boolean, got: %T", result.Value())
	}

	return allowed, nil
}

// program returns the compiled program for an expression, compiling it once
func (e *CELEngine) program(expression string) (cel.Program, error) {
	if p, ok := e.programs.Load(expression); ok {
		return p.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	actual, _ := e.programs.LoadOrStore(expression, program)
	return actual.(cel.Program), nil
}
