package results

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator decides whether a results payload counts as a passing run.
type Evaluator struct {
	condition string
	program   *vm.Program
}

// NewEvaluator compiles condition once. An empty condition accepts every payload.
//
// Payload keys are available as top-level variables and the whole payload is
// also bound to "results", e.g. `failed == 0` or `len(results.tests) > 0`.
// A payload with its own top-level "results" key keeps it; the whole-payload
// binding is skipped.
func NewEvaluator(condition string) (*Evaluator, error) {
	e := &Evaluator{condition: condition}
	if condition == "" {
		return e, nil
	}

	program, err := expr.Compile(condition, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile pass condition %q: %w", condition, err)
	}
	e.program = program
	return e, nil
}

// Condition returns the source expression.
func (e *Evaluator) Condition() string {
	return e.condition
}

// Evaluate runs the compiled condition against p.
func (e *Evaluator) Evaluate(p Payload) (bool, error) {
	if e.program == nil {
		return true, nil
	}

	env := make(map[string]any, len(p)+1)
	for k, v := range p {
		env[k] = v
	}
	if _, ok := env["results"]; !ok {
		env["results"] = map[string]any(p)
	}

	out, err := expr.Run(e.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate pass condition %q: %w", e.condition, err)
	}
	passed, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("pass condition %q returned %T, want bool", e.condition, out)
	}
	return passed, nil
}
