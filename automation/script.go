package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELScriptRunner is the sandboxed evaluator behind run_script and the
// condition-poll trigger formula. Compiled programs are cached by source;
// a cost limit keeps runaway expressions from exhausting the worker.
// Thread-safe for concurrent runs.
type CELScriptRunner struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewCELScriptRunner creates a runner with the default sandbox environment:
// scripts see the trigger record and metadata as dynamic variables.
func NewCELScriptRunner() (*CELScriptRunner, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.DynType),
		cel.Variable("record_id", cel.StringType),
		cel.Variable("table_id", cel.StringType),
		cel.Variable("user", cel.StringType),
		cel.Variable("results", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return NewCELScriptRunnerWithEnv(env), nil
}

// NewCELScriptRunnerWithEnv creates a runner over a custom environment, e.g.
// one derived from a base's table schemas.
func NewCELScriptRunnerWithEnv(env *cel.Env) *CELScriptRunner {
	return &CELScriptRunner{
		env:      env,
		programs: make(map[string]cel.Program),
	}
}

// Run evaluates a script against the given input and returns its output.
// Compilation failures and evaluation failures both surface as errors so the
// action is marked failed like any other collaborator failure.
func (r *CELScriptRunner) Run(_ context.Context, code string, input map[string]any) (any, error) {
	prog, err := r.program(code)
	if err != nil {
		return nil, err
	}
	out, _, err := prog.Eval(input)
	if err != nil {
		return nil, fmt.Errorf("script evaluation error: %w", err)
	}
	return out.Value(), nil
}

// EvalBool evaluates a poll formula to a boolean. Non-boolean results are
// treated as false, matching the fail-closed evaluation contract.
func (r *CELScriptRunner) EvalBool(ctx context.Context, formula string, input map[string]any) (bool, error) {
	out, err := r.Run(ctx, formula, input)
	if err != nil {
		return false, err
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Compile validates an expression without evaluating it, caching the program
// for later runs. Used at definition-save time to reject bad formulas early.
func (r *CELScriptRunner) Compile(code string) error {
	_, err := r.program(code)
	return err
}

func (r *CELScriptRunner) program(code string) (cel.Program, error) {
	r.mu.RLock()
	prog, ok := r.programs[code]
	r.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := r.env.Compile(code)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("script compile error: %w", issues.Err())
	}

	// The cost limit bounds evaluation work per run.
	prog, err := r.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("script program creation error: %w", err)
	}

	r.mu.Lock()
	r.programs[code] = prog
	r.mu.Unlock()

	return prog, nil
}
