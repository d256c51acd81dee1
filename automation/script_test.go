package automation

import (
	"context"
	"testing"
)

func newTestRunner(t *testing.T) *CELScriptRunner {
	t.Helper()
	runner, err := NewCELScriptRunner()
	if err != nil {
		t.Fatalf("NewCELScriptRunner() failed: %v", err)
	}
	return runner
}

func TestScriptRun(t *testing.T) {
	runner := newTestRunner(t)
	ctx := context.Background()

	input := map[string]any{
		"record":    map[string]any{"title": "Widget", "priority": 5},
		"record_id": "rec1",
		"table_id":  "tasks",
		"user":      "alice",
		"results":   map[string]any{},
	}

	got, err := runner.Run(ctx, `record.title + " #" + string(record.priority)`, input)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != "Widget #5" {
		t.Errorf("Run() = %v, want Widget #5", got)
	}

	got, err = runner.Run(ctx, `record_id`, input)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != "rec1" {
		t.Errorf("Run() = %v, want rec1", got)
	}
}

func TestScriptRunEvaluationError(t *testing.T) {
	runner := newTestRunner(t)

	input := map[string]any{
		"record":    map[string]any{},
		"record_id": "rec1",
		"table_id":  "tasks",
		"user":      "",
		"results":   map[string]any{},
	}

	// Accessing a missing map key fails at evaluation time.
	if _, err := runner.Run(context.Background(), `record.missing_field`, input); err == nil {
		t.Error("missing record field should surface an evaluation error")
	}
}

func TestScriptEvalBool(t *testing.T) {
	runner := newTestRunner(t)
	ctx := context.Background()

	input := map[string]any{
		"record":    map[string]any{"priority": 5},
		"record_id": "rec1",
		"table_id":  "tasks",
		"user":      "",
		"results":   map[string]any{},
	}

	matched, err := runner.EvalBool(ctx, `record.priority > 3`, input)
	if err != nil {
		t.Fatalf("EvalBool() failed: %v", err)
	}
	if !matched {
		t.Error("priority 5 > 3 should match")
	}

	// A non-boolean result is treated as no match, not an error.
	matched, err = runner.EvalBool(ctx, `record.priority`, input)
	if err != nil {
		t.Fatalf("EvalBool() failed: %v", err)
	}
	if matched {
		t.Error("non-boolean result should read as false")
	}
}

func TestScriptCompile(t *testing.T) {
	runner := newTestRunner(t)

	if err := runner.Compile(`record_id == "rec1"`); err != nil {
		t.Errorf("valid expression should compile: %v", err)
	}
	if err := runner.Compile(`record_id ==`); err == nil {
		t.Error("malformed expression should fail to compile")
	}
	if err := runner.Compile(`no_such_variable > 1`); err == nil {
		t.Error("unknown variable should fail to compile")
	}
}

func TestScriptProgramCaching(t *testing.T) {
	runner := newTestRunner(t)
	const code = `table_id == "tasks"`

	if err := runner.Compile(code); err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	input := map[string]any{
		"record":    map[string]any{},
		"record_id": "rec1",
		"table_id":  "tasks",
		"user":      "",
		"results":   map[string]any{},
	}
	got, err := runner.Run(context.Background(), code, input)
	if err != nil {
		t.Fatalf("Run() on cached program failed: %v", err)
	}
	if got != true {
		t.Errorf("Run() = %v, want true", got)
	}
}
