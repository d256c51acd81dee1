package automation

import (
	"context"
	"testing"
	"time"
)

func testEngine() (*Engine, *fakeDataStore, *fakeEmail, *fakeWebhooks) {
	data := &fakeDataStore{}
	email := &fakeEmail{}
	webhooks := &fakeWebhooks{}
	scripts := &fakeScripts{output: "done"}
	engine := NewEngine(StaticSchemaProvider{"tasks": taskSchema}, data, email, webhooks, scripts)
	return engine, data, email, webhooks
}

func logAction(id, msg string) *ActionConfig {
	return &ActionConfig{ID: id, Type: ActionLogMessage, LogMessage: &LogMessageParams{Message: msg}}
}

func countSteps(trace *Trace, kind StepKind, status StepStatus) int {
	n := 0
	for _, s := range trace.Steps {
		if s.Kind == kind && s.Status == status {
			n++
		}
	}
	return n
}

func TestRunHappyPath(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", Name: "notify", TriggerType: TriggerRowCreated,
		Condition: leaf(OpEqual, "status", "Done"),
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				logAction("a1", "starting"),
				{ID: "a2", Type: ActionSendEmail, SendEmail: &SendEmailParams{
					To: "ops@example.com", Subject: "{{title}} done",
				}},
			}},
		},
		Enabled: true,
	}

	tc := taskCtx(map[string]any{"status": "Done", "title": "Widget"})
	trace := engine.Run(context.Background(), a, tc)

	if !trace.Success {
		t.Fatalf("run should succeed, error = %q", trace.Error)
	}
	if trace.RunID == "" {
		t.Error("run should get an ID")
	}
	if len(email.sent) != 1 || email.sent[0].Subject != "Widget done" {
		t.Errorf("email = %+v", email.sent)
	}
	// trigger + condition + group condition + 2 actions
	if len(trace.Steps) != 5 {
		t.Errorf("got %d steps, want 5", len(trace.Steps))
	}
	if countSteps(trace, StepAction, StatusCompleted) != 2 {
		t.Errorf("expected 2 completed action steps")
	}
	if trace.FinishedAt.IsZero() {
		t.Error("FinishedAt should be set")
	}
}

func TestRunConditionSkip(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowUpdated,
		Condition: leaf(OpEqual, "status", "Done"),
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				{ID: "a1", Type: ActionSendEmail, SendEmail: &SendEmailParams{To: "ops@example.com"}},
			}},
		},
		Enabled: true,
	}

	tc := taskCtx(map[string]any{"status": "Todo"})
	trace := engine.Run(context.Background(), a, tc)

	if !trace.Success {
		t.Error("a skipped run is still a successful run")
	}
	if len(email.sent) != 0 {
		t.Error("no action should execute when the condition fails")
	}
	if countSteps(trace, StepAction, StatusCompleted) != 0 {
		t.Error("no action steps expected")
	}
}

// The first failing action stops the run; later actions in the group never
// execute and the run is marked failed.
func TestRunFailFast(t *testing.T) {
	engine, _, _, webhooks := testEngine()
	webhooks.fail = true

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowCreated,
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				logAction("a1", "first"),
				{ID: "a2", Type: ActionCallWebhook, CallWebhook: &CallWebhookParams{URL: "https://example.com"}},
				logAction("a3", "never runs"),
			}},
		},
		Enabled: true,
	}

	trace := engine.Run(context.Background(), a, taskCtx(nil))

	if trace.Success {
		t.Fatal("run should fail")
	}
	if trace.Error == "" {
		t.Error("trace should carry the failure summary")
	}
	actionSteps := countSteps(trace, StepAction, StatusCompleted) + countSteps(trace, StepAction, StatusFailed)
	if actionSteps != 2 {
		t.Errorf("expected exactly 2 action steps (one completed, one failed), got %d", actionSteps)
	}
	if countSteps(trace, StepAction, StatusFailed) != 1 {
		t.Error("expected exactly one failed step")
	}
}

func TestRunStopExecutionCompletes(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowCreated,
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				{ID: "a1", Type: ActionStopExecution, StopExecution: &StopExecutionParams{Reason: "early exit"}},
				{ID: "a2", Type: ActionSendEmail, SendEmail: &SendEmailParams{To: "ops@example.com"}},
			}},
		},
		Enabled: true,
	}

	trace := engine.Run(context.Background(), a, taskCtx(nil))

	if !trace.Success {
		t.Error("an intentional stop is a completed run, not a failed one")
	}
	if len(email.sent) != 0 {
		t.Error("actions after stop_execution must not run")
	}
}

func TestRunRoutesFirstMatchingGroup(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowUpdated,
		ActionGroups: []*ActionGroup{
			{ID: "urgent", Order: 0, Condition: leaf(OpGreaterThan, "priority", 7),
				Actions: []*ActionConfig{{ID: "a1", Type: ActionSendEmail,
					SendEmail: &SendEmailParams{To: "oncall@example.com", Subject: "urgent"}}}},
			{ID: "normal", Order: 1,
				Actions: []*ActionConfig{{ID: "a2", Type: ActionSendEmail,
					SendEmail: &SendEmailParams{To: "ops@example.com", Subject: "normal"}}}},
		},
		Enabled: true,
	}

	trace := engine.Run(context.Background(), a, taskCtx(map[string]any{"priority": 3.0}))
	if !trace.Success {
		t.Fatalf("run failed: %s", trace.Error)
	}
	if len(email.sent) != 1 || email.sent[0].Subject != "normal" {
		t.Errorf("expected only the fallback group to run, sent = %+v", email.sent)
	}
}

func TestRunDelaySuspends(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowCreated,
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				logAction("a1", "before delay"),
				{ID: "a2", Type: ActionDelay, Delay: &DelayParams{Seconds: 60}},
				{ID: "a3", Type: ActionSendEmail, SendEmail: &SendEmailParams{To: "ops@example.com"}},
			}},
		},
		Enabled: true,
	}

	tc := taskCtx(nil)
	trace := engine.Run(context.Background(), a, tc)

	if trace.Suspension == nil {
		t.Fatal("delay should suspend the run")
	}
	if trace.Suspension.GroupID != "g1" {
		t.Errorf("GroupID = %q", trace.Suspension.GroupID)
	}
	if trace.Suspension.NextAction != 2 {
		t.Errorf("NextAction = %d, want 2", trace.Suspension.NextAction)
	}
	want := tc.FiredAt.Add(time.Minute)
	if !trace.Suspension.ResumeAt.Equal(want) {
		t.Errorf("ResumeAt = %v, want %v", trace.Suspension.ResumeAt, want)
	}
	if len(email.sent) != 0 {
		t.Error("actions after the delay must wait for resume")
	}
}

func TestResumeContinuesAfterDelay(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowCreated,
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				{ID: "a1", Type: ActionDelay, Delay: &DelayParams{Seconds: 60}},
				{ID: "a2", Type: ActionSendEmail, SendEmail: &SendEmailParams{
					To: "ops@example.com", Subject: "after {{title}}",
				}},
			}},
		},
		Enabled: true,
	}

	tc := taskCtx(map[string]any{"title": "Widget"})
	first := engine.Run(context.Background(), a, tc)
	if first.Suspension == nil {
		t.Fatal("expected suspension")
	}

	resumed := engine.Resume(context.Background(), a, first.Suspension)
	if !resumed.Success {
		t.Fatalf("resume failed: %s", resumed.Error)
	}
	if resumed.RunID != first.RunID {
		t.Errorf("resume should keep the run ID, got %q vs %q", resumed.RunID, first.RunID)
	}
	if len(email.sent) != 1 || email.sent[0].Subject != "after Widget" {
		t.Errorf("resume should execute remaining actions with the saved context, sent = %+v", email.sent)
	}

	// The resumed trace continues the suspended run: earlier steps and the
	// original start instant carry over, and numbering stays continuous.
	if got, want := len(resumed.Steps), len(first.Steps)+2; got != want {
		t.Fatalf("resumed trace has %d steps, want %d (suspended steps plus resume and email)", got, want)
	}
	if resumed.Steps[0].Kind != StepTrigger || resumed.Steps[0].Name != string(TriggerRowCreated) {
		t.Errorf("resumed trace should start with the original trigger step, got %+v", resumed.Steps[0])
	}
	if last := resumed.Steps[len(resumed.Steps)-1]; last.Step != len(resumed.Steps) {
		t.Errorf("step numbering should continue across the suspension, last = %d of %d", last.Step, len(resumed.Steps))
	}
	if !resumed.StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt = %v, want the original run's %v", resumed.StartedAt, first.StartedAt)
	}
}

func TestResumeDisabledAutomationCancels(t *testing.T) {
	engine, _, email, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowCreated,
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				{ID: "a1", Type: ActionDelay, Delay: &DelayParams{Seconds: 60}},
				{ID: "a2", Type: ActionSendEmail, SendEmail: &SendEmailParams{To: "ops@example.com"}},
			}},
		},
		Enabled: true,
	}

	first := engine.Run(context.Background(), a, taskCtx(nil))
	if first.Suspension == nil {
		t.Fatal("expected suspension")
	}

	a.Enabled = false
	resumed := engine.Resume(context.Background(), a, first.Suspension)

	if resumed.Success {
		t.Error("resuming a disabled automation should cancel the run")
	}
	if len(email.sent) != 0 {
		t.Error("no action should execute on a cancelled resume")
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	engine, data, email, webhooks := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "tasks", TriggerType: TriggerRowCreated,
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{
				{ID: "a1", Type: ActionCreateRecord, CreateRecord: &CreateRecordParams{
					FieldUpdates: []FieldUpdate{{Field: "title", Value: "copy"}},
				}},
				{ID: "a2", Type: ActionDelay, Delay: &DelayParams{Seconds: 3600}},
				{ID: "a3", Type: ActionCallWebhook, CallWebhook: &CallWebhookParams{URL: "https://example.com"}},
			}},
		},
		Enabled: true,
	}

	trace := engine.DryRun(context.Background(), a, taskCtx(nil))

	if !trace.DryRun {
		t.Error("trace should be flagged as a dry run")
	}
	if !trace.Success {
		t.Fatalf("dry run failed: %s", trace.Error)
	}
	if trace.Suspension != nil {
		t.Error("dry-run delays complete immediately, no suspension")
	}
	if countSteps(trace, StepAction, StatusCompleted) != 3 {
		t.Errorf("all 3 actions should complete in a dry run")
	}
	if len(data.creates) != 0 || len(email.sent) != 0 || len(webhooks.calls) != 0 {
		t.Error("dry run must not reach the real collaborators")
	}
}

func TestRunWithMissingSchemaDegrades(t *testing.T) {
	engine, _, _, _ := testEngine()

	a := &Automation{
		ID: "auto-1", TableID: "unknown_table", TriggerType: TriggerRowCreated,
		Condition: leaf(OpEqual, "status", "Done"),
		ActionGroups: []*ActionGroup{
			{ID: "g1", Order: 0, Actions: []*ActionConfig{logAction("a1", "hi")}},
		},
		Enabled: true,
	}

	tc := NewTriggerContext("unknown_table", "rec1", map[string]any{"status": "Done"}, time.Now(), "")
	trace := engine.Run(context.Background(), a, tc)

	// Fail-closed evaluation: without a schema the condition cannot match,
	// so the run completes as a skip rather than crashing.
	if !trace.Success {
		t.Errorf("run should degrade gracefully, error = %q", trace.Error)
	}
	if countSteps(trace, StepAction, StatusCompleted) != 0 {
		t.Error("condition cannot match without a schema")
	}
}
