package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridbase/automations/internal/logger"
)

// Engine runs automations. One Engine instance serves one base; all state it
// holds is read-only collaborator wiring, so a single run is a linear
// pipeline and concurrent runs are independent. The engine never mutates an
// automation definition.
type Engine struct {
	schemas  SchemaProvider
	executor *Executor
	simulate bool
}

// NewEngine wires an engine to its collaborators.
func NewEngine(schemas SchemaProvider, data DataStore, email EmailSender, webhooks WebhookCaller, scripts ScriptRunner) *Engine {
	return &Engine{
		schemas:  schemas,
		executor: NewExecutor(data, email, webhooks, scripts),
	}
}

// Run executes one trigger occurrence end to end and returns the complete
// execution trace. Every run produces a trace regardless of outcome; a failed
// run differs from a successful one only in Success and the terminal action's
// status.
func (e *Engine) Run(ctx context.Context, a *Automation, tc *TriggerContext) *Trace {
	trace := &Trace{
		RunID:        uuid.NewString(),
		AutomationID: a.ID,
		DryRun:       e.simulate,
		StartedAt:    time.Now(),
	}
	logger.RunStarted()

	schema := e.loadSchema(ctx, a.TableID)

	ts := trace.addStep(StepTrigger, string(a.TriggerType))
	ts.begin()
	ts.complete("trigger fired", map[string]any{
		"tableId":  tc.TableID,
		"recordId": tc.RecordID,
	})

	cs := trace.addStep(StepCondition, "only run when")
	cs.begin()
	if !Evaluate(a.Condition, tc, schema) {
		cs.complete("condition not met, run skipped", nil)
		return e.finish(trace, true, "")
	}
	cs.complete("condition met", nil)

	group := e.routeWithTrace(a, tc, schema, trace)
	if group == nil {
		return e.finish(trace, true, "")
	}

	e.runActions(ctx, a, group, tc, trace, 0)
	return e.finish(trace, trace.Error == "", trace.Error)
}

// Resume continues a run suspended by a delay action. The trace picks up the
// suspended run's earlier steps and start instant, so the run history shows
// one run across suspensions. Cancellation is checked first: a disabled
// automation cancels the run instead of executing its next action.
func (e *Engine) Resume(ctx context.Context, a *Automation, cont *Continuation) *Trace {
	trace := &Trace{
		RunID:        cont.RunID,
		AutomationID: a.ID,
		StartedAt:    cont.StartedAt,
		Steps:        cont.Steps,
	}
	if trace.StartedAt.IsZero() {
		trace.StartedAt = time.Now()
	}

	step := trace.addStep(StepTrigger, "resume")
	step.begin()
	if !a.Enabled {
		step.complete("automation disabled, run cancelled", nil)
		return e.finish(trace, false, "run cancelled: automation disabled")
	}
	step.complete(fmt.Sprintf("resumed at action %d", cont.NextAction+1), nil)

	var group *ActionGroup
	for _, g := range a.ActionGroups {
		if g.ID == cont.GroupID {
			group = g
			break
		}
	}
	if group == nil {
		// The definition changed while the run was parked; degrade to a
		// no-op rather than failing the run.
		return e.finish(trace, true, "")
	}

	e.runActions(ctx, a, group, cont.Context, trace, cont.NextAction)
	return e.finish(trace, trace.Error == "", trace.Error)
}

// DryRun executes the automation against simulated collaborators: conditions,
// routing and interpolation behave exactly as in a live run, but no external
// side effect happens and delays complete immediately.
func (e *Engine) DryRun(ctx context.Context, a *Automation, tc *TriggerContext) *Trace {
	sim := &Engine{
		schemas:  e.schemas,
		executor: NewExecutor(newSimulatedDataStore(), simulatedEmail{}, simulatedWebhooks{}, simulatedScripts{}),
		simulate: true,
	}
	return sim.Run(ctx, a, tc)
}

// routeWithTrace walks groups in ascending order, recording a condition step
// per group until the first match. Mirrors Route's first-match-wins policy.
func (e *Engine) routeWithTrace(a *Automation, tc *TriggerContext, schema TableSchema, trace *Trace) *ActionGroup {
	for i, g := range sortGroups(a.ActionGroups) {
		label := "if"
		if i > 0 {
			label = "otherwise if"
		}
		gs := trace.addStep(StepCondition, label)
		gs.begin()
		if Evaluate(g.Condition, tc, schema) {
			gs.complete("group matched", map[string]any{"groupId": g.ID})
			return g
		}
		gs.complete("group not matched", map[string]any{"groupId": g.ID})
	}
	return nil
}

// runActions executes a group's actions strictly in order starting at start.
// The first failure stops the remaining actions and the run; stop_execution
// ends the run as completed; delay suspends the run (outside dry-run mode).
func (e *Engine) runActions(ctx context.Context, a *Automation, group *ActionGroup, tc *TriggerContext, trace *Trace, start int) {
	for i := start; i < len(group.Actions); i++ {
		action := group.Actions[i]
		step := trace.addStep(StepAction, string(action.Type))
		step.begin()

		res := e.executor.Execute(ctx, action, tc)

		if res.Err != nil {
			step.fail(res.Err)
			trace.Error = fmt.Sprintf("action %d (%s) failed: %v", i+1, action.Type, res.Err)
			logger.ActionFailed()
			return
		}

		if res.ResumeAt != nil && !e.simulate {
			step.complete(res.Message, map[string]any{"resumeAt": res.ResumeAt.Format(time.RFC3339)})
			trace.Suspension = &Continuation{
				RunID:        trace.RunID,
				AutomationID: a.ID,
				ResumeAt:     *res.ResumeAt,
				GroupID:      group.ID,
				NextAction:   i + 1,
				Context:      tc,
				StartedAt:    trace.StartedAt,
				Steps:        trace.Steps,
			}
			logger.RunSuspended()
			return
		}

		tc.SetActionResult(action.ID, i, res.Output)
		data := map[string]any{}
		if res.Output != nil {
			data["output"] = res.Output
		}
		if res.ResumeAt != nil {
			data["simulatedDelayUntil"] = res.ResumeAt.Format(time.RFC3339)
		}
		step.complete(res.Message, data)

		if res.Stop {
			return
		}
	}
}

func (e *Engine) finish(trace *Trace, success bool, errMsg string) *Trace {
	trace.Success = success
	trace.Error = errMsg
	trace.FinishedAt = time.Now()
	if trace.Suspension != nil {
		logger.Info("automation run suspended",
			"run", trace.RunID, "automation", trace.AutomationID,
			"resumeAt", trace.Suspension.ResumeAt)
		return trace
	}
	if !success {
		logger.RunFailed()
		logger.Warn("automation run failed",
			"run", trace.RunID, "automation", trace.AutomationID, "error", errMsg)
		return trace
	}
	logger.Debug("automation run completed",
		"run", trace.RunID, "automation", trace.AutomationID, "steps", len(trace.Steps))
	return trace
}

func (e *Engine) loadSchema(ctx context.Context, tableID string) TableSchema {
	if e.schemas == nil {
		return TableSchema{}
	}
	schema, err := e.schemas.TableSchema(ctx, tableID)
	if err != nil || schema == nil {
		// A missing schema degrades every field lookup to fail-closed
		// evaluation; it must not abort the run.
		logger.Warn("schema lookup failed", "table", tableID, "error", err)
		return TableSchema{}
	}
	return schema
}
