package automation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ActionResult is the outcome of one action execution.
type ActionResult struct {
	ActionID string     `json:"actionId"`
	Type     ActionType `json:"type"`
	Success  bool       `json:"success"`
	Output   any        `json:"output,omitempty"`
	Message  string     `json:"message,omitempty"`
	Err      error      `json:"-"`

	// Stop is set by stop_execution: the run ends here, marked completed.
	Stop bool `json:"stop,omitempty"`

	// ResumeAt is set by delay: the run should suspend and resume at this
	// instant. The executor never sleeps; suspension is the caller's job.
	ResumeAt *time.Time `json:"resumeAt,omitempty"`
}

// Executor dispatches actions to their handlers. Dispatch is a closed switch
// over ActionType; every handler receives the already-interpolated config.
type Executor struct {
	data     DataStore
	email    EmailSender
	webhooks WebhookCaller
	scripts  ScriptRunner
}

// NewExecutor wires the executor to its external collaborators. Any of them
// may be nil; actions needing a missing collaborator fail with a
// configuration error instead of panicking.
func NewExecutor(data DataStore, email EmailSender, webhooks WebhookCaller, scripts ScriptRunner) *Executor {
	return &Executor{data: data, email: email, webhooks: webhooks, scripts: scripts}
}

// Execute interpolates the action's string params against the context and
// runs it. It never panics; every failure mode is reported in the result.
func (ex *Executor) Execute(ctx context.Context, action *ActionConfig, tc *TriggerContext) *ActionResult {
	res := &ActionResult{ActionID: action.ID, Type: action.Type}

	interpolated := interpolateAction(action, tc)
	if _, err := interpolated.Params(); err != nil {
		res.Err = err
		return res
	}

	switch action.Type {
	case ActionUpdateRecord:
		ex.execUpdateRecord(ctx, interpolated.UpdateRecord, tc, res)
	case ActionCreateRecord:
		ex.execCreateRecord(ctx, interpolated.CreateRecord, tc, res)
	case ActionDeleteRecord:
		ex.execDeleteRecord(ctx, interpolated.DeleteRecord, tc, res)
	case ActionSendEmail:
		ex.execSendEmail(ctx, interpolated.SendEmail, res)
	case ActionCallWebhook:
		ex.execCallWebhook(ctx, interpolated.CallWebhook, res)
	case ActionRunScript:
		ex.execRunScript(ctx, interpolated.RunScript, tc, res)
	case ActionDelay:
		execDelay(interpolated.Delay, tc, res)
	case ActionLogMessage:
		res.Success = true
		res.Message = interpolated.LogMessage.Message
		res.Output = interpolated.LogMessage.Message
	case ActionStopExecution:
		res.Success = true
		res.Stop = true
		res.Message = "execution stopped"
		if interpolated.StopExecution != nil && interpolated.StopExecution.Reason != "" {
			res.Message = "execution stopped: " + interpolated.StopExecution.Reason
		}
	default:
		res.Err = fmt.Errorf("unknown action type %q", action.Type)
	}

	return res
}

func (ex *Executor) execUpdateRecord(ctx context.Context, p *UpdateRecordParams, tc *TriggerContext, res *ActionResult) {
	if ex.data == nil {
		res.Err = fmt.Errorf("no data store configured")
		return
	}
	tableID, recordID := defaultTarget(p.TableID, p.RecordID, tc)
	id, err := ex.data.UpdateRecord(ctx, tableID, recordID, fieldMap(p.FieldUpdates))
	if err != nil {
		res.Err = err
		return
	}
	res.Success = true
	res.Output = id
	res.Message = fmt.Sprintf("updated record %s", id)
}

func (ex *Executor) execCreateRecord(ctx context.Context, p *CreateRecordParams, tc *TriggerContext, res *ActionResult) {
	if ex.data == nil {
		res.Err = fmt.Errorf("no data store configured")
		return
	}
	tableID := p.TableID
	if tableID == "" && tc != nil {
		tableID = tc.TableID
	}
	id, err := ex.data.CreateRecord(ctx, tableID, fieldMap(p.FieldUpdates))
	if err != nil {
		res.Err = err
		return
	}
	res.Success = true
	res.Output = id
	res.Message = fmt.Sprintf("created record %s", id)
}

func (ex *Executor) execDeleteRecord(ctx context.Context, p *DeleteRecordParams, tc *TriggerContext, res *ActionResult) {
	if ex.data == nil {
		res.Err = fmt.Errorf("no data store configured")
		return
	}
	tableID, recordID := defaultTarget(p.TableID, p.RecordID, tc)
	if err := ex.data.DeleteRecord(ctx, tableID, recordID); err != nil {
		res.Err = err
		return
	}
	res.Success = true
	res.Output = recordID
	res.Message = fmt.Sprintf("deleted record %s", recordID)
}

func (ex *Executor) execSendEmail(ctx context.Context, p *SendEmailParams, res *ActionResult) {
	if ex.email == nil {
		res.Err = fmt.Errorf("no email transport configured")
		return
	}
	if strings.TrimSpace(p.To) == "" {
		res.Err = fmt.Errorf("send_email: recipient is required")
		return
	}
	msg := EmailMessage{To: p.To, CC: p.CC, BCC: p.BCC, Subject: p.Subject, Body: p.Body}
	if err := ex.email.SendEmail(ctx, msg); err != nil {
		res.Err = err
		return
	}
	res.Success = true
	res.Message = fmt.Sprintf("email sent to %s", p.To)
}

func (ex *Executor) execCallWebhook(ctx context.Context, p *CallWebhookParams, res *ActionResult) {
	if ex.webhooks == nil {
		res.Err = fmt.Errorf("no webhook transport configured")
		return
	}
	method := p.Method
	if method == "" {
		method = "POST"
	}
	resp, err := ex.webhooks.CallWebhook(ctx, WebhookRequest{
		URL:     p.URL,
		Method:  method,
		Headers: p.Headers,
		Body:    p.Body,
	})
	if err != nil {
		res.Err = err
		return
	}
	res.Success = true
	res.Output = map[string]any{"status": resp.Status, "body": resp.Body}
	res.Message = fmt.Sprintf("webhook %s returned %d", p.URL, resp.Status)
}

func (ex *Executor) execRunScript(ctx context.Context, p *RunScriptParams, tc *TriggerContext, res *ActionResult) {
	if ex.scripts == nil {
		res.Err = fmt.Errorf("no script runner configured")
		return
	}
	out, err := ex.scripts.Run(ctx, p.Code, scriptInput(tc))
	if err != nil {
		res.Err = err
		return
	}
	res.Success = true
	res.Output = out
	res.Message = "script completed"
}

// execDelay computes the resume instant; actually suspending (or simulating)
// the run is up to the engine.
func execDelay(p *DelayParams, tc *TriggerContext, res *ActionResult) {
	now := time.Now()
	if tc != nil && !tc.FiredAt.IsZero() {
		now = tc.FiredAt
	}
	var resumeAt time.Time
	if p.Until != "" {
		parsed, ok := coerceTime(p.Until)
		if !ok {
			res.Err = fmt.Errorf("delay: invalid until instant %q", p.Until)
			return
		}
		resumeAt = parsed
	} else if p.Seconds > 0 {
		resumeAt = now.Add(time.Duration(p.Seconds) * time.Second)
	} else {
		res.Err = fmt.Errorf("delay: either seconds or until is required")
		return
	}
	res.Success = true
	res.ResumeAt = &resumeAt
	res.Message = fmt.Sprintf("delay until %s", resumeAt.Format(time.RFC3339))
}

func defaultTarget(tableID, recordID string, tc *TriggerContext) (string, string) {
	if tc != nil {
		if tableID == "" {
			tableID = tc.TableID
		}
		if recordID == "" {
			recordID = tc.RecordID
		}
	}
	return tableID, recordID
}

func fieldMap(updates []FieldUpdate) map[string]string {
	fields := make(map[string]string, len(updates))
	for _, u := range updates {
		fields[u.Field] = u.Value
	}
	return fields
}

// scriptInput is what the sandbox exposes to a script: the record fields plus
// the same metadata templates can reach.
func scriptInput(tc *TriggerContext) map[string]any {
	input := map[string]any{}
	if tc == nil {
		return input
	}
	input["record"] = tc.Record
	input["record_id"] = tc.RecordID
	input["table_id"] = tc.TableID
	input["user"] = tc.User
	input["results"] = tc.ActionResults
	return input
}
