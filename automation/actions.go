package automation

import "fmt"

// ActionType identifies an action variant. The set is closed: the executor's
// dispatch switch covers every value and rejects anything else at validation
// time.
type ActionType string

const (
	ActionUpdateRecord  ActionType = "update_record"
	ActionCreateRecord  ActionType = "create_record"
	ActionDeleteRecord  ActionType = "delete_record"
	ActionSendEmail     ActionType = "send_email"
	ActionCallWebhook   ActionType = "call_webhook"
	ActionRunScript     ActionType = "run_script"
	ActionDelay         ActionType = "delay"
	ActionLogMessage    ActionType = "log_message"
	ActionStopExecution ActionType = "stop_execution"
)

// ActionTypes lists every supported action variant.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionUpdateRecord, ActionCreateRecord, ActionDeleteRecord,
		ActionSendEmail, ActionCallWebhook, ActionRunScript,
		ActionDelay, ActionLogMessage, ActionStopExecution,
	}
}

// ActionConfig is a tagged union: Type selects which params pointer is
// populated. String params may contain {{token}} placeholders; they are
// interpolated immediately before the action executes.
type ActionConfig struct {
	ID   string     `json:"id"`
	Type ActionType `json:"type"`

	UpdateRecord  *UpdateRecordParams  `json:"updateRecord,omitempty"`
	CreateRecord  *CreateRecordParams  `json:"createRecord,omitempty"`
	DeleteRecord  *DeleteRecordParams  `json:"deleteRecord,omitempty"`
	SendEmail     *SendEmailParams     `json:"sendEmail,omitempty"`
	CallWebhook   *CallWebhookParams   `json:"callWebhook,omitempty"`
	RunScript     *RunScriptParams     `json:"runScript,omitempty"`
	Delay         *DelayParams         `json:"delay,omitempty"`
	LogMessage    *LogMessageParams    `json:"logMessage,omitempty"`
	StopExecution *StopExecutionParams `json:"stopExecution,omitempty"`
}

// FieldUpdate assigns a (possibly templated) value to a field.
type FieldUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// UpdateRecordParams mutates fields on a record. RecordID defaults to the
// triggering record when empty.
type UpdateRecordParams struct {
	TableID      string        `json:"tableId,omitempty"`
	RecordID     string        `json:"recordId,omitempty"`
	FieldUpdates []FieldUpdate `json:"fieldUpdates"`
}

// CreateRecordParams creates a record in a table.
type CreateRecordParams struct {
	TableID      string        `json:"tableId,omitempty"`
	FieldUpdates []FieldUpdate `json:"fieldUpdates"`
}

// DeleteRecordParams deletes a record. RecordID defaults to the triggering
// record when empty.
type DeleteRecordParams struct {
	TableID  string `json:"tableId,omitempty"`
	RecordID string `json:"recordId,omitempty"`
}

// SendEmailParams describes an outbound email. Address lists are
// comma-separated strings so they can be templated as a whole.
type SendEmailParams struct {
	To      string `json:"to"`
	CC      string `json:"cc,omitempty"`
	BCC     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CallWebhookParams describes an outbound HTTP call.
type CallWebhookParams struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// RunScriptParams holds the opaque script source handed to the sandboxed
// evaluator.
type RunScriptParams struct {
	Code string `json:"code"`
}

// DelayParams suspends the run either for a fixed number of seconds or until
// an absolute instant (RFC 3339). Until wins when both are set.
type DelayParams struct {
	Seconds int64  `json:"seconds,omitempty"`
	Until   string `json:"until,omitempty"`
}

// LogMessageParams writes a message into the run trace.
type LogMessageParams struct {
	Message string `json:"message"`
}

// StopExecutionParams ends the run early. An intentional stop is recorded as
// completed, not failed.
type StopExecutionParams struct {
	Reason string `json:"reason,omitempty"`
}

// Params returns the populated variant payload, or an error when the payload
// for the declared type is missing.
func (a *ActionConfig) Params() (any, error) {
	switch a.Type {
	case ActionUpdateRecord:
		if a.UpdateRecord != nil {
			return a.UpdateRecord, nil
		}
	case ActionCreateRecord:
		if a.CreateRecord != nil {
			return a.CreateRecord, nil
		}
	case ActionDeleteRecord:
		if a.DeleteRecord != nil {
			return a.DeleteRecord, nil
		}
	case ActionSendEmail:
		if a.SendEmail != nil {
			return a.SendEmail, nil
		}
	case ActionCallWebhook:
		if a.CallWebhook != nil {
			return a.CallWebhook, nil
		}
	case ActionRunScript:
		if a.RunScript != nil {
			return a.RunScript, nil
		}
	case ActionDelay:
		if a.Delay != nil {
			return a.Delay, nil
		}
	case ActionLogMessage:
		if a.LogMessage != nil {
			return a.LogMessage, nil
		}
	case ActionStopExecution:
		// Params are optional for stop_execution.
		return a.StopExecution, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil, fmt.Errorf("action %s is missing %s params", a.ID, a.Type)
}
