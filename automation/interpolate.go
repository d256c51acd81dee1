package automation

import (
	"fmt"
	"regexp"
	"time"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Interpolate resolves {{token}} placeholders against the trigger context.
// Resolution order: record field, record_id/table_id, NOW(), USER(), prior
// action results, trigger payload fields (e.g. an inbound webhook body).
// Unknown tokens are preserved as the literal {{token}} text so the user can
// see what failed to bind; interpolation never fails.
func Interpolate(template string, ctx *TriggerContext) string {
	if template == "" || ctx == nil {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		token := tokenPattern.FindStringSubmatch(match)[1]

		if ctx.Record != nil {
			if v, ok := ctx.Record[token]; ok {
				return Stringify(v)
			}
		}

		switch token {
		case "record_id":
			return ctx.RecordID
		case "table_id":
			return ctx.TableID
		case "NOW()":
			return ctx.FiredAt.Format(time.RFC3339)
		case "USER()":
			return ctx.User
		}

		if v, ok := ctx.ActionResults[token]; ok {
			return Stringify(v)
		}

		if v, ok := ctx.Payload[token]; ok {
			return Stringify(v)
		}

		return match
	})
}

func positionalAlias(index int) string {
	return fmt.Sprintf("action_%d", index+1)
}

// interpolateAction returns a copy of the action with every string-typed
// param leaf interpolated against the context. Called immediately before the
// action executes so templates can see outputs of earlier actions in the
// same run. The original config is never mutated.
func interpolateAction(a *ActionConfig, ctx *TriggerContext) *ActionConfig {
	out := &ActionConfig{ID: a.ID, Type: a.Type}

	switch a.Type {
	case ActionUpdateRecord:
		if a.UpdateRecord != nil {
			out.UpdateRecord = &UpdateRecordParams{
				TableID:      Interpolate(a.UpdateRecord.TableID, ctx),
				RecordID:     Interpolate(a.UpdateRecord.RecordID, ctx),
				FieldUpdates: interpolateFieldUpdates(a.UpdateRecord.FieldUpdates, ctx),
			}
		}
	case ActionCreateRecord:
		if a.CreateRecord != nil {
			out.CreateRecord = &CreateRecordParams{
				TableID:      Interpolate(a.CreateRecord.TableID, ctx),
				FieldUpdates: interpolateFieldUpdates(a.CreateRecord.FieldUpdates, ctx),
			}
		}
	case ActionDeleteRecord:
		if a.DeleteRecord != nil {
			out.DeleteRecord = &DeleteRecordParams{
				TableID:  Interpolate(a.DeleteRecord.TableID, ctx),
				RecordID: Interpolate(a.DeleteRecord.RecordID, ctx),
			}
		}
	case ActionSendEmail:
		if a.SendEmail != nil {
			out.SendEmail = &SendEmailParams{
				To:      Interpolate(a.SendEmail.To, ctx),
				CC:      Interpolate(a.SendEmail.CC, ctx),
				BCC:     Interpolate(a.SendEmail.BCC, ctx),
				Subject: Interpolate(a.SendEmail.Subject, ctx),
				Body:    Interpolate(a.SendEmail.Body, ctx),
			}
		}
	case ActionCallWebhook:
		if a.CallWebhook != nil {
			headers := make(map[string]string, len(a.CallWebhook.Headers))
			for k, v := range a.CallWebhook.Headers {
				headers[k] = Interpolate(v, ctx)
			}
			out.CallWebhook = &CallWebhookParams{
				URL:     Interpolate(a.CallWebhook.URL, ctx),
				Method:  a.CallWebhook.Method,
				Headers: headers,
				Body:    Interpolate(a.CallWebhook.Body, ctx),
			}
		}
	case ActionRunScript:
		if a.RunScript != nil {
			// Script source is opaque; it sees the context through the
			// sandbox, not through textual substitution.
			out.RunScript = &RunScriptParams{Code: a.RunScript.Code}
		}
	case ActionDelay:
		if a.Delay != nil {
			out.Delay = &DelayParams{
				Seconds: a.Delay.Seconds,
				Until:   Interpolate(a.Delay.Until, ctx),
			}
		}
	case ActionLogMessage:
		if a.LogMessage != nil {
			out.LogMessage = &LogMessageParams{Message: Interpolate(a.LogMessage.Message, ctx)}
		}
	case ActionStopExecution:
		if a.StopExecution != nil {
			out.StopExecution = &StopExecutionParams{Reason: Interpolate(a.StopExecution.Reason, ctx)}
		}
	}

	return out
}

func interpolateFieldUpdates(updates []FieldUpdate, ctx *TriggerContext) []FieldUpdate {
	out := make([]FieldUpdate, len(updates))
	for i, u := range updates {
		out[i] = FieldUpdate{Field: u.Field, Value: Interpolate(u.Value, ctx)}
	}
	return out
}
