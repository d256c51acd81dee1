package base

import (
	"strings"
	"testing"

	"github.com/gridbase/automations/automation"
)

var testSchemas = Schemas{
	"tasks": automation.TableSchema{
		"status":   {Name: "Status", Type: automation.FieldSelect},
		"title":    {Name: "Title", Type: automation.FieldText},
		"priority": {Name: "Priority", Type: automation.FieldNumber},
		"done":     {Name: "Done", Type: automation.FieldCheckbox},
	},
}

func validAutomation() *automation.Automation {
	return &automation.Automation{
		ID:          "auto-1",
		BaseID:      "base-1",
		TableID:     "tasks",
		Name:        "notify on done",
		TriggerType: automation.TriggerRowUpdated,
		TriggerConfig: automation.TriggerConfig{
			WatchedFields: []string{"status"},
		},
		Condition: &automation.FilterNode{
			FieldRef: "status",
			Operator: string(automation.OpEqual),
			Value:    "Done",
		},
		ActionGroups: []*automation.ActionGroup{
			{
				ID:    "g1",
				Order: 0,
				Actions: []*automation.ActionConfig{
					{
						ID:         "a1",
						Type:       automation.ActionLogMessage,
						LogMessage: &automation.LogMessageParams{Message: "done"},
					},
				},
			},
		},
		Enabled: true,
	}
}

func TestValidateAutomationAccepts(t *testing.T) {
	if err := ValidateAutomation(validAutomation(), testSchemas, nil); err != nil {
		t.Fatalf("valid automation rejected: %v", err)
	}
}

func TestValidateAutomationName(t *testing.T) {
	a := validAutomation()
	a.Name = "   "
	if err := ValidateAutomation(a, testSchemas, nil); err == nil {
		t.Error("blank name should be rejected")
	}

	a = validAutomation()
	a.Name = strings.Repeat("x", maxNameLength+1)
	if err := ValidateAutomation(a, testSchemas, nil); err == nil {
		t.Error("overlong name should be rejected")
	}
}

func TestValidateAutomationUnknownTable(t *testing.T) {
	a := validAutomation()
	a.TableID = "ghosts"
	if err := ValidateAutomation(a, testSchemas, nil); err == nil {
		t.Error("unknown table should be rejected")
	}
}

func TestValidateTriggers(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*automation.Automation)
		wantErr bool
	}{
		{"row created", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerRowCreated
			a.TriggerConfig = automation.TriggerConfig{}
		}, false},
		{"bad watched field", func(a *automation.Automation) {
			a.TriggerConfig.WatchedFields = []string{"not a field!"}
		}, true},
		{"schedule without spec", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerSchedule
			a.TriggerConfig = automation.TriggerConfig{}
		}, true},
		{"valid schedule", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerSchedule
			a.TriggerConfig = automation.TriggerConfig{
				Schedule: &automation.ScheduleSpec{Frequency: automation.Daily, AtHour: 9},
			}
		}, false},
		{"schedule hour out of range", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerSchedule
			a.TriggerConfig = automation.TriggerConfig{
				Schedule: &automation.ScheduleSpec{Frequency: automation.Daily, AtHour: 24},
			}
		}, true},
		{"schedule bad timezone", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerSchedule
			a.TriggerConfig = automation.TriggerConfig{
				Schedule: &automation.ScheduleSpec{Frequency: automation.Daily, Timezone: "Mars/Olympus"},
			}
		}, true},
		{"webhook without ID", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerWebhook
			a.TriggerConfig = automation.TriggerConfig{}
		}, true},
		{"valid webhook", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerWebhook
			a.TriggerConfig = automation.TriggerConfig{WebhookID: "wh_1"}
		}, false},
		{"poll interval too low", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerCondition
			a.TriggerConfig = automation.TriggerConfig{
				Poll: &automation.PollConfig{IntervalSeconds: 5, Formula: "true"},
			}
		}, true},
		{"valid poll", func(a *automation.Automation) {
			a.TriggerType = automation.TriggerCondition
			a.TriggerConfig = automation.TriggerConfig{
				Poll: &automation.PollConfig{IntervalSeconds: 30, Formula: "true"},
			}
		}, false},
		{"unknown trigger", func(a *automation.Automation) {
			a.TriggerType = "telepathy"
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAutomation()
			tc.mutate(a)
			err := ValidateAutomation(a, testSchemas, nil)
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidatePollFormulaCompiles(t *testing.T) {
	scripts, err := automation.NewCELScriptRunner()
	if err != nil {
		t.Fatalf("NewCELScriptRunner() failed: %v", err)
	}

	a := validAutomation()
	a.TriggerType = automation.TriggerCondition
	a.TriggerConfig = automation.TriggerConfig{
		Poll: &automation.PollConfig{IntervalSeconds: 30, Formula: `record_id ==`},
	}
	if err := ValidateAutomation(a, testSchemas, scripts); err == nil {
		t.Error("malformed poll formula should be rejected when a runner is supplied")
	}

	a.TriggerConfig.Poll.Formula = `record_id == "rec1"`
	if err := ValidateAutomation(a, testSchemas, scripts); err != nil {
		t.Errorf("valid poll formula rejected: %v", err)
	}
}

func TestValidateTree(t *testing.T) {
	schema := testSchemas["tasks"]

	if err := ValidateTree(nil, schema, 0); err != nil {
		t.Errorf("nil tree should be valid: %v", err)
	}

	leaf := &automation.FilterNode{FieldRef: "status", Operator: string(automation.OpEqual), Value: "Done"}
	if err := ValidateTree(leaf, schema, 0); err != nil {
		t.Errorf("valid leaf rejected: %v", err)
	}

	unknown := &automation.FilterNode{FieldRef: "ghost", Operator: string(automation.OpEqual), Value: "x"}
	if err := ValidateTree(unknown, schema, 0); err == nil {
		t.Error("unknown field should be rejected")
	}

	// Contains is a text operator, not valid for checkbox.
	badOp := &automation.FilterNode{FieldRef: "done", Operator: string(automation.OpContains), Value: "x"}
	if err := ValidateTree(badOp, schema, 0); err == nil {
		t.Error("type-mismatched operator should be rejected")
	}

	missingValue := &automation.FilterNode{FieldRef: "status", Operator: string(automation.OpEqual)}
	if err := ValidateTree(missingValue, schema, 0); err == nil {
		t.Error("non-unary operator without a value should be rejected")
	}

	unary := &automation.FilterNode{FieldRef: "status", Operator: string(automation.OpIsEmpty)}
	if err := ValidateTree(unary, schema, 0); err != nil {
		t.Errorf("unary operator without a value rejected: %v", err)
	}

	deep := &automation.FilterNode{FieldRef: "status", Operator: string(automation.OpEqual), Value: "Done"}
	for i := 0; i <= maxTreeDepth; i++ {
		deep = &automation.FilterNode{Operator: "and", Children: []*automation.FilterNode{deep}}
	}
	if err := ValidateTree(deep, schema, 0); err == nil {
		t.Error("over-deep tree should be rejected")
	}
}

func TestValidateActionGroups(t *testing.T) {
	a := validAutomation()
	a.ActionGroups = append(a.ActionGroups, &automation.ActionGroup{ID: "g2", Order: 0})
	if err := ValidateAutomation(a, testSchemas, nil); err == nil {
		t.Error("duplicate group order should be rejected")
	}

	a = validAutomation()
	for i := 0; i < maxActionGroups+1; i++ {
		a.ActionGroups = append(a.ActionGroups, &automation.ActionGroup{ID: "extra", Order: 100 + i})
	}
	if err := ValidateAutomation(a, testSchemas, nil); err == nil {
		t.Error("too many groups should be rejected")
	}
}

func TestValidateActions(t *testing.T) {
	cases := []struct {
		name    string
		action  *automation.ActionConfig
		wantErr bool
	}{
		{"update without fields", &automation.ActionConfig{
			ID: "a", Type: automation.ActionUpdateRecord,
			UpdateRecord: &automation.UpdateRecordParams{},
		}, true},
		{"update unknown field", &automation.ActionConfig{
			ID: "a", Type: automation.ActionUpdateRecord,
			UpdateRecord: &automation.UpdateRecordParams{
				FieldUpdates: []automation.FieldUpdate{{Field: "ghost", Value: "x"}},
			},
		}, true},
		{"cross-table update skips schema check", &automation.ActionConfig{
			ID: "a", Type: automation.ActionUpdateRecord,
			UpdateRecord: &automation.UpdateRecordParams{
				TableID:      "archive",
				FieldUpdates: []automation.FieldUpdate{{Field: "ghost", Value: "x"}},
			},
		}, false},
		{"email without recipient", &automation.ActionConfig{
			ID: "a", Type: automation.ActionSendEmail,
			SendEmail: &automation.SendEmailParams{Subject: "hi"},
		}, true},
		{"webhook with ftp scheme", &automation.ActionConfig{
			ID: "a", Type: automation.ActionCallWebhook,
			CallWebhook: &automation.CallWebhookParams{URL: "ftp://example.com"},
		}, true},
		{"templated webhook URL allowed", &automation.ActionConfig{
			ID: "a", Type: automation.ActionCallWebhook,
			CallWebhook: &automation.CallWebhookParams{URL: "{{webhook_url}}"},
		}, false},
		{"delay without duration", &automation.ActionConfig{
			ID: "a", Type: automation.ActionDelay,
			Delay: &automation.DelayParams{},
		}, true},
		{"delay with until", &automation.ActionConfig{
			ID: "a", Type: automation.ActionDelay,
			Delay: &automation.DelayParams{Until: "2026-04-01T00:00:00Z"},
		}, false},
		{"log without message", &automation.ActionConfig{
			ID: "a", Type: automation.ActionLogMessage,
			LogMessage: &automation.LogMessageParams{},
		}, true},
		{"stop execution", &automation.ActionConfig{
			ID: "a", Type: automation.ActionStopExecution,
			StopExecution: &automation.StopExecutionParams{},
		}, false},
		{"missing params", &automation.ActionConfig{
			ID: "a", Type: automation.ActionSendEmail,
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAutomation()
			a.ActionGroups[0].Actions = []*automation.ActionConfig{tc.action}
			err := ValidateAutomation(a, testSchemas, nil)
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
