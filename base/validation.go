package base

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/gridbase/automations/automation"
)

const (
	maxNameLength      = 200
	maxActionGroups    = 25
	maxActionsPerGroup = 50
	maxTreeDepth       = 10
	minPollInterval    = 10
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateAutomation checks a definition against the base's schemas before it
// is stored. Runtime evaluation degrades gracefully on bad references, but
// rejecting malformed definitions up front is what keeps the builder honest.
// scripts may be nil, in which case poll formulas and script sources are not
// compile-checked.
func ValidateAutomation(a *automation.Automation, schemas Schemas, scripts *automation.CELScriptRunner) error {
	if a == nil {
		return fmt.Errorf("automation is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("automation name cannot be empty")
	}
	if len(a.Name) > maxNameLength {
		return fmt.Errorf("automation name length %d exceeds maximum of %d characters", len(a.Name), maxNameLength)
	}

	schema, ok := schemas[a.TableID]
	if !ok {
		return fmt.Errorf("table %q not found in base schemas", a.TableID)
	}

	if err := validateTrigger(a, scripts); err != nil {
		return err
	}

	if err := ValidateTree(a.Condition, schema, 0); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}

	if len(a.ActionGroups) > maxActionGroups {
		return fmt.Errorf("automation has %d action groups, maximum allowed is %d", len(a.ActionGroups), maxActionGroups)
	}
	seenOrders := make(map[int]bool, len(a.ActionGroups))
	for _, g := range a.ActionGroups {
		if seenOrders[g.Order] {
			return fmt.Errorf("duplicate action group order %d", g.Order)
		}
		seenOrders[g.Order] = true

		if err := ValidateTree(g.Condition, schema, 0); err != nil {
			return fmt.Errorf("invalid condition in group %s: %w", g.ID, err)
		}
		if len(g.Actions) > maxActionsPerGroup {
			return fmt.Errorf("group %s has %d actions, maximum allowed is %d", g.ID, len(g.Actions), maxActionsPerGroup)
		}
		for i, action := range g.Actions {
			if err := validateAction(action, schema, scripts); err != nil {
				return fmt.Errorf("invalid action %d in group %s: %w", i+1, g.ID, err)
			}
		}
	}

	return nil
}

func validateTrigger(a *automation.Automation, scripts *automation.CELScriptRunner) error {
	switch a.TriggerType {
	case automation.TriggerRowCreated, automation.TriggerRowDeleted:
		return nil
	case automation.TriggerRowUpdated:
		for _, field := range a.TriggerConfig.WatchedFields {
			if !validIdentifier.MatchString(field) {
				return fmt.Errorf("invalid watched field %q", field)
			}
		}
		return nil
	case automation.TriggerSchedule:
		spec := a.TriggerConfig.Schedule
		if spec == nil {
			return fmt.Errorf("schedule trigger requires a schedule spec")
		}
		return validateSchedule(spec)
	case automation.TriggerWebhook:
		if a.TriggerConfig.WebhookID == "" {
			return fmt.Errorf("webhook trigger requires a webhook ID")
		}
		return nil
	case automation.TriggerCondition:
		poll := a.TriggerConfig.Poll
		if poll == nil {
			return fmt.Errorf("condition trigger requires a poll config")
		}
		if poll.IntervalSeconds < minPollInterval {
			return fmt.Errorf("poll interval %ds is below minimum of %ds", poll.IntervalSeconds, minPollInterval)
		}
		if strings.TrimSpace(poll.Formula) == "" {
			return fmt.Errorf("condition trigger requires a formula")
		}
		if scripts != nil {
			if err := scripts.Compile(poll.Formula); err != nil {
				return fmt.Errorf("invalid poll formula: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger type %q", a.TriggerType)
	}
}

func validateSchedule(spec *automation.ScheduleSpec) error {
	if _, err := spec.Location(); err != nil {
		return err
	}
	switch spec.Frequency {
	case automation.EveryMinutes, automation.EveryHours:
		if spec.Interval < 1 {
			return fmt.Errorf("schedule interval must be at least 1")
		}
	case automation.Daily, automation.Weekly, automation.Monthly:
		if spec.AtHour < 0 || spec.AtHour > 23 {
			return fmt.Errorf("schedule hour %d out of range", spec.AtHour)
		}
		if spec.AtMinute < 0 || spec.AtMinute > 59 {
			return fmt.Errorf("schedule minute %d out of range", spec.AtMinute)
		}
		if spec.Frequency == automation.Weekly && (spec.Weekday < 0 || spec.Weekday > 6) {
			return fmt.Errorf("schedule weekday %d out of range", spec.Weekday)
		}
		if spec.Frequency == automation.Monthly && (spec.DayOfMonth < 1 || spec.DayOfMonth > 31) {
			return fmt.Errorf("schedule day of month %d out of range", spec.DayOfMonth)
		}
	default:
		return fmt.Errorf("unknown schedule frequency %q", spec.Frequency)
	}
	return nil
}

// ValidateTree checks a condition tree against a table schema: group
// operators must be and/or, leaves must reference schema fields with
// operators valid for the field type, and nesting is depth-limited.
// An empty tree is always valid.
func ValidateTree(tree *automation.FilterNode, schema automation.TableSchema, depth int) error {
	if tree == nil {
		return nil
	}
	if depth > maxTreeDepth {
		return fmt.Errorf("condition tree exceeds maximum depth of %d", maxTreeDepth)
	}

	if tree.IsGroup() {
		for _, child := range tree.Children {
			if child == nil {
				continue
			}
			if err := ValidateTree(child, schema, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	def, ok := schema[tree.FieldRef]
	if !ok {
		return fmt.Errorf("unknown field %q", tree.FieldRef)
	}
	op := automation.Operator(tree.Operator)
	for _, valid := range automation.OperatorsForType(def.Type) {
		if op == valid {
			if !op.IsUnary() && tree.Value == nil {
				return fmt.Errorf("operator %q on field %q requires a value", op, tree.FieldRef)
			}
			return nil
		}
	}
	return fmt.Errorf("operator %q is not valid for %s field %q", op, def.Type, tree.FieldRef)
}

func validateAction(a *automation.ActionConfig, schema automation.TableSchema, scripts *automation.CELScriptRunner) error {
	params, err := a.Params()
	if err != nil {
		return err
	}

	switch p := params.(type) {
	case *automation.UpdateRecordParams:
		return validateFieldUpdates(p.FieldUpdates, p.TableID, schema)
	case *automation.CreateRecordParams:
		return validateFieldUpdates(p.FieldUpdates, p.TableID, schema)
	case *automation.DeleteRecordParams:
		return nil
	case *automation.SendEmailParams:
		if strings.TrimSpace(p.To) == "" {
			return fmt.Errorf("send_email requires a recipient")
		}
		return nil
	case *automation.CallWebhookParams:
		if err := validateWebhookURL(p.URL); err != nil {
			return err
		}
		return nil
	case *automation.RunScriptParams:
		if strings.TrimSpace(p.Code) == "" {
			return fmt.Errorf("run_script requires script source")
		}
		if scripts != nil {
			if err := scripts.Compile(p.Code); err != nil {
				return err
			}
		}
		return nil
	case *automation.DelayParams:
		if p.Seconds <= 0 && p.Until == "" {
			return fmt.Errorf("delay requires seconds or until")
		}
		return nil
	case *automation.LogMessageParams:
		if p.Message == "" {
			return fmt.Errorf("log_message requires a message")
		}
		return nil
	case *automation.StopExecutionParams, nil:
		return nil
	default:
		return fmt.Errorf("unknown action params %T", params)
	}
}

func validateFieldUpdates(updates []automation.FieldUpdate, targetTable string, schema automation.TableSchema) error {
	if len(updates) == 0 {
		return fmt.Errorf("at least one field update is required")
	}
	for _, u := range updates {
		if u.Field == "" {
			return fmt.Errorf("field update with empty field name")
		}
		// Only updates to the trigger table can be schema-checked here;
		// cross-table targets (and templated table IDs) are checked at
		// execution time by the data store.
		if targetTable == "" {
			if _, ok := schema[u.Field]; !ok {
				return fmt.Errorf("unknown field %q in field update", u.Field)
			}
		}
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("call_webhook requires a URL")
	}
	// Templated URLs are resolved at run time and cannot be parsed yet.
	if strings.Contains(raw, "{{") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must be http or https, got %q", u.Scheme)
	}
	return nil
}
