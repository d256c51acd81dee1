package automation

import "time"

// TriggerType identifies the event class that starts a run.
type TriggerType string

const (
	TriggerRowCreated TriggerType = "row_created"
	TriggerRowUpdated TriggerType = "row_updated"
	TriggerRowDeleted TriggerType = "row_deleted"
	TriggerSchedule   TriggerType = "schedule"
	TriggerWebhook    TriggerType = "webhook"
	TriggerCondition  TriggerType = "condition"
)

// TriggerConfig carries the per-type trigger settings. Only the variant
// matching the automation's TriggerType is populated.
type TriggerConfig struct {
	// WatchedFields narrows row_updated triggers to changes in specific
	// fields. Empty means any field change fires.
	WatchedFields []string `json:"watchedFields,omitempty"`

	// Schedule is set for schedule triggers.
	Schedule *ScheduleSpec `json:"schedule,omitempty"`

	// WebhookID is set for webhook triggers.
	WebhookID string `json:"webhookId,omitempty"`

	// Poll is set for condition triggers.
	Poll *PollConfig `json:"poll,omitempty"`
}

// PollConfig configures a condition trigger: the formula is evaluated against
// each record every interval, and the automation fires on a false-to-true
// transition.
type PollConfig struct {
	IntervalSeconds int    `json:"intervalSeconds"`
	Formula         string `json:"formula"`
}

// Automation is a complete automation definition: a trigger, a top-level
// "only run when" condition, and an ordered list of conditional action
// groups. The engine never mutates a definition; all writes go through the
// builder API and the store.
type Automation struct {
	ID            string        `json:"id"`
	BaseID        string        `json:"baseId"`
	TableID       string        `json:"tableId"`
	Name          string        `json:"name"`
	TriggerType   TriggerType   `json:"triggerType"`
	TriggerConfig TriggerConfig `json:"triggerConfig"`
	Condition     *FilterNode   `json:"condition,omitempty"`
	ActionGroups  []*ActionGroup `json:"actionGroups"`
	Enabled       bool          `json:"enabled"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// ActionGroup is an independently-conditioned bundle of actions. Groups model
// If / Otherwise-if branching: Order defines routing precedence and nothing
// else.
type ActionGroup struct {
	ID        string          `json:"id"`
	Condition *FilterNode     `json:"condition,omitempty"`
	Actions   []*ActionConfig `json:"actions"`
	Order     int             `json:"order"`
}

// FieldType is the declared type of a table field, used for type-correct
// comparison and serialization.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldLongText    FieldType = "long_text"
	FieldNumber      FieldType = "number"
	FieldCheckbox    FieldType = "checkbox"
	FieldDate        FieldType = "date"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multi_select"
	FieldEmail       FieldType = "email"
	FieldURL         FieldType = "url"
	FieldUser        FieldType = "user"
)

// FieldDef describes a single field of a table schema.
type FieldDef struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// TableSchema maps field keys to definitions.
type TableSchema map[string]FieldDef

// TriggerContext is the immutable snapshot handed to the engine for one
// trigger occurrence. ActionResults is the only mutable part: it accumulates
// action outputs as the run proceeds so later actions can interpolate them.
type TriggerContext struct {
	TableID  string         `json:"tableId"`
	RecordID string         `json:"recordId"`
	Record   map[string]any `json:"record,omitempty"`
	FiredAt  time.Time      `json:"firedAt"`
	User     string         `json:"user"`

	// Payload carries trigger-specific extras, e.g. an inbound webhook body.
	Payload map[string]any `json:"payload,omitempty"`

	// ActionResults maps action IDs (and 1-based indexes, as "action_1") to
	// outputs of actions that already ran in this run.
	ActionResults map[string]any `json:"actionResults,omitempty"`
}

// NewTriggerContext builds a context for a triggering record snapshot.
func NewTriggerContext(tableID, recordID string, record map[string]any, firedAt time.Time, user string) *TriggerContext {
	return &TriggerContext{
		TableID:       tableID,
		RecordID:      recordID,
		Record:        record,
		FiredAt:       firedAt,
		User:          user,
		ActionResults: make(map[string]any),
	}
}

// SetActionResult records an action output under both the action's ID and its
// positional alias so templates can reference either.
func (tc *TriggerContext) SetActionResult(actionID string, index int, value any) {
	if tc.ActionResults == nil {
		tc.ActionResults = make(map[string]any)
	}
	if actionID != "" {
		tc.ActionResults[actionID] = value
	}
	tc.ActionResults[positionalAlias(index)] = value
}
