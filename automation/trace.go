package automation

import "time"

// StepKind classifies a trace entry.
type StepKind string

const (
	StepTrigger   StepKind = "trigger"
	StepCondition StepKind = "condition"
	StepAction    StepKind = "action"
)

// StepStatus is the per-step state machine: pending -> running ->
// completed | failed. A step never leaves a terminal status.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
)

// TraceStep is one entry of a run's execution trace.
type TraceStep struct {
	Step       int            `json:"step"`
	Kind       StepKind       `json:"kind"`
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`

	startedAt time.Time
}

// Trace is the ordered, append-only log of one run, used for both
// observability and the dry-run tester. A failed run is distinguished from a
// successful one only by Success plus the terminal action's status.
type Trace struct {
	RunID        string        `json:"runId"`
	AutomationID string        `json:"automationId"`
	DryRun       bool          `json:"dryRun,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	Steps        []*TraceStep  `json:"steps"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Suspension   *Continuation `json:"suspension,omitempty"`
}

// Continuation captures everything needed to resume a run suspended by a
// delay action: persist it and a process restart does not lose the run.
// StartedAt and Steps carry the suspended run's trace so far, so the resumed
// trace continues the original run instead of starting a fresh one.
type Continuation struct {
	RunID        string          `json:"runId"`
	AutomationID string          `json:"automationId"`
	ResumeAt     time.Time       `json:"resumeAt"`
	GroupID      string          `json:"groupId"`
	NextAction   int             `json:"nextAction"`
	Context      *TriggerContext `json:"context"`
	StartedAt    time.Time       `json:"startedAt"`
	Steps        []*TraceStep    `json:"steps,omitempty"`
}

func (t *Trace) addStep(kind StepKind, name string) *TraceStep {
	step := &TraceStep{
		Step:   len(t.Steps) + 1,
		Kind:   kind,
		Name:   name,
		Status: StatusPending,
	}
	t.Steps = append(t.Steps, step)
	return step
}

func (s *TraceStep) begin() {
	s.Status = StatusRunning
	s.startedAt = time.Now()
}

func (s *TraceStep) complete(message string, data map[string]any) {
	s.Status = StatusCompleted
	s.Message = message
	s.Data = data
	s.DurationMs = sinceMs(s.startedAt)
}

func (s *TraceStep) fail(err error) {
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	s.DurationMs = sinceMs(s.startedAt)
}

func sinceMs(from time.Time) int64 {
	if from.IsZero() {
		return 0
	}
	return time.Since(from).Milliseconds()
}
