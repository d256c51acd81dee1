package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gridbase/automations/automation"
	"github.com/gridbase/automations/base"
	"github.com/gridbase/automations/internal/logger"
)

// RecordSource lists a table's current records for condition-poll triggers,
// keyed by record ID.
type RecordSource interface {
	ListRecords(ctx context.Context, baseID, tableID string) (map[string]map[string]any, error)
}

// RecordEvent is one row change reported by the table service.
type RecordEvent struct {
	Type          automation.TriggerType `json:"type"`
	TableID       string                 `json:"tableId"`
	RecordID      string                 `json:"recordId"`
	Record        map[string]any         `json:"record,omitempty"`
	ChangedFields []string               `json:"changedFields,omitempty"`
	User          string                 `json:"user,omitempty"`
}

// Dispatcher turns trigger occurrences into engine runs and persists their
// traces. Record and webhook events arrive synchronously via the Dispatch
// methods; schedules, condition polls and delayed-run resumption are driven
// by internal cron ticks.
type Dispatcher struct {
	manager *base.Manager
	runs    automation.RunStore
	records RecordSource

	cron *cron.Cron

	// nextFire holds the computed next fire instant per schedule automation.
	nextFire map[string]time.Time
	// pollState holds the last formula result per automation/record pair,
	// so condition triggers fire only on a false-to-true transition.
	pollState  map[string]bool
	lastPolled map[string]time.Time
	mu         sync.Mutex
}

// NewDispatcher wires a dispatcher. records may be nil when no condition
// triggers are in use.
func NewDispatcher(manager *base.Manager, runs automation.RunStore, records RecordSource) *Dispatcher {
	return &Dispatcher{
		manager:    manager,
		runs:       runs,
		records:    records,
		nextFire:   make(map[string]time.Time),
		pollState:  make(map[string]bool),
		lastPolled: make(map[string]time.Time),
	}
}

// Start launches the background tick loops. Ticks that are still running when
// the next one is due are skipped rather than stacked.
func (d *Dispatcher) Start() error {
	if d.cron != nil {
		return fmt.Errorf("dispatcher already started")
	}
	d.cron = cron.New(
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)

	if _, err := d.cron.AddFunc("@every 15s", d.scheduleTick); err != nil {
		return fmt.Errorf("failed to register schedule tick: %w", err)
	}
	if _, err := d.cron.AddFunc("@every 10s", d.pollTick); err != nil {
		return fmt.Errorf("failed to register poll tick: %w", err)
	}
	if _, err := d.cron.AddFunc("@every 15s", d.resumeTick); err != nil {
		return fmt.Errorf("failed to register resume tick: %w", err)
	}

	d.cron.Start()
	logger.Info("dispatcher started")
	return nil
}

// Stop halts the tick loops and waits for in-flight ticks to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	logger.Info("dispatcher stopped")
}

// DispatchRecordEvent runs every enabled automation matching a row change and
// returns their traces. row_updated automations with watched fields only fire
// when one of the watched fields changed.
func (d *Dispatcher) DispatchRecordEvent(ctx context.Context, baseID string, ev RecordEvent) ([]*automation.Trace, error) {
	be, err := d.manager.GetBase(baseID)
	if err != nil {
		return nil, err
	}
	matching, err := be.EnabledByTrigger(ev.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations for %s: %w", ev.Type, err)
	}

	var traces []*automation.Trace
	for _, a := range matching {
		if a.TableID != ev.TableID {
			continue
		}
		if ev.Type == automation.TriggerRowUpdated &&
			!watchedFieldsMatch(a.TriggerConfig.WatchedFields, ev.ChangedFields) {
			continue
		}
		tc := automation.NewTriggerContext(ev.TableID, ev.RecordID, ev.Record, time.Now(), ev.User)
		trace := be.Engine.Run(ctx, a, tc)
		d.persist(trace)
		traces = append(traces, trace)
	}
	return traces, nil
}

// DispatchWebhook runs every enabled webhook automation registered for the
// given webhook ID, with the inbound payload available to templates.
func (d *Dispatcher) DispatchWebhook(ctx context.Context, baseID, webhookID string, payload map[string]any) ([]*automation.Trace, error) {
	be, err := d.manager.GetBase(baseID)
	if err != nil {
		return nil, err
	}
	matching, err := be.EnabledByTrigger(automation.TriggerWebhook)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook automations: %w", err)
	}

	var traces []*automation.Trace
	for _, a := range matching {
		if a.TriggerConfig.WebhookID != webhookID {
			continue
		}
		tc := automation.NewTriggerContext(a.TableID, "", nil, time.Now(), "")
		tc.Payload = payload
		trace := be.Engine.Run(ctx, a, tc)
		d.persist(trace)
		traces = append(traces, trace)
	}
	return traces, nil
}

// scheduleTick fires schedule automations whose next fire instant has passed.
// The first tick after an automation appears only computes its next instant,
// so restarts never replay past occurrences.
func (d *Dispatcher) scheduleTick() {
	ctx := context.Background()
	now := time.Now()
	active := make(map[string]bool)

	d.forEachBase(func(be *base.BaseEngine) {
		scheduled, err := be.EnabledByTrigger(automation.TriggerSchedule)
		if err != nil {
			logger.Error("failed to list schedule automations", "base", be.BaseID, "error", err)
			return
		}
		for _, a := range scheduled {
			spec := a.TriggerConfig.Schedule
			if spec == nil {
				continue
			}
			active[a.ID] = true

			d.mu.Lock()
			next, known := d.nextFire[a.ID]
			d.mu.Unlock()

			if !known {
				computed, err := automation.NextFireTime(spec, now)
				if err != nil {
					logger.Warn("invalid schedule", "automation", a.ID, "error", err)
					continue
				}
				d.mu.Lock()
				d.nextFire[a.ID] = computed
				d.mu.Unlock()
				continue
			}
			if now.Before(next) {
				continue
			}

			computed, err := automation.NextFireTime(spec, now)
			if err != nil {
				logger.Warn("invalid schedule", "automation", a.ID, "error", err)
				continue
			}
			d.mu.Lock()
			d.nextFire[a.ID] = computed
			d.mu.Unlock()

			tc := automation.NewTriggerContext(a.TableID, "", nil, next, "")
			trace := be.Engine.Run(ctx, a, tc)
			d.persist(trace)
		}
	})

	// Forget instants of automations that were deleted or disabled, so a
	// later re-enable primes fresh instead of replaying a stale instant.
	d.mu.Lock()
	for id := range d.nextFire {
		if !active[id] {
			delete(d.nextFire, id)
		}
	}
	d.mu.Unlock()
}

// pollTick evaluates condition-trigger formulas per record and fires on a
// false-to-true transition.
func (d *Dispatcher) pollTick() {
	if d.records == nil {
		return
	}
	ctx := context.Background()
	now := time.Now()
	active := make(map[string]bool)

	d.forEachBase(func(be *base.BaseEngine) {
		polled, err := be.EnabledByTrigger(automation.TriggerCondition)
		if err != nil {
			logger.Error("failed to list condition automations", "base", be.BaseID, "error", err)
			return
		}
		for _, a := range polled {
			poll := a.TriggerConfig.Poll
			if poll == nil {
				continue
			}
			active[a.ID] = true

			d.mu.Lock()
			last := d.lastPolled[a.ID]
			due := now.Sub(last) >= time.Duration(poll.IntervalSeconds)*time.Second
			if due {
				d.lastPolled[a.ID] = now
			}
			d.mu.Unlock()
			if !due {
				continue
			}

			records, err := d.records.ListRecords(ctx, be.BaseID, a.TableID)
			if err != nil {
				logger.Warn("failed to list records for poll",
					"automation", a.ID, "table", a.TableID, "error", err)
				continue
			}

			for recordID, record := range records {
				input := map[string]any{
					"record":    record,
					"record_id": recordID,
					"table_id":  a.TableID,
					"user":      "",
					"results":   map[string]any{},
				}
				matched, err := be.Scripts.EvalBool(ctx, poll.Formula, input)
				if err != nil {
					logger.Warn("poll formula failed", "automation", a.ID, "error", err)
					break
				}

				key := a.ID + "/" + recordID
				d.mu.Lock()
				prev := d.pollState[key]
				d.pollState[key] = matched
				d.mu.Unlock()

				if matched && !prev {
					tc := automation.NewTriggerContext(a.TableID, recordID, record, now, "")
					trace := be.Engine.Run(ctx, a, tc)
					d.persist(trace)
				}
			}
		}
	})

	// Drop poll state of automations that were deleted or disabled, so a
	// recreated automation starts from a clean edge detector.
	d.mu.Lock()
	for id := range d.lastPolled {
		if !active[id] {
			delete(d.lastPolled, id)
		}
	}
	for key := range d.pollState {
		id, _, _ := strings.Cut(key, "/")
		if !active[id] {
			delete(d.pollState, key)
		}
	}
	d.mu.Unlock()
}

// resumeTick continues runs whose delay has elapsed. A continuation whose
// automation no longer exists is dropped.
func (d *Dispatcher) resumeTick() {
	if d.runs == nil {
		return
	}
	ctx := context.Background()

	due, err := d.runs.DueContinuations(time.Now())
	if err != nil {
		logger.Error("failed to list due continuations", "error", err)
		return
	}

	for _, cont := range due {
		be, a := d.findAutomation(cont.AutomationID)
		if a == nil {
			logger.Warn("dropping continuation for missing automation",
				"run", cont.RunID, "automation", cont.AutomationID)
			if err := d.runs.DeleteContinuation(cont.RunID); err != nil {
				logger.Error("failed to delete continuation", "run", cont.RunID, "error", err)
			}
			continue
		}

		// Unpark before resuming: a run that hits another delay saves a
		// fresh continuation under the same run ID, which must outlive
		// this tick.
		if err := d.runs.DeleteContinuation(cont.RunID); err != nil {
			logger.Error("failed to delete continuation", "run", cont.RunID, "error", err)
		}
		trace := be.Engine.Resume(ctx, a, cont)
		d.persist(trace)
	}
}

func (d *Dispatcher) forEachBase(fn func(be *base.BaseEngine)) {
	for _, baseID := range d.manager.ListBases() {
		be, err := d.manager.GetBase(baseID)
		if err != nil {
			continue
		}
		fn(be)
	}
}

func (d *Dispatcher) findAutomation(automationID string) (*base.BaseEngine, *automation.Automation) {
	for _, baseID := range d.manager.ListBases() {
		be, err := d.manager.GetBase(baseID)
		if err != nil {
			continue
		}
		if a, err := be.Store.Get(automationID); err == nil {
			return be, a
		}
	}
	return nil, nil
}

func (d *Dispatcher) persist(trace *automation.Trace) {
	if d.runs == nil {
		return
	}
	if err := d.runs.SaveTrace(trace); err != nil {
		logger.Error("failed to save trace", "run", trace.RunID, "error", err)
	}
	if trace.Suspension != nil {
		if err := d.runs.SaveContinuation(trace.Suspension); err != nil {
			logger.Error("failed to save continuation", "run", trace.RunID, "error", err)
		}
	}
}

func watchedFieldsMatch(watched, changed []string) bool {
	if len(watched) == 0 {
		return true
	}
	for _, w := range watched {
		for _, c := range changed {
			if w == c {
				return true
			}
		}
	}
	return false
}
