package automation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RunStore persists execution traces and the continuations of runs suspended
// by delay actions. Continuations outlive the process: a restart picks up
// pending delayed runs from here.
type RunStore interface {
	// SaveTrace persists a completed or suspended run's trace
	SaveTrace(trace *Trace) error

	// ListTraces returns the most recent traces for an automation, newest first
	ListTraces(automationID string, limit int) ([]*Trace, error)

	// SaveContinuation parks a suspended run
	SaveContinuation(cont *Continuation) error

	// DueContinuations returns continuations whose resume instant has passed
	DueContinuations(now time.Time) ([]*Continuation, error)

	// DeleteContinuation removes a continuation after resume or cancellation
	DeleteContinuation(runID string) error
}

// InMemoryRunStore implements RunStore with maps. Traces and continuations do
// not survive a restart; use the Postgres implementation in production.
type InMemoryRunStore struct {
	traces        map[string][]*Trace // automationID -> traces, newest last
	continuations map[string]*Continuation
	mu            sync.RWMutex
}

// NewInMemoryRunStore creates a new in-memory run store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		traces:        make(map[string][]*Trace),
		continuations: make(map[string]*Continuation),
	}
}

func (s *InMemoryRunStore) SaveTrace(trace *Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Saving the same run again (a suspended run finishing after resume)
	// replaces the earlier trace, mirroring the Postgres upsert.
	list := s.traces[trace.AutomationID]
	for i, existing := range list {
		if existing.RunID == trace.RunID {
			list[i] = trace
			return nil
		}
	}
	s.traces[trace.AutomationID] = append(list, trace)
	return nil
}

func (s *InMemoryRunStore) ListTraces(automationID string, limit int) ([]*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.traces[automationID]
	out := make([]*Trace, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *InMemoryRunStore) SaveContinuation(cont *Continuation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuations[cont.RunID] = cont
	return nil
}

func (s *InMemoryRunStore) DueContinuations(now time.Time) ([]*Continuation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Continuation
	for _, cont := range s.continuations {
		if !cont.ResumeAt.After(now) {
			due = append(due, cont)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ResumeAt.Before(due[j].ResumeAt) })
	return due, nil
}

func (s *InMemoryRunStore) DeleteContinuation(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.continuations[runID]; !exists {
		return fmt.Errorf("continuation for run %s not found", runID)
	}
	delete(s.continuations, runID)
	return nil
}

// PostgresRunStore implements RunStore backed by PostgreSQL.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore creates a PostgreSQL-backed run store.
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

func (s *PostgresRunStore) SaveTrace(trace *Trace) error {
	stepsJSON, err := json.Marshal(trace.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal trace steps: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO automation_runs
			(run_id, automation_id, dry_run, started_at, finished_at, steps, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at, steps = EXCLUDED.steps,
		    success = EXCLUDED.success, error = EXCLUDED.error
	`, trace.RunID, trace.AutomationID, trace.DryRun, trace.StartedAt,
		trace.FinishedAt, stepsJSON, trace.Success, trace.Error)
	if err != nil {
		return fmt.Errorf("failed to save trace: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) ListTraces(automationID string, limit int) ([]*Trace, error) {
	rows, err := s.db.Query(`
		SELECT run_id, automation_id, dry_run, started_at, finished_at, steps, success, error
		FROM automation_runs
		WHERE automation_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var traces []*Trace
	for rows.Next() {
		var t Trace
		var stepsJSON []byte
		if err := rows.Scan(&t.RunID, &t.AutomationID, &t.DryRun,
			&t.StartedAt, &t.FinishedAt, &stepsJSON, &t.Success, &t.Error); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		if err := json.Unmarshal(stepsJSON, &t.Steps); err != nil {
			return nil, fmt.Errorf("invalid steps for run %s: %w", t.RunID, err)
		}
		traces = append(traces, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating traces: %w", err)
	}
	return traces, nil
}

func (s *PostgresRunStore) SaveContinuation(cont *Continuation) error {
	ctxJSON, err := json.Marshal(cont.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation context: %w", err)
	}
	stepsJSON, err := json.Marshal(cont.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation steps: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO automation_continuations
			(run_id, automation_id, resume_at, group_id, next_action, context, started_at, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE
		SET resume_at = EXCLUDED.resume_at, group_id = EXCLUDED.group_id,
		    next_action = EXCLUDED.next_action, context = EXCLUDED.context,
		    started_at = EXCLUDED.started_at, steps = EXCLUDED.steps
	`, cont.RunID, cont.AutomationID, cont.ResumeAt, cont.GroupID, cont.NextAction,
		ctxJSON, cont.StartedAt, stepsJSON)
	if err != nil {
		return fmt.Errorf("failed to save continuation: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) DueContinuations(now time.Time) ([]*Continuation, error) {
	rows, err := s.db.Query(`
		SELECT run_id, automation_id, resume_at, group_id, next_action, context, started_at, steps
		FROM automation_continuations
		WHERE resume_at <= $1
		ORDER BY resume_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list continuations: %w", err)
	}
	defer rows.Close()

	var due []*Continuation
	for rows.Next() {
		var c Continuation
		var ctxJSON, stepsJSON []byte
		if err := rows.Scan(&c.RunID, &c.AutomationID, &c.ResumeAt,
			&c.GroupID, &c.NextAction, &ctxJSON, &c.StartedAt, &stepsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan continuation: %w", err)
		}
		if err := json.Unmarshal(ctxJSON, &c.Context); err != nil {
			return nil, fmt.Errorf("invalid context for run %s: %w", c.RunID, err)
		}
		if err := json.Unmarshal(stepsJSON, &c.Steps); err != nil {
			return nil, fmt.Errorf("invalid steps for run %s: %w", c.RunID, err)
		}
		due = append(due, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating continuations: %w", err)
	}
	return due, nil
}

func (s *PostgresRunStore) DeleteContinuation(runID string) error {
	result, err := s.db.Exec(`
		DELETE FROM automation_continuations WHERE run_id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete continuation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("continuation for run %s not found", runID)
	}
	return nil
}
