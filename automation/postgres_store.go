package automation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL, scoped to one base.
// Condition trees, trigger configs and action groups are stored as JSONB in
// the shapes that form the contract with the builder UI.
type PostgresStore struct {
	db     *sql.DB
	baseID string
}

// NewPostgresStore creates a PostgreSQL-backed Store for a specific base.
func NewPostgresStore(db *sql.DB, baseID string) *PostgresStore {
	return &PostgresStore{db: db, baseID: baseID}
}

// Add inserts a new automation.
func (s *PostgresStore) Add(a *Automation) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM automations WHERE id = $1 AND base_id = $2)
	`, a.ID, s.baseID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check automation existence: %w", err)
	}
	if exists {
		return fmt.Errorf("automation with ID %s already exists", a.ID)
	}

	triggerJSON, conditionJSON, groupsJSON, err := marshalDefinition(a)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO automations
			(id, base_id, table_id, name, trigger_type, trigger_config, condition, action_groups, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, s.baseID, a.TableID, a.Name, a.TriggerType,
		triggerJSON, conditionJSON, groupsJSON, a.Enabled, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert automation: %w", err)
	}
	return nil
}

// Get retrieves an automation by ID.
func (s *PostgresStore) Get(id string) (*Automation, error) {
	row := s.db.QueryRow(`
		SELECT id, table_id, name, trigger_type, trigger_config, condition, action_groups, enabled, created_at, updated_at
		FROM automations
		WHERE id = $1 AND base_id = $2
	`, id, s.baseID)

	a, err := scanAutomation(row, s.baseID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("automation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return a, nil
}

// List returns all of the base's automations regardless of enabled state.
func (s *PostgresStore) List() ([]*Automation, error) {
	return s.list(`
		SELECT id, table_id, name, trigger_type, trigger_config, condition, action_groups, enabled, created_at, updated_at
		FROM automations
		WHERE base_id = $1
		ORDER BY created_at ASC
	`, s.baseID)
}

// ListEnabled returns all enabled automations for the base.
func (s *PostgresStore) ListEnabled() ([]*Automation, error) {
	return s.list(`
		SELECT id, table_id, name, trigger_type, trigger_config, condition, action_groups, enabled, created_at, updated_at
		FROM automations
		WHERE base_id = $1 AND enabled = true
		ORDER BY created_at ASC
	`, s.baseID)
}

// ListByTrigger returns enabled automations with the given trigger type.
func (s *PostgresStore) ListByTrigger(t TriggerType) ([]*Automation, error) {
	return s.list(`
		SELECT id, table_id, name, trigger_type, trigger_config, condition, action_groups, enabled, created_at, updated_at
		FROM automations
		WHERE base_id = $1 AND enabled = true AND trigger_type = $2
		ORDER BY created_at ASC
	`, s.baseID, string(t))
}

func (s *PostgresStore) list(query string, args ...any) ([]*Automation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer rows.Close()

	var automations []*Automation
	for rows.Next() {
		a, err := scanAutomation(rows, s.baseID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		automations = append(automations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}
	return automations, nil
}

// Update modifies an existing automation.
func (s *PostgresStore) Update(a *Automation) error {
	if _, err := s.Get(a.ID); err != nil {
		return err
	}

	a.UpdatedAt = time.Now()
	triggerJSON, conditionJSON, groupsJSON, err := marshalDefinition(a)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(`
		UPDATE automations
		SET table_id = $1, name = $2, trigger_type = $3, trigger_config = $4,
		    condition = $5, action_groups = $6, enabled = $7, updated_at = $8
		WHERE id = $9 AND base_id = $10
	`, a.TableID, a.Name, a.TriggerType, triggerJSON, conditionJSON, groupsJSON,
		a.Enabled, a.UpdatedAt, a.ID, s.baseID)
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("automation %s not found", a.ID)
	}
	return nil
}

// Delete removes an automation from the database.
func (s *PostgresStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM automations
		WHERE id = $1 AND base_id = $2
	`, id, s.baseID)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("automation %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row rowScanner, baseID string) (*Automation, error) {
	var a Automation
	var triggerJSON, groupsJSON []byte
	var conditionJSON sql.NullString

	err := row.Scan(&a.ID, &a.TableID, &a.Name, &a.TriggerType,
		&triggerJSON, &conditionJSON, &groupsJSON,
		&a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.BaseID = baseID
	if err := json.Unmarshal(triggerJSON, &a.TriggerConfig); err != nil {
		return nil, fmt.Errorf("invalid trigger config for %s: %w", a.ID, err)
	}
	if conditionJSON.Valid && conditionJSON.String != "" && conditionJSON.String != "null" {
		if err := json.Unmarshal([]byte(conditionJSON.String), &a.Condition); err != nil {
			return nil, fmt.Errorf("invalid condition for %s: %w", a.ID, err)
		}
	}
	if err := json.Unmarshal(groupsJSON, &a.ActionGroups); err != nil {
		return nil, fmt.Errorf("invalid action groups for %s: %w", a.ID, err)
	}
	return &a, nil
}

func marshalDefinition(a *Automation) (trigger, condition, groups []byte, err error) {
	trigger, err = json.Marshal(a.TriggerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal trigger config: %w", err)
	}
	condition, err = json.Marshal(a.Condition)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal condition: %w", err)
	}
	if a.ActionGroups == nil {
		a.ActionGroups = []*ActionGroup{}
	}
	groups, err = json.Marshal(a.ActionGroups)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal action groups: %w", err)
	}
	return trigger, condition, groups, nil
}
