package base

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/gridbase/automations/automation"
)

// Schemas maps table IDs to their field schemas within one base.
type Schemas map[string]automation.TableSchema

// TableSchema implements automation.SchemaProvider.
func (s Schemas) TableSchema(_ context.Context, tableID string) (automation.TableSchema, error) {
	schema, ok := s[tableID]
	if !ok {
		return nil, fmt.Errorf("table %s not found", tableID)
	}
	return schema, nil
}

// BaseEngine wraps an automation.Engine with base-specific wiring.
type BaseEngine struct {
	BaseID  string
	Schemas Schemas
	Engine  *automation.Engine
	Store   automation.Store
	Scripts *automation.CELScriptRunner

	cache automation.Cache
}

// Manager manages engines for all bases. Each base gets its own engine,
// store, script sandbox and enabled-automations cache.
type Manager struct {
	bases    map[string]*BaseEngine
	db       *sql.DB
	data     automation.DataStore
	email    automation.EmailSender
	webhooks automation.WebhookCaller
	mu       sync.RWMutex
}

// NewManager creates a new manager instance. The collaborators are shared
// across bases; stores and sandboxes are per base.
func NewManager(db *sql.DB, data automation.DataStore, email automation.EmailSender, webhooks automation.WebhookCaller) *Manager {
	return &Manager{
		bases:    make(map[string]*BaseEngine),
		db:       db,
		data:     data,
		email:    email,
		webhooks: webhooks,
	}
}

// CreateCELEnvFromSchemas creates a sandbox environment for a base: the
// standard trigger variables plus one dynamic variable per table, so poll
// formulas can reference tables by name.
func CreateCELEnvFromSchemas(schemas Schemas) (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable("record", cel.DynType),
		cel.Variable("record_id", cel.StringType),
		cel.Variable("table_id", cel.StringType),
		cel.Variable("user", cel.StringType),
		cel.Variable("results", cel.DynType),
	}
	for tableID := range schemas {
		if tableID == "" {
			continue
		}
		opts = append(opts, cel.Variable(tableID, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// LoadAllBases loads all bases from the database and initializes their
// engines.
func (m *Manager) LoadAllBases() error {
	rows, err := m.db.Query(`
		SELECT b.id, s.definition
		FROM bases b
		JOIN base_schemas s ON s.base_id = b.id
		WHERE s.active = true
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch bases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var baseID string
		var schemaJSON []byte
		if err := rows.Scan(&baseID, &schemaJSON); err != nil {
			return fmt.Errorf("failed to scan base row: %w", err)
		}

		var schemas Schemas
		if err := json.Unmarshal(schemaJSON, &schemas); err != nil {
			return fmt.Errorf("invalid schemas for base %s: %w", baseID, err)
		}

		if err := m.CreateBase(baseID, schemas); err != nil {
			return fmt.Errorf("failed to initialize base %s: %w", baseID, err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating base rows: %w", err)
	}
	return nil
}

// CreateBase creates a new base engine with the given table schemas.
func (m *Manager) CreateBase(baseID string, schemas Schemas) error {
	be, err := m.buildBase(baseID, schemas)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.bases[baseID] = be
	m.mu.Unlock()
	return nil
}

func (m *Manager) buildBase(baseID string, schemas Schemas) (*BaseEngine, error) {
	env, err := CreateCELEnvFromSchemas(schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	scripts := automation.NewCELScriptRunnerWithEnv(env)

	var store automation.Store
	if m.db != nil {
		store = automation.NewPostgresStore(m.db, baseID)
	} else {
		store = automation.NewInMemoryStore()
	}

	engine := automation.NewEngine(schemas, m.data, m.email, m.webhooks, scripts)

	return &BaseEngine{
		BaseID:  baseID,
		Schemas: schemas,
		Engine:  engine,
		Store:   store,
		Scripts: scripts,
		cache:   automation.NewInMemoryCache(automation.DefaultCacheConfig()),
	}, nil
}

// GetBase retrieves the wiring for a specific base.
func (m *Manager) GetBase(baseID string) (*BaseEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	be, exists := m.bases[baseID]
	if !exists {
		return nil, fmt.Errorf("base %s not found", baseID)
	}
	return be, nil
}

// GetEngine retrieves the engine for a specific base.
func (m *Manager) GetEngine(baseID string) (*automation.Engine, error) {
	be, err := m.GetBase(baseID)
	if err != nil {
		return nil, err
	}
	return be.Engine, nil
}

// UpdateBaseSchemas persists a new schema set for a base and rebuilds its
// engine. Zero-downtime: the new engine is built first and swapped in
// atomically.
func (m *Manager) UpdateBaseSchemas(baseID string, newSchemas Schemas) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bases[baseID]; !exists {
		be, err := m.buildBase(baseID, newSchemas)
		if err != nil {
			return err
		}
		m.bases[baseID] = be
		return nil
	}

	if m.db != nil {
		if _, err := m.db.Exec(`
			UPDATE base_schemas SET active = false WHERE base_id = $1
		`, baseID); err != nil {
			return fmt.Errorf("failed to deactivate old schemas: %w", err)
		}

		schemaJSON, err := json.Marshal(newSchemas)
		if err != nil {
			return fmt.Errorf("failed to marshal schemas: %w", err)
		}

		if _, err := m.db.Exec(`
			INSERT INTO base_schemas (base_id, version, definition, active, created_at)
			SELECT $1, COALESCE(MAX(version), 0) + 1, $2, true, NOW()
			FROM base_schemas
			WHERE base_id = $1
		`, baseID, schemaJSON); err != nil {
			return fmt.Errorf("failed to save new schemas: %w", err)
		}
	}

	be, err := m.buildBase(baseID, newSchemas)
	if err != nil {
		return err
	}
	m.bases[baseID] = be
	return nil
}

// ListBases returns all loaded base IDs.
func (m *Manager) ListBases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bases := make([]string, 0, len(m.bases))
	for baseID := range m.bases {
		bases = append(bases, baseID)
	}
	return bases
}

// DeleteBase removes a base's engine from the manager. The base's rows stay
// in the database.
func (m *Manager) DeleteBase(baseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bases[baseID]; !exists {
		return fmt.Errorf("base %s not found", baseID)
	}
	delete(m.bases, baseID)
	return nil
}

// AddAutomation validates and stores a new automation definition.
func (be *BaseEngine) AddAutomation(a *automation.Automation) error {
	if err := ValidateAutomation(a, be.Schemas, be.Scripts); err != nil {
		return fmt.Errorf("automation validation failed: %w", err)
	}
	if err := be.Store.Add(a); err != nil {
		return err
	}
	be.cache.Invalidate()
	return nil
}

// UpdateAutomation validates and stores an updated definition.
func (be *BaseEngine) UpdateAutomation(a *automation.Automation) error {
	if err := ValidateAutomation(a, be.Schemas, be.Scripts); err != nil {
		return fmt.Errorf("automation validation failed: %w", err)
	}
	if err := be.Store.Update(a); err != nil {
		return err
	}
	be.cache.Invalidate()
	return nil
}

// DeleteAutomation removes a definition.
func (be *BaseEngine) DeleteAutomation(id string) error {
	if err := be.Store.Delete(id); err != nil {
		return err
	}
	be.cache.Invalidate()
	return nil
}

// EnabledAutomations returns the base's enabled automations, served from the
// cache between definition mutations.
func (be *BaseEngine) EnabledAutomations() ([]*automation.Automation, error) {
	if cached := be.cache.Get(); cached != nil {
		return cached, nil
	}
	enabled, err := be.Store.ListEnabled()
	if err != nil {
		return nil, err
	}
	be.cache.Set(enabled)
	return enabled, nil
}

// EnabledByTrigger narrows the cached enabled list to one trigger type. This
// is the dispatcher's lookup path, so trigger fan-out never hits the store
// between definition mutations.
func (be *BaseEngine) EnabledByTrigger(trigger automation.TriggerType) ([]*automation.Automation, error) {
	enabled, err := be.EnabledAutomations()
	if err != nil {
		return nil, err
	}
	var out []*automation.Automation
	for _, a := range enabled {
		if a.TriggerType == trigger {
			out = append(out, a)
		}
	}
	return out, nil
}
