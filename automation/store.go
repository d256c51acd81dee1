package automation

import (
	"fmt"
	"sync"
	"time"
)

// Store manages automation definition persistence and retrieval. Definitions
// are the durable contract with the builder UI; the engine only ever reads
// them.
type Store interface {
	// Add a new automation
	Add(a *Automation) error

	// Get an automation by ID
	Get(id string) (*Automation, error)

	// List returns all automations, enabled or not
	List() ([]*Automation, error)

	// ListEnabled returns all enabled automations
	ListEnabled() ([]*Automation, error)

	// ListByTrigger returns enabled automations with the given trigger type
	ListByTrigger(t TriggerType) ([]*Automation, error)

	// Update an existing automation
	Update(a *Automation) error

	// Delete an automation
	Delete(id string) error
}

// InMemoryStore implements Store using an in-memory map. Thread-safe with an
// RWMutex.
type InMemoryStore struct {
	automations map[string]*Automation
	mu          sync.RWMutex
}

// NewInMemoryStore creates a new in-memory automation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		automations: make(map[string]*Automation),
	}
}

// Add adds a new automation, enforcing unique IDs and stamping timestamps.
func (s *InMemoryStore) Add(a *Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.automations[a.ID]; exists {
		return fmt.Errorf("automation with ID %s already exists", a.ID)
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.automations[a.ID] = a
	return nil
}

// Get retrieves an automation by ID.
func (s *InMemoryStore) Get(id string) (*Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.automations[id]
	if !exists {
		return nil, fmt.Errorf("automation with ID %s not found", id)
	}
	return a, nil
}

// List returns all automations regardless of enabled state.
func (s *InMemoryStore) List() ([]*Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Automation, 0, len(s.automations))
	for _, a := range s.automations {
		all = append(all, a)
	}
	return all, nil
}

// ListEnabled returns all enabled automations.
func (s *InMemoryStore) ListEnabled() ([]*Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var enabled []*Automation
	for _, a := range s.automations {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled, nil
}

// ListByTrigger returns enabled automations with the given trigger type.
func (s *InMemoryStore) ListByTrigger(t TriggerType) ([]*Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Automation
	for _, a := range s.automations {
		if a.Enabled && a.TriggerType == t {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// Update updates an existing automation, preserving CreatedAt.
func (s *InMemoryStore) Update(a *Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.automations[a.ID]
	if !exists {
		return fmt.Errorf("automation with ID %s not found", a.ID)
	}

	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now()
	s.automations[a.ID] = a
	return nil
}

// Delete removes an automation from the store.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.automations[id]; !exists {
		return fmt.Errorf("automation with ID %s not found", id)
	}

	delete(s.automations, id)
	return nil
}
