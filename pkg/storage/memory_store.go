package storage

import (
	"sync"
	"time"
)

// MemoryWorkflowStore implements WorkflowStore using in-memory maps
type MemoryWorkflowStore struct {
	definitions map[string]map[string]DefinitionRecord
	mu          sync.RWMutex
}

// NewMemoryWorkflowStore creates an empty in-memory store
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		definitions: make(map[string]map[string]DefinitionRecord),
	}
}

// SaveDefinition creates or replaces a definition
func (s *MemoryWorkflowStore) SaveDefinition(record DefinitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[record.OrganizationID]; !ok {
		s.definitions[record.OrganizationID] = make(map[string]DefinitionRecord)
	}

	now := time.Now().Unix()
	if existing, ok := s.definitions[record.OrganizationID][record.Name]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	s.definitions[record.OrganizationID][record.Name] = record
	return nil
}

// GetDefinition retrieves a definition by organization and name
func (s *MemoryWorkflowStore) GetDefinition(organizationID, name string) (DefinitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.definitions[organizationID][name]
	if !ok {
		return DefinitionRecord{}, ErrDefinitionNotFound
	}
	return record, nil
}

// ListDefinitions returns all definitions for an organization
func (s *MemoryWorkflowStore) ListDefinitions(organizationID string) ([]DefinitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]DefinitionRecord, 0, len(s.definitions[organizationID]))
	for _, record := range s.definitions[organizationID] {
		records = append(records, record)
	}
	return records, nil
}

// DeleteDefinition removes a definition
func (s *MemoryWorkflowStore) DeleteDefinition(organizationID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[organizationID][name]; !ok {
		return ErrDefinitionNotFound
	}
	delete(s.definitions[organizationID], name)
	return nil
}
