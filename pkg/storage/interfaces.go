// Package storage provides persistence for workflow definitions.
package storage

import "errors"

// ErrDefinitionNotFound is returned when a stored definition is absent
var ErrDefinitionNotFound = errors.New("workflow definition not found")

// DefinitionRecord is a stored workflow definition with its metadata
type DefinitionRecord struct {
	// OrganizationID that owns the definition
	OrganizationID string `json:"organization_id"`

	// Name of the workflow
	Name string `json:"name"`

	// Version of the definition
	Version string `json:"version,omitempty"`

	// Description of the workflow
	Description string `json:"description,omitempty"`

	// YAML is the raw definition content
	YAML string `json:"yaml"`

	// CreatedAt is when the definition was first stored (unix seconds)
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when the definition was last stored (unix seconds)
	UpdatedAt int64 `json:"updated_at"`
}

// WorkflowStore persists raw workflow definitions per organization
type WorkflowStore interface {
	// SaveDefinition creates or replaces a definition
	SaveDefinition(record DefinitionRecord) error

	// GetDefinition retrieves a definition by organization and name
	GetDefinition(organizationID, name string) (DefinitionRecord, error)

	// ListDefinitions returns all definitions for an organization
	ListDefinitions(organizationID string) ([]DefinitionRecord, error)

	// DeleteDefinition removes a definition
	DeleteDefinition(organizationID, name string) error
}
