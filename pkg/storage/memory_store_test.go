package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWorkflowStore(t *testing.T) {
	store := NewMemoryWorkflowStore()

	require.NoError(t, store.SaveDefinition(DefinitionRecord{
		OrganizationID: "org-1",
		Name:           "content-pipeline",
		Version:        "1.0.0",
		YAML:           "name: content-pipeline",
	}))

	record, err := store.GetDefinition("org-1", "content-pipeline")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", record.Version)
	assert.NotZero(t, record.CreatedAt)
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)

	// Re-saving preserves CreatedAt
	require.NoError(t, store.SaveDefinition(DefinitionRecord{
		OrganizationID: "org-1",
		Name:           "content-pipeline",
		Version:        "1.1.0",
		YAML:           "name: content-pipeline",
	}))
	updated, err := store.GetDefinition("org-1", "content-pipeline")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", updated.Version)
	assert.Equal(t, record.CreatedAt, updated.CreatedAt)

	records, err := store.ListDefinitions("org-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// Tenants are isolated
	records, err = store.ListDefinitions("org-2")
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, store.DeleteDefinition("org-1", "content-pipeline"))
	_, err = store.GetDefinition("org-1", "content-pipeline")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	err = store.DeleteDefinition("org-1", "content-pipeline")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}
