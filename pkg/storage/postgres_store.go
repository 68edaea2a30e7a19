package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresWorkflowStore implements WorkflowStore backed by PostgreSQL
type PostgresWorkflowStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgresWorkflowStore connects to PostgreSQL and returns a store
func NewPostgresWorkflowStore(config PostgresConfig) (*PostgresWorkflowStore, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PostgresWorkflowStore{db: db}, nil
}

// Initialize creates the definitions table if it does not exist
func (s *PostgresWorkflowStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_definitions (
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			version TEXT,
			description TEXT,
			yaml TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (organization_id, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create workflow_definitions table: %w", err)
	}
	return nil
}

// Close releases the database connection
func (s *PostgresWorkflowStore) Close() error {
	return s.db.Close()
}

// SaveDefinition creates or replaces a definition
func (s *PostgresWorkflowStore) SaveDefinition(record DefinitionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_definitions (organization_id, name, version, description, yaml, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, EXTRACT(EPOCH FROM NOW())::BIGINT, EXTRACT(EPOCH FROM NOW())::BIGINT)
		ON CONFLICT (organization_id, name) DO UPDATE SET
			version = EXCLUDED.version,
			description = EXCLUDED.description,
			yaml = EXCLUDED.yaml,
			updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
	`, record.OrganizationID, record.Name, record.Version, record.Description, record.YAML)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by organization and name
func (s *PostgresWorkflowStore) GetDefinition(organizationID, name string) (DefinitionRecord, error) {
	var record DefinitionRecord
	err := s.db.QueryRow(`
		SELECT organization_id, name, COALESCE(version, ''), COALESCE(description, ''), yaml, created_at, updated_at
		FROM workflow_definitions
		WHERE organization_id = $1 AND name = $2
	`, organizationID, name).Scan(
		&record.OrganizationID, &record.Name, &record.Version,
		&record.Description, &record.YAML, &record.CreatedAt, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return DefinitionRecord{}, ErrDefinitionNotFound
	}
	if err != nil {
		return DefinitionRecord{}, fmt.Errorf("failed to get workflow definition: %w", err)
	}
	return record, nil
}

// ListDefinitions returns all definitions for an organization
func (s *PostgresWorkflowStore) ListDefinitions(organizationID string) ([]DefinitionRecord, error) {
	rows, err := s.db.Query(`
		SELECT organization_id, name, COALESCE(version, ''), COALESCE(description, ''), yaml, created_at, updated_at
		FROM workflow_definitions
		WHERE organization_id = $1
		ORDER BY name
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var records []DefinitionRecord
	for rows.Next() {
		var record DefinitionRecord
		if err := rows.Scan(
			&record.OrganizationID, &record.Name, &record.Version,
			&record.Description, &record.YAML, &record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteDefinition removes a definition
func (s *PostgresWorkflowStore) DeleteDefinition(organizationID, name string) error {
	result, err := s.db.Exec(`
		DELETE FROM workflow_definitions WHERE organization_id = $1 AND name = $2
	`, organizationID, name)
	if err != nil {
		return fmt.Errorf("failed to delete workflow definition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}
