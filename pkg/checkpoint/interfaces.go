// Package checkpoint provides durable, versioned snapshots of workflow
// execution progress, keyed by session id. The store is a save/restore
// utility for the layer that owns crash recovery and approval resumption;
// the executor never calls it directly.
package checkpoint

import (
	"context"
	"time"
)

// DefaultRetention is how long a checkpoint survives without being
// re-saved
const DefaultRetention = 7 * 24 * time.Hour

// Checkpoint is a snapshot of an execution's progress
type Checkpoint struct {
	// WorkflowID of the execution
	WorkflowID string `json:"workflow_id"`

	// WorkflowName of the definition being executed
	WorkflowName string `json:"workflow_name"`

	// SessionID is the primary key
	SessionID string `json:"session_id"`

	// OrganizationID of the owning tenant
	OrganizationID string `json:"organization_id"`

	// UserID of the initiating user
	UserID string `json:"user_id"`

	// CompletedSteps lists the node ids that finished successfully
	CompletedSteps []string `json:"completed_steps"`

	// CurrentStep is the node the execution was at when snapshotted
	CurrentStep string `json:"current_step"`

	// State is a copy of the execution's variables
	State map[string]interface{} `json:"state"`

	// NodeResults is a copy of the per-node results
	NodeResults map[string]interface{} `json:"node_results"`

	// CreatedAt is preserved across saves for the same session
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed on every save
	UpdatedAt time.Time `json:"updated_at"`

	// Version increments on every save for the session
	Version int64 `json:"version"`
}

// Summary is a listing view of a checkpoint without its full state
type Summary struct {
	// WorkflowID of the execution
	WorkflowID string `json:"workflow_id"`

	// WorkflowName of the definition
	WorkflowName string `json:"workflow_name"`

	// SessionID is the primary key
	SessionID string `json:"session_id"`

	// OrganizationID of the owning tenant
	OrganizationID string `json:"organization_id"`

	// CurrentStep the execution was at
	CurrentStep string `json:"current_step"`

	// CompletedCount is the number of completed steps
	CompletedCount int `json:"completed_count"`

	// CreatedAt of the checkpoint
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt of the checkpoint
	UpdatedAt time.Time `json:"updated_at"`

	// Version of the checkpoint
	Version int64 `json:"version"`
}

// Store persists checkpoints. Concurrent saves for different sessions
// never conflict; concurrent saves for the same session race on the
// version bump and the last writer wins.
type Store interface {
	// Save writes a snapshot, preserving CreatedAt and incrementing
	// Version relative to any existing checkpoint for the session
	Save(ctx context.Context, cp *Checkpoint) (*Checkpoint, error)

	// Load returns the checkpoint for a session, or nil (not an error)
	// when absent or unreadable
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)

	// Delete removes a checkpoint and reports whether one existed
	Delete(ctx context.Context, sessionID string) (bool, error)

	// List returns summaries of the most recently updated sessions
	List(ctx context.Context, limit int) ([]*Summary, error)

	// Cleanup removes every checkpoint not updated since the cutoff and
	// returns the number removed
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}
