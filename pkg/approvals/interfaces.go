// Package approvals manages durable human-approval requests created by
// workflow approval gates and resolved out-of-band.
package approvals

import (
	"context"
	"errors"
	"time"
)

// Errors returned by approval services
var (
	ErrApprovalNotFound = errors.New("approval request not found")
	ErrAlreadyResolved  = errors.New("approval request already resolved")
)

// ApprovalStatus is the lifecycle state of an approval request
type ApprovalStatus string

// Approval statuses
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is a durable record awaiting a human decision
type ApprovalRequest struct {
	// ID of the request
	ID string `json:"id"`

	// OrganizationID of the owning tenant
	OrganizationID string `json:"organization_id"`

	// UserID of the user whose workflow is paused
	UserID string `json:"user_id"`

	// ApproverID of the human who must decide
	ApproverID string `json:"approver_id"`

	// ApprovalType categorizes the request, e.g. "content"
	ApprovalType string `json:"approval_type"`

	// Title is a human-readable summary
	Title string `json:"title"`

	// Body is the full request text
	Body string `json:"body"`

	// Metadata carries workflow context (workflow name, node id, session)
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Status of the request
	Status ApprovalStatus `json:"status"`

	// Resolution note recorded when the request is resolved
	Resolution string `json:"resolution,omitempty"`

	// CreatedAt is when the request was created
	CreatedAt time.Time `json:"created_at"`

	// ResolvedAt is when the request was approved or rejected
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Service creates and resolves approval requests. The workflow executor
// only calls CreateApprovalRequest; resolution happens through the API.
type Service interface {
	// CreateApprovalRequest creates a pending request and returns its id
	CreateApprovalRequest(ctx context.Context, organizationID, userID, approverID, approvalType, title, body string, metadata map[string]interface{}) (string, error)

	// Get returns a request by id
	Get(ctx context.Context, approvalID string) (*ApprovalRequest, error)

	// Resolve marks a pending request approved or rejected
	Resolve(ctx context.Context, approvalID string, approved bool, resolution string) (*ApprovalRequest, error)

	// ListPending returns pending requests for an approver
	ListPending(ctx context.Context, approverID string) ([]*ApprovalRequest, error)
}
