package approvals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryService is an in-memory approval service for tests and local
// development
type MemoryService struct {
	requests map[string]*ApprovalRequest
	mu       sync.RWMutex
}

// NewMemoryService creates an empty in-memory approval service
func NewMemoryService() *MemoryService {
	return &MemoryService{
		requests: make(map[string]*ApprovalRequest),
	}
}

// CreateApprovalRequest creates a pending request and returns its id
func (s *MemoryService) CreateApprovalRequest(ctx context.Context, organizationID, userID, approverID, approvalType, title, body string, metadata map[string]interface{}) (string, error) {
	if approverID == "" {
		return "", fmt.Errorf("approver id is required")
	}

	request := &ApprovalRequest{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		UserID:         userID,
		ApproverID:     approverID,
		ApprovalType:   approvalType,
		Title:          title,
		Body:           body,
		Metadata:       metadata,
		Status:         ApprovalPending,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = request
	return request.ID, nil
}

// Get returns a request by id
func (s *MemoryService) Get(ctx context.Context, approvalID string) (*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[approvalID]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	copied := *request
	return &copied, nil
}

// Resolve marks a pending request approved or rejected
func (s *MemoryService) Resolve(ctx context.Context, approvalID string, approved bool, resolution string) (*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[approvalID]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if request.Status != ApprovalPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, approvalID, request.Status)
	}

	now := time.Now()
	request.ResolvedAt = &now
	request.Resolution = resolution
	if approved {
		request.Status = ApprovalApproved
	} else {
		request.Status = ApprovalRejected
	}

	copied := *request
	return &copied, nil
}

// ListPending returns pending requests for an approver
func (s *MemoryService) ListPending(ctx context.Context, approverID string) ([]*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*ApprovalRequest
	for _, request := range s.requests {
		if request.ApproverID == approverID && request.Status == ApprovalPending {
			copied := *request
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}
