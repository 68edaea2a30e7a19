package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	approvalKeyPrefix     = "approval:request:"
	approvalPendingPrefix = "approval:pending:"
	defaultApprovalTTL    = 7 * 24 * time.Hour
)

// RedisService is a Redis-backed approval service. Requests are stored as
// JSON values with a retention TTL; a per-approver set indexes pending
// requests.
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisService creates a Redis-backed approval service with the
// default 7-day retention
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{
		client: client,
		ttl:    defaultApprovalTTL,
	}
}

// CreateApprovalRequest creates a pending request and returns its id
func (s *RedisService) CreateApprovalRequest(ctx context.Context, organizationID, userID, approverID, approvalType, title, body string, metadata map[string]interface{}) (string, error) {
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

	if err := s.write(ctx, request); err != nil {
		return "", err
	}

	if err := s.client.SAdd(ctx, approvalPendingPrefix+approverID, request.ID).Err(); err != nil {
		return "", fmt.Errorf("failed to index approval request: %w", err)
	}
	s.client.Expire(ctx, approvalPendingPrefix+approverID, s.ttl)

	return request.ID, nil
}

// Get returns a request by id
func (s *RedisService) Get(ctx context.Context, approvalID string) (*ApprovalRequest, error) {
	data, err := s.client.Get(ctx, approvalKeyPrefix+approvalID).Result()
	if err == redis.Nil {
		return nil, ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}

	var request ApprovalRequest
	if err := json.Unmarshal([]byte(data), &request); err != nil {
		return nil, fmt.Errorf("failed to decode approval request: %w", err)
	}
	return &request, nil
}

// Resolve marks a pending request approved or rejected
func (s *RedisService) Resolve(ctx context.Context, approvalID string, approved bool, resolution string) (*ApprovalRequest, error) {
	request, err := s.Get(ctx, approvalID)
	if err != nil {
		return nil, err
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

	if err := s.write(ctx, request); err != nil {
		return nil, err
	}

	if err := s.client.SRem(ctx, approvalPendingPrefix+request.ApproverID, request.ID).Err(); err != nil {
		return nil, fmt.Errorf("failed to unindex approval request: %w", err)
	}

	return request, nil
}

// ListPending returns pending requests for an approver
func (s *RedisService) ListPending(ctx context.Context, approverID string) ([]*ApprovalRequest, error) {
	ids, err := s.client.SMembers(ctx, approvalPendingPrefix+approverID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	requests := make([]*ApprovalRequest, 0, len(ids))
	for _, id := range ids {
		request, err := s.Get(ctx, id)
		if err == ErrApprovalNotFound {
			// Expired under us; drop the stale index entry
			s.client.SRem(ctx, approvalPendingPrefix+approverID, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func (s *RedisService) write(ctx context.Context, request *ApprovalRequest) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to encode approval request: %w", err)
	}
	if err := s.client.Set(ctx, approvalKeyPrefix+request.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store approval request: %w", err)
	}
	return nil
}
