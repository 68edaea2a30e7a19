package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	checkpointKeyPrefix = "checkpoint:session:"
	checkpointIndexKey  = "checkpoint:index"
)

// RedisStore is a Redis-backed checkpoint store. Checkpoints are JSON
// values written with a retention TTL; a sorted set scored by UpdatedAt
// provides the time-ordered index used by List and Cleanup.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a Redis-backed store with the default retention
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		retention: DefaultRetention,
	}
}

// NewRedisStoreWithRetention creates a store with a custom retention
// window
func NewRedisStoreWithRetention(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		retention: retention,
	}
}

// Save writes a snapshot, preserving CreatedAt and bumping Version from
// any existing checkpoint for the session. The read-then-write is not
// transactional: same-session writers race and the last one wins.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) (*Checkpoint, error) {
	if cp.SessionID == "" {
		return nil, fmt.Errorf("checkpoint session id is required")
	}

	saved := *cp
	saved.UpdatedAt = time.Now()
	saved.Version = 1
	saved.CreatedAt = saved.UpdatedAt

	if existing, err := s.Load(ctx, cp.SessionID); err != nil {
		return nil, err
	} else if existing != nil {
		saved.CreatedAt = existing.CreatedAt
		saved.Version = existing.Version + 1
	}

	data, err := json.Marshal(&saved)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, checkpointKeyPrefix+saved.SessionID, data, s.retention).Err(); err != nil {
		return nil, fmt.Errorf("failed to store checkpoint: %w", err)
	}

	err = s.client.ZAdd(ctx, checkpointIndexKey, &redis.Z{
		Score:  float64(saved.UpdatedAt.UnixMilli()),
		Member: saved.SessionID,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to index checkpoint: %w", err)
	}

	return &saved, nil
}

// Load returns the checkpoint for a session. Absence and deserialization
// failure both yield nil without an error.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, checkpointKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// Delete removes the checkpoint and its index entry
func (s *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	removed, err := s.client.Del(ctx, checkpointKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if err := s.client.ZRem(ctx, checkpointIndexKey, sessionID).Err(); err != nil {
		return false, fmt.Errorf("failed to unindex checkpoint: %w", err)
	}
	return removed > 0, nil
}

// List returns summaries of the most recently updated sessions, newest
// first
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	sessionIDs, err := s.client.ZRevRange(ctx, checkpointIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}

	summaries := make([]*Summary, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		cp, err := s.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			// Value expired but the index entry survived
			s.client.ZRem(ctx, checkpointIndexKey, sessionID)
			continue
		}
		summaries = append(summaries, summarize(cp))
	}
	return summaries, nil
}

// Cleanup removes every indexed checkpoint whose UpdatedAt is at or
// before the cutoff
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := strconv.FormatInt(olderThan.UnixMilli(), 10)

	sessionIDs, err := s.client.ZRangeByScore(ctx, checkpointIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan checkpoint index: %w", err)
	}

	for _, sessionID := range sessionIDs {
		if err := s.client.Del(ctx, checkpointKeyPrefix+sessionID).Err(); err != nil {
			return 0, fmt.Errorf("failed to delete checkpoint %s: %w", sessionID, err)
		}
	}

	if err := s.client.ZRemRangeByScore(ctx, checkpointIndexKey, "-inf", cutoff).Err(); err != nil {
		return 0, fmt.Errorf("failed to trim checkpoint index: %w", err)
	}

	return len(sessionIDs), nil
}

func summarize(cp *Checkpoint) *Summary {
	return &Summary{
		WorkflowID:     cp.WorkflowID,
		WorkflowName:   cp.WorkflowName,
		SessionID:      cp.SessionID,
		OrganizationID: cp.OrganizationID,
		CurrentStep:    cp.CurrentStep,
		CompletedCount: len(cp.CompletedSteps),
		CreatedAt:      cp.CreatedAt,
		UpdatedAt:      cp.UpdatedAt,
		Version:        cp.Version,
	}
}
