package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/agentflow/pkg/checkpoint"
)

func TestSweepRemovesExpired(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	stale, err := store.Save(ctx, &checkpoint.Checkpoint{
		SessionID:    "stale",
		WorkflowName: "wf",
	})
	require.NoError(t, err)

	// Backdate the stale checkpoint past the retention window
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	store.Overwrite(stale)

	_, err = store.Save(ctx, &checkpoint.Checkpoint{
		SessionID:    "fresh",
		WorkflowName: "wf",
	})
	require.NoError(t, err)

	sched := NewRetentionScheduler(store, 24*time.Hour)
	removed := sched.Sweep(ctx)
	assert.Equal(t, 1, removed)

	loaded, err := store.Load(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	loaded, err = store.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestSweepNothingExpired(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sched := NewRetentionScheduler(store, 24*time.Hour)
	assert.Equal(t, 0, sched.Sweep(context.Background()))
}

func TestStartStop(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sched := NewRetentionScheduler(store, 0)
	assert.Equal(t, checkpoint.DefaultRetention, sched.window)

	require.NoError(t, sched.Start("0 0 * * * *"))
	sched.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	sched := NewRetentionScheduler(checkpoint.NewMemoryStore(), time.Hour)
	assert.Error(t, sched.Start("not a schedule"))
}
