package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/agentflow/pkg/agents"
	"github.com/tcmartin/agentflow/pkg/approvals"
	"github.com/tcmartin/agentflow/pkg/checkpoint"
	"github.com/tcmartin/agentflow/pkg/config"
	"github.com/tcmartin/agentflow/pkg/executor"
	"github.com/tcmartin/agentflow/pkg/storage"
	"github.com/tcmartin/agentflow/pkg/workflow"
)

// stubDelegator answers every delegation with a fixed output
type stubDelegator struct{}

func (d *stubDelegator) Delegate(ctx context.Context, req agents.DelegationRequest) (*agents.DelegationResult, error) {
	return &agents.DelegationResult{
		Status: agents.DelegationSuccess,
		Output: "done: " + req.Context["node_id"].(string),
	}, nil
}

type testEnv struct {
	server      *Server
	ts          *httptest.Server
	approvals   approvals.Service
	checkpoints checkpoint.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	engine := workflow.NewEngine()
	require.NoError(t, engine.Register(&workflow.WorkflowDefinition{
		Name:           "simple",
		DefaultTimeout: 5 * time.Second,
		Nodes: []workflow.NodeSpec{
			{ID: "work", Type: workflow.NodeTypeAgent, AgentID: "worker"},
		},
		Edges: []workflow.EdgeSpec{
			{From: workflow.StartNodeID, To: "work"},
			{From: "work", To: workflow.EndNodeID},
		},
	}))
	require.NoError(t, engine.Register(&workflow.WorkflowDefinition{
		Name:           "gated",
		DefaultTimeout: 5 * time.Second,
		Nodes: []workflow.NodeSpec{
			{ID: "draft", Type: workflow.NodeTypeAgent, AgentID: "worker"},
			{ID: "sign_off", Type: workflow.NodeTypeHumanApproval},
			{ID: "publish", Type: workflow.NodeTypeAgent, AgentID: "worker"},
		},
		Edges: []workflow.EdgeSpec{
			{From: workflow.StartNodeID, To: "draft"},
			{From: "draft", To: "sign_off"},
			{From: "sign_off", To: "publish"},
			{From: "publish", To: workflow.EndNodeID},
		},
	}))

	registry := agents.NewMemoryRegistry()
	require.NoError(t, registry.Register(&agents.Agent{ID: "worker", Category: "general"}))

	approvalService := approvals.NewMemoryService()
	checkpoints := checkpoint.NewMemoryStore()
	exec := executor.NewExecutor(engine, registry, &stubDelegator{}, approvalService)

	server := NewServer(config.DefaultConfig(), engine, exec, approvalService, checkpoints, storage.NewMemoryWorkflowStore())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:      server,
		ts:          ts,
		approvals:   approvalService,
		checkpoints: checkpoints,
	}
}

func (env *testEnv) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(env.ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/v1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestExecuteWorkflow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/simple/execute", executeRequest{
		OrganizationID: "org-1",
		UserID:         "user-1",
		SessionID:      "sess-exec",
		UserRequest:    "do the work",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result executor.ExecutionResult
	decodeBody(t, resp, &result)
	assert.Equal(t, workflow.StatusCompleted, result.Status)
	assert.Equal(t, "done: work", result.Output)
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/missing/execute", executeRequest{SessionID: "s"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestExecuteRequiresSessionID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/simple/execute", executeRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestExecutePausedRunIsCheckpointed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/gated/execute", executeRequest{
		OrganizationID: "org-1",
		UserID:         "user-1",
		SessionID:      "sess-gated",
		UserRequest:    "publish it",
		Variables:      map[string]interface{}{"approverId": "approver-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result executor.ExecutionResult
	decodeBody(t, resp, &result)
	require.Equal(t, workflow.StatusWaitingApproval, result.Status)
	require.NotEmpty(t, result.ApprovalID)

	cp, err := env.checkpoints.Load(context.Background(), "sess-gated")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "gated", cp.WorkflowName)
	assert.Contains(t, cp.CompletedSteps, "draft")
}

func TestResolveApprovalResumesRun(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/gated/execute", executeRequest{
		SessionID: "sess-resume",
		Variables: map[string]interface{}{"approverId": "approver-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var paused executor.ExecutionResult
	decodeBody(t, resp, &paused)
	require.NotEmpty(t, paused.ApprovalID)

	resp = env.postJSON(t, fmt.Sprintf("/api/v1/approvals/%s/resolve", paused.ApprovalID),
		map[string]interface{}{"approved": true, "resolution": "looks good"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resolved resolveResponse
	decodeBody(t, resp, &resolved)
	assert.Equal(t, approvals.ApprovalApproved, resolved.Approval.Status)
	require.NotNil(t, resolved.Resumed)
	assert.Equal(t, workflow.StatusCompleted, resolved.Resumed.Status)
	assert.Equal(t, "done: publish", resolved.Resumed.Output)

	// The snapshot is gone once the run completes
	cp, err := env.checkpoints.Load(context.Background(), "sess-resume")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestResolveApprovalRejectionDiscardsCheckpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/gated/execute", executeRequest{
		SessionID: "sess-reject",
		Variables: map[string]interface{}{"approverId": "approver-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var paused executor.ExecutionResult
	decodeBody(t, resp, &paused)

	resp = env.postJSON(t, fmt.Sprintf("/api/v1/approvals/%s/resolve", paused.ApprovalID),
		map[string]interface{}{"approved": false, "resolution": "not yet"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resolved resolveResponse
	decodeBody(t, resp, &resolved)
	assert.Equal(t, approvals.ApprovalRejected, resolved.Approval.Status)
	assert.Nil(t, resolved.Resumed)

	cp, err := env.checkpoints.Load(context.Background(), "sess-reject")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestResolveApprovalTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/gated/execute", executeRequest{
		SessionID: "sess-twice",
		Variables: map[string]interface{}{"approverId": "approver-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var paused executor.ExecutionResult
	decodeBody(t, resp, &paused)

	resolveURL := fmt.Sprintf("/api/v1/approvals/%s/resolve", paused.ApprovalID)
	resp = env.postJSON(t, resolveURL, map[string]interface{}{"approved": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, resolveURL, map[string]interface{}{"approved": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestResolveUnknownApproval(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/approvals/nope/resolve", map[string]interface{}{"approved": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListPendingApprovals(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/gated/execute", executeRequest{
		SessionID: "sess-pending",
		Variables: map[string]interface{}{"approverId": "approver-list"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(env.ts.URL + "/api/v1/approvals/pending/approver-list")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pending []*approvals.ApprovalRequest
	decodeBody(t, resp, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, approvals.ApprovalPending, pending[0].Status)
}

func TestWorkflowCRUD(t *testing.T) {
	env := newTestEnv(t)

	yaml := `
name: uploaded
nodes:
  - id: step
    type: agent
    agent_id: worker
edges:
  - from: START
    to: step
  - from: step
    to: END
`
	resp := env.postJSON(t, "/api/v1/workflows/validate", map[string]string{"yaml": yaml})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var validation map[string]interface{}
	decodeBody(t, resp, &validation)
	assert.Equal(t, true, validation["valid"])

	req, err := http.NewRequest(http.MethodPut, env.ts.URL+"/api/v1/workflows/uploaded",
		strings.NewReader(fmt.Sprintf(`{"organization_id":"org-1","yaml":%q}`, yaml)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/api/v1/workflows/uploaded")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var def workflow.WorkflowDefinition
	decodeBody(t, resp, &def)
	assert.Equal(t, "uploaded", def.Name)

	resp, err = http.Get(env.ts.URL + "/api/v1/workflows")
	require.NoError(t, err)
	var list []map[string]interface{}
	decodeBody(t, resp, &list)
	assert.Len(t, list, 3)
}

func TestPutWorkflowNameMismatch(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPut, env.ts.URL+"/api/v1/workflows/other",
		strings.NewReader(`{"yaml":"name: uploaded\nnodes:\n  - id: a\n    type: agent\n    agent_id: w\nedges:\n  - from: START\n    to: a\n"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestValidateWorkflowInvalid(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/workflows/validate", map[string]string{"yaml": "name: broken\nnodes: []\n"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var validation map[string]interface{}
	decodeBody(t, resp, &validation)
	assert.Equal(t, false, validation["valid"])
	assert.NotEmpty(t, validation["error"])
}

func TestCheckpointAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.checkpoints.Save(ctx, &checkpoint.Checkpoint{
		SessionID:    "sess-admin",
		WorkflowName: "gated",
		CurrentStep:  "sign_off",
	})
	require.NoError(t, err)

	resp, err := http.Get(env.ts.URL + "/api/v1/checkpoints")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summaries []*checkpoint.Summary
	decodeBody(t, resp, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, "sess-admin", summaries[0].SessionID)

	resp, err = http.Get(env.ts.URL + "/api/v1/checkpoints/sess-admin")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cp checkpoint.Checkpoint
	decodeBody(t, resp, &cp)
	assert.Equal(t, "sign_off", cp.CurrentStep)

	req, err := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/v1/checkpoints/sess-admin", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/api/v1/checkpoints/sess-admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCheckpointCleanupEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	store := env.checkpoints.(*checkpoint.MemoryStore)
	stale, err := store.Save(ctx, &checkpoint.Checkpoint{SessionID: "old", WorkflowName: "gated"})
	require.NoError(t, err)
	stale.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)
	store.Overwrite(stale)

	resp := env.postJSON(t, "/api/v1/checkpoints/cleanup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body["removed"])
}

func TestWebSocketStreamsExecutionEvents(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/v1/executions/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the hub to register the client before executing
	require.Eventually(t, func() bool {
		return env.server.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	resp := env.postJSON(t, "/api/v1/workflows/simple/execute", executeRequest{SessionID: "sess-ws"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var types []executor.EventType
	for len(types) < 3 {
		var event executor.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "sess-ws", event.SessionID)
		types = append(types, event.Type)
	}

	assert.Equal(t, []executor.EventType{
		executor.EventNodeStarted,
		executor.EventNodeFinished,
		executor.EventRunFinished,
	}, types)
}
