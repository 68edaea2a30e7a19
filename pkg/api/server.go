// Package api exposes the workflow engine over HTTP: execution, workflow
// definition management, approval resolution and checkpoint administration,
// plus a WebSocket stream of execution events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tcmartin/agentflow/pkg/approvals"
	"github.com/tcmartin/agentflow/pkg/checkpoint"
	"github.com/tcmartin/agentflow/pkg/config"
	"github.com/tcmartin/agentflow/pkg/executor"
	"github.com/tcmartin/agentflow/pkg/logging"
	"github.com/tcmartin/agentflow/pkg/storage"
	"github.com/tcmartin/agentflow/pkg/workflow"
)

// Server is the HTTP API server
type Server struct {
	config      *config.Config
	router      *mux.Router
	server      *http.Server
	engine      *workflow.Engine
	executor    *executor.Executor
	approvals   approvals.Service
	checkpoints checkpoint.Store
	store       storage.WorkflowStore
	hub         *EventHub
	logger      zerolog.Logger
}

// NewServer creates an API server wired to the engine, executor and stores.
// The event hub is attached to the executor so runs stream over WebSocket.
func NewServer(cfg *config.Config, engine *workflow.Engine, exec *executor.Executor, approvalService approvals.Service, checkpoints checkpoint.Store, store storage.WorkflowStore) *Server {
	s := &Server{
		config:      cfg,
		router:      mux.NewRouter(),
		engine:      engine,
		executor:    exec,
		approvals:   approvalService,
		checkpoints: checkpoints,
		store:       store,
		hub:         NewEventHub(),
		logger:      logging.Component("api"),
	}

	exec.SetEventSink(s.hub)
	s.setupRoutes()
	return s
}

// Handler returns the server's root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Workflow definitions
	workflows := api.PathPrefix("/workflows").Subrouter()
	workflows.HandleFunc("", s.handleListWorkflows).Methods(http.MethodGet)
	workflows.HandleFunc("/validate", s.handleValidateWorkflow).Methods(http.MethodPost)
	workflows.HandleFunc("/{name}", s.handleGetWorkflow).Methods(http.MethodGet)
	workflows.HandleFunc("/{name}", s.handlePutWorkflow).Methods(http.MethodPut)
	workflows.HandleFunc("/{name}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	workflows.HandleFunc("/{name}/execute", s.handleExecuteWorkflow).Methods(http.MethodPost)

	// Approvals
	approvalRoutes := api.PathPrefix("/approvals").Subrouter()
	approvalRoutes.HandleFunc("/pending/{approverId}", s.handleListPendingApprovals).Methods(http.MethodGet)
	approvalRoutes.HandleFunc("/{id}", s.handleGetApproval).Methods(http.MethodGet)
	approvalRoutes.HandleFunc("/{id}/resolve", s.handleResolveApproval).Methods(http.MethodPost)

	// Checkpoint administration
	checkpoints := api.PathPrefix("/checkpoints").Subrouter()
	checkpoints.HandleFunc("", s.handleListCheckpoints).Methods(http.MethodGet)
	checkpoints.HandleFunc("/cleanup", s.handleCleanupCheckpoints).Methods(http.MethodPost)
	checkpoints.HandleFunc("/{sessionId}", s.handleGetCheckpoint).Methods(http.MethodGet)
	checkpoints.HandleFunc("/{sessionId}", s.handleDeleteCheckpoint).Methods(http.MethodDelete)

	// Execution event stream
	api.HandleFunc("/executions/ws", s.hub.HandleWebSocket).Methods(http.MethodGet)

	s.router.Use(s.requestLogger)
}

// requestLogger logs every request at debug level
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleListWorkflows returns the registered workflow definitions
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	type workflowSummary struct {
		Name        string `json:"name"`
		Version     string `json:"version,omitempty"`
		Description string `json:"description,omitempty"`
		Nodes       int    `json:"nodes"`
	}

	defs := s.engine.ListDefinitions()
	summaries := make([]workflowSummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, workflowSummary{
			Name:        def.Name,
			Version:     def.Version,
			Description: def.Description,
			Nodes:       len(def.Nodes),
		})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

// handleGetWorkflow returns one registered definition
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	def, err := s.engine.Definition(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

// handlePutWorkflow parses, validates, registers and persists a definition
// supplied as raw YAML
func (s *Server) handlePutWorkflow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req struct {
		OrganizationID string `json:"organization_id"`
		YAML           string `json:"yaml"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	def, err := workflow.ParseDefinition([]byte(req.YAML))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if def.Name != name {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("definition name %q does not match path %q", def.Name, name))
		return
	}

	if err := s.engine.Register(def); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.store != nil {
		now := time.Now().Unix()
		record := storage.DefinitionRecord{
			OrganizationID: req.OrganizationID,
			Name:           def.Name,
			Version:        def.Version,
			Description:    def.Description,
			YAML:           req.YAML,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.SaveDefinition(record); err != nil {
			s.logger.Error().Err(err).Str("workflow", def.Name).Msg("Failed to persist workflow definition")
		}
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"name": def.Name})
}

// handleDeleteWorkflow removes the persisted copy of a definition. The
// in-memory registration survives until restart.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	organizationID := r.URL.Query().Get("organization_id")

	if s.store == nil {
		s.writeError(w, http.StatusNotImplemented, "no workflow store configured")
		return
	}

	if err := s.store.DeleteDefinition(organizationID, name); err != nil {
		if errors.Is(err, storage.ErrDefinitionNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateWorkflow parses and validates a YAML definition without
// registering it
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		YAML string `json:"yaml"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	def, err := workflow.ParseDefinition([]byte(req.YAML))
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
		"name":  def.Name,
		"nodes": len(def.Nodes),
	})
}

// executeRequest is the body of an execute call
type executeRequest struct {
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id"`
	SessionID      string                 `json:"session_id"`
	UserRequest    string                 `json:"user_request"`
	Variables      map[string]interface{} `json:"variables,omitempty"`
}

// handleExecuteWorkflow runs a workflow synchronously and returns its
// settled result. Runs that pause at an approval gate are checkpointed so
// approval resolution can resume them.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := s.executor.Execute(r.Context(), name, executor.ExecutionRequest{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		UserRequest:    req.UserRequest,
	}, req.Variables)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.checkpointIfPaused(r.Context(), result)
	s.writeJSON(w, http.StatusOK, result)
}

// checkpointIfPaused persists a snapshot for runs waiting on approval
func (s *Server) checkpointIfPaused(ctx context.Context, result *executor.ExecutionResult) {
	if result.Status != workflow.StatusWaitingApproval || s.checkpoints == nil {
		return
	}

	cp := checkpoint.FromContext(result.WorkflowName, result.Context)
	if _, err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Error().Err(err).
			Str("session_id", result.Context.SessionID).
			Msg("Failed to checkpoint paused run")
	}
}

// handleGetApproval returns one approval request
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	approval, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, approvals.ErrApprovalNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, approval)
}

// handleListPendingApprovals returns an approver's pending requests
func (s *Server) handleListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	approverID := mux.Vars(r)["approverId"]

	pending, err := s.approvals.ListPending(r.Context(), approverID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pending)
}

// resolveResponse is returned by the resolve endpoint. Resumed carries the
// outcome of the continuation run when the request was approved.
type resolveResponse struct {
	Approval *approvals.ApprovalRequest `json:"approval"`
	Resumed  *executor.ExecutionResult  `json:"resumed,omitempty"`
}

// handleResolveApproval approves or rejects a pending request. Approval
// restores the paused run's checkpoint and resumes it from the node after
// the gate; rejection discards the checkpoint.
func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Approved   bool   `json:"approved"`
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	approval, err := s.approvals.Resolve(r.Context(), id, req.Approved, req.Resolution)
	if err != nil {
		switch {
		case errors.Is(err, approvals.ErrApprovalNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, approvals.ErrAlreadyResolved):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	sessionID, _ := approval.Metadata["session_id"].(string)
	nodeID, _ := approval.Metadata["node_id"].(string)

	resp := resolveResponse{Approval: approval}

	if !req.Approved {
		// A rejected run never resumes; its snapshot is dead weight
		if sessionID != "" && s.checkpoints != nil {
			if _, err := s.checkpoints.Delete(r.Context(), sessionID); err != nil {
				s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to delete checkpoint after rejection")
			}
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	resumed, err := s.resumeFromCheckpoint(r.Context(), approval, sessionID, nodeID)
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	resp.Resumed = resumed
	s.writeJSON(w, http.StatusOK, resp)
}

// resumeFromCheckpoint restores the paused run's snapshot and continues it
// from the approval node's successors. A resumed run that pauses at a
// further gate is checkpointed again; otherwise the snapshot is removed.
func (s *Server) resumeFromCheckpoint(ctx context.Context, approval *approvals.ApprovalRequest, sessionID, nodeID string) (*executor.ExecutionResult, error) {
	if sessionID == "" || nodeID == "" {
		return nil, fmt.Errorf("approval %s carries no resumable workflow", approval.ID)
	}
	if s.checkpoints == nil {
		return nil, fmt.Errorf("no checkpoint store configured")
	}

	cp, err := s.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for session %s: %w", sessionID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint for session %s", sessionID)
	}

	wctx := &workflow.ExecutionContext{}
	checkpoint.RestoreToContext(cp, wctx)
	wctx.StartedAt = time.Now()

	result, err := s.executor.Resume(ctx, wctx, executor.ExecutionRequest{
		OrganizationID: wctx.OrganizationID,
		UserID:         wctx.UserID,
		SessionID:      wctx.SessionID,
		UserRequest:    approval.Body,
	}, nodeID)
	if err != nil {
		return nil, err
	}

	if result.Status == workflow.StatusWaitingApproval {
		s.checkpointIfPaused(ctx, result)
	} else {
		if _, err := s.checkpoints.Delete(ctx, sessionID); err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to delete checkpoint after resume")
		}
	}

	return result, nil
}

// handleListCheckpoints returns summaries of recent checkpoints
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}

	summaries, err := s.checkpoints.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

// handleGetCheckpoint returns a full checkpoint by session id
func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	cp, err := s.checkpoints.Load(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cp == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no checkpoint for session %s", sessionID))
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

// handleDeleteCheckpoint removes a checkpoint by session id
func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	existed, err := s.checkpoints.Delete(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no checkpoint for session %s", sessionID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCleanupCheckpoints removes checkpoints older than the retention
// window, or older than an explicit older_than_hours parameter
func (s *Server) handleCleanupCheckpoints(w http.ResponseWriter, r *http.Request) {
	window := s.config.Retention.Window
	if window <= 0 {
		window = checkpoint.DefaultRetention
	}
	if raw := r.URL.Query().Get("older_than_hours"); raw != "" {
		var hours int
		if _, err := fmt.Sscanf(raw, "%d", &hours); err != nil || hours <= 0 {
			s.writeError(w, http.StatusBadRequest, "older_than_hours must be a positive integer")
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	removed, err := s.checkpoints.Cleanup(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
