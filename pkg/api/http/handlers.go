package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
)

// CreateWorkflowRequest submits a pre-planned workflow. An empty
// workflow_id gets a generated one.
type CreateWorkflowRequest struct {
	WorkflowID        string            `json:"workflow_id"`
	Tasks             []TaskSpecRequest `json:"tasks" binding:"required"`
	ParallelExecution bool              `json:"parallel_execution"`
}

// TaskSpecRequest is one task in a pre-planned workflow.
type TaskSpecRequest struct {
	TaskID       string   `json:"task_id" binding:"required"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Dependencies []string `json:"dependencies"`
	Priority     int      `json:"priority"`
}

// RunRequest plans and executes a workflow for a request in one call.
type RunRequest struct {
	Request string `json:"request" binding:"required"`
}

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	specs := make([]domain.TaskSpec, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		specs = append(specs, domain.TaskSpec{
			TaskID:       t.TaskID,
			Description:  t.Description,
			AgentType:    domain.AgentType(t.AgentType),
			Dependencies: t.Dependencies,
			Priority:     t.Priority,
		})
	}

	wf, err := s.orchestrator.CreateWorkflow(c.Request.Context(), req.WorkflowID, specs, req.ParallelExecution)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(c *gin.Context) {
	summaries, err := s.orchestrator.List(c.Request.Context())
	if err != nil {
		s.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflows": summaries,
		"total":     len(summaries),
	})
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	wf, err := s.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) handleGetResult(c *gin.Context) {
	id := c.Param("id")

	wf, err := s.orchestrator.Status(c.Request.Context(), id)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	if !wf.Status.Terminal() {
		s.respondError(c, http.StatusConflict, "NOT_COMPLETED",
			errors.New("workflow execution not yet completed"))
		return
	}

	res, err := s.orchestrator.Result(c.Request.Context(), id)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleStartWorkflow kicks off execution in the background and returns
// immediately; clients poll status or stream events over the websocket.
func (s *Server) handleStartWorkflow(c *gin.Context) {
	id := c.Param("id")

	wf, err := s.orchestrator.Status(c.Request.Context(), id)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	if wf.Status != domain.WorkflowStatusCreated {
		s.respondError(c, http.StatusConflict, "ALREADY_STARTED",
			errors.New("workflow has already been started"))
		return
	}

	go func() {
		if _, err := s.orchestrator.StartWorkflow(context.Background(), id); err != nil {
			s.logger.Error("background workflow run failed",
				zap.String("workflow_id", id),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id": id,
		"status":      domain.WorkflowStatusRunning,
	})
}

func (s *Server) handleDeleteWorkflow(c *gin.Context) {
	if err := s.orchestrator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleRun plans and executes synchronously; it is the programmatic
// equivalent of the CLI flow and can take as long as the workflow does.
func (s *Server) handleRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	res, err := s.orchestrator.Run(c.Request.Context(), req.Request)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) respondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: err.Error()}})
}

// respondDomainError maps domain sentinel errors onto HTTP statuses.
func (s *Server) respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, "NOT_FOUND", err)
	case errors.Is(err, domain.ErrAlreadyExists):
		s.respondError(c, http.StatusConflict, "ALREADY_EXISTS", err)
	case errors.Is(err, domain.ErrInvalidGraph):
		s.respondError(c, http.StatusUnprocessableEntity, "INVALID_GRAPH", err)
	case errors.Is(err, domain.ErrPlanning):
		s.respondError(c, http.StatusUnprocessableEntity, "PLANNING_FAILED", err)
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(c, http.StatusInternalServerError, "INTERNAL", err)
	}
}
