// Package handler exposes the leads API: reads, stage transitions, the lost
// protocol and cadence management.
package handler

import (
	"errors"
	"net/http"
	"time"

	"crm_pipeline_backend/internal/cadence"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/transition"
	"crm_pipeline_backend/internal/leads/transport"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead ID"
)

// Handler handles HTTP requests for leads.
type Handler struct {
	repo    *repository.Repository
	coord   *transition.Coordinator
	engine  *cadence.Engine
	taskSvc *tasks.Repository
	val     *validator.Validator
}

// New creates a new leads handler.
func New(repo *repository.Repository, coord *transition.Coordinator, engine *cadence.Engine, taskSvc *tasks.Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, coord: coord, engine: engine, taskSvc: taskSvc, val: val}
}

// Get returns one lead.
// GET /api/v1/leads/:id
func (h *Handler) Get(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.repo.GetByID(c.Request.Context(), leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.FromLead(lead))
}

// Transition moves a lead to another stage.
// POST /api/v1/leads/:id/transition
func (h *Handler) Transition(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	columnID, err := uuid.Parse(req.ColumnID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid column ID", nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.coord.Transition(c.Request.Context(), leadID, columnID, transition.CauseUser, identity.Name())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, h.transitionResponse(result))
}

// MarkLost completes a deferred move into a lost stage.
// POST /api/v1/leads/:id/lost
func (h *Handler) MarkLost(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.MarkLostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	columnID, err := uuid.Parse(req.ColumnID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid column ID", nil)
		return
	}
	if req.ReactivationDate != nil && req.ReactivationDate.Before(time.Now().Truncate(24*time.Hour)) {
		httpkit.Error(c, http.StatusBadRequest, "reactivation date must not be in the past", nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.coord.ProcessLostLead(c.Request.Context(), leadID, columnID, req.Reason, req.ReactivationDate, identity.Name())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, h.transitionResponse(result))
}

// ApplyPlaybook starts a cadence on a lead.
// POST /api/v1/leads/:id/playbook
func (h *Handler) ApplyPlaybook(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.ApplyPlaybookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	playbookID, err := uuid.Parse(req.PlaybookID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid playbook ID", nil)
		return
	}

	lead, err := h.engine.Apply(c.Request.Context(), leadID, playbookID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromLead(lead))
}

// DeactivatePlaybook removes the active cadence from a lead.
// DELETE /api/v1/leads/:id/playbook
func (h *Handler) DeactivatePlaybook(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.engine.Deactivate(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromLead(lead))
}

// ListActivities returns the lead's audit log, newest first.
// GET /api/v1/leads/:id/activities
func (h *Handler) ListActivities(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	entries, err := h.repo.ListActivities(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromActivities(entries))
}

// ListTasks returns all tasks of a lead.
// GET /api/v1/leads/:id/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	list, err := h.taskSvc.ListByLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	httpkit.OK(c, list)
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) transitionResponse(result transition.Result) transport.TransitionResponse {
	resp := transport.TransitionResponse{NeedsLostReason: result.NeedsLostReason}
	if result.NeedsLostReason {
		target := result.TargetStageID
		resp.TargetStageID = &target
	}
	if result.Lead != nil {
		lead := transport.FromLead(*result.Lead)
		resp.Lead = &lead
	}
	return resp
}
