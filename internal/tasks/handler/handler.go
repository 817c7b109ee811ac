// Package handler exposes the tasks API. It lives outside the tasks package
// so it can invoke the cadence engine's completion cascade without an import
// cycle.
package handler

import (
	"errors"
	"net/http"

	"crm_pipeline_backend/internal/cadence"
	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UpdateStatusRequest changes a task's status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending completed"`
}

// Module is the tasks module implementing http.Module.
type Module struct {
	repo   *tasks.Repository
	engine *cadence.Engine
	val    *validator.Validator
}

// NewModule creates the tasks module. The cadence engine reacts to task
// completion and may advance the owning lead.
func NewModule(pool *pgxpool.Pool, engine *cadence.Engine, val *validator.Validator) *Module {
	return &Module{repo: tasks.New(pool), engine: engine, val: val}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tasks"
}

// RegisterRoutes mounts task routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/tasks")
	group.GET("/:id", m.get)
	group.PATCH("/:id/status", m.updateStatus)
}

// get returns one task.
// GET /api/v1/tasks/:id
func (m *Module) get(c *gin.Context) {
	id, ok := m.taskID(c)
	if !ok {
		return
	}

	task, err := m.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "task not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, task)
}

// updateStatus changes a task's status. Completing the last pending task of
// an active cadence advances the lead to the next stage.
// PATCH /api/v1/tasks/:id/status
func (m *Module) updateStatus(c *gin.Context) {
	id, ok := m.taskID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	task, err := m.repo.UpdateStatus(c.Request.Context(), id, tasks.Status(req.Status))
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "task not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	if err := m.engine.OnTaskStatusChanged(c.Request.Context(), task); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, task)
}

func (m *Module) taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task ID", nil)
		return uuid.Nil, false
	}
	return id, true
}
