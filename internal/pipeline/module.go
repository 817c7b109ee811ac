// Package pipeline exposes the read-only pipeline configuration: ordered
// stages per board.
package pipeline

import (
	"net/http"

	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/internal/pipeline/repository"
	"crm_pipeline_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the pipeline bounded context module implementing http.Module.
type Module struct {
	repo *repository.Repository
}

// NewModule creates the pipeline module.
func NewModule(pool *pgxpool.Pool) *Module {
	return &Module{repo: repository.New(pool)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipeline"
}

// Repository returns the stage repository for cross-module wiring.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/boards/:boardId/stages", m.listStages)
}

// listStages returns the ordered stages of one board.
// GET /api/v1/boards/:boardId/stages
func (m *Module) listStages(c *gin.Context) {
	boardID, err := uuid.Parse(c.Param("boardId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid board ID", nil)
		return
	}

	stages, err := m.repo.ListStages(c.Request.Context(), boardID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stages)
}
