package playbooks

import (
	"errors"
	"net/http"

	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the playbook catalog module implementing http.Module. The
// catalog is read-only; definitions are managed outside this service.
type Module struct {
	repo *Repository
}

// NewModule creates the playbook catalog module.
func NewModule(pool *pgxpool.Pool) *Module {
	return &Module{repo: New(pool)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "playbooks"
}

// Repository returns the playbook repository for cross-module wiring.
func (m *Module) Repository() *Repository {
	return m.repo
}

// RegisterRoutes mounts playbook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/playbooks", m.list)
	ctx.Protected.GET("/playbooks/:id", m.get)
}

// list returns all playbook definitions.
// GET /api/v1/playbooks
func (m *Module) list(c *gin.Context) {
	list, err := m.repo.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	if list == nil {
		list = []Playbook{}
	}
	httpkit.OK(c, list)
}

// get returns one playbook definition.
// GET /api/v1/playbooks/:id
func (m *Module) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid playbook ID", nil)
		return
	}

	pb, err := m.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "playbook not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, pb)
}
