package reactivation

import (
	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes an admin trigger for the reactivation sweep. The scheduler
// binary runs the sweep on its interval; this endpoint exists for operators
// who do not want to wait for the next tick. Both paths share the source-key
// deduplication, so a manual run next to a scheduled one is harmless.
type Module struct {
	sweep *Sweep
}

// NewModule creates the reactivation module around an existing sweep.
func NewModule(sweep *Sweep) *Module {
	return &Module{sweep: sweep}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reactivation"
}

// RegisterRoutes mounts the admin trigger on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/reactivation/sweep", m.trigger)
}

// trigger runs one sweep synchronously and returns its report.
// POST /api/v1/admin/reactivation/sweep
func (m *Module) trigger(c *gin.Context) {
	report, err := m.sweep.Run(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}
