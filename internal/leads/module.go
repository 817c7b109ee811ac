// Package leads provides the leads bounded context module: stage
// transitions, the lost protocol, cadence endpoints and the activity log.
package leads

import (
	"crm_pipeline_backend/internal/cadence"
	"crm_pipeline_backend/internal/events"
	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/internal/leads/handler"
	"crm_pipeline_backend/internal/leads/lock"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/transition"
	pipelinerepo "crm_pipeline_backend/internal/pipeline/repository"
	"crm_pipeline_backend/internal/playbooks"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	repo    *repository.Repository
	coord   *transition.Coordinator
	engine  *cadence.Engine
}

// NewModule creates and initializes the leads module. The keyed lock is
// shared between the coordinator and the cadence engine so no two mutations
// of the same lead interleave in-process.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	stageRepo := pipelinerepo.New(pool)
	playbookRepo := playbooks.New(pool)
	taskRepo := tasks.New(pool)
	locks := lock.NewKeyed()

	coord := transition.New(repo, stageRepo, playbookRepo, bus, locks, log)
	engine := cadence.New(repo, playbookRepo, taskRepo, stageRepo, coord, bus, locks, log)
	h := handler.New(repo, coord, engine, taskRepo, val)

	return &Module{
		handler: h,
		repo:    repo,
		coord:   coord,
		engine:  engine,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Repository returns the lead repository for cross-module wiring.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Coordinator returns the stage-transition coordinator.
func (m *Module) Coordinator() *transition.Coordinator {
	return m.coord
}

// Engine returns the cadence engine for cross-module wiring.
func (m *Module) Engine() *cadence.Engine {
	return m.engine
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.GET("/:id", m.handler.Get)
	group.POST("/:id/transition", m.handler.Transition)
	group.POST("/:id/lost", m.handler.MarkLost)
	group.POST("/:id/playbook", m.handler.ApplyPlaybook)
	group.DELETE("/:id/playbook", m.handler.DeactivatePlaybook)
	group.GET("/:id/activities", m.handler.ListActivities)
	group.GET("/:id/tasks", m.handler.ListTasks)
}
