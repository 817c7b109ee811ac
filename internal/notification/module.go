// Package notification provides the in-app notification module: persisted
// reminders created by automation, read back by the owning user.
package notification

import (
	"net/http"
	"strconv"

	"crm_pipeline_backend/internal/events"
	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/internal/notification/inapp"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the notification module implementing http.Module.
type Module struct {
	service *inapp.Service
}

// NewModule creates the notification module and subscribes it to the
// automation events it materializes as notifications.
func NewModule(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	svc := inapp.NewService(inapp.NewRepository(pool), log)
	svc.RegisterHandlers(bus)
	return &Module{service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts notification routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	group.GET("", m.list)
	group.GET("/unread-count", m.countUnread)
	group.POST("/:id/read", m.markRead)
	group.POST("/read-all", m.markAllRead)
}

// list returns the caller's notifications, newest first.
// GET /api/v1/notifications?page=1&pageSize=20
func (m *Module) list(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, total, err := m.service.List(c.Request.Context(), identity.UserID(), page, pageSize)
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []inapp.Notification{}
	}
	httpkit.OK(c, gin.H{"items": items, "total": total})
}

// countUnread returns the caller's unread notification count.
// GET /api/v1/notifications/unread-count
func (m *Module) countUnread(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	count, err := m.service.CountUnread(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"count": count})
}

// markRead marks one notification as read.
// POST /api/v1/notifications/:id/read
func (m *Module) markRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification ID", nil)
		return
	}

	if err := m.service.MarkRead(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// markAllRead marks all of the caller's notifications as read.
// POST /api/v1/notifications/read-all
func (m *Module) markAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := m.service.MarkAllRead(c.Request.Context(), identity.UserID()); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}
