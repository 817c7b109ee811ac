package inapp

import (
	"context"
	"fmt"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	repo *Repository
	log  *logger.Logger
}

func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// RegisterHandlers subscribes the service to the automation events it turns
// into in-app notifications.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadReactivationDue{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		due, ok := e.(events.LeadReactivationDue)
		if !ok {
			return nil
		}
		return s.notifyReactivationDue(ctx, due)
	}))
}

func (s *Service) notifyReactivationDue(ctx context.Context, e events.LeadReactivationDue) error {
	resourceType := "lead"
	_, err := s.repo.Create(ctx, CreateParams{
		UserID:       e.OwnerID,
		Title:        "Lead ready for reactivation",
		Content:      fmt.Sprintf("%s is due for reactivation today.", e.LeadName),
		ResourceID:   &e.LeadID,
		ResourceType: &resourceType,
		Category:     "info",
	})
	if err != nil {
		s.log.Error("failed to persist reactivation notification", "error", err, "lead_id", e.LeadID)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}
