// Package transport defines the request and response DTOs of the leads API.
package transport

import (
	"time"

	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// TransitionRequest asks to move a lead to another stage.
type TransitionRequest struct {
	ColumnID string `json:"columnId" validate:"required,uuid"`
}

// MarkLostRequest completes a deferred move into a lost stage.
type MarkLostRequest struct {
	ColumnID         string     `json:"columnId" validate:"required,uuid"`
	Reason           string     `json:"reason" validate:"required,min=2,max=500"`
	ReactivationDate *time.Time `json:"reactivationDate,omitempty"`
}

// ApplyPlaybookRequest starts a cadence on a lead.
type ApplyPlaybookRequest struct {
	PlaybookID string `json:"playbookId" validate:"required,uuid"`
}

// LeadResponse is the wire shape of a lead.
type LeadResponse struct {
	ID               uuid.UUID                     `json:"id"`
	BoardID          uuid.UUID                     `json:"boardId"`
	ColumnID         uuid.UUID                     `json:"columnId"`
	Name             string                        `json:"name"`
	OwnerID          uuid.UUID                     `json:"ownerId"`
	Probability      int                           `json:"probability"`
	LastActivity     time.Time                     `json:"lastActivity"`
	LostReason       *string                       `json:"lostReason,omitempty"`
	ReactivationDate *time.Time                    `json:"reactivationDate,omitempty"`
	ActivePlaybook   *domain.ActivePlaybook        `json:"activePlaybook,omitempty"`
	PlaybookHistory  []domain.PlaybookHistoryEntry `json:"playbookHistory"`
	CreatedAt        time.Time                     `json:"createdAt"`
}

// TransitionResponse reports the outcome of a transition request.
type TransitionResponse struct {
	// NeedsLostReason tells the client to collect a reason and retry via the
	// lost endpoint.
	NeedsLostReason bool          `json:"needsLostReason,omitempty"`
	TargetStageID   *uuid.UUID    `json:"targetStageId,omitempty"`
	Lead            *LeadResponse `json:"lead,omitempty"`
}

// FromLead maps a domain lead onto the wire shape.
func FromLead(l domain.Lead) LeadResponse {
	history := l.PlaybookHistory
	if history == nil {
		history = []domain.PlaybookHistoryEntry{}
	}
	return LeadResponse{
		ID:               l.ID,
		BoardID:          l.BoardID,
		ColumnID:         l.ColumnID,
		Name:             l.Name,
		OwnerID:          l.OwnerID,
		Probability:      l.Probability,
		LastActivity:     l.LastActivity,
		LostReason:       l.LostReason,
		ReactivationDate: l.ReactivationDate,
		ActivePlaybook:   l.ActivePlaybook,
		PlaybookHistory:  history,
		CreatedAt:        l.CreatedAt,
	}
}

// ActivityResponse is the wire shape of one activity-log entry.
type ActivityResponse struct {
	ID         uuid.UUID `json:"id"`
	LeadID     uuid.UUID `json:"leadId"`
	Type       string    `json:"type"`
	Text       string    `json:"text"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FromActivities maps repository entries onto the wire shape.
func FromActivities(entries []repository.ActivityEntry) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActivityResponse{
			ID:         e.ID,
			LeadID:     e.LeadID,
			Type:       e.Type,
			Text:       e.Text,
			AuthorName: e.AuthorName,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
