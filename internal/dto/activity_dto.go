package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/stde-labs/stde-api/internal/models"
)

// ActivityResponse is the API representation of an audit log entry.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uuid.UUID              `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uuid.UUID             `json:"entity_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewActivityResponse maps an audit log row onto its API shape.
func NewActivityResponse(entry models.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   entry.Metadata,
		CreatedAt:  entry.CreatedAt,
	}
}

// ActivityListRequest filters and paginates the audit trail.
type ActivityListRequest struct {
	Action     string `query:"action"`
	EntityType string `query:"entity_type"`
	Page       int    `query:"page" validate:"omitempty,min=1"`
	PageSize   int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// PaginationMeta describes the page window of a list response.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ActivityListResponse is a paginated audit trail page.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}
