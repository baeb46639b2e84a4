package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ActivityLog is an append-only audit record of evaluation actions. Entries are
// best-effort; failing to write one never aborts the workflow that produced it.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uuid.UUID         `gorm:"type:uuid;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null;index" json:"entity_type"`
	EntityID   *uuid.UUID        `gorm:"type:uuid;index" json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}
