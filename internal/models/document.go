package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DocumentStatusPending indicates the document was uploaded but never evaluated.
	DocumentStatusPending = "PENDING"
	// DocumentStatusProcessing indicates an evaluation is currently in flight.
	DocumentStatusProcessing = "PROCESSING"
	// DocumentStatusCompleted indicates the latest evaluation finished successfully.
	DocumentStatusCompleted = "COMPLETED"
	// DocumentStatusFailed indicates the latest evaluation attempt failed.
	DocumentStatusFailed = "FAILED"
)

// Document is a stored file reference owned by exactly one user. ContentHash is
// nil until the first successful text extraction; Status is mutated only by the
// evaluation workflow.
type Document struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ClassroomID *uuid.UUID `gorm:"type:uuid;index" json:"classroom_id"`
	Filename    string     `gorm:"size:512;not null" json:"filename"`
	DriveFileID string     `gorm:"size:128" json:"drive_file_id"`
	MediaType   string     `gorm:"size:255" json:"media_type"`
	ContentHash *string    `gorm:"size:64;index" json:"content_hash"`
	Status      string     `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	User      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Classroom *Classroom `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
}

// BeforeCreate assigns an identifier when one was not provided by the caller.
func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// IsOwnedBy reports whether the given user created this document.
func (d Document) IsOwnedBy(userID uuid.UUID) bool {
	return d.UserID == userID
}
