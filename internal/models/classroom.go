package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Classroom groups documents under a single owning teacher for review access.
type Classroom struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null;index" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an identifier when one was not provided by the caller.
func (c *Classroom) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsOwnedBy reports whether the given user administers this classroom.
func (c Classroom) IsOwnedBy(userID uuid.UUID) bool {
	return c.TeacherID == userID
}
