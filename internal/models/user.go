package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// RoleStudent identifies document owners submitting work for evaluation.
	RoleStudent = "STUDENT"
	// RoleTeacher identifies classroom owners allowed to review and override scores.
	RoleTeacher = "TEACHER"
)

// User represents an account that owns documents and consumes evaluation quota.
// The window fields back the hourly rate limiter: the count is only meaningful
// relative to EvaluationWindowStart and both reset together when the window expires.
type User struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email                 string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name                  string     `gorm:"size:255" json:"name"`
	Role                  string     `gorm:"size:16;not null;default:'STUDENT'" json:"role"`
	EvaluationWindowStart *time.Time `json:"evaluation_window_start"`
	EvaluationCount       *int       `json:"evaluation_count"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an identifier when one was not provided by the caller.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// QuotaCount returns the stored evaluation count treating nil as zero.
func (u User) QuotaCount() int {
	if u.EvaluationCount == nil {
		return 0
	}
	return *u.EvaluationCount
}
