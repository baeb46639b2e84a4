package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Evaluation stores the structured multi-dimension score produced for a
// document, either by the scoring oracle, by a cache copy of an identical
// submission, or by a teacher override. At most one row is current per
// document; the workflow deletes the prior row before inserting a fresh one.
type Evaluation struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID           uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	UserID               uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CompletenessScore    int       `gorm:"not null" json:"completeness_score"`
	CompletenessFeedback string    `gorm:"type:text" json:"completeness_feedback"`
	ClarityScore         int       `gorm:"not null" json:"clarity_score"`
	ClarityFeedback      string    `gorm:"type:text" json:"clarity_feedback"`
	ConsistencyScore     int       `gorm:"not null" json:"consistency_score"`
	ConsistencyFeedback  string    `gorm:"type:text" json:"consistency_feedback"`
	VerificationScore    int       `gorm:"not null" json:"verification_score"`
	VerificationFeedback string    `gorm:"type:text" json:"verification_feedback"`
	OverallScore         int       `gorm:"not null" json:"overall_score"`
	OverallFeedback      string    `gorm:"type:text" json:"overall_feedback"`
	CreatedAt            time.Time `json:"created_at"`

	Document Document `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns an identifier when one was not provided by the caller.
func (e *Evaluation) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
