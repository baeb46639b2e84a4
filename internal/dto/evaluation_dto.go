package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/stde-labs/stde-api/internal/models"
)

// EvaluationResponse is the API representation of an evaluation report.
type EvaluationResponse struct {
	ID                   uuid.UUID `json:"id"`
	DocumentID           uuid.UUID `json:"document_id"`
	Filename             string    `json:"filename"`
	CompletenessScore    int       `json:"completeness_score"`
	CompletenessFeedback string    `json:"completeness_feedback"`
	ClarityScore         int       `json:"clarity_score"`
	ClarityFeedback      string    `json:"clarity_feedback"`
	ConsistencyScore     int       `json:"consistency_score"`
	ConsistencyFeedback  string    `json:"consistency_feedback"`
	VerificationScore    int       `json:"verification_score"`
	VerificationFeedback string    `json:"verification_feedback"`
	OverallScore         int       `json:"overall_score"`
	OverallFeedback      string    `json:"overall_feedback"`
	CreatedAt            time.Time `json:"created_at"`
}

// NewEvaluationResponse maps an evaluation row onto its API shape.
func NewEvaluationResponse(evaluation models.Evaluation, filename string) EvaluationResponse {
	return EvaluationResponse{
		ID:                   evaluation.ID,
		DocumentID:           evaluation.DocumentID,
		Filename:             filename,
		CompletenessScore:    evaluation.CompletenessScore,
		CompletenessFeedback: evaluation.CompletenessFeedback,
		ClarityScore:         evaluation.ClarityScore,
		ClarityFeedback:      evaluation.ClarityFeedback,
		ConsistencyScore:     evaluation.ConsistencyScore,
		ConsistencyFeedback:  evaluation.ConsistencyFeedback,
		VerificationScore:    evaluation.VerificationScore,
		VerificationFeedback: evaluation.VerificationFeedback,
		OverallScore:         evaluation.OverallScore,
		OverallFeedback:      evaluation.OverallFeedback,
		CreatedAt:            evaluation.CreatedAt,
	}
}

// NewEvaluationResponseSlice maps evaluation rows with their preloaded documents.
func NewEvaluationResponseSlice(evaluations []models.Evaluation) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		responses = append(responses, NewEvaluationResponse(evaluation, evaluation.Document.Filename))
	}
	return responses
}

// OverrideRequest carries a teacher's manual score override.
type OverrideRequest struct {
	OverallScore *int `json:"overall_score" validate:"required"`
}

// UsageStatsResponse reports the caller's position inside the hourly quota window.
type UsageStatsResponse struct {
	Used           int   `json:"used"`
	Limit          int   `json:"limit"`
	Remaining      int   `json:"remaining"`
	ResetInSeconds int64 `json:"reset_in_seconds"`
}
