package ai

import "context"

// Classifier decides whether a body of text is a software test document.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, content string) (bool, error)
}

// Scorer grades a software test document on the four quality dimensions and
// produces an overall score with narrative feedback.
type Scorer interface {
	Score(ctx context.Context, content string) (ScoreReport, error)
}

// ScoreReport is the structured grading payload returned by the oracle.
// Field names match the JSON contract the scoring prompt demands.
type ScoreReport struct {
	CompletenessScore    int    `json:"completenessScore"`
	CompletenessFeedback string `json:"completenessFeedback"`
	ClarityScore         int    `json:"clarityScore"`
	ClarityFeedback      string `json:"clarityFeedback"`
	ConsistencyScore     int    `json:"consistencyScore"`
	ConsistencyFeedback  string `json:"consistencyFeedback"`
	VerificationScore    int    `json:"verificationScore"`
	VerificationFeedback string `json:"verificationFeedback"`
	OverallScore         int    `json:"overallScore"`
	OverallFeedback      string `json:"overallFeedback"`
}
