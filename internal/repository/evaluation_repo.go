package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/models"
)

// EvaluationRepository defines data operations for evaluation records.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	Save(ctx context.Context, evaluation *models.Evaluation) error
	// GetByDocument returns the current evaluation for a document, i.e. the
	// most recently created row.
	GetByDocument(ctx context.Context, documentID uuid.UUID) (models.Evaluation, error)
	// LatestByUserAndContentHash finds the newest prior evaluation belonging
	// to the user whose document carries the exact same content hash. Backs
	// the dedup cache: an identical resubmission skips the oracle entirely.
	LatestByUserAndContentHash(ctx context.Context, userID uuid.UUID, hash string) (models.Evaluation, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Evaluation, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) Save(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Save(evaluation).Error
}

func (r *evaluationRepository) GetByDocument(ctx context.Context, documentID uuid.UUID) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).
		Preload("Document").
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		First(&evaluation).Error; err != nil {
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

func (r *evaluationRepository) LatestByUserAndContentHash(ctx context.Context, userID uuid.UUID, hash string) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = evaluations.document_id").
		Where("evaluations.user_id = ?", userID).
		Where("documents.content_hash = ?", hash).
		Order("evaluations.created_at DESC").
		First(&evaluation).Error; err != nil {
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

func (r *evaluationRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&models.Evaluation{}).Error
}

func (r *evaluationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	if err := r.db.WithContext(ctx).
		Preload("Document").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}
