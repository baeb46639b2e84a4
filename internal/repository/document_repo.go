package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/models"
)

// DocumentRepository defines data operations for documents.
type DocumentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetContentHash(ctx context.Context, id uuid.UUID, hash string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository instantiates the repository.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Document, error) {
	var document models.Document
	if err := r.db.WithContext(ctx).First(&document, "id = ?", id).Error; err != nil {
		return models.Document{}, err
	}

	return document, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *documentRepository) SetContentHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("content_hash", hash).Error
}
