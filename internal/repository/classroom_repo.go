package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/models"
)

// ClassroomRepository defines data operations for classrooms.
type ClassroomRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Classroom, error)
}

type classroomRepository struct {
	db *gorm.DB
}

// NewClassroomRepository instantiates the repository.
func NewClassroomRepository(db *gorm.DB) ClassroomRepository {
	return &classroomRepository{db: db}
}

func (r *classroomRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Classroom, error) {
	var classroom models.Classroom
	if err := r.db.WithContext(ctx).First(&classroom, "id = ?", id).Error; err != nil {
		return models.Classroom{}, err
	}

	return classroom, nil
}
