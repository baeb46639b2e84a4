package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stde-labs/stde-api/internal/models"
)

// UserRepository defines data operations for user accounts and their quota counters.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
	// UpdateQuota runs fn against the user row inside a transaction holding a
	// row lock, so concurrent window-reset/read/increment sequences for the
	// same user serialize. An error returned by fn rolls the update back.
	UpdateQuota(ctx context.Context, id uuid.UUID, fn func(user *models.User) error) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) UpdateQuota(ctx context.Context, id uuid.UUID, fn func(user *models.User) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		// sqlite (used in tests) has no SELECT ... FOR UPDATE; its single-writer
		// transactions already serialize the read-modify-write.
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var user models.User
		if err := query.First(&user, "id = ?", id).Error; err != nil {
			return err
		}

		if err := fn(&user); err != nil {
			return err
		}

		return tx.Save(&user).Error
	})
}
