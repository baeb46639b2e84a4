package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/models"
)

func TestUpdateQuotaAppliesMutation(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	user := seedUser(t, db)

	err := repo.UpdateQuota(context.Background(), user.ID, func(u *models.User) error {
		count := 7
		u.EvaluationCount = &count
		return nil
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 7, stored.QuotaCount())
}

func TestUpdateQuotaRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	user := seedUser(t, db)

	boom := errors.New("limit reached")
	err := repo.UpdateQuota(context.Background(), user.ID, func(u *models.User) error {
		count := 99
		u.EvaluationCount = &count
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.QuotaCount())
}

func TestUpdateQuotaUnknownUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	err := repo.UpdateQuota(context.Background(), uuid.New(), func(*models.User) error { return nil })
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
