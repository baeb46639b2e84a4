package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stde-labs/stde-api/internal/dto"
	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
)

func setupActivityTest(t *testing.T) ActivityService {
	t.Helper()

	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.ActivityLog{}))

	return NewActivityService(repository.NewActivityLogRepository(db), zerolog.Nop())
}

func TestActivityRecordNormalizesAndMasks(t *testing.T) {
	svc := setupActivityTest(t)
	entityID := uuid.New()

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    uuid.New(),
		Action:     "  Evaluate ",
		EntityType: "Document",
		EntityID:   &entityID,
		Metadata: map[string]interface{}{
			"filename":    "plan.pdf",
			"owner_email": "someone@example.com",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "evaluate", entry.Action)
	require.Equal(t, "document", entry.EntityType)
	require.Equal(t, "system", entry.ActorRole)
	require.Equal(t, "plan.pdf", entry.Metadata["filename"])
	require.Equal(t, "***", entry.Metadata["owner_email"])
}

func TestActivityRecordRequiresAction(t *testing.T) {
	svc := setupActivityTest(t)

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "document"})
	require.Error(t, err)
}

func TestActivityListPaginates(t *testing.T) {
	svc := setupActivityTest(t)

	for i := 0; i < 25; i++ {
		_, err := svc.Record(context.Background(), ActivityEntry{
			ActorID:    uuid.New(),
			ActorRole:  "teacher",
			Action:     ActionEvaluate,
			EntityType: "document",
		})
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	require.EqualValues(t, 25, page.Pagination.TotalItems)
	require.Equal(t, 3, page.Pagination.TotalPages)
}

func TestActivityListFilterByAction(t *testing.T) {
	svc := setupActivityTest(t)

	for _, action := range []string{ActionEvaluate, ActionEvaluate, ActionOverride} {
		_, err := svc.Record(context.Background(), ActivityEntry{
			ActorID:    uuid.New(),
			ActorRole:  "teacher",
			Action:     action,
			EntityType: "document",
		})
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), dto.ActivityListRequest{Action: ActionOverride})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.EqualValues(t, 1, page.Pagination.TotalItems)
}
