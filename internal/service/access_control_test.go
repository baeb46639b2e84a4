package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
)

func setupAccessTest(t *testing.T) (*gorm.DB, *AccessControl) {
	t.Helper()

	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Classroom{}))

	access := NewAccessControl(NewClassroomAuthority(repository.NewClassroomRepository(db)), zerolog.Nop())
	return db, access
}

func TestCanViewOwner(t *testing.T) {
	_, access := setupAccessTest(t)
	owner := uuid.New()
	document := models.Document{UserID: owner}

	require.True(t, access.CanView(context.Background(), document, owner))
	require.False(t, access.CanView(context.Background(), document, uuid.New()))
}

func TestCanViewClassTeacher(t *testing.T) {
	db, access := setupAccessTest(t)
	teacherID := uuid.New()
	classroom := models.Classroom{Name: "QA Lab", TeacherID: teacherID}
	require.NoError(t, db.Create(&classroom).Error)

	document := models.Document{UserID: uuid.New(), ClassroomID: &classroom.ID}

	require.True(t, access.CanView(context.Background(), document, teacherID))
	require.False(t, access.CanView(context.Background(), document, uuid.New()))
}

func TestCanViewMissingClassroomDeniesNonOwner(t *testing.T) {
	_, access := setupAccessTest(t)
	missing := uuid.New()
	document := models.Document{UserID: uuid.New(), ClassroomID: &missing}

	require.False(t, access.CanView(context.Background(), document, uuid.New()))
}

func TestAuthorizeOverrideRequiresClassroomLink(t *testing.T) {
	_, access := setupAccessTest(t)
	document := models.Document{UserID: uuid.New()}

	// Unlinked documents are rejected before the score is even looked at.
	err := access.AuthorizeOverride(context.Background(), document, uuid.New(), 300)
	require.Error(t, err)
	require.Equal(t, KindForbidden, KindOf(err))
}

func TestAuthorizeOverrideScoreBounds(t *testing.T) {
	db, access := setupAccessTest(t)
	teacherID := uuid.New()
	classroom := models.Classroom{Name: "QA Lab", TeacherID: teacherID}
	require.NoError(t, db.Create(&classroom).Error)
	document := models.Document{UserID: uuid.New(), ClassroomID: &classroom.ID}

	require.NoError(t, access.AuthorizeOverride(context.Background(), document, teacherID, 0))
	require.NoError(t, access.AuthorizeOverride(context.Background(), document, teacherID, 100))

	err := access.AuthorizeOverride(context.Background(), document, teacherID, 101)
	require.Error(t, err)
	require.Equal(t, KindInvalidArgument, KindOf(err))
}
