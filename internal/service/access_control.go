package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
)

// ClassroomAuthority verifies that a user administers a classroom. Failure is
// always a KindForbidden error so callers can treat "not the teacher" and
// "classroom gone" uniformly.
type ClassroomAuthority interface {
	VerifyOwnership(ctx context.Context, classroomID, userID uuid.UUID) error
}

type classroomAuthority struct {
	classrooms repository.ClassroomRepository
}

// NewClassroomAuthority constructs a ClassroomAuthority backed by the classroom store.
func NewClassroomAuthority(classrooms repository.ClassroomRepository) ClassroomAuthority {
	return &classroomAuthority{classrooms: classrooms}
}

func (a *classroomAuthority) VerifyOwnership(ctx context.Context, classroomID, userID uuid.UUID) error {
	classroom, err := a.classrooms.GetByID(ctx, classroomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Errorf(KindForbidden, "classroom not found")
		}
		return WrapError(KindServerError, "classroom lookup failed", err)
	}

	if !classroom.IsOwnedBy(userID) {
		return Errorf(KindForbidden, "not the teacher of this classroom")
	}

	return nil
}

// AccessControl decides who may view or override a document's evaluation.
type AccessControl struct {
	authority ClassroomAuthority
	logger    zerolog.Logger
}

// NewAccessControl constructs the authorization component.
func NewAccessControl(authority ClassroomAuthority, logger zerolog.Logger) *AccessControl {
	return &AccessControl{
		authority: authority,
		logger:    logger.With().Str("component", "access_control").Logger(),
	}
}

// CanView reports whether the requester owns the document or is the verified
// teacher of its classroom. A document with no classroom is visible only to
// its owner. An ownership-verification failure is treated as "not a teacher
// of this class", never propagated.
func (a *AccessControl) CanView(ctx context.Context, document models.Document, requesterID uuid.UUID) bool {
	if document.IsOwnedBy(requesterID) {
		return true
	}

	if document.ClassroomID == nil {
		return false
	}

	if err := a.authority.VerifyOwnership(ctx, *document.ClassroomID, requesterID); err != nil {
		if KindOf(err) != KindForbidden {
			a.logger.Warn().Err(err).
				Str("classroom_id", document.ClassroomID.String()).
				Msg("classroom ownership check failed")
		}
		return false
	}

	return true
}

// AuthorizeOverride gates a teacher's manual score override. The classroom
// link is checked before the score bounds: an unlinked document fails with
// KindForbidden regardless of score validity.
func (a *AccessControl) AuthorizeOverride(ctx context.Context, document models.Document, teacherID uuid.UUID, score int) error {
	if document.ClassroomID == nil {
		return Errorf(KindForbidden, "document is not linked to any class")
	}

	if err := a.authority.VerifyOwnership(ctx, *document.ClassroomID, teacherID); err != nil {
		return err
	}

	if score < 0 || score > 100 {
		return Errorf(KindInvalidArgument, "score must be between 0 and 100")
	}

	return nil
}
