package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/dto"
	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
	"github.com/stde-labs/stde-api/pkg/ai"
	"github.com/stde-labs/stde-api/pkg/drive"
	"github.com/stde-labs/stde-api/pkg/extract"
)

const (
	// cacheFeedbackNote is appended to the overall feedback of evaluations
	// cloned from a prior identical submission.
	cacheFeedbackNote = " (from cache)"
	// overrideFeedbackNote replaces the overall feedback on teacher overrides.
	overrideFeedbackNote = "Score manually overridden by the class teacher."
)

// EvaluationService runs the document evaluation pipeline and the
// authorization-guarded retrieval and override paths around it.
type EvaluationService interface {
	// Evaluate executes the full pipeline for a document owned by userID:
	// quota gate, extraction, dedup-by-hash, classification, scoring,
	// persistence and status transitions.
	Evaluate(ctx context.Context, documentID, userID uuid.UUID) (dto.EvaluationResponse, error)
	// Override replaces all five scores with a single teacher-supplied value.
	Override(ctx context.Context, documentID, teacherID uuid.UUID, score int) (dto.EvaluationResponse, error)
	// GetByDocument returns the current evaluation if the requester owns the
	// document or teaches its classroom.
	GetByDocument(ctx context.Context, documentID, requesterID uuid.UUID) (dto.EvaluationResponse, error)
	// ListForUser returns the caller's evaluations, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]dto.EvaluationResponse, error)
	// ValidateContent classifies raw text without touching quota or status.
	// Used by the upload flow to reject off-topic files early.
	ValidateContent(ctx context.Context, text string) bool
	// ValidateStoredFile downloads, extracts and classifies a stored file.
	// Any failure rejects.
	ValidateStoredFile(ctx context.Context, fileID, mediaType string) bool
}

// EvaluationConfig carries the workflow tuning knobs.
type EvaluationConfig struct {
	// MaxContentChars hard-caps the text sent to the oracles to bound external
	// call cost. Zero disables truncation.
	MaxContentChars int
	// ListCacheTTL bounds staleness of the per-user evaluation list cache.
	ListCacheTTL time.Duration
}

type evaluationService struct {
	documents   repository.DocumentRepository
	evaluations repository.EvaluationRepository
	quota       QuotaService
	access      *AccessControl
	files       drive.FileStore
	extractor   extract.Extractor
	classifier  ai.Classifier
	scorer      ai.Scorer
	activity    ActivityRecorder
	events      EventPublisher
	cache       *redis.Client
	cfg         EvaluationConfig
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEvaluationService constructs the evaluation workflow with its collaborators.
// activity, events and cache may be nil; the workflow degrades to doing without them.
func NewEvaluationService(
	documents repository.DocumentRepository,
	evaluations repository.EvaluationRepository,
	quota QuotaService,
	access *AccessControl,
	files drive.FileStore,
	extractor extract.Extractor,
	classifier ai.Classifier,
	scorer ai.Scorer,
	activity ActivityRecorder,
	events EventPublisher,
	cache *redis.Client,
	cfg EvaluationConfig,
	logger zerolog.Logger,
) EvaluationService {
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = 5 * time.Minute
	}

	return &evaluationService{
		documents:   documents,
		evaluations: evaluations,
		quota:       quota,
		access:      access,
		files:       files,
		extractor:   extractor,
		classifier:  classifier,
		scorer:      scorer,
		activity:    activity,
		events:      events,
		cache:       cache,
		cfg:         cfg,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/stde-labs/stde-api/internal/service/evaluation"),
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		now:         time.Now,
	}
}

func (s *evaluationService) Evaluate(ctx context.Context, documentID, userID uuid.UUID) (dto.EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate", trace.WithAttributes(
		attribute.String("document_id", documentID.String()),
		attribute.String("user_id", userID.String()),
	))
	defer span.End()

	document, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, Errorf(KindNotFound, "document not found")
		}
		span.RecordError(err)
		return dto.EvaluationResponse{}, WrapError(KindServerError, "document lookup failed", err)
	}

	if !document.IsOwnedBy(userID) {
		return dto.EvaluationResponse{}, Errorf(KindForbidden, "unauthorized access to document")
	}

	// Quota gate runs before any document mutation so an exhausted window
	// leaves no trace on the document.
	if err := s.quota.CheckAndIncrement(ctx, userID); err != nil {
		span.SetStatus(codes.Error, "quota_exceeded")
		return dto.EvaluationResponse{}, err
	}

	if err := s.documents.UpdateStatus(ctx, document.ID, models.DocumentStatusProcessing); err != nil {
		span.RecordError(err)
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to mark document processing", err)
	}
	document.Status = models.DocumentStatusProcessing

	response, err := s.runPipeline(ctx, &document, userID)
	if err != nil {
		// Single failure boundary: whatever happened inside the attempt, the
		// document never stays stuck in PROCESSING.
		if statusErr := s.documents.UpdateStatus(ctx, document.ID, models.DocumentStatusFailed); statusErr != nil {
			s.logger.Error().Err(statusErr).
				Str("document_id", document.ID.String()).
				Msg("failed to mark document failed")
		}

		failure := s.classifyFailure(err)
		span.RecordError(failure)
		span.SetStatus(codes.Error, string(KindOf(failure)))
		s.publish(ctx, EvaluationEvent{
			Type:       EventEvaluationFailed,
			DocumentID: document.ID,
			UserID:     userID,
			Reason:     string(KindOf(failure)),
		})
		return dto.EvaluationResponse{}, failure
	}

	span.SetAttributes(attribute.Int("overall_score", response.OverallScore))
	return response, nil
}

// runPipeline executes steps 3-7 of the evaluation: extraction, fingerprint,
// cache check, classification, supersede, scoring. Errors are classified by
// the caller's failure boundary.
func (s *evaluationService) runPipeline(ctx context.Context, document *models.Document, userID uuid.UUID) (dto.EvaluationResponse, error) {
	raw, err := s.files.Download(ctx, document.DriveFileID)
	if err != nil {
		if errors.Is(err, drive.ErrFileNotFound) {
			return dto.EvaluationResponse{}, Errorf(KindServerError, "stored file %q is missing", document.DriveFileID)
		}
		return dto.EvaluationResponse{}, WrapError(KindServerError, "file download failed", err)
	}

	text, err := s.extractor.Extract(raw, document.MediaType)
	if err != nil {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "text extraction failed", err)
	}

	if hash := Fingerprint(text); hash != "" {
		document.ContentHash = &hash
		if err := s.documents.SetContentHash(ctx, document.ID, hash); err != nil {
			return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to store content hash", err)
		}

		cached, err := s.evaluations.LatestByUserAndContentHash(ctx, userID, hash)
		switch {
		case err == nil:
			return s.completeFromCache(ctx, document, userID, cached)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return dto.EvaluationResponse{}, WrapError(KindServerError, "evaluation cache lookup failed", err)
		}
	}

	prepared := s.truncate(text)

	valid, err := s.classifier.Classify(ctx, prepared)
	if err != nil || !valid {
		// Ambiguous classification counts as rejection.
		return dto.EvaluationResponse{}, Errorf(KindInvalidDocument, "the uploaded document is not a software testing document")
	}

	// Supersede: at most one evaluation row is current per document.
	if err := s.evaluations.DeleteByDocument(ctx, document.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to supersede prior evaluation", err)
	}

	report, err := s.scorer.Score(ctx, prepared)
	if err != nil {
		return dto.EvaluationResponse{}, WrapError(KindServerError, fmt.Sprintf("scoring failed: %v", err), err)
	}

	evaluation := models.Evaluation{
		DocumentID:           document.ID,
		UserID:               userID,
		CompletenessScore:    report.CompletenessScore,
		CompletenessFeedback: s.clean(report.CompletenessFeedback),
		ClarityScore:         report.ClarityScore,
		ClarityFeedback:      s.clean(report.ClarityFeedback),
		ConsistencyScore:     report.ConsistencyScore,
		ConsistencyFeedback:  s.clean(report.ConsistencyFeedback),
		VerificationScore:    report.VerificationScore,
		VerificationFeedback: s.clean(report.VerificationFeedback),
		OverallScore:         report.OverallScore,
		OverallFeedback:      s.clean(report.OverallFeedback),
	}

	if err := s.evaluations.Create(ctx, &evaluation); err != nil {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to persist evaluation", err)
	}

	if err := s.documents.UpdateStatus(ctx, document.ID, models.DocumentStatusCompleted); err != nil {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to mark document completed", err)
	}
	document.Status = models.DocumentStatusCompleted

	score := evaluation.OverallScore
	s.record(ctx, ActionEvaluate, ActivityActor{ID: userID, Role: models.RoleStudent}, document, map[string]interface{}{
		"filename":      document.Filename,
		"overall_score": score,
	})
	s.publish(ctx, EvaluationEvent{
		Type:         EventEvaluationCompleted,
		DocumentID:   document.ID,
		UserID:       userID,
		OverallScore: &score,
	})
	s.invalidateListCache(ctx, userID)

	s.logger.Info().
		Str("document_id", document.ID.String()).
		Int("overall_score", score).
		Msg("document evaluated")

	return dto.NewEvaluationResponse(evaluation, document.Filename), nil
}

// completeFromCache clones a prior identical submission's scores onto a fresh
// evaluation for the current document. Classification and scoring are skipped
// entirely for exact content duplicates.
func (s *evaluationService) completeFromCache(ctx context.Context, document *models.Document, userID uuid.UUID, cached models.Evaluation) (dto.EvaluationResponse, error) {
	// The cached row may belong to this very document (re-evaluation with
	// unchanged content); the supersede rule still applies.
	if err := s.evaluations.DeleteByDocument(ctx, document.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to supersede prior evaluation", err)
	}

	clone := models.Evaluation{
		DocumentID:           document.ID,
		UserID:               userID,
		CompletenessScore:    cached.CompletenessScore,
		CompletenessFeedback: cached.CompletenessFeedback,
		ClarityScore:         cached.ClarityScore,
		ClarityFeedback:      cached.ClarityFeedback,
		ConsistencyScore:     cached.ConsistencyScore,
		ConsistencyFeedback:  cached.ConsistencyFeedback,
		VerificationScore:    cached.VerificationScore,
		VerificationFeedback: cached.VerificationFeedback,
		OverallScore:         cached.OverallScore,
		OverallFeedback:      cached.OverallFeedback + cacheFeedbackNote,
	}

	if err := s.evaluations.Create(ctx, &clone); err != nil {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to persist cached evaluation", err)
	}

	if err := s.documents.UpdateStatus(ctx, document.ID, models.DocumentStatusCompleted); err != nil {
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to mark document completed", err)
	}
	document.Status = models.DocumentStatusCompleted

	score := clone.OverallScore
	s.record(ctx, ActionEvaluateCache, ActivityActor{ID: userID, Role: models.RoleStudent}, document, map[string]interface{}{
		"filename":      document.Filename,
		"overall_score": score,
	})
	s.publish(ctx, EvaluationEvent{
		Type:         EventEvaluationCompleted,
		DocumentID:   document.ID,
		UserID:       userID,
		OverallScore: &score,
	})
	s.invalidateListCache(ctx, userID)

	s.logger.Info().
		Str("document_id", document.ID.String()).
		Msg("duplicate content detected, returning cached result")

	return dto.NewEvaluationResponse(clone, document.Filename), nil
}

func (s *evaluationService) Override(ctx context.Context, documentID, teacherID uuid.UUID, score int) (dto.EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.override", trace.WithAttributes(
		attribute.String("document_id", documentID.String()),
		attribute.String("teacher_id", teacherID.String()),
		attribute.Int("score", score),
	))
	defer span.End()

	document, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, Errorf(KindNotFound, "document not found")
		}
		span.RecordError(err)
		return dto.EvaluationResponse{}, WrapError(KindServerError, "document lookup failed", err)
	}

	if err := s.access.AuthorizeOverride(ctx, document, teacherID, score); err != nil {
		span.SetStatus(codes.Error, string(KindOf(err)))
		return dto.EvaluationResponse{}, err
	}

	evaluation, err := s.evaluations.GetByDocument(ctx, documentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			return dto.EvaluationResponse{}, WrapError(KindServerError, "evaluation lookup failed", err)
		}
		// Overriding a never-evaluated document creates the row.
		evaluation = models.Evaluation{DocumentID: document.ID, UserID: document.UserID}
	}

	evaluation.CompletenessScore = score
	evaluation.ClarityScore = score
	evaluation.ConsistencyScore = score
	evaluation.VerificationScore = score
	evaluation.OverallScore = score
	evaluation.OverallFeedback = overrideFeedbackNote
	evaluation.Document = models.Document{}

	if err := s.evaluations.Save(ctx, &evaluation); err != nil {
		span.RecordError(err)
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to persist override", err)
	}

	if err := s.documents.UpdateStatus(ctx, document.ID, models.DocumentStatusCompleted); err != nil {
		span.RecordError(err)
		return dto.EvaluationResponse{}, WrapError(KindServerError, "failed to mark document completed", err)
	}

	s.record(ctx, ActionOverride, ActivityActor{ID: teacherID, Role: models.RoleTeacher}, &document, map[string]interface{}{
		"filename": document.Filename,
		"score":    score,
	})
	s.publish(ctx, EvaluationEvent{
		Type:         EventEvaluationOverridden,
		DocumentID:   document.ID,
		UserID:       document.UserID,
		OverallScore: &score,
	})
	s.invalidateListCache(ctx, document.UserID)

	return dto.NewEvaluationResponse(evaluation, document.Filename), nil
}

func (s *evaluationService) GetByDocument(ctx context.Context, documentID, requesterID uuid.UUID) (dto.EvaluationResponse, error) {
	evaluation, err := s.evaluations.GetByDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, Errorf(KindNotFound, "evaluation report not found")
		}
		return dto.EvaluationResponse{}, WrapError(KindServerError, "evaluation lookup failed", err)
	}

	if !s.access.CanView(ctx, evaluation.Document, requesterID) {
		return dto.EvaluationResponse{}, Errorf(KindForbidden, "unauthorized access to evaluation")
	}

	return dto.NewEvaluationResponse(evaluation, evaluation.Document.Filename), nil
}

func (s *evaluationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]dto.EvaluationResponse, error) {
	cacheKey := s.listCacheKey(userID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var responses []dto.EvaluationResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &responses); unmarshalErr == nil {
				return responses, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read evaluation list cache")
		}
	}

	evaluations, err := s.evaluations.ListByUser(ctx, userID)
	if err != nil {
		return nil, WrapError(KindServerError, "evaluation list failed", err)
	}

	responses := dto.NewEvaluationResponseSlice(evaluations)

	if s.cache != nil {
		if payload, err := json.Marshal(responses); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cfg.ListCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store evaluation list cache")
			}
		}
	}

	return responses, nil
}

func (s *evaluationService) ValidateContent(ctx context.Context, text string) bool {
	valid, err := s.classifier.Classify(ctx, s.truncate(text))
	if err != nil {
		s.logger.Warn().Err(err).Msg("content validation failed, rejecting")
		return false
	}
	return valid
}

func (s *evaluationService) ValidateStoredFile(ctx context.Context, fileID, mediaType string) bool {
	raw, err := s.files.Download(ctx, fileID)
	if err != nil {
		s.logger.Warn().Err(err).Str("file_id", fileID).Msg("stored file validation download failed, rejecting")
		return false
	}

	text, err := s.extractor.Extract(raw, mediaType)
	if err != nil {
		s.logger.Warn().Err(err).Str("file_id", fileID).Msg("stored file validation extraction failed, rejecting")
		return false
	}

	return s.ValidateContent(ctx, text)
}

// classifyFailure maps an in-pipeline error onto exactly one caller-facing
// kind, upgrading oracle throttling signals to KindRateLimited by inspecting
// the raw error text.
func (s *evaluationService) classifyFailure(err error) error {
	var tagged *Error
	if errors.As(err, &tagged) {
		if tagged.Kind == KindServerError && isUpstreamThrottle(tagged) {
			return Errorf(KindRateLimited, "the evaluation service is busy, please retry in a moment")
		}
		return tagged
	}

	if isUpstreamThrottle(err) {
		return Errorf(KindRateLimited, "the evaluation service is busy, please retry in a moment")
	}

	return WrapError(KindServerError, fmt.Sprintf("internal processing failed: %v", err), err)
}

func isUpstreamThrottle(err error) bool {
	msg := strings.ToLower(err.Error())
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Err != nil {
		msg += " " + strings.ToLower(tagged.Err.Error())
	}
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// truncate caps the oracle input at the configured character budget, backing
// off to a rune boundary so the cut never splits a character.
func (s *evaluationService) truncate(text string) string {
	max := s.cfg.MaxContentChars
	if max <= 0 || len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

func (s *evaluationService) clean(feedback string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(feedback))
}

func (s *evaluationService) record(ctx context.Context, action string, actor ActivityActor, document *models.Document, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}

	entityID := document.ID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "document",
		EntityID:   &entityID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record audit entry")
	}
}

func (s *evaluationService) publish(ctx context.Context, event EvaluationEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	s.events.Publish(ctx, event)
}

func (s *evaluationService) invalidateListCache(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.listCacheKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate evaluation list cache")
	}
}

func (s *evaluationService) listCacheKey(userID uuid.UUID) string {
	return "evaluations:user:" + userID.String()
}
