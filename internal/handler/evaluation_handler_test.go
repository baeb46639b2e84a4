package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/config"
	"github.com/stde-labs/stde-api/internal/handler"
	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
	"github.com/stde-labs/stde-api/internal/router"
	"github.com/stde-labs/stde-api/internal/service"
	"github.com/stde-labs/stde-api/pkg/ai"
)

type testFileStore struct {
	files map[string][]byte
}

func (s *testFileStore) Download(_ context.Context, fileID string) ([]byte, error) {
	data, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("missing file %q", fileID)
	}
	return data, nil
}

type testExtractor struct{}

func (testExtractor) Extract(data []byte, _ string) (string, error) {
	return string(data), nil
}

type testOracle struct {
	valid  bool
	report ai.ScoreReport
}

func (o *testOracle) Classify(context.Context, string) (bool, error) {
	return o.valid, nil
}

func (o *testOracle) Score(context.Context, string) (ai.ScoreReport, error) {
	return o.report, nil
}

type evaluationApp struct {
	app    *fiber.App
	db     *gorm.DB
	files  *testFileStore
	oracle *testOracle
	caller *uuid.UUID
	role   *string
}

func setupEvaluationApp(t *testing.T) *evaluationApp {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Classroom{}, &models.Document{},
		&models.Evaluation{}, &models.ActivityLog{},
	))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	files := &testFileStore{files: map[string][]byte{}}
	oracle := &testOracle{
		valid: true,
		report: ai.ScoreReport{
			CompletenessScore: 80, CompletenessFeedback: "ok",
			ClarityScore: 80, ClarityFeedback: "ok",
			ConsistencyScore: 80, ConsistencyFeedback: "ok",
			VerificationScore: 80, VerificationFeedback: "ok",
			OverallScore: 80, OverallFeedback: "ok",
		},
	}

	quota := service.NewQuotaService(repository.NewUserRepository(db), logger)
	access := service.NewAccessControl(service.NewClassroomAuthority(repository.NewClassroomRepository(db)), logger)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)

	evaluationService := service.NewEvaluationService(
		repository.NewDocumentRepository(db),
		repository.NewEvaluationRepository(db),
		quota,
		access,
		files,
		testExtractor{},
		oracle,
		oracle,
		activity,
		service.NewNATSPublisher(nil, "", logger),
		redisClient,
		service.EvaluationConfig{ListCacheTTL: time.Minute},
		logger,
	)

	harness := &evaluationApp{db: db, files: files, oracle: oracle, caller: &uuid.UUID{}, role: new(string)}

	app := fiber.New()
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, quota, validate, logger)
	activityHandler := handler.NewActivityHandler(activity, validate, logger)

	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		ActivityHandler:   activityHandler,
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", *harness.caller)
			if *harness.role != "" {
				c.Locals("user_role", *harness.role)
			}
			return c.Next()
		},
	})

	harness.app = app
	return harness
}

func (h *evaluationApp) actAs(user models.User) {
	*h.caller = user.ID
	*h.role = user.Role
}

func (h *evaluationApp) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func createAppUser(t *testing.T, db *gorm.DB, role string) models.User {
	t.Helper()
	user := models.User{Email: uuid.NewString() + "@example.com", Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createAppDocument(t *testing.T, h *evaluationApp, owner models.User, classroomID *uuid.UUID, content string) models.Document {
	t.Helper()
	fileID := uuid.NewString()
	h.files.files[fileID] = []byte(content)
	document := models.Document{
		UserID:      owner.ID,
		ClassroomID: classroomID,
		Filename:    "plan.pdf",
		DriveFileID: fileID,
		MediaType:   "text/plain",
		Status:      models.DocumentStatusPending,
	}
	require.NoError(t, h.db.Create(&document).Error)
	return document
}

func TestEvaluateEndpointSuccess(t *testing.T) {
	h := setupEvaluationApp(t)
	user := createAppUser(t, h.db, models.RoleStudent)
	document := createAppDocument(t, h, user, nil, "Test Case ID TC-1")
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			OverallScore int    `json:"overall_score"`
			Filename     string `json:"filename"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, 80, payload.Data.OverallScore)
	require.Equal(t, "plan.pdf", payload.Data.Filename)
}

func TestEvaluateEndpointRejectsInvalidDocumentType(t *testing.T) {
	h := setupEvaluationApp(t)
	h.oracle.valid = false
	user := createAppUser(t, h.db, models.RoleStudent)
	document := createAppDocument(t, h, user, nil, "an essay about summer")
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEvaluateEndpointUnknownDocument(t *testing.T) {
	h := setupEvaluationApp(t)
	user := createAppUser(t, h.db, models.RoleStudent)
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+uuid.NewString(), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestEvaluateEndpointMalformedID(t *testing.T) {
	h := setupEvaluationApp(t)
	user := createAppUser(t, h.db, models.RoleStudent)
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/not-a-uuid", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEvaluateEndpointQuotaExceeded(t *testing.T) {
	h := setupEvaluationApp(t)
	user := createAppUser(t, h.db, models.RoleStudent)
	start := time.Now()
	require.NoError(t, h.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"evaluation_window_start": start,
		"evaluation_count":        service.HourlyEvaluationLimit,
	}).Error)
	document := createAppDocument(t, h, user, nil, "Test Case ID TC-1")
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestUsageEndpoint(t *testing.T) {
	h := setupEvaluationApp(t)
	user := createAppUser(t, h.db, models.RoleStudent)
	document := createAppDocument(t, h, user, nil, "Test Case ID TC-1")
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/api/evaluations/usage", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data struct {
			Used      int `json:"used"`
			Limit     int `json:"limit"`
			Remaining int `json:"remaining"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.Equal(t, 1, payload.Data.Used)
	require.Equal(t, service.HourlyEvaluationLimit, payload.Data.Limit)
	require.Equal(t, service.HourlyEvaluationLimit-1, payload.Data.Remaining)
}

func TestGetEvaluationEndpointAuthorization(t *testing.T) {
	h := setupEvaluationApp(t)
	teacher := createAppUser(t, h.db, models.RoleTeacher)
	student := createAppUser(t, h.db, models.RoleStudent)
	stranger := createAppUser(t, h.db, models.RoleStudent)

	classroom := models.Classroom{Name: "QA", TeacherID: teacher.ID}
	require.NoError(t, h.db.Create(&classroom).Error)
	document := createAppDocument(t, h, student, &classroom.ID, "Test Case ID TC-1")

	h.actAs(student)
	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/api/evaluations/document/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	h.actAs(teacher)
	resp = h.request(t, http.MethodGet, "/api/evaluations/document/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	h.actAs(stranger)
	resp = h.request(t, http.MethodGet, "/api/evaluations/document/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestOverrideEndpoint(t *testing.T) {
	h := setupEvaluationApp(t)
	teacher := createAppUser(t, h.db, models.RoleTeacher)
	student := createAppUser(t, h.db, models.RoleStudent)
	classroom := models.Classroom{Name: "QA", TeacherID: teacher.ID}
	require.NoError(t, h.db.Create(&classroom).Error)
	document := createAppDocument(t, h, student, &classroom.ID, "Test Case ID TC-1")

	h.actAs(teacher)
	score := 93
	resp := h.request(t, http.MethodPut, "/api/evaluations/override/"+document.ID.String(), map[string]interface{}{
		"overall_score": score,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data struct {
			OverallScore    int    `json:"overall_score"`
			OverallFeedback string `json:"overall_feedback"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.Equal(t, 93, payload.Data.OverallScore)
	require.NotEmpty(t, payload.Data.OverallFeedback)
}

func TestOverrideEndpointMissingScore(t *testing.T) {
	h := setupEvaluationApp(t)
	teacher := createAppUser(t, h.db, models.RoleTeacher)
	h.actAs(teacher)

	resp := h.request(t, http.MethodPut, "/api/evaluations/override/"+uuid.NewString(), map[string]interface{}{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOverrideEndpointUnlinkedDocumentForbidden(t *testing.T) {
	h := setupEvaluationApp(t)
	teacher := createAppUser(t, h.db, models.RoleTeacher)
	student := createAppUser(t, h.db, models.RoleStudent)
	document := createAppDocument(t, h, student, nil, "Test Case ID TC-1")

	h.actAs(teacher)
	resp := h.request(t, http.MethodPut, "/api/evaluations/override/"+document.ID.String(), map[string]interface{}{
		"overall_score": 88,
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestListEndpoint(t *testing.T) {
	h := setupEvaluationApp(t)
	user := createAppUser(t, h.db, models.RoleStudent)
	document := createAppDocument(t, h, user, nil, "Test Case ID TC-1")
	h.actAs(user)

	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/api/evaluations/user", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []struct {
			DocumentID uuid.UUID `json:"document_id"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.Len(t, payload.Data, 1)
	require.Equal(t, document.ID, payload.Data[0].DocumentID)
}

func TestActivityEndpointRequiresTeacher(t *testing.T) {
	h := setupEvaluationApp(t)
	student := createAppUser(t, h.db, models.RoleStudent)
	teacher := createAppUser(t, h.db, models.RoleTeacher)
	document := createAppDocument(t, h, student, nil, "Test Case ID TC-1")

	h.actAs(student)
	resp := h.request(t, http.MethodPost, "/api/evaluations/evaluate/"+document.ID.String(), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = h.request(t, http.MethodGet, "/api/activity", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	h.actAs(teacher)
	resp = h.request(t, http.MethodGet, "/api/activity", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []struct {
			Action string `json:"action"`
		} `json:"data"`
		Meta struct {
			TotalItems int64 `json:"total_items"`
		} `json:"meta"`
	}
	decodeResponse(t, resp, &payload)
	require.NotEmpty(t, payload.Data)
	require.Equal(t, "evaluate", payload.Data[0].Action)
	require.EqualValues(t, 1, payload.Meta.TotalItems)
}
