package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stde-labs/stde-api/internal/dto"
	"github.com/stde-labs/stde-api/internal/models"
	"github.com/stde-labs/stde-api/internal/repository"
)

// HourlyEvaluationLimit caps evaluation attempts per user inside one window.
const HourlyEvaluationLimit = 30

const evaluationWindow = time.Hour

// QuotaService enforces the per-user fixed hourly evaluation window. The
// window restarts wholesale on expiry: a user idle past the hour gets a fresh
// full quota at the next call, there is no gradual refill.
type QuotaService interface {
	// CheckAndIncrement consumes one evaluation slot, failing with a
	// KindQuotaExceeded error when the window is exhausted. No state is
	// mutated on failure.
	CheckAndIncrement(ctx context.Context, userID uuid.UUID) error
	// UsageStats reports the caller's window position without mutating it.
	UsageStats(ctx context.Context, userID uuid.UUID) (dto.UsageStatsResponse, error)
}

type quotaService struct {
	users  repository.UserRepository
	limit  int
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewQuotaService constructs the quota service.
func NewQuotaService(users repository.UserRepository, logger zerolog.Logger) QuotaService {
	return &quotaService{
		users:  users,
		limit:  HourlyEvaluationLimit,
		window: evaluationWindow,
		logger: logger.With().Str("component", "quota_service").Logger(),
		now:    time.Now,
	}
}

func (s *quotaService) CheckAndIncrement(ctx context.Context, userID uuid.UUID) error {
	err := s.users.UpdateQuota(ctx, userID, func(user *models.User) error {
		now := s.now()
		windowStart := user.EvaluationWindowStart
		count := user.QuotaCount()

		// Lazy reset: nobody rewinds windows on a timer, the next request
		// after expiry pays for it.
		if windowStart == nil || !now.Before(windowStart.Add(s.window)) {
			start := now
			user.EvaluationWindowStart = &start
			windowStart = &start
			count = 0
		}

		if count >= s.limit {
			remaining := int(math.Ceil(windowStart.Add(s.window).Sub(now).Minutes()))
			quotaErr := Errorf(KindQuotaExceeded,
				"you have used all %d evaluation attempts for this hour, resets in %d minutes", s.limit, remaining)
			quotaErr.RetryAfterMinutes = remaining
			return quotaErr
		}

		count++
		user.EvaluationCount = &count
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Errorf(KindNotFound, "user not found")
		}
		var tagged *Error
		if errors.As(err, &tagged) {
			return tagged
		}
		return WrapError(KindServerError, "quota update failed", err)
	}

	return nil
}

func (s *quotaService) UsageStats(ctx context.Context, userID uuid.UUID) (dto.UsageStatsResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UsageStatsResponse{}, Errorf(KindNotFound, "user not found")
		}
		return dto.UsageStatsResponse{}, WrapError(KindServerError, "user lookup failed", err)
	}

	now := s.now()
	windowStart := user.EvaluationWindowStart
	count := user.QuotaCount()

	// Same expiry rule as CheckAndIncrement, applied read-only.
	if windowStart == nil || !now.Before(windowStart.Add(s.window)) {
		start := now
		windowStart = &start
		count = 0
	}

	resetIn := int64(windowStart.Add(s.window).Sub(now).Seconds())
	if resetIn < 0 {
		resetIn = 0
	}

	remaining := s.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return dto.UsageStatsResponse{
		Used:           count,
		Limit:          s.limit,
		Remaining:      remaining,
		ResetInSeconds: resetIn,
	}, nil
}
