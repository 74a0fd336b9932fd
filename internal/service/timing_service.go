package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// TimingService is the single source of truth for "how much time is left".
// All arithmetic uses the server clock; the client clock is advisory only.
type TimingService struct {
	attempts AttemptStore
	exams    ExamStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewTimingService creates a new TimingService.
func NewTimingService(attempts AttemptStore, exams ExamStore, rdb *redis.Client, log zerolog.Logger) *TimingService {
	return &TimingService{
		attempts: attempts,
		exams:    exams,
		rdb:      rdb,
		log:      log.With().Str("component", "timing_service").Logger(),
	}
}

// BeginTimer stamps start/end for an attempt exactly once. A retried or
// duplicated begin call returns the existing window unchanged, so a flaky
// client can never reset or extend its time.
func (s *TimingService) BeginTimer(ctx context.Context, attemptID uuid.UUID) (*model.TimerWindow, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if attempt.Submitted {
		return nil, ErrAlreadySubmitted
	}

	if attempt.Started() {
		window := &model.TimerWindow{StartTime: *attempt.StartTime, EndTime: *attempt.EndTime}
		s.cacheWindow(ctx, attemptID, window)
		return window, nil
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, mapExamErr(err)
	}

	// The conditional stamp is the linearization point: if a concurrent
	// begin won, the reload below still returns the winner's window.
	stamped, err := s.attempts.StampStart(ctx, attemptID, exam.DurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("stamp start: %w", err)
	}

	attempt, err = s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !attempt.Started() {
		// Stamp raced a submit on a never-started attempt.
		return nil, ErrAlreadySubmitted
	}

	window := &model.TimerWindow{StartTime: *attempt.StartTime, EndTime: *attempt.EndTime}
	s.cacheWindow(ctx, attemptID, window)

	if stamped {
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Time("end_time", window.EndTime).
			Msg("Timer started")
	}
	return window, nil
}

// Window returns the attempt's stamped window, serving from Redis when
// possible and self-healing the cache from Postgres on a miss.
// Returns ErrNotStarted when the timing authority has not stamped yet.
func (s *TimingService) Window(ctx context.Context, attemptID uuid.UUID) (*model.TimerWindow, error) {
	key := config.CacheKey.AttemptWindowKey(attemptID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if window, ok := parseWindow(val); ok {
			return window, nil
		}
		s.log.Warn().Str("attempt_id", attemptID.String()).Msg("Malformed window cache entry, falling back to DB")
	} else if err != redis.Nil {
		// Real Redis error: fall through to the DB rather than failing the
		// exam over a cache blip.
		s.log.Warn().Err(err).Msg("Window cache read failed")
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !attempt.Started() {
		return nil, ErrNotStarted
	}

	window := &model.TimerWindow{StartTime: *attempt.StartTime, EndTime: *attempt.EndTime}
	s.cacheWindow(ctx, attemptID, window)
	return window, nil
}

func (s *TimingService) cacheWindow(ctx context.Context, attemptID uuid.UUID, w *model.TimerWindow) {
	key := config.CacheKey.AttemptWindowKey(attemptID.String())
	val := fmt.Sprintf("%d|%d", w.StartTime.Unix(), w.EndTime.Unix())
	if err := s.rdb.Set(ctx, key, val, 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to cache timer window")
	}
}

func parseWindow(val string) (*model.TimerWindow, bool) {
	parts := strings.SplitN(val, "|", 2)
	if len(parts) != 2 {
		return nil, false
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	return &model.TimerWindow{
		StartTime: time.Unix(start, 0),
		EndTime:   time.Unix(end, 0),
	}, true
}

func mapStoreErr(err error) error {
	// repository.ErrNotFound surfaces as the domain-level not-found.
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return ErrAttemptNotFound
	}
	return err
}
