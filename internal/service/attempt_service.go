package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// AttemptService handles admission (creating an unstarted attempt under the
// exam's access policy), answer autosaving and resume-time status.
type AttemptService struct {
	attempts AttemptStore
	exams    ExamStore
	timing   *TimingService
	tokens   *TokenService
	rdb      *redis.Client
	grace    time.Duration
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, exams ExamStore, timing *TimingService, tokens *TokenService, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		exams:    exams,
		timing:   timing,
		tokens:   tokens,
		rdb:      rdb,
		grace:    cfg.SubmitGrace,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// CreatedAttempt is the admission result: the unstarted attempt and the
// session token scoping all further calls to it.
type CreatedAttempt struct {
	Attempt *model.Attempt `json:"attempt"`
	Token   string         `json:"token"`
}

// CreateAttempt admits a student into an exam: access code, scheduling
// window and attempt limit are checked here, and nowhere later. The attempt
// starts unstarted — the clock only runs once the timing authority stamps it.
func (s *AttemptService) CreateAttempt(ctx context.Context, examID uuid.UUID, req *model.CreateAttemptRequest) (*CreatedAttempt, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, mapExamErr(err)
	}

	switch exam.ScheduleAt(time.Now()) {
	case model.ScheduleNotYetOpen:
		return nil, ErrExamNotOpen
	case model.ScheduleClosed:
		return nil, ErrExamClosed
	}

	if exam.RequireAccessCode {
		if err := bcrypt.CompareHashAndPassword([]byte(exam.AccessCodeHash), []byte(req.AccessCode)); err != nil {
			return nil, ErrInvalidAccessCode
		}
	}

	if exam.MaxAttempts != nil {
		prior, err := s.attempts.CountByStudent(ctx, examID, req.StudentName, req.RollNumber)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if prior >= *exam.MaxAttempts {
			return nil, ErrAttemptLimitReached
		}
	}

	attempt := &model.Attempt{
		ExamID:      examID,
		StudentName: req.StudentName,
		RollNumber:  req.RollNumber,
		Answers:     map[string]string{},
		TrustScore:  100,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	token, err := s.tokens.GenerateAttemptToken(attempt.ID, examID, exam.Duration())
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Msg("Attempt created")
	return &CreatedAttempt{Attempt: attempt, Token: token}, nil
}

// SaveAnswer records one answer change. Write-through: the Redis hash is the
// live copy, and the autosave worker persists the queued change durably.
// Saves past the grace window return ErrAttemptExpired so the client falls
// back to its timer-driven auto-submit instead of retrying.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID, optionID string) error {
	window, err := s.timing.Window(ctx, attemptID)
	if err != nil {
		return err
	}
	if time.Now().After(window.EndTime.Add(s.grace)) {
		return ErrAttemptExpired
	}

	// The durable upsert also refuses writes on a submitted attempt, so the
	// frozen invariant holds even if this save races the finalize.
	applied, err := s.attempts.SaveAnswer(ctx, attemptID, questionID, optionID)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if !applied {
		return ErrAlreadySubmitted
	}

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	if err := s.rdb.HSet(ctx, answersKey, questionID, optionID).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Live answer cache write failed")
	}

	payload, _ := json.Marshal(map[string]string{
		"attempt_id":  attemptID.String(),
		"question_id": questionID,
		"option_id":   optionID,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Answer queue push failed")
	}
	return nil
}

// Status returns the resume-time snapshot used on mount/reload: the stamped
// window, the stored answers overlaid with any fresher live-cache values,
// and the violation counter.
func (s *AttemptService) Status(ctx context.Context, attemptID uuid.UUID) (*model.AttemptStatus, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	answers := make(map[string]string, len(attempt.Answers))
	for q, o := range attempt.Answers {
		answers[q] = o
	}
	if !attempt.Submitted {
		live, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
		if err == nil {
			for q, o := range live {
				answers[q] = o
			}
		}
	}

	return &model.AttemptStatus{
		AttemptID:  attempt.ID,
		StartTime:  attempt.StartTime,
		EndTime:    attempt.EndTime,
		Submitted:  attempt.Submitted,
		Answers:    answers,
		Violations: attempt.Violations,
	}, nil
}
