package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
)

// SubmissionService grades a completed attempt exactly once.
type SubmissionService struct {
	attempts  AttemptStore
	exams     ExamStore
	questions QuestionStore
	rdb       *redis.Client
	grace     time.Duration
	log       zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(attempts AttemptStore, exams ExamStore, questions QuestionStore, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		attempts:  attempts,
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		grace:     cfg.SubmitGrace,
		log:       log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit flushes the live answer cache, grades against the answer key and
// freezes the attempt. Exactly-once at the data level: the conditional
// finalize rejects a concurrent second submit. A submission arriving past
// the grace window is logged as late but never rejected — it tolerates the
// final round-trip of an auto-submit fired exactly at expiry.
func (s *SubmissionService) Submit(ctx context.Context, attemptID uuid.UUID) (*model.SubmissionResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if attempt.Submitted {
		return nil, ErrAlreadySubmitted
	}
	if !attempt.Started() {
		return nil, ErrNotStarted
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, mapExamErr(err)
	}

	now := time.Now()
	late := now.After(attempt.EndTime.Add(s.grace))
	if late {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Time("end_time", *attempt.EndTime).
			Bool("allow_late", exam.AllowLateSubmission).
			Dur("overrun", now.Sub(*attempt.EndTime)).
			Msg("Late submission accepted")
	}

	// Fold the live Redis answer hash into the durable map first so grading
	// sees every answer even if the autosave worker is lagging.
	if err := s.flushLiveAnswers(ctx, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Live answer flush failed, grading stored answers")
	} else {
		attempt, err = s.attempts.GetByID(ctx, attemptID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if attempt.Submitted {
			return nil, ErrAlreadySubmitted
		}
	}

	questions, err := s.questions.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	result := Grade(questions, attempt.Answers, exam.NegativeMarks)
	result.Late = late

	applied, err := s.attempts.FinalizeSubmission(ctx, attemptID, repository.SubmissionStats{
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		CorrectAnswers: result.CorrectAnswers,
		WrongAnswers:   result.WrongAnswers,
		Unanswered:     result.Unanswered,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize submission: %w", err)
	}
	if !applied {
		// A concurrent submit won the conditional update.
		return nil, ErrAlreadySubmitted
	}

	s.enqueueIntegrityRecompute(ctx, attemptID)
	s.clearLiveState(ctx, attemptID)

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("score", result.Score).
		Int("correct", result.CorrectAnswers).
		Int("wrong", result.WrongAnswers).
		Int("unanswered", result.Unanswered).
		Msg("Attempt submitted")
	return result, nil
}

// Grade partitions every question into exactly one of correct, wrong or
// unanswered. A correct answer adds the question's marks; wrong answers
// deduct negativeMarks each when the exam configures them. The score never
// goes below zero.
func Grade(questions []model.Question, answers map[string]string, negativeMarks float64) *model.SubmissionResult {
	result := &model.SubmissionResult{TotalQuestions: len(questions)}

	for _, q := range questions {
		result.TotalMarks += q.Marks

		selected, ok := answers[q.ID.String()]
		switch {
		case !ok || selected == "":
			result.Unanswered++
		case selected == q.CorrectOption:
			result.CorrectAnswers++
			result.Score += float64(q.Marks)
		default:
			result.WrongAnswers++
		}
	}

	if negativeMarks > 0 {
		result.Score -= float64(result.WrongAnswers) * negativeMarks
		if result.Score < 0 {
			result.Score = 0
		}
	}
	return result
}

func (s *SubmissionService) flushLiveAnswers(ctx context.Context, attemptID uuid.UUID) error {
	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	live, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return nil
	}
	_, err = s.attempts.MergeAnswers(ctx, attemptID, live)
	return err
}

// enqueueIntegrityRecompute hands the attempt to the integrity worker for
// the full post-hoc trust score derivation.
func (s *SubmissionService) enqueueIntegrityRecompute(ctx context.Context, attemptID uuid.UUID) {
	payload, _ := json.Marshal(map[string]string{"attempt_id": attemptID.String()})
	if err := s.rdb.RPush(ctx, config.WorkerKey.IntegrityQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to enqueue integrity recompute")
	}
}

func (s *SubmissionService) clearLiveState(ctx context.Context, attemptID uuid.UUID) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()))
	pipe.Del(ctx, config.CacheKey.AttemptWindowKey(attemptID.String()))
	_, _ = pipe.Exec(ctx)
}
