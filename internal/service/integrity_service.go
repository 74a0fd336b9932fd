package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/integrity"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// IntegrityService runs the scoring engine over the persisted event log and
// writes the derived trust fields back onto the attempt. It never touches a
// live session: it is a post-hoc review step, recomputable at any time.
type IntegrityService struct {
	attempts  AttemptStore
	questions QuestionStore
	events    EventStore
	log       zerolog.Logger
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(attempts AttemptStore, questions QuestionStore, events EventStore, log zerolog.Logger) *IntegrityService {
	return &IntegrityService{
		attempts:  attempts,
		questions: questions,
		events:    events,
		log:       log.With().Str("component", "integrity_service").Logger(),
	}
}

func (s *IntegrityService) buildInput(ctx context.Context, attempt *model.Attempt) (integrity.Input, error) {
	events, err := s.events.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return integrity.Input{}, fmt.Errorf("list events: %w", err)
	}

	totalQuestions := attempt.TotalQuestions
	if totalQuestions == 0 {
		questions, err := s.questions.ListByExam(ctx, attempt.ExamID)
		if err != nil {
			return integrity.Input{}, fmt.Errorf("list questions: %w", err)
		}
		totalQuestions = len(questions)
	}

	totalRevisions := 0
	for _, n := range attempt.Revisions {
		totalRevisions += n
	}

	// An unpaired FOCUS_LOST on a submitted attempt pairs against the
	// submission instant, not wall-clock now.
	anchor := time.Now()
	if attempt.CompletedAt != nil {
		anchor = *attempt.CompletedAt
	}

	return integrity.Input{
		Events:         events,
		TotalQuestions: totalQuestions,
		TotalRevisions: totalRevisions,
		Now:            anchor,
	}, nil
}

// ScoreAttempt recomputes and persists the trust fields for one attempt.
func (s *IntegrityService) ScoreAttempt(ctx context.Context, attemptID uuid.UUID) (*integrity.Breakdown, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	in, err := s.buildInput(ctx, attempt)
	if err != nil {
		return nil, err
	}

	breakdown := integrity.Score(in)
	if err := s.attempts.UpdateIntegrity(ctx, attemptID, breakdown.TrustScore, breakdown.Level, breakdown.TotalAwaySeconds); err != nil {
		return nil, fmt.Errorf("persist integrity: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("trust_score", breakdown.TrustScore).
		Str("level", string(breakdown.Level)).
		Msg("Integrity score recomputed")
	return &breakdown, nil
}

// ReportAttempt builds the full reviewer report (timeline, severities,
// recommendations) and persists the refreshed trust fields as a side effect.
func (s *IntegrityService) ReportAttempt(ctx context.Context, attemptID uuid.UUID) (*integrity.Report, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	in, err := s.buildInput(ctx, attempt)
	if err != nil {
		return nil, err
	}

	report := integrity.BuildReport(attemptID, in)
	if err := s.attempts.UpdateIntegrity(ctx, attemptID, report.Breakdown.TrustScore, report.Breakdown.Level, report.Breakdown.TotalAwaySeconds); err != nil {
		return nil, fmt.Errorf("persist integrity: %w", err)
	}
	return report, nil
}

// ReportExam runs the report over every submitted attempt of an exam.
// Individual failures skip the attempt rather than aborting the batch.
func (s *IntegrityService) ReportExam(ctx context.Context, examID uuid.UUID) ([]*integrity.Report, error) {
	attempts, err := s.attempts.ListSubmittedByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list submitted attempts: %w", err)
	}

	reports := make([]*integrity.Report, 0, len(attempts))
	for i := range attempts {
		report, err := s.ReportAttempt(ctx, attempts[i].ID)
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", attempts[i].ID.String()).Msg("Batch report: attempt skipped")
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
