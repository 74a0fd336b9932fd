package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
)

// AttemptStore is the persistence gateway the authorities serialize through.
// Implementations must make every mutation a per-attempt atomic update; the
// pgx repository does this with single conditional statements.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	CountByStudent(ctx context.Context, examID uuid.UUID, name, roll string) (int, error)
	StampStart(ctx context.Context, id uuid.UUID, durationMinutes int) (bool, error)
	SaveAnswer(ctx context.Context, id uuid.UUID, questionID, optionID string) (bool, error)
	MergeAnswers(ctx context.Context, id uuid.UUID, answers map[string]string) (bool, error)
	IncrementViolations(ctx context.Context, id uuid.UUID) (violations, trustScore int, applied bool, err error)
	FinalizeSubmission(ctx context.Context, id uuid.UUID, stats repository.SubmissionStats) (bool, error)
	UpdateIntegrity(ctx context.Context, id uuid.UUID, trustScore int, level model.IntegrityLevel, awaySeconds int) error
	ListSubmittedByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error)
}

// ExamStore reads immutable exam configuration.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// QuestionStore reads the immutable question set with answer key.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// EventStore reads the append-only proctoring event log.
type EventStore interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.IntegrityEvent, error)
}
