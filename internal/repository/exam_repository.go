package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// ExamRepository reads exam configuration. The authoring service owns
// writes; this subsystem only ever inserts via the seeding CLI.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam's configuration.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, anti_cheat_enabled, max_violations,
		        max_attempts, require_access_code, access_code_hash,
		        scheduled_start, scheduled_end, allow_late_submission,
		        negative_marks, pass_percentage, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(
		&e.ID, &e.Title, &e.DurationMinutes, &e.AntiCheatEnabled, &e.MaxViolations,
		&e.MaxAttempts, &e.RequireAccessCode, &e.AccessCodeHash,
		&e.ScheduledStart, &e.ScheduledEnd, &e.AllowLateSubmission,
		&e.NegativeMarks, &e.PassPercentage, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Create inserts an exam. Used by cmd/create-exam only.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, duration_minutes, anti_cheat_enabled, max_violations,
		        max_attempts, require_access_code, access_code_hash,
		        scheduled_start, scheduled_end, allow_late_submission,
		        negative_marks, pass_percentage)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`,
		e.Title, e.DurationMinutes, e.AntiCheatEnabled, e.MaxViolations,
		e.MaxAttempts, e.RequireAccessCode, e.AccessCodeHash,
		e.ScheduledStart, e.ScheduledEnd, e.AllowLateSubmission,
		e.NegativeMarks, e.PassPercentage,
	).Scan(&e.ID, &e.CreatedAt)
}
