package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("repository: not found")

// SubmissionStats is the frozen statistics block written exactly once by the
// submission authority.
type SubmissionStats struct {
	Score          float64
	TotalQuestions int
	CorrectAnswers int
	WrongAnswers   int
	Unanswered     int
}

// AttemptRepository handles attempt data access. Every mutation is a single
// conditional UPDATE so concurrent authority calls linearize on the row:
// no read-modify-write happens outside the database.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_name, roll_number, start_time, end_time,
	answers, revisions, submitted, completed_at,
	score, total_questions, correct_answers, wrong_answers, unanswered,
	violations, trust_score, integrity_level, total_away_seconds, created_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers, revisions []byte
	err := row.Scan(
		&a.ID, &a.ExamID, &a.StudentName, &a.RollNumber, &a.StartTime, &a.EndTime,
		&answers, &revisions, &a.Submitted, &a.CompletedAt,
		&a.Score, &a.TotalQuestions, &a.CorrectAnswers, &a.WrongAnswers, &a.Unanswered,
		&a.Violations, &a.TrustScore, &a.IntegrityLevel, &a.TotalAwaySeconds, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(revisions, &a.Revisions); err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a fresh, unstarted attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_name, roll_number)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		a.ExamID, a.StudentName, a.RollNumber,
	).Scan(&a.ID, &a.CreatedAt)
}

// GetByID retrieves one attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// CountByStudent counts prior attempts for a (exam, name, roll) identity.
func (r *AttemptRepository) CountByStudent(ctx context.Context, examID uuid.UUID, name, roll string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE exam_id = $1 AND student_name = $2 AND roll_number = $3`,
		examID, name, roll,
	).Scan(&n)
	return n, err
}

// StampStart sets start_time/end_time once. The WHERE guard makes the call
// idempotent: a retried or duplicated begin never restamps the window.
// Returns true if this call performed the stamp.
func (r *AttemptRepository) StampStart(ctx context.Context, id uuid.UUID, durationMinutes int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET start_time = now(),
		     end_time = now() + make_interval(mins => $2)
		 WHERE id = $1 AND start_time IS NULL AND submitted = FALSE`,
		id, durationMinutes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveAnswer upserts one answer into the JSONB map and bumps the question's
// revision counter when an existing different value is overwritten. Rejected
// (applied=false) once the attempt is submitted.
func (r *AttemptRepository) SaveAnswer(ctx context.Context, id uuid.UUID, questionID, optionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET revisions = CASE
		       WHEN answers ? $2 AND answers->>$2 <> $3
		       THEN jsonb_set(revisions, ARRAY[$2], to_jsonb(COALESCE((revisions->>$2)::int, 0) + 1), true)
		       ELSE revisions
		     END,
		     answers = jsonb_set(answers, ARRAY[$2], to_jsonb($3::text), true)
		 WHERE id = $1 AND submitted = FALSE`,
		id, questionID, optionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MergeAnswers folds a full answer map into the stored one in a single
// statement. Used by the submission path to flush the live cache before
// grading. Keys already present win with the incoming value.
func (r *AttemptRepository) MergeAnswers(ctx context.Context, id uuid.UUID, answers map[string]string) (bool, error) {
	if len(answers) == 0 {
		return true, nil
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET answers = answers || $2::jsonb
		 WHERE id = $1 AND submitted = FALSE`,
		id, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementViolations bumps the counter atomically and recomputes the coarse
// trust hint in the same statement, so concurrent recorders never lose an
// update. Returns the new counter and hint; applied=false when the attempt
// is already submitted or missing.
func (r *AttemptRepository) IncrementViolations(ctx context.Context, id uuid.UUID) (violations, trustScore int, applied bool, err error) {
	err = r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET violations = violations + 1,
		     trust_score = GREATEST(0, 100 - 20 * (violations + 1))
		 WHERE id = $1 AND submitted = FALSE
		 RETURNING violations, trust_score`,
		id,
	).Scan(&violations, &trustScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return violations, trustScore, true, nil
}

// FinalizeSubmission flips submitted exactly once, stamping completed_at and
// the grading statistics atomically. A concurrent second submit observes
// zero rows affected.
func (r *AttemptRepository) FinalizeSubmission(ctx context.Context, id uuid.UUID, stats SubmissionStats) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET submitted = TRUE,
		     completed_at = now(),
		     score = $2,
		     total_questions = $3,
		     correct_answers = $4,
		     wrong_answers = $5,
		     unanswered = $6
		 WHERE id = $1 AND submitted = FALSE`,
		id, stats.Score, stats.TotalQuestions, stats.CorrectAnswers, stats.WrongAnswers, stats.Unanswered)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateIntegrity overwrites the derived trust fields. These are pure
// functions of the event log and remain writable after submission.
func (r *AttemptRepository) UpdateIntegrity(ctx context.Context, id uuid.UUID, trustScore int, level model.IntegrityLevel, awaySeconds int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET trust_score = $2, integrity_level = $3, total_away_seconds = $4
		 WHERE id = $1`,
		id, trustScore, level, awaySeconds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubmittedByExam returns every submitted attempt of an exam, oldest
// first. Feed for the batch integrity report.
func (r *AttemptRepository) ListSubmittedByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = $1 AND submitted = TRUE
		 ORDER BY completed_at ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
