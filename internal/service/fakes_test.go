package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/repository"
)

// newTestRedis spins up a miniredis instance and a client bound to it.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// memAttemptStore mimics the conditional-update semantics of the pgx
// repository in memory.
type memAttemptStore struct {
	mu         sync.Mutex
	attempts   map[uuid.UUID]*model.Attempt
	stampCalls int
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{attempts: make(map[uuid.UUID]*model.Attempt)}
}

func copyAttempt(a *model.Attempt) *model.Attempt {
	out := *a
	out.Answers = make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	out.Revisions = make(map[string]int, len(a.Revisions))
	for k, v := range a.Revisions {
		out.Revisions[k] = v
	}
	return &out
}

func (s *memAttemptStore) put(a *model.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	if a.Revisions == nil {
		a.Revisions = map[string]int{}
	}
	s.attempts[a.ID] = copyAttempt(a)
}

func (s *memAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	if a.Revisions == nil {
		a.Revisions = map[string]int{}
	}
	s.attempts[a.ID] = copyAttempt(a)
	return nil
}

func (s *memAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAttempt(a), nil
}

func (s *memAttemptStore) CountByStudent(_ context.Context, examID uuid.UUID, name, roll string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentName == name && a.RollNumber == roll {
			n++
		}
	}
	return n, nil
}

func (s *memAttemptStore) StampStart(_ context.Context, id uuid.UUID, durationMinutes int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stampCalls++
	a, ok := s.attempts[id]
	if !ok || a.StartTime != nil || a.Submitted {
		return false, nil
	}
	start := time.Now()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	a.StartTime = &start
	a.EndTime = &end
	return true, nil
}

func (s *memAttemptStore) SaveAnswer(_ context.Context, id uuid.UUID, questionID, optionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Submitted {
		return false, nil
	}
	if prev, exists := a.Answers[questionID]; exists && prev != optionID {
		a.Revisions[questionID]++
	}
	a.Answers[questionID] = optionID
	return true, nil
}

func (s *memAttemptStore) MergeAnswers(_ context.Context, id uuid.UUID, answers map[string]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Submitted {
		return false, nil
	}
	for q, o := range answers {
		a.Answers[q] = o
	}
	return true, nil
}

func (s *memAttemptStore) IncrementViolations(_ context.Context, id uuid.UUID) (int, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Submitted {
		return 0, 0, false, nil
	}
	a.Violations++
	hint := 100 - 20*a.Violations
	if hint < 0 {
		hint = 0
	}
	a.TrustScore = hint
	return a.Violations, a.TrustScore, true, nil
}

func (s *memAttemptStore) FinalizeSubmission(_ context.Context, id uuid.UUID, stats repository.SubmissionStats) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Submitted {
		return false, nil
	}
	now := time.Now()
	a.Submitted = true
	a.CompletedAt = &now
	a.Score = stats.Score
	a.TotalQuestions = stats.TotalQuestions
	a.CorrectAnswers = stats.CorrectAnswers
	a.WrongAnswers = stats.WrongAnswers
	a.Unanswered = stats.Unanswered
	return true, nil
}

func (s *memAttemptStore) UpdateIntegrity(_ context.Context, id uuid.UUID, trustScore int, level model.IntegrityLevel, awaySeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.TrustScore = trustScore
	a.IntegrityLevel = level
	a.TotalAwaySeconds = awaySeconds
	return nil
}

func (s *memAttemptStore) ListSubmittedByExam(_ context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.ExamID == examID && a.Submitted {
			out = append(out, *copyAttempt(a))
		}
	}
	return out, nil
}

type memExamStore struct {
	exams map[uuid.UUID]*model.Exam
}

func newMemExamStore(exams ...*model.Exam) *memExamStore {
	s := &memExamStore{exams: make(map[uuid.UUID]*model.Exam)}
	for _, e := range exams {
		s.exams[e.ID] = e
	}
	return s
}

func (s *memExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *e
	return &out, nil
}

type memQuestionStore struct {
	byExam map[uuid.UUID][]model.Question
}

func newMemQuestionStore() *memQuestionStore {
	return &memQuestionStore{byExam: make(map[uuid.UUID][]model.Question)}
}

func (s *memQuestionStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.byExam[examID], nil
}

type memEventStore struct {
	byAttempt map[uuid.UUID][]model.IntegrityEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{byAttempt: make(map[uuid.UUID][]model.IntegrityEvent)}
}

func (s *memEventStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.IntegrityEvent, error) {
	return s.byAttempt[attemptID], nil
}

// testExam returns a minimal open exam with anti-cheat on.
func testExam() *model.Exam {
	return &model.Exam{
		ID:               uuid.New(),
		Title:            "Unit Test Exam",
		DurationMinutes:  30,
		AntiCheatEnabled: true,
		MaxViolations:    3,
	}
}

// startedAttempt seeds a running attempt for the given exam.
func startedAttempt(store *memAttemptStore, examID uuid.UUID, remaining time.Duration) *model.Attempt {
	start := time.Now().Add(remaining - 30*time.Minute)
	end := time.Now().Add(remaining)
	a := &model.Attempt{
		ID:          uuid.New(),
		ExamID:      examID,
		StudentName: "Asha",
		RollNumber:  "R-101",
		StartTime:   &start,
		EndTime:     &end,
		Answers:     map[string]string{},
		Revisions:   map[string]int{},
		TrustScore:  100,
	}
	store.put(a)
	return a
}
