package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

func TestScoreAttemptPersistsBreakdown(t *testing.T) {
	store := newMemAttemptStore()
	exam := testExam()
	questions := newMemQuestionStore()
	seedQuestions(questions, exam.ID, 10)
	events := newMemEventStore()

	attempt := startedAttempt(store, exam.ID, 10*time.Minute)
	base := time.Now().Add(-5 * time.Minute)
	events.byAttempt[attempt.ID] = []model.IntegrityEvent{
		{AttemptID: attempt.ID, EventType: model.EventFocusLost, Timestamp: base},
		{AttemptID: attempt.ID, EventType: model.EventFocusGained, Timestamp: base.Add(30 * time.Second)},
		{AttemptID: attempt.ID, EventType: model.EventFullscreenExit, Timestamp: base.Add(time.Minute)},
	}

	svc := NewIntegrityService(store, questions, events, zerolog.Nop())

	breakdown, err := svc.ScoreAttempt(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// focus 90, fullscreen 85, pattern 100, violation 100
	// 0.4*90 + 0.3*85 + 0.2*100 + 0.1*100 = 91.5 → 92
	if breakdown.TrustScore != 92 {
		t.Fatalf("trust = %d, want 92", breakdown.TrustScore)
	}
	if breakdown.TotalAwaySeconds != 30 {
		t.Fatalf("away = %d, want 30", breakdown.TotalAwaySeconds)
	}

	stored, _ := store.GetByID(context.Background(), attempt.ID)
	if stored.TrustScore != 92 || stored.IntegrityLevel != model.IntegrityLevelHigh || stored.TotalAwaySeconds != 30 {
		t.Fatalf("breakdown not persisted: %+v", stored)
	}
}

func TestScoreAttemptAnchorsAwayTimeToCompletion(t *testing.T) {
	store := newMemAttemptStore()
	exam := testExam()
	questions := newMemQuestionStore()
	seedQuestions(questions, exam.ID, 5)
	events := newMemEventStore()

	attempt := startedAttempt(store, exam.ID, 10*time.Minute)
	completed := time.Now().Add(-time.Hour)
	lost := completed.Add(-40 * time.Second)
	store.attempts[attempt.ID].Submitted = true
	store.attempts[attempt.ID].CompletedAt = &completed
	events.byAttempt[attempt.ID] = []model.IntegrityEvent{
		{AttemptID: attempt.ID, EventType: model.EventFocusLost, Timestamp: lost},
	}

	svc := NewIntegrityService(store, questions, events, zerolog.Nop())
	breakdown, err := svc.ScoreAttempt(context.Background(), attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The unpaired FOCUS_LOST pairs with the submission instant, not now.
	if breakdown.TotalAwaySeconds != 40 {
		t.Fatalf("away = %d, want 40", breakdown.TotalAwaySeconds)
	}
}

func TestReportExamSkipsFailingAttempts(t *testing.T) {
	store := newMemAttemptStore()
	exam := testExam()
	questions := newMemQuestionStore()
	seedQuestions(questions, exam.ID, 5)
	events := newMemEventStore()

	for i := 0; i < 3; i++ {
		a := startedAttempt(store, exam.ID, 10*time.Minute)
		store.attempts[a.ID].Submitted = true
		now := time.Now()
		store.attempts[a.ID].CompletedAt = &now
	}
	// Unsubmitted attempts are not part of the batch.
	startedAttempt(store, exam.ID, 10*time.Minute)

	svc := NewIntegrityService(store, questions, events, zerolog.Nop())
	reports, err := svc.ReportExam(context.Background(), exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
}
