package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

func TestRecordInvalidEventType(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMemAttemptStore()
	exam := testExam()
	attempt := startedAttempt(store, exam.ID, 10*time.Minute)

	svc := NewViolationService(store, newMemExamStore(exam), rdb, zerolog.Nop())
	if _, err := svc.Record(context.Background(), attempt.ID, "WINDOW_MOVED", ""); !errors.Is(err, ErrInvalidEventType) {
		t.Fatalf("err = %v, want ErrInvalidEventType", err)
	}
}

func TestRecordAntiCheatDisabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := newMemAttemptStore()
	exam := testExam()
	exam.AntiCheatEnabled = false
	attempt := startedAttempt(store, exam.ID, 10*time.Minute)

	svc := NewViolationService(store, newMemExamStore(exam), rdb, zerolog.Nop())

	result, err := svc.Record(context.Background(), attempt.ID, model.EventTabSwitch, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.Violations != 0 || result.ForceSubmit {
		t.Fatalf("disabled anti-cheat mutated state: %+v", result)
	}

	stored, _ := store.GetByID(context.Background(), attempt.ID)
	if stored.Violations != 0 {
		t.Fatalf("counter moved to %d on a disabled exam", stored.Violations)
	}
	if mr.Exists(config.WorkerKey.PersistEventsQueue) {
		t.Fatal("event queued for an exam with anti-cheat disabled")
	}
}

func TestRecordThresholdCrossing(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMemAttemptStore()
	exam := testExam()
	exam.MaxViolations = 2
	attempt := startedAttempt(store, exam.ID, 10*time.Minute)

	svc := NewViolationService(store, newMemExamStore(exam), rdb, zerolog.Nop())

	first, err := svc.Record(context.Background(), attempt.ID, model.EventTabSwitch, "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Violations != 1 || first.ForceSubmit {
		t.Fatalf("first violation: %+v", first)
	}

	second, err := svc.Record(context.Background(), attempt.ID, model.EventFullscreenExit, "")
	if err != nil {
		t.Fatal(err)
	}
	if second.Violations != 2 || !second.ForceSubmit {
		t.Fatalf("second violation should trip force submit: %+v", second)
	}

	// Past the threshold the signal stays up; the counter keeps counting.
	third, err := svc.Record(context.Background(), attempt.ID, model.EventCopyAttempt, "")
	if err != nil {
		t.Fatal(err)
	}
	if third.Violations != 3 || !third.ForceSubmit {
		t.Fatalf("force submit must be monotonic: %+v", third)
	}
}

func TestRecordTrustHintDegrades(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMemAttemptStore()
	exam := testExam()
	exam.MaxViolations = 10
	attempt := startedAttempt(store, exam.ID, 10*time.Minute)

	svc := NewViolationService(store, newMemExamStore(exam), rdb, zerolog.Nop())

	want := []int{80, 60, 40, 20, 0, 0}
	for i, expected := range want {
		result, err := svc.Record(context.Background(), attempt.ID, model.EventTabSwitch, "")
		if err != nil {
			t.Fatal(err)
		}
		if result.TrustScore != expected {
			t.Fatalf("violation %d: trust hint = %d, want %d", i+1, result.TrustScore, expected)
		}
	}
}

func TestRecordFocusGainedDoesNotCount(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := newMemAttemptStore()
	exam := testExam()
	attempt := startedAttempt(store, exam.ID, 10*time.Minute)

	svc := NewViolationService(store, newMemExamStore(exam), rdb, zerolog.Nop())

	result, err := svc.Record(context.Background(), attempt.ID, model.EventFocusGained, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Violations != 0 {
		t.Fatalf("focus regain incremented the counter: %+v", result)
	}
	// The event still lands in the log for away-time pairing.
	if n, _ := mr.List(config.WorkerKey.PersistEventsQueue); len(n) != 1 {
		t.Fatalf("queued %d events, want 1", len(n))
	}
}

func TestRecordSubmittedAttempt(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newMemAttemptStore()
	exam := testExam()
	attempt := startedAttempt(store, exam.ID, 10*time.Minute)
	store.attempts[attempt.ID].Submitted = true

	svc := NewViolationService(store, newMemExamStore(exam), rdb, zerolog.Nop())
	if _, err := svc.Record(context.Background(), attempt.ID, model.EventTabSwitch, ""); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}
}
