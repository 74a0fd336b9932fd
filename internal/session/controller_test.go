package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeBackend simulates the server side: it stamps the timer off the fake
// clock, counts violations against a limit and freezes on first submit.
type fakeBackend struct {
	mu    sync.Mutex
	clock *fakeClock

	duration      time.Duration
	maxViolations int

	window     *model.TimerWindow
	answers    map[string]string
	violations int
	submitted  bool

	saveErr      error // next SaveAnswer returns this once
	violationErr error // next RecordViolation returns this once
	submitErr    error // next Submit returns this once

	saveCalls   []string
	submitCalls int
}

func newFakeBackend(clock *fakeClock, duration time.Duration, maxViolations int) *fakeBackend {
	return &fakeBackend{
		clock:         clock,
		duration:      duration,
		maxViolations: maxViolations,
		answers:       make(map[string]string),
	}
}

func (b *fakeBackend) BeginTimer(_ context.Context, _ uuid.UUID) (*model.TimerWindow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitted {
		return nil, ErrAlreadySubmitted
	}
	if b.window == nil {
		start := b.clock.Now()
		b.window = &model.TimerWindow{StartTime: start, EndTime: start.Add(b.duration)}
	}
	w := *b.window
	return &w, nil
}

func (b *fakeBackend) SaveAnswer(_ context.Context, _ uuid.UUID, questionID, optionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.saveErr; err != nil {
		b.saveErr = nil
		return err
	}
	if b.submitted {
		return ErrAlreadySubmitted
	}
	b.answers[questionID] = optionID
	b.saveCalls = append(b.saveCalls, questionID)
	return nil
}

func (b *fakeBackend) RecordViolation(_ context.Context, _ uuid.UUID, _ model.EventType, _ string) (*model.ViolationResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.violationErr; err != nil {
		b.violationErr = nil
		return nil, err
	}
	if b.submitted {
		return nil, ErrAlreadySubmitted
	}
	b.violations++
	return &model.ViolationResult{
		Violations:    b.violations,
		ForceSubmit:   b.violations >= b.maxViolations,
		MaxViolations: b.maxViolations,
	}, nil
}

func (b *fakeBackend) Submit(_ context.Context, _ uuid.UUID) (*model.SubmissionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitCalls++
	if err := b.submitErr; err != nil {
		b.submitErr = nil
		return nil, err
	}
	if b.submitted {
		return nil, ErrAlreadySubmitted
	}
	b.submitted = true
	correct := len(b.answers)
	return &model.SubmissionResult{Score: float64(correct), CorrectAnswers: correct}, nil
}

func (b *fakeBackend) Status(_ context.Context, attemptID uuid.UUID) (*model.AttemptStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	answers := make(map[string]string, len(b.answers))
	for q, o := range b.answers {
		answers[q] = o
	}
	status := &model.AttemptStatus{
		AttemptID:  attemptID,
		Submitted:  b.submitted,
		Answers:    answers,
		Violations: b.violations,
	}
	if b.window != nil {
		start, end := b.window.StartTime, b.window.EndTime
		status.StartTime = &start
		status.EndTime = &end
	}
	return status, nil
}

func newTestController(t *testing.T, backend *fakeBackend, clock *fakeClock, cfg Config) (*Controller, uuid.UUID) {
	t.Helper()
	attemptID := uuid.New()
	c := NewController(attemptID, backend, NewMemoryStore(), cfg, WithClock(clock.Now))
	return c, attemptID
}

func TestMountFreshAttemptStaysWaiting(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{AntiCheatEnabled: true})

	if err := c.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateWaiting {
		t.Fatalf("state = %s, want WAITING", c.State())
	}
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %v before any window exists", c.Remaining())
	}
}

func TestBeginTransitionsToRunning(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateRunning {
		t.Fatalf("state = %s, want RUNNING", c.State())
	}
	if c.Remaining() != 10*time.Minute {
		t.Fatalf("remaining = %v, want 10m", c.Remaining())
	}

	// A second Begin is a no-op, not a restart.
	clock.Advance(3 * time.Minute)
	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Remaining() != 7*time.Minute {
		t.Fatalf("remaining = %v after repeat begin, want 7m", c.Remaining())
	}
}

func TestRemainingDerivesFromEndTime(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Simulate a laptop sleep: the wall clock jumps, the countdown follows.
	clock.Advance(9 * time.Minute)
	if c.Remaining() != time.Minute {
		t.Fatalf("remaining = %v, want 1m", c.Remaining())
	}
	clock.Advance(2 * time.Minute)
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %v, want 0 (never negative)", c.Remaining())
	}
}

func TestMountResumesRunning(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)

	first, attemptID := newTestController(t, backend, clock, Config{})
	if err := first.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := first.SetAnswer(context.Background(), "q1", "a"); err != nil {
		t.Fatal(err)
	}

	// Page reload: a fresh controller for the same attempt.
	clock.Advance(4 * time.Minute)
	second := NewController(attemptID, backend, NewMemoryStore(), Config{}, WithClock(clock.Now))
	if err := second.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if second.State() != StateRunning {
		t.Fatalf("state = %s, want RUNNING", second.State())
	}
	if second.Remaining() != 6*time.Minute {
		t.Fatalf("remaining = %v, want 6m", second.Remaining())
	}
	if second.Answers()["q1"] != "a" {
		t.Fatal("server answers not restored on mount")
	}
}

func TestMountExpiredWindowAutoSubmits(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)

	first, attemptID := newTestController(t, backend, clock, Config{})
	if err := first.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(11 * time.Minute)
	second := NewController(attemptID, backend, NewMemoryStore(), Config{}, WithClock(clock.Now))
	if err := second.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if second.State() != StateEnded || !second.Submitted() {
		t.Fatalf("state = %s submitted = %t, want ENDED/true", second.State(), second.Submitted())
	}
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
}

func TestMountExpiredSubmitFailureStaysRetryable(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)

	first, attemptID := newTestController(t, backend, clock, Config{})
	if err := first.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(11 * time.Minute)
	backend.submitErr = errors.New("network down")
	second := NewController(attemptID, backend, NewMemoryStore(), Config{}, WithClock(clock.Now))
	if err := second.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The failed auto-submit must leave a state some trigger can retry from.
	if second.State() != StateRunning || second.Submitted() {
		t.Fatalf("state = %s submitted = %t after failed auto-submit", second.State(), second.Submitted())
	}

	second.Tick(context.Background())
	if second.State() != StateEnded || !second.Submitted() {
		t.Fatalf("tick did not retry: state = %s submitted = %t", second.State(), second.Submitted())
	}
	if backend.submitCalls != 2 {
		t.Fatalf("submit calls = %d, want 2", backend.submitCalls)
	}
}

func TestMountSubmittedAttemptIsTerminal(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	backend.submitted = true

	c, _ := newTestController(t, backend, clock, Config{})
	if err := c.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateEnded {
		t.Fatalf("state = %s, want ENDED", c.State())
	}
	if err := c.Begin(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("begin on ended session: err = %v", err)
	}
	if err := c.SetAnswer(context.Background(), "q1", "a"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("answer on ended session: err = %v", err)
	}
}

func TestSetAnswerRequiresRunning(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.SetAnswer(context.Background(), "q1", "a"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestTickExpiryFiresExactlyOneSubmit(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAnswer(context.Background(), "q1", "a"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(10*time.Minute + time.Second)
	for i := 0; i < 5; i++ {
		c.Tick(context.Background())
	}

	if c.State() != StateEnded || !c.Submitted() {
		t.Fatalf("state = %s submitted = %t", c.State(), c.Submitted())
	}
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
	if backend.answers["q1"] != "a" {
		t.Fatal("answers not replayed before auto-submit")
	}
}

func TestManualAndTimerSubmitShareLatch(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(11 * time.Minute)
	c.Tick(context.Background())
	if err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
}

func TestFailedSubmitRollsBackAndRetries(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	backend.submitErr = errors.New("network down")
	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected transient submit failure")
	}
	if c.State() != StateRunning || c.Submitted() {
		t.Fatalf("failed submit must roll back: state = %s", c.State())
	}

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if c.State() != StateEnded || !c.Submitted() {
		t.Fatal("retry did not complete the session")
	}
	if backend.submitCalls != 2 {
		t.Fatalf("submit calls = %d, want 2", backend.submitCalls)
	}
}

func TestSubmitRaceNormalizesAlreadySubmitted(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Another tab won the race server-side.
	backend.submitted = true
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("already-submitted must read as success: %v", err)
	}
	if !c.Submitted() {
		t.Fatal("latch not set after normalized submit")
	}
}

func TestOfflineQueueCoalescesAndFlushes(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.SetOffline()

	for _, opt := range []string{"a", "b", "c"} {
		if err := c.SetAnswer(context.Background(), "q1", opt); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.SetAnswer(context.Background(), "q2", "a"); err != nil {
		t.Fatal(err)
	}
	if len(backend.saveCalls) != 0 {
		t.Fatalf("saves reached the server while offline: %v", backend.saveCalls)
	}

	c.SetOnline(context.Background())

	// Coalesced: exactly one save per question, newest value wins.
	if len(backend.saveCalls) != 2 {
		t.Fatalf("save calls = %v, want one per question", backend.saveCalls)
	}
	if backend.answers["q1"] != "c" || backend.answers["q2"] != "a" {
		t.Fatalf("server answers = %v", backend.answers)
	}
}

func TestTransientSaveFailureGoesOffline(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	c, _ := newTestController(t, backend, clock, Config{})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	backend.saveErr = errors.New("connection reset")
	if err := c.SetAnswer(context.Background(), "q1", "a"); err != nil {
		t.Fatalf("transient failure must not surface: %v", err)
	}
	if backend.answers["q1"] != "" {
		t.Fatal("save should have failed")
	}

	c.SetOnline(context.Background())
	if backend.answers["q1"] != "a" {
		t.Fatal("queued save not flushed on reconnect")
	}
}

func TestViolationLimitForcesSubmit(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 2)
	c, _ := newTestController(t, backend, clock, Config{AntiCheatEnabled: true})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.ReportViolation(context.Background(), model.EventTabSwitch, ""); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateRunning {
		t.Fatal("first violation ended the session early")
	}

	if err := c.ReportViolation(context.Background(), model.EventFullscreenExit, ""); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateEnded || !c.Submitted() {
		t.Fatalf("limit hit: state = %s submitted = %t", c.State(), c.Submitted())
	}
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
}

func TestViolationsIgnoredWhenAntiCheatDisabled(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 1)
	c, _ := newTestController(t, backend, clock, Config{AntiCheatEnabled: false})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.ReportViolation(context.Background(), model.EventTabSwitch, ""); err != nil {
		t.Fatal(err)
	}
	if backend.violations != 0 {
		t.Fatalf("violations reached the server: %d", backend.violations)
	}
	if c.State() != StateRunning {
		t.Fatal("disabled anti-cheat ended the session")
	}
}

func TestOfflineViolationsFlushInOrder(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 5)
	c, _ := newTestController(t, backend, clock, Config{AntiCheatEnabled: true})

	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.SetOffline()

	c.ReportViolation(context.Background(), model.EventTabSwitch, "")
	c.ReportViolation(context.Background(), model.EventFocusLost, "")
	if backend.violations != 0 {
		t.Fatal("violations reached the server while offline")
	}

	c.SetOnline(context.Background())
	if backend.violations != 2 {
		t.Fatalf("violations = %d after reconnect, want 2", backend.violations)
	}
}

func TestLocalMirrorSurvivesRestart(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 3)
	local := NewMemoryStore()
	attemptID := uuid.New()

	first := NewController(attemptID, backend, local, Config{}, WithClock(clock.Now))
	if err := first.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Simulate the save never reaching the server.
	backend.saveErr = errors.New("connection reset")
	if err := first.SetAnswer(context.Background(), "q1", "a"); err != nil {
		t.Fatal(err)
	}
	if backend.answers["q1"] != "" {
		t.Fatal("save should have been lost")
	}

	// Crash and restart: a new controller over the same local store.
	second := NewController(attemptID, backend, local, Config{}, WithClock(clock.Now))
	if second.Answers()["q1"] != "a" {
		t.Fatal("local mirror not restored before mount")
	}
	if err := second.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Mount detects the diff against the server and queues the re-save.
	if backend.answers["q1"] != "a" {
		t.Fatal("mirrored answer not synced to the server on mount")
	}
}

// End to end: a ten-minute run with a two-violation limit, the second
// violation ends it.
func TestSessionLifecycle(t *testing.T) {
	clock := newFakeClock()
	backend := newFakeBackend(clock, 10*time.Minute, 2)
	c, _ := newTestController(t, backend, clock, Config{AntiCheatEnabled: true})

	if err := c.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.SetAnswer(context.Background(), "q1", "a"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)
	c.Tick(context.Background())

	c.ReportViolation(context.Background(), model.EventTabSwitch, "")
	if c.State() != StateRunning || c.Remaining() != 8*time.Minute {
		t.Fatalf("violation must not touch the clock: %s %v", c.State(), c.Remaining())
	}

	if err := c.SetAnswer(context.Background(), "q2", "b"); err != nil {
		t.Fatal(err)
	}

	c.ReportViolation(context.Background(), model.EventFullscreenExit, "")
	if c.State() != StateEnded || !c.Submitted() {
		t.Fatal("second violation should have force-submitted")
	}
	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", backend.submitCalls)
	}
	if got := c.Result(); got == nil || got.CorrectAnswers != 2 {
		t.Fatalf("result = %+v", got)
	}
}
