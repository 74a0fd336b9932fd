package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// State is the controller's lifecycle position. ENDED is terminal: no
// transition ever leaves it except a failed submit rolling back to RUNNING
// so the student can try again.
type State string

const (
	StateWaiting State = "WAITING"
	StateRunning State = "RUNNING"
	StateEnded   State = "ENDED"
)

// Config is the per-exam client configuration handed over at session
// creation by the serving layer.
type Config struct {
	AntiCheatEnabled bool
	// SaveDebounce collapses rapid answer changes into one save per
	// question. Zero saves immediately.
	SaveDebounce time.Duration
}

type pendingViolation struct {
	EventType model.EventType
	Metadata  string
}

// Controller is the client-side session state machine. It is safe for use
// from the UI goroutine plus the countdown ticker: the mutex serializes all
// paths the way a browser event loop would.
type Controller struct {
	mu        sync.Mutex
	attemptID uuid.UUID
	backend   Backend
	local     LocalStore
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger

	state   State
	window  *model.TimerWindow
	answers map[string]string

	queue      *saveQueue
	violations []pendingViolation
	offline    bool

	debounce *time.Timer

	// submitting is the single-fire latch shared by every submit trigger
	// (timer expiry, violation limit, manual click). Checked-and-set under
	// the mutex; the server-side conditional update is the real safety net.
	submitting bool
	submitted  bool
	result     *model.SubmissionResult
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source. The clock only renders the
// countdown; remaining time is always derived from the server-issued
// endTime, never decremented locally.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// NewController creates a controller in WAITING and restores the local
// answer mirror before any network call, so a crash before the first
// round-trip loses nothing.
func NewController(attemptID uuid.UUID, backend Backend, local LocalStore, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		attemptID: attemptID,
		backend:   backend,
		local:     local,
		cfg:       cfg,
		now:       time.Now,
		log:       zerolog.Nop(),
		state:     StateWaiting,
		answers:   make(map[string]string),
		queue:     newSaveQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if restored, err := local.Load(attemptID); err == nil && restored != nil {
		c.answers = restored
	}
	return c
}

// Mount syncs with the server on page load or reload. A pre-existing
// start time resumes straight into RUNNING with the remaining time derived
// from the server-issued endTime; an already-expired window transitions
// directly to ENDED and fires exactly one auto-submit.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := c.backend.Status(ctx, c.attemptID)
	if err != nil {
		return err
	}

	// Server copy first, locally mirrored values on top: the mirror may
	// hold answers that never reached the server before the reload.
	merged := make(map[string]string, len(status.Answers)+len(c.answers))
	for q, o := range status.Answers {
		merged[q] = o
	}
	for q, o := range c.answers {
		if merged[q] != o {
			merged[q] = o
			c.queue.push(q, o)
		}
	}
	c.answers = merged

	if status.Submitted {
		c.state = StateEnded
		c.submitted = true
		_ = c.local.Clear(c.attemptID)
		return nil
	}

	if status.StartTime != nil && status.EndTime != nil {
		c.window = &model.TimerWindow{StartTime: *status.StartTime, EndTime: *status.EndTime}
		// Enter RUNNING even when the window has already lapsed: a failed
		// auto-submit then rolls back to a state where the next tick or a
		// manual submit can retry.
		c.state = StateRunning
		if c.remainingLocked() <= 0 {
			c.autoSubmitLocked(ctx, "expired on mount")
			return nil
		}
		c.flushQueueLocked(ctx)
		return nil
	}

	c.state = StateWaiting
	return nil
}

// Begin starts the server clock. It is gated behind a user gesture
// (entering fullscreen) by the UI layer, so mounting a page never silently
// starts the countdown. Safe to call twice: the server returns the existing
// window unchanged and a RUNNING controller just keeps it.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRunning:
		return nil
	case StateEnded:
		return ErrAlreadySubmitted
	}

	window, err := c.backend.BeginTimer(ctx, c.attemptID)
	if err != nil {
		return err
	}
	c.window = window
	c.state = StateRunning
	c.flushQueueLocked(ctx)
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the grading result once a submit has succeeded.
func (c *Controller) Result() *model.SubmissionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Answers returns a copy of the in-memory answer map.
func (c *Controller) Answers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.answers))
	for q, o := range c.answers {
		out[q] = o
	}
	return out
}

// Remaining derives the time left fresh from the server-issued endTime.
// Never stored and decremented, so it stays correct across sleep/resume
// and client clock skew.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Controller) remainingLocked() time.Duration {
	if c.window == nil {
		return 0
	}
	remaining := c.window.EndTime.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SetAnswer records an answer change: mirror locally, then a debounced save
// of just this question. Rejected outside RUNNING — no answer changes once
// the session has ENDED.
func (c *Controller) SetAnswer(ctx context.Context, questionID, optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return ErrNotRunning
	}

	c.answers[questionID] = optionID
	if err := c.local.Save(c.attemptID, c.answers); err != nil {
		c.log.Warn().Err(err).Msg("Local mirror write failed")
	}

	c.queue.push(questionID, optionID)

	if c.offline {
		return nil
	}
	if c.cfg.SaveDebounce <= 0 {
		c.flushQueueLocked(ctx)
		return nil
	}

	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(c.cfg.SaveDebounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateRunning && !c.offline {
			c.flushQueueLocked(context.Background())
		}
	})
	return nil
}

// flushQueueLocked replays queued saves in order. The first transient
// failure flips the controller offline and requeues the remainder; flushing
// on reconnect and flushing before submit share this path.
func (c *Controller) flushQueueLocked(ctx context.Context) {
	for _, p := range c.queue.drain() {
		if err := c.saveLocked(ctx, p.QuestionID, p.OptionID); err != nil {
			c.queue.push(p.QuestionID, p.OptionID)
			c.offline = true
			c.log.Debug().Err(err).Msg("Save failed, queued for reconnect")
			return
		}
	}
}

// saveLocked sends one answer save. Terminal server responses are absorbed:
// an expired save defers to the timer-driven auto-submit, a submitted
// attempt is ending anyway.
func (c *Controller) saveLocked(ctx context.Context, questionID, optionID string) error {
	err := c.backend.SaveAnswer(ctx, c.attemptID, questionID, optionID)
	if err == nil || errors.Is(err, ErrExpired) || errors.Is(err, ErrAlreadySubmitted) {
		return nil
	}
	return err
}

// SetOffline marks the connection as down; saves queue locally until
// SetOnline.
func (c *Controller) SetOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = true
}

// SetOnline flushes queued saves and violation reports in order.
func (c *Controller) SetOnline(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = false
	c.flushQueueLocked(ctx)
	c.flushViolationsLocked(ctx)
}

// ReportViolation relays one genuine detector transition (visibility
// change, fullscreen exit). Detectors are only live while RUNNING and when
// the exam enables anti-cheat; they never pause any timer or UI. A
// force-submit response trips the single-fire latch.
func (c *Controller) ReportViolation(ctx context.Context, eventType model.EventType, metadata string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning || !c.cfg.AntiCheatEnabled {
		return nil
	}

	if c.offline {
		c.violations = append(c.violations, pendingViolation{EventType: eventType, Metadata: metadata})
		return nil
	}

	result, err := c.backend.RecordViolation(ctx, c.attemptID, eventType, metadata)
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return nil
		}
		// Connectivity blip: requeue, never surface mid-exam.
		c.violations = append(c.violations, pendingViolation{EventType: eventType, Metadata: metadata})
		c.offline = true
		return nil
	}

	if result.ForceSubmit {
		c.autoSubmitLocked(ctx, "violation limit reached")
	}
	return nil
}

func (c *Controller) flushViolationsLocked(ctx context.Context) {
	pending := c.violations
	c.violations = nil
	for i, v := range pending {
		result, err := c.backend.RecordViolation(ctx, c.attemptID, v.EventType, v.Metadata)
		if err != nil {
			if errors.Is(err, ErrAlreadySubmitted) {
				return
			}
			c.violations = append(c.violations, pending[i:]...)
			c.offline = true
			return
		}
		if result.ForceSubmit {
			c.autoSubmitLocked(ctx, "violation limit reached")
			return
		}
	}
}

// Tick advances the countdown check. Call once per second; expiry fires
// exactly one auto-submit through the latch.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}
	if c.remainingLocked() <= 0 {
		c.autoSubmitLocked(ctx, "time expired")
	}
}

// Run drives Tick on a 1-second cadence until ctx is done or the session
// ends. Call in a goroutine.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
			if c.State() == StateEnded && c.Submitted() {
				return
			}
		}
	}
}

// Submitted reports whether a submission has been confirmed.
func (c *Controller) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// Submit is the manual submit path. All triggers share one latch, so
// whichever of user click, timer expiry or violation limit fires first is
// the only one that calls the submission authority.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateWaiting {
		return ErrNotRunning
	}
	return c.submitLocked(ctx)
}

func (c *Controller) autoSubmitLocked(ctx context.Context, reason string) {
	if err := c.submitLocked(ctx); err != nil {
		c.log.Warn().Err(err).Str("reason", reason).Msg("Auto-submit failed, will retry")
	}
}

// submitLocked runs the submit protocol behind the single-fire latch:
// replay the full in-memory answer map (not just the queue), drain residual
// queued saves, then call the submission authority. A failure other than
// "already submitted" rolls back to RUNNING so the next trigger retries;
// "already submitted" is success.
func (c *Controller) submitLocked(ctx context.Context) error {
	if c.submitted || c.submitting {
		return nil
	}
	c.submitting = true
	prev := c.state
	c.state = StateEnded

	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}

	for questionID, optionID := range c.answers {
		if err := c.saveLocked(ctx, questionID, optionID); err != nil {
			c.log.Debug().Err(err).Str("question_id", questionID).Msg("Pre-submit save failed")
		}
	}
	for _, p := range c.queue.drain() {
		if err := c.saveLocked(ctx, p.QuestionID, p.OptionID); err != nil {
			c.log.Debug().Err(err).Str("question_id", p.QuestionID).Msg("Residual save failed")
		}
	}

	result, err := c.backend.Submit(ctx, c.attemptID)
	if err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		// Transient submit failure: reopen the session so the student (or
		// the next tick) can try again.
		c.submitting = false
		c.state = prev
		return err
	}

	c.submitted = true
	c.result = result
	if clearErr := c.local.Clear(c.attemptID); clearErr != nil {
		c.log.Warn().Err(clearErr).Msg("Local mirror clear failed")
	}
	return nil
}
