package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the proctoring/grading configuration this subsystem consumes.
// It is read-only here: authoring lives in a separate service and the row
// is immutable for the lifetime of a published exam.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`

	AntiCheatEnabled bool `json:"anti_cheat_enabled"`
	MaxViolations    int  `json:"max_violations"`

	// MaxAttempts is nil for unlimited runs per (name, roll) pair.
	MaxAttempts *int `json:"max_attempts,omitempty"`

	RequireAccessCode bool   `json:"require_access_code"`
	AccessCodeHash    string `json:"-"`

	// Scheduling window. Nil bounds are open-ended.
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`

	AllowLateSubmission bool `json:"allow_late_submission"`

	// NegativeMarks per wrong answer, 0 disables the deduction.
	NegativeMarks  float64 `json:"negative_marks"`
	PassPercentage float64 `json:"pass_percentage"`

	CreatedAt time.Time `json:"created_at"`
}

// Duration returns the exam window as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ScheduleState describes where "now" sits relative to the exam window.
type ScheduleState string

const (
	ScheduleOpen       ScheduleState = "OPEN"
	ScheduleNotYetOpen ScheduleState = "NOT_YET_OPEN"
	ScheduleClosed     ScheduleState = "CLOSED"
)

// ScheduleAt reports where the given instant sits relative to the exam's
// scheduling window. Nil bounds never close the window.
func (e *Exam) ScheduleAt(now time.Time) ScheduleState {
	if e.ScheduledStart != nil && now.Before(*e.ScheduledStart) {
		return ScheduleNotYetOpen
	}
	if e.ScheduledEnd != nil && now.After(*e.ScheduledEnd) {
		return ScheduleClosed
	}
	return ScheduleOpen
}
