package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the closed set of proctoring events a session can emit.
type EventType string

const (
	EventTabSwitch      EventType = "TAB_SWITCH"
	EventFullscreenExit EventType = "FULLSCREEN_EXIT"
	EventFocusLost      EventType = "FOCUS_LOST"
	EventFocusGained    EventType = "FOCUS_GAINED"
	EventCopyAttempt    EventType = "COPY_ATTEMPT"
	EventPasteAttempt   EventType = "PASTE_ATTEMPT"
	EventRightClick     EventType = "RIGHT_CLICK"
	EventConsoleOpened  EventType = "CONSOLE_OPENED"
)

// Valid reports whether t belongs to the closed event set.
func (t EventType) Valid() bool {
	switch t {
	case EventTabSwitch, EventFullscreenExit, EventFocusLost, EventFocusGained,
		EventCopyAttempt, EventPasteAttempt, EventRightClick, EventConsoleOpened:
		return true
	}
	return false
}

// CountsAsViolation reports whether the event increments the attempt's
// violation counter. Focus regain is informational only.
func (t EventType) CountsAsViolation() bool {
	return t != EventFocusGained
}

// IntegrityEvent is one append-only log entry of the proctoring timeline.
// Events are never updated or deleted; the scoring engine is a pure
// read-and-derive step over this log.
type IntegrityEvent struct {
	ID        int64     `json:"id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	// Metadata is free-form, e.g. which question was on screen.
	Metadata string `json:"metadata,omitempty"`
}
