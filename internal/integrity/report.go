package integrity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// Severity tags an event's weight in the reviewer-facing timeline.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Review thresholds for the heuristic recommendations.
const (
	focusLostThreshold      = 5
	fullscreenExitThreshold = 3
	awaySecondsThreshold    = 60
)

// TimelineEntry is one human-readable line of the chronological report.
type TimelineEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	EventType   model.EventType `json:"event_type"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Metadata    string          `json:"metadata,omitempty"`
}

// Report is the post-hoc review artifact for one attempt.
type Report struct {
	AttemptID       uuid.UUID       `json:"attempt_id"`
	Breakdown       Breakdown       `json:"breakdown"`
	Timeline        []TimelineEntry `json:"timeline"`
	Recommendations []string        `json:"recommendations"`
}

// SeverityFor classifies an event type for reviewer triage.
func SeverityFor(t model.EventType) Severity {
	switch t {
	case model.EventTabSwitch, model.EventFullscreenExit, model.EventConsoleOpened:
		return SeverityHigh
	case model.EventFocusLost, model.EventCopyAttempt, model.EventPasteAttempt:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func describe(t model.EventType) string {
	switch t {
	case model.EventTabSwitch:
		return "Switched away to another tab"
	case model.EventFullscreenExit:
		return "Exited fullscreen mode"
	case model.EventFocusLost:
		return "Exam window lost focus"
	case model.EventFocusGained:
		return "Exam window regained focus"
	case model.EventCopyAttempt:
		return "Attempted to copy exam content"
	case model.EventPasteAttempt:
		return "Attempted to paste into the exam"
	case model.EventRightClick:
		return "Opened the context menu"
	case model.EventConsoleOpened:
		return "Opened the browser developer console"
	default:
		return string(t)
	}
}

// BuildReport derives the chronological timeline, the score breakdown and
// the heuristic recommendations for one attempt.
func BuildReport(attemptID uuid.UUID, in Input) *Report {
	breakdown := Score(in)

	timeline := make([]TimelineEntry, 0, len(in.Events))
	var focusLost, fullscreenExit, suspicious int
	for _, e := range in.Events {
		timeline = append(timeline, TimelineEntry{
			Timestamp:   e.Timestamp,
			EventType:   e.EventType,
			Severity:    SeverityFor(e.EventType),
			Description: describe(e.EventType),
			Metadata:    e.Metadata,
		})
		switch e.EventType {
		case model.EventFocusLost:
			focusLost++
		case model.EventFullscreenExit:
			fullscreenExit++
		case model.EventCopyAttempt, model.EventPasteAttempt, model.EventRightClick, model.EventConsoleOpened:
			suspicious++
		}
	}

	var recs []string
	if focusLost > focusLostThreshold {
		recs = append(recs, fmt.Sprintf("Student lost focus %d times; review whether external material was consulted.", focusLost))
	}
	if fullscreenExit > fullscreenExitThreshold {
		recs = append(recs, fmt.Sprintf("Student exited fullscreen %d times; the proctoring environment was repeatedly broken.", fullscreenExit))
	}
	if breakdown.TotalAwaySeconds > awaySecondsThreshold {
		recs = append(recs, fmt.Sprintf("Student spent %ds away from the exam window in total.", breakdown.TotalAwaySeconds))
	}
	if suspicious > 0 {
		recs = append(recs, fmt.Sprintf("%d suspicious actions (copy/paste/context menu/console) were detected.", suspicious))
	}

	return &Report{
		AttemptID:       attemptID,
		Breakdown:       breakdown,
		Timeline:        timeline,
		Recommendations: recs,
	}
}
