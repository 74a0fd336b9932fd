// Package integrity derives trust signals from an attempt's proctoring
// event timeline. Everything here is a pure function of the append-only
// event log, so scores can be recomputed at any time without reconciling
// incremental updates.
package integrity

import (
	"math"
	"time"

	"github.com/vigilcbt/vigil-backend/internal/model"
)

// Component weights of the composite trust score.
const (
	weightFocus         = 0.4
	weightFullscreen    = 0.3
	weightAnswerPattern = 0.2
	weightViolation     = 0.1
)

// Input is everything the engine needs for one attempt.
type Input struct {
	Events []model.IntegrityEvent
	// TotalQuestions guards the revisions-per-question average; zero is
	// treated as one question.
	TotalQuestions int
	// TotalRevisions is the number of times a stored answer was replaced
	// with a different value, summed over all questions.
	TotalRevisions int
	// Now anchors the away-time of a FOCUS_LOST that never regained focus.
	Now time.Time
}

// Breakdown carries the component scores alongside the composite.
type Breakdown struct {
	FocusScore         int                  `json:"focus_score"`
	FullscreenScore    int                  `json:"fullscreen_score"`
	AnswerPatternScore int                  `json:"answer_pattern_score"`
	ViolationScore     int                  `json:"violation_score"`
	TotalAwaySeconds   int                  `json:"total_away_seconds"`
	TrustScore         int                  `json:"trust_score"`
	Level              model.IntegrityLevel `json:"level"`
}

// Score computes the weighted composite trust score for one attempt.
// The result is always an integer in [0,100].
func Score(in Input) Breakdown {
	var (
		focusLoss      int // FOCUS_LOST + TAB_SWITCH
		fullscreenExit int
		suspicious     int // COPY_ATTEMPT + PASTE_ATTEMPT + RIGHT_CLICK
	)
	for _, e := range in.Events {
		switch e.EventType {
		case model.EventFocusLost, model.EventTabSwitch:
			focusLoss++
		case model.EventFullscreenExit:
			fullscreenExit++
		case model.EventCopyAttempt, model.EventPasteAttempt, model.EventRightClick:
			suspicious++
		}
	}

	focus := floorZero(100 - 10*focusLoss)
	fullscreen := floorZero(100 - 15*fullscreenExit)
	violation := floorZero(100 - 20*suspicious)

	totalQuestions := in.TotalQuestions
	if totalQuestions < 1 {
		totalQuestions = 1
	}
	avgRevisions := float64(in.TotalRevisions) / float64(totalQuestions)
	penalty := math.Min(50, avgRevisions*10)
	answerPattern := int(math.Round(100 - penalty))

	final := int(math.Round(
		weightFocus*float64(focus) +
			weightFullscreen*float64(fullscreen) +
			weightAnswerPattern*float64(answerPattern) +
			weightViolation*float64(violation)))

	return Breakdown{
		FocusScore:         focus,
		FullscreenScore:    fullscreen,
		AnswerPatternScore: answerPattern,
		ViolationScore:     violation,
		TotalAwaySeconds:   AwaySeconds(in.Events, in.Now),
		TrustScore:         final,
		Level:              model.LevelForScore(final),
	}
}

// AwaySeconds sums the time the student spent unfocused: each FOCUS_LOST is
// paired with the next FOCUS_GAINED, or with now when the focus never came
// back before the log ended.
func AwaySeconds(events []model.IntegrityEvent, now time.Time) int {
	var total time.Duration
	var lostAt *time.Time

	for i := range events {
		switch events[i].EventType {
		case model.EventFocusLost:
			if lostAt == nil {
				t := events[i].Timestamp
				lostAt = &t
			}
		case model.EventFocusGained:
			if lostAt != nil {
				total += events[i].Timestamp.Sub(*lostAt)
				lostAt = nil
			}
		}
	}
	if lostAt != nil {
		total += now.Sub(*lostAt)
	}
	if total < 0 {
		total = 0
	}
	return int(total.Seconds())
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
