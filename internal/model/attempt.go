package model

import (
	"time"

	"github.com/google/uuid"
)

// IntegrityLevel buckets a trust score for quick review triage.
type IntegrityLevel string

const (
	IntegrityLevelHigh   IntegrityLevel = "HIGH"
	IntegrityLevelMedium IntegrityLevel = "MEDIUM"
	IntegrityLevelLow    IntegrityLevel = "LOW"
)

// LevelForScore maps a 0-100 trust score onto its integrity level.
// Buckets are contiguous and exhaustive: LOW [0,50), MEDIUM [50,80), HIGH [80,100].
func LevelForScore(score int) IntegrityLevel {
	switch {
	case score >= 80:
		return IntegrityLevelHigh
	case score >= 50:
		return IntegrityLevelMedium
	default:
		return IntegrityLevelLow
	}
}

// Attempt is one student's run at one exam. Students are anonymous;
// identity is (exam_id, student_name, roll_number).
//
// StartTime/EndTime are nil until the timing authority stamps them. Once
// Submitted flips to true the attempt is frozen: no write path mutates
// answers, score or violations afterwards.
type Attempt struct {
	ID          uuid.UUID  `json:"id"`
	ExamID      uuid.UUID  `json:"exam_id"`
	StudentName string     `json:"student_name"`
	RollNumber  string     `json:"roll_number"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`

	// Answers maps question id → selected option id. Revisions counts how
	// many times each question's stored answer was overwritten with a
	// different value (feed for the answer-pattern integrity score).
	Answers   map[string]string `json:"answers"`
	Revisions map[string]int    `json:"revisions,omitempty"`

	Submitted   bool       `json:"submitted"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Written only by the submission authority.
	Score          float64 `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	WrongAnswers   int     `json:"wrong_answers"`
	Unanswered     int     `json:"unanswered"`

	// Written only by the violation recorder / integrity engine.
	Violations       int            `json:"violations"`
	TrustScore       int            `json:"trust_score"`
	IntegrityLevel   IntegrityLevel `json:"integrity_level"`
	TotalAwaySeconds int            `json:"total_away_seconds"`

	CreatedAt time.Time `json:"created_at"`
}

// Started reports whether the timing authority has stamped this attempt.
func (a *Attempt) Started() bool {
	return a.StartTime != nil
}

// CreateAttemptRequest is the payload for a student requesting to begin.
type CreateAttemptRequest struct {
	StudentName string `json:"student_name" binding:"required,min=1,max=120"`
	RollNumber  string `json:"roll_number" binding:"required,min=1,max=40"`
	AccessCode  string `json:"access_code" binding:"omitempty,max=64"`
}

// SaveAnswerRequest is the payload for persisting a single answer.
type SaveAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	OptionID   string `json:"option_id" binding:"required,min=1,max=40"`
}

// RecordViolationRequest is the payload for reporting a proctoring event.
type RecordViolationRequest struct {
	EventType EventType `json:"event_type" binding:"required"`
	Metadata  string    `json:"metadata" binding:"omitempty,max=2000"`
}

// TimerWindow is the timing authority's answer to a begin-timer call.
type TimerWindow struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ViolationResult is the violation recorder's answer to a record call.
type ViolationResult struct {
	Violations    int  `json:"violations"`
	TrustScore    int  `json:"trust_score"`
	ForceSubmit   bool `json:"force_submit"`
	MaxViolations int  `json:"max_violations"`
}

// SubmissionResult carries the statistics computed by the submission authority.
type SubmissionResult struct {
	Score          float64 `json:"score"`
	TotalMarks     int     `json:"total_marks"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	WrongAnswers   int     `json:"wrong_answers"`
	Unanswered     int     `json:"unanswered"`
	Late           bool    `json:"late,omitempty"`
}

// AttemptStatus is the resume-time snapshot returned on mount/reload.
type AttemptStatus struct {
	AttemptID  uuid.UUID         `json:"attempt_id"`
	StartTime  *time.Time        `json:"start_time,omitempty"`
	EndTime    *time.Time        `json:"end_time,omitempty"`
	Submitted  bool              `json:"submitted"`
	Answers    map[string]string `json:"answers"`
	Violations int               `json:"violations"`
}
