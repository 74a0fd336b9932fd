package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// ViolationService records proctoring events and owns the force-submit
// decision. It is fully decoupled from timing: recording a violation never
// pauses, stops or extends the attempt window.
type ViolationService struct {
	attempts AttemptStore
	exams    ExamStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewViolationService creates a new ViolationService.
func NewViolationService(attempts AttemptStore, exams ExamStore, rdb *redis.Client, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		attempts: attempts,
		exams:    exams,
		rdb:      rdb,
		log:      log.With().Str("component", "violation_service").Logger(),
	}
}

// eventQueuePayload is what the event worker pops off Redis.
type eventQueuePayload struct {
	AttemptID string          `json:"attempt_id"`
	EventType model.EventType `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	Metadata  string          `json:"metadata,omitempty"`
}

// monitorEvent is published to the per-exam pub/sub channel for live
// proctor views. Fire-and-forget.
type monitorEvent struct {
	AttemptID   string          `json:"attempt_id"`
	StudentName string          `json:"student_name"`
	EventType   model.EventType `json:"event_type"`
	Violations  int             `json:"violations"`
	ForceSubmit bool            `json:"force_submit"`
	Timestamp   int64           `json:"timestamp"`
}

// Record handles one proctoring event. Not idempotent by design: every call
// is a real event increment; debouncing genuine transitions is the client's
// job. Exams with anti-cheat disabled get a zeroed no-op result and nothing
// is logged for them.
func (s *ViolationService) Record(ctx context.Context, attemptID uuid.UUID, eventType model.EventType, metadata string) (*model.ViolationResult, error) {
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if attempt.Submitted {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, mapExamErr(err)
	}

	if !exam.AntiCheatEnabled {
		return &model.ViolationResult{
			Violations:    0,
			TrustScore:    attempt.TrustScore,
			ForceSubmit:   false,
			MaxViolations: exam.MaxViolations,
		}, nil
	}

	now := time.Now()

	violations := attempt.Violations
	trustScore := attempt.TrustScore
	if eventType.CountsAsViolation() {
		var applied bool
		violations, trustScore, applied, err = s.attempts.IncrementViolations(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("increment violations: %w", err)
		}
		if !applied {
			// Lost a race against submission; the attempt is frozen.
			return nil, ErrAlreadySubmitted
		}
	}

	s.enqueueEvent(ctx, attemptID, eventType, metadata, now)

	result := &model.ViolationResult{
		Violations:    violations,
		TrustScore:    trustScore,
		ForceSubmit:   violations >= exam.MaxViolations,
		MaxViolations: exam.MaxViolations,
	}

	s.publishMonitor(ctx, exam.ID, attempt, eventType, result, now)

	if result.ForceSubmit {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Int("violations", violations).
			Int("max_violations", exam.MaxViolations).
			Msg("Violation limit reached, force submit signaled")
	}
	return result, nil
}

// enqueueEvent pushes the raw event onto the persistence queue. The event
// worker appends it to the immutable integrity_events log in batches.
func (s *ViolationService) enqueueEvent(ctx context.Context, attemptID uuid.UUID, eventType model.EventType, metadata string, now time.Time) {
	payload, _ := json.Marshal(eventQueuePayload{
		AttemptID: attemptID.String(),
		EventType: eventType,
		Timestamp: now.Unix(),
		Metadata:  metadata,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to enqueue integrity event")
	}
}

func (s *ViolationService) publishMonitor(ctx context.Context, examID uuid.UUID, attempt *model.Attempt, eventType model.EventType, result *model.ViolationResult, now time.Time) {
	payload, _ := json.Marshal(monitorEvent{
		AttemptID:   attempt.ID.String(),
		StudentName: attempt.StudentName,
		EventType:   eventType,
		Violations:  result.Violations,
		ForceSubmit: result.ForceSubmit,
		Timestamp:   now.Unix(),
	})
	_ = s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err()
}
