// Package session implements the client-side exam session controller: a
// WAITING → RUNNING → ENDED state machine that owns the countdown, the
// local answer cache, the offline sync queue and the single-fire submit
// latch. All authority over time and grading stays on the server; the
// controller only renders and relays.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

// Backend is the network surface the controller drives. Implementations
// translate transport failures into the sentinel errors below; anything
// else is treated as transient and absorbed by the offline queue.
type Backend interface {
	BeginTimer(ctx context.Context, attemptID uuid.UUID) (*model.TimerWindow, error)
	SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID, optionID string) error
	RecordViolation(ctx context.Context, attemptID uuid.UUID, eventType model.EventType, metadata string) (*model.ViolationResult, error)
	Submit(ctx context.Context, attemptID uuid.UUID) (*model.SubmissionResult, error)
	Status(ctx context.Context, attemptID uuid.UUID) (*model.AttemptStatus, error)
}

// Sentinel errors a Backend must surface for terminal server responses.
var (
	// ErrAlreadySubmitted means the server holds the attempt as terminal.
	// Submit paths normalize this to success.
	ErrAlreadySubmitted = errors.New("session: attempt already submitted")

	// ErrExpired means a save landed past the grace window. The controller
	// drops the save and defers to the timer-driven auto-submit.
	ErrExpired = errors.New("session: attempt time is over")

	// ErrNotRunning is returned for answer entry outside the RUNNING state.
	ErrNotRunning = errors.New("session: not running")
)

// LocalStore mirrors the full answer map into client-local durable storage
// keyed by attempt id, so a crash before the first network round-trip loses
// nothing. Cleared only after a confirmed successful submission.
type LocalStore interface {
	Load(attemptID uuid.UUID) (map[string]string, error)
	Save(attemptID uuid.UUID, answers map[string]string) error
	Clear(attemptID uuid.UUID) error
}

// MemoryStore is an in-memory LocalStore. The browser build backs this with
// real persistent storage; tests and headless runs use it directly.
type MemoryStore struct {
	data map[uuid.UUID]map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[uuid.UUID]map[string]string)}
}

func (m *MemoryStore) Load(attemptID uuid.UUID) (map[string]string, error) {
	stored, ok := m.data[attemptID]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Save(attemptID uuid.UUID, answers map[string]string) error {
	copied := make(map[string]string, len(answers))
	for k, v := range answers {
		copied[k] = v
	}
	m.data[attemptID] = copied
	return nil
}

func (m *MemoryStore) Clear(attemptID uuid.UUID) error {
	delete(m.data, attemptID)
	return nil
}
