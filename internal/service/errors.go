package service

import (
	"errors"

	"github.com/vigilcbt/vigil-backend/internal/repository"
)

// Sentinel errors mapped to response codes by the handler layer.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrExamNotFound    = errors.New("exam not found")

	// ErrAlreadySubmitted marks an action against a terminal attempt.
	// Submit races normalize this to success on the client; answer saves
	// surface it.
	ErrAlreadySubmitted = errors.New("attempt already submitted")

	// ErrAttemptExpired marks a save attempted past the grace window.
	ErrAttemptExpired = errors.New("attempt time is over")

	ErrNotStarted = errors.New("attempt has not been started")

	// Admission policy failures. Fatal to starting a session; no retry
	// without changed input.
	ErrInvalidAccessCode   = errors.New("invalid access code")
	ErrExamNotOpen         = errors.New("exam is not open yet")
	ErrExamClosed          = errors.New("exam window has closed")
	ErrAttemptLimitReached = errors.New("attempt limit reached")

	ErrInvalidEventType = errors.New("unknown proctoring event type")
)

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// mapExamErr translates a store miss on an exam lookup.
func mapExamErr(err error) error {
	if isNotFound(err) {
		return ErrExamNotFound
	}
	return err
}
