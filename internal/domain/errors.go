package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz pool could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyAnswered rejects a second answer against the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrPracticeExhausted means every question in the pool has been answered
	// before; the caller must not start a practice session.
	ErrPracticeExhausted = errors.New("no unanswered questions remain")
	// ErrFlagNotFound indicates an unknown flag id.
	ErrFlagNotFound = errors.New("flag not found")
	// ErrForbidden rejects a moderation call from a non-admin.
	ErrForbidden = errors.New("forbidden")
	// ErrSessionIncomplete rejects Finish before every question is answered or flagged.
	ErrSessionIncomplete = errors.New("session not complete")
	// ErrAlreadySubmitted rejects a second leaderboard submit for one session.
	ErrAlreadySubmitted = errors.New("score already submitted")
)

// ValidationError reports malformed input with enough detail to correct it.
// Index is the offending question's position, or -1 when not question-scoped.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s (question %d): %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a non-question-scoped ValidationError.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Reason: fmt.Sprintf(format, args...)}
}
