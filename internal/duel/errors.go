package duel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chess-vn/slduel/internal/domains/entities"
)

var (
	ErrDuelNotFound = errors.New("duel not found")
	ErrUserNotFound = errors.New("user not found")
	ErrForbidden    = errors.New("forbidden")
	ErrDuelConflict = errors.New("an open duel already exists for this pair")
	ErrBadState     = errors.New("invalid duel state")
	ErrInvalidInput = errors.New("invalid input")
)

// StateError reports an operation attempted from the wrong status. It matches
// ErrBadState with errors.Is.
type StateError struct {
	Op       string
	Current  entities.DuelStatus
	Expected []entities.DuelStatus
}

func (e *StateError) Error() string {
	expected := make([]string, 0, len(e.Expected))
	for _, status := range e.Expected {
		expected = append(expected, string(status))
	}
	return fmt.Sprintf(
		"cannot %s duel in status %s: expected %s",
		e.Op,
		e.Current,
		strings.Join(expected, " or "),
	)
}

func (e *StateError) Unwrap() error {
	return ErrBadState
}

func badState(op string, current entities.DuelStatus, expected ...entities.DuelStatus) error {
	return &StateError{Op: op, Current: current, Expected: expected}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
