package navi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Checker-Finance/navi/pkg/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidationFailed  = errors.New("validation failed")
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrConflict is returned by stores when a trade changed since it was loaded.
	ErrConflict = errors.New("concurrent modification")
)

// ValidationError names the fields that failed a guard.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing"
	}
	return fmt.Sprintf("validation failed: %s %s", reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// TransitionError reports a transition that is not defined from the current status.
type TransitionError struct {
	From       model.Status
	Transition Transition
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s is not allowed from %s", e.Transition, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
