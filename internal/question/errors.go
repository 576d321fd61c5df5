package question

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrStructuralEditRejected = errors.New("structural edit rejected")
	ErrHasResponses           = errors.New("question has responses")
	ErrSubmissionClosed       = errors.New("submission closed")
	ErrValidation             = errors.New("submission validation failed")
	ErrNotFound               = errors.New("question not found")
	ErrUnknownType            = errors.New("unknown question type")
	ErrUnsaved                = errors.New("question has not been saved")
)

// StructuralEditError tells the author which lock condition refused the edit.
type StructuralEditError struct {
	State LockState
	// QuestionHasResponses is set when the edited question itself has marks.
	QuestionHasResponses bool
}

func (e *StructuralEditError) Error() string {
	return fmt.Sprintf("questionnaire is locked (%s): %s", e.State, e.Reason())
}

func (e *StructuralEditError) Unwrap() error { return ErrStructuralEditRejected }

func (e *StructuralEditError) Is(target error) bool {
	return target == ErrHasResponses && e.QuestionHasResponses
}

func (e *StructuralEditError) Reason() string {
	if e.State == LockedMarked {
		return "one or more submitters has already submitted marks"
	}
	return "one or more submitters can already see it"
}

func (e *StructuralEditError) Hint() string {
	if e.State == LockedMarked {
		return "Questions cannot be changed once marks exist. Reset the evaluation to start over."
	}
	return "Hide the activity from students to make changes."
}

// SubmissionClosedError carries why the window is closed.
type SubmissionClosedError struct {
	Reason string
}

func (e *SubmissionClosedError) Error() string { return "submission closed: " + e.Reason }
func (e *SubmissionClosedError) Unwrap() error { return ErrSubmissionClosed }

// ValidationError maps field (or target user) to a message. Nothing is written
// when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Empty() bool { return e == nil || len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
