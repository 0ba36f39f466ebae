package model

import "github.com/rotisserie/eris"

// Domain error taxonomy. Structural errors are returned to the caller
// immediately; dispatch and sweep failures travel as result data instead.
var (
	// ErrInvalidClauseConfiguration means the clause has no usable deadline
	// rule. Not retryable; the clause must be fixed by a human.
	ErrInvalidClauseConfiguration = eris.New("invalid clause configuration")

	ErrClauseNotFound   = eris.New("clause not found")
	ErrDeadlineNotFound = eris.New("deadline not found")
	ErrNoticeNotFound   = eris.New("notice not found")

	// ErrInvalidTransition is a state machine violation.
	ErrInvalidTransition = eris.New("invalid transition")

	// ErrAlreadyLinked means the deadline already has a notice attached.
	ErrAlreadyLinked = eris.New("deadline already linked to a notice")

	// ErrDuplicateTrigger signals the store's uniqueness constraint on
	// (clause, trigger event) among non-terminal deadlines. Callers treat it
	// as "fetch the existing deadline", not as a failure.
	ErrDuplicateTrigger = eris.New("duplicate trigger for clause")

	// ErrNotEditable means the notice left the editable states.
	ErrNotEditable = eris.New("notice not editable")
)
