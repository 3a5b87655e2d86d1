package lifecycle

import "errors"

var (
	// ErrValidation marks malformed or out-of-range input such as an empty
	// submission or a grade outside the assignment's point range.
	ErrValidation = errors.New("validation failed")
	// ErrSubmissionClosed indicates a resubmission after the deadline for an
	// assignment that does not accept late work.
	ErrSubmissionClosed = errors.New("submission window closed")
)
