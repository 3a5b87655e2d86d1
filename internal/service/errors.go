package service

import (
	"errors"

	"github.com/noah-isme/gema-lms-api/internal/lifecycle"
)

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = lifecycle.ErrValidation
	// ErrSubmissionClosed indicates the assignment no longer accepts changes.
	ErrSubmissionClosed = lifecycle.ErrSubmissionClosed
	// ErrNotFound is the parent of every missing-entity error.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("insufficient permissions")
)

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = classified("submission not found", ErrNotFound)
	// ErrAssignmentNotFound indicates the referenced assignment does not exist.
	ErrAssignmentNotFound = classified("assignment not found", ErrNotFound)
	// ErrStudentNotFound indicates the acting student has no profile.
	ErrStudentNotFound = classified("student not found", ErrNotFound)

	// ErrAttachmentTooLarge indicates the file exceeded the configured limit.
	ErrAttachmentTooLarge = classified("file exceeds maximum allowed size", ErrValidation)
	// ErrAttachmentTypeNotAllowed indicates the detected MIME type is not permitted.
	ErrAttachmentTypeNotAllowed = classified("file type not allowed", ErrValidation)
	// ErrAttachmentScanFailed indicates the archive could not be inspected safely.
	ErrAttachmentScanFailed = classified("file scanning failed", ErrValidation)
)

// classifiedError is a specific error that also matches its broader class
// with errors.Is.
type classifiedError struct {
	message string
	class   error
}

func classified(message string, class error) error {
	return &classifiedError{message: message, class: class}
}

func (e *classifiedError) Error() string {
	return e.message
}

func (e *classifiedError) Unwrap() error {
	return e.class
}
