package lifecycle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// State is the lifecycle position of a student's work for one assignment.
type State string

const (
	StateNone      State = "NONE"
	StateSubmitted State = "SUBMITTED"
	StateGraded    State = "GRADED"
)

// StateOf maps a stored submission (or its absence) onto the lifecycle.
// LATE is a flag of the submitted state, not a state of its own.
func StateOf(current *models.Submission) State {
	switch {
	case current == nil:
		return StateNone
	case current.IsGraded():
		return StateGraded
	default:
		return StateSubmitted
	}
}

// Work is the student-provided part of a submission.
type Work struct {
	Content    string
	Attachment models.Attachment
}

// Grading is an instructor's decision for a submission. A nil Feedback keeps
// whatever feedback was recorded before.
type Grading struct {
	Grade    float64
	Feedback *string
	GraderID uint
}

// Submit applies a first submission or a resubmission and returns the record
// to persist. current is nil when the student has not submitted yet; it is
// never modified, so a failed call leaves the caller's state untouched.
func Submit(assignment models.Assignment, current *models.Submission, studentID uint, work Work, now time.Time) (models.Submission, error) {
	content := strings.TrimSpace(work.Content)
	if content == "" && work.Attachment.FileURL == "" {
		return models.Submission{}, fmt.Errorf("%w: submission requires content or an attachment", ErrValidation)
	}

	next := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
	}
	if current != nil {
		if current.AssignmentID != assignment.ID || current.StudentID != studentID {
			return models.Submission{}, fmt.Errorf("%w: submission belongs to another assignment or student", ErrValidation)
		}
		if err := CheckResubmission(assignment, *current, now); err != nil {
			return models.Submission{}, err
		}
		next = *current
	}

	if content != "" {
		next.Content = &content
	} else {
		next.Content = nil
	}
	next.Attachment = work.Attachment
	next.SubmittedAt = now
	next.Late = IsLate(now, assignment.DueDate)
	next.DaysLate = DaysLate(now, assignment.DueDate)

	switch {
	case next.IsGraded():
		// graded work keeps its grade; only an instructor moves it.
	case next.Late:
		next.Status = models.SubmissionStatusLate
	default:
		next.Status = models.SubmissionStatusSubmitted
	}

	return next, nil
}

// CheckResubmission reports whether a student may replace current at now.
// Ungraded work follows the assignment's late policy; graded work is frozen
// for students once the due date has passed, whatever the late policy.
func CheckResubmission(assignment models.Assignment, current models.Submission, now time.Time) error {
	due := assignment.DueDate.UTC().Format(time.RFC3339)
	if current.IsGraded() && IsLate(now, assignment.DueDate) {
		return fmt.Errorf("%w: submission was graded and the assignment was due %s", ErrSubmissionClosed, due)
	}
	if !assignment.AcceptsWork(now) {
		return fmt.Errorf("%w: assignment was due %s and does not accept late work", ErrSubmissionClosed, due)
	}
	return nil
}

// ValidateGrade checks that grade is finite and within [0, maxPoints].
func ValidateGrade(grade, maxPoints float64) error {
	if math.IsNaN(grade) || math.IsInf(grade, 0) {
		return fmt.Errorf("%w: grade must be a finite number", ErrValidation)
	}
	if grade < 0 || grade > maxPoints {
		return fmt.Errorf("%w: grade %g must be between 0 and %g", ErrValidation, grade, maxPoints)
	}
	return nil
}

// Grade moves a submission into the graded state, or regrades it. The late
// flag recorded at submission time is preserved.
func Grade(assignment models.Assignment, current models.Submission, grading Grading, now time.Time) (models.Submission, error) {
	if err := ValidateGrade(grading.Grade, assignment.PointsCap()); err != nil {
		return models.Submission{}, err
	}

	next := current
	grade := grading.Grade
	next.Grade = &grade
	if grading.Feedback != nil {
		feedback := strings.TrimSpace(*grading.Feedback)
		next.Feedback = &feedback
	}
	gradedAt := now
	next.GradedAt = &gradedAt
	if grading.GraderID != 0 {
		graderID := grading.GraderID
		next.GradedBy = &graderID
	}
	next.Status = models.SubmissionStatusGraded

	return next, nil
}
