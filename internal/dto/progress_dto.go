package dto

import "time"

// Progress states reported per assignment.
const (
	ProgressNotSubmitted = "NOT_SUBMITTED"
	ProgressSubmitted    = "SUBMITTED"
	ProgressLate         = "LATE"
	ProgressGraded       = "GRADED"
)

// ProgressSummary aggregates a student's coursework state.
type ProgressSummary struct {
	TotalAssignments int     `json:"total_assignments"`
	Submitted        int     `json:"submitted"`
	Graded           int     `json:"graded"`
	AwaitingGrade    int     `json:"awaiting_grade"`
	Missing          int     `json:"missing"`
	Late             int     `json:"late"`
	AverageGrade     float64 `json:"average_grade"`
	CompletionRate   float64 `json:"completion_rate"`
}

// AssignmentProgress is one assignment as seen by one student.
type AssignmentProgress struct {
	AssignmentID  uint       `json:"assignment_id"`
	Title         string     `json:"title"`
	DueDate       time.Time  `json:"due_date"`
	Timeliness    string     `json:"timeliness"`
	AcceptsWork   bool       `json:"accepts_work"`
	State         string     `json:"state"`
	SubmissionID  *uint      `json:"submission_id"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	DaysLate      int        `json:"days_late"`
	Grade         *float64   `json:"grade"`
	AdjustedGrade *float64   `json:"adjusted_grade"`
	MaxPoints     float64    `json:"max_points"`
}

// StudentProgressResponse is the overview returned by the progress endpoint.
type StudentProgressResponse struct {
	StudentID   uint                 `json:"student_id"`
	Summary     ProgressSummary      `json:"summary"`
	Assignments []AssignmentProgress `json:"assignments"`
	GeneratedAt time.Time            `json:"generated_at"`
}
