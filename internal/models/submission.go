package models

import "time"

// SubmissionStatus is the stored state of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusSubmitted indicates on-time work awaiting a grade.
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	// SubmissionStatusLate indicates work handed in after the due date and awaiting a grade.
	SubmissionStatusLate SubmissionStatus = "LATE"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded SubmissionStatus = "GRADED"
)

// Attachment describes an uploaded file belonging to a submission. The zero
// value means no file was attached.
type Attachment struct {
	FileName  string `gorm:"size:255" json:"file_name"`
	FileURL   string `gorm:"size:512" json:"file_url"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `gorm:"size:128" json:"mime_type"`
	Checksum  string `gorm:"size:64" json:"checksum"`
}

// Submission is one student's live response to one assignment. Resubmission
// overwrites the row, so there is never more than one per assignment/student.
type Submission struct {
	ID           uint                     `gorm:"primaryKey" json:"id"`
	AssignmentID uint                     `gorm:"not null;uniqueIndex:idx_submission_owner" json:"assignment_id"`
	StudentID    uint                     `gorm:"not null;uniqueIndex:idx_submission_owner" json:"student_id"`
	Content      *string                  `gorm:"type:text" json:"content"`
	Attachment   Attachment               `gorm:"embedded;embeddedPrefix:attachment_" json:"attachment"`
	SubmittedAt  time.Time                `gorm:"not null" json:"submitted_at"`
	Status       SubmissionStatus         `gorm:"size:16;not null;index" json:"status"`
	Late         bool                     `gorm:"not null;default:false" json:"late"`
	DaysLate     int                      `gorm:"not null;default:0" json:"days_late"`
	Grade        *float64                 `json:"grade"`
	Feedback     *string                  `gorm:"type:text" json:"feedback"`
	GradedAt     *time.Time               `json:"graded_at"`
	GradedBy     *uint                    `json:"graded_by"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Assignment   Assignment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student      Student                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	History      []SubmissionGradeHistory `gorm:"constraint:OnDelete:CASCADE" json:"history"`
}

// SubmissionGradeHistory records every grading operation applied to a submission.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Score        float64   `gorm:"not null" json:"score"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     uint      `gorm:"not null" json:"graded_by"`
	GradedAt     time.Time `gorm:"not null" json:"graded_at"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// HasAttachment reports whether a file was uploaded with the submission.
func (s Submission) HasAttachment() bool {
	return s.Attachment.FileURL != ""
}

// HasWork reports whether the submission carries text or a file.
func (s Submission) HasWork() bool {
	return (s.Content != nil && *s.Content != "") || s.HasAttachment()
}
