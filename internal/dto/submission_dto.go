package dto

import (
	"time"

	"github.com/noah-isme/gema-lms-api/internal/lifecycle"
	"github.com/noah-isme/gema-lms-api/internal/models"
)

// SubmissionCreateRequest describes the multipart payload for submitting work.
type SubmissionCreateRequest struct {
	AssignmentID uint   `form:"assignment_id" validate:"required,gt=0"`
	Content      string `form:"content" validate:"max=20000"`
}

// GradeSubmissionRequest is the body of the grading endpoint. The upper bound
// of Grade depends on the assignment and is checked by the grading service.
type GradeSubmissionRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback *string  `json:"feedback" validate:"omitempty,max=5000"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *uint  `query:"assignment_id"`
	StudentID    *uint  `query:"student_id"`
	Status       string `query:"status" validate:"omitempty,oneof=all submitted late graded ALL SUBMITTED LATE GRADED"`
	Search       string `query:"search" validate:"max=200"`
	Sort         string `query:"sort" validate:"omitempty,oneof=submitted_at graded_at grade status student_name assignment_title days_late created_at updated_at"`
	Order        string `query:"order" validate:"omitempty,oneof=asc desc ASC DESC"`
	Page         int    `query:"page" validate:"gte=0"`
	PageSize     int    `query:"page_size" validate:"gte=0,lte=200"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint                             `json:"id"`
	AssignmentID  uint                             `json:"assignment_id"`
	StudentID     uint                             `json:"student_id"`
	Content       *string                          `json:"content"`
	Attachment    *AttachmentResponse              `json:"attachment"`
	SubmittedAt   time.Time                        `json:"submitted_at"`
	Status        string                           `json:"status"`
	Late          bool                             `json:"late"`
	DaysLate      int                              `json:"days_late"`
	Grade         *float64                         `json:"grade"`
	AdjustedGrade *float64                         `json:"adjusted_grade"`
	Feedback      *string                          `json:"feedback"`
	GradedBy      *uint                            `json:"graded_by"`
	GradedAt      *time.Time                       `json:"graded_at"`
	History       []SubmissionGradeHistoryResponse `json:"history"`
	CreatedAt     time.Time                        `json:"created_at"`
	UpdatedAt     time.Time                        `json:"updated_at"`
	Assignment    AssignmentLite                   `json:"assignment"`
	Student       StudentLite                      `json:"student"`
}

// AttachmentResponse describes the file attached to a submission.
type AttachmentResponse struct {
	FileName  string `json:"file_name"`
	FileURL   string `json:"file_url"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	Checksum  string `json:"checksum,omitempty"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID                       uint      `json:"id"`
	Title                    string    `json:"title"`
	DueDate                  time.Time `json:"due_date"`
	MaxPoints                float64   `json:"max_points"`
	AllowLateSubmissions     bool      `json:"allow_late_submissions"`
	LatePenaltyPercentPerDay float64   `json:"late_penalty_percent_per_day"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Score    float64   `json:"score"`
	Feedback string    `json:"feedback"`
	GradedBy uint      `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		Content:      model.Content,
		SubmittedAt:  model.SubmittedAt,
		Status:       string(model.Status),
		Late:         model.Late,
		DaysLate:     model.DaysLate,
		Grade:        model.Grade,
		Feedback:     model.Feedback,
		GradedBy:     model.GradedBy,
		GradedAt:     model.GradedAt,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}

	if model.HasAttachment() {
		response.Attachment = &AttachmentResponse{
			FileName:  model.Attachment.FileName,
			FileURL:   model.Attachment.FileURL,
			SizeBytes: model.Attachment.SizeBytes,
			MimeType:  model.Attachment.MimeType,
			Checksum:  model.Attachment.Checksum,
		}
	}

	if model.Assignment.ID != 0 {
		response.Assignment = AssignmentLite{
			ID:                       model.Assignment.ID,
			Title:                    model.Assignment.Title,
			DueDate:                  model.Assignment.DueDate,
			MaxPoints:                model.Assignment.PointsCap(),
			AllowLateSubmissions:     model.Assignment.AllowLateSubmissions,
			LatePenaltyPercentPerDay: model.Assignment.LatePenaltyPercentPerDay,
		}

		if model.Grade != nil {
			adjusted := *model.Grade * lifecycle.PenaltyFactor(model.DaysLate, model.Assignment.LatePenaltyPercentPerDay)
			response.AdjustedGrade = &adjusted
		}
	}

	if model.Student.ID != 0 {
		response.Student = StudentLite{
			ID:    model.Student.ID,
			Name:  model.Student.Name,
			Email: model.Student.Email,
		}
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Score:    entry.Score,
				Feedback: entry.Feedback,
				GradedBy: entry.GradedBy,
				GradedAt: entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(models []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(models))
	for _, submission := range models {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
