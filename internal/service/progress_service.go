package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/lifecycle"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

// ProgressService produces per-student coursework overviews.
type ProgressService interface {
	Progress(ctx context.Context, actor Actor, studentID uint) (dto.StudentProgressResponse, error)
	Invalidate(ctx context.Context, studentID uint)
}

type progressService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	students    repository.StudentRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewProgressService builds the progress aggregator. cache may be nil.
func NewProgressService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, students repository.StudentRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProgressService {
	return &progressService{
		assignments: assignments,
		submissions: submissions,
		students:    students,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "progress_service").Logger(),
		now:         time.Now,
	}
}

func progressCacheKey(studentID uint) string {
	return fmt.Sprintf("progress:student:%d", studentID)
}

func (s *progressService) Progress(ctx context.Context, actor Actor, studentID uint) (dto.StudentProgressResponse, error) {
	switch {
	case actor.IsStaff():
	case actor.IsStudent() && actor.ID == studentID:
	default:
		return dto.StudentProgressResponse{}, ErrForbidden
	}

	cacheKey := progressCacheKey(studentID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StudentProgressResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("student_id", studentID).Msg("progress cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read progress cache")
		}
	}

	exists, err := s.students.Exists(ctx, studentID)
	if err != nil {
		return dto.StudentProgressResponse{}, err
	}
	if !exists {
		return dto.StudentProgressResponse{}, ErrStudentNotFound
	}

	assignments, err := s.assignments.List(ctx)
	if err != nil {
		return dto.StudentProgressResponse{}, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{StudentID: &studentID})
	if err != nil {
		return dto.StudentProgressResponse{}, err
	}

	response := s.buildResponse(studentID, assignments, submissions)

	if s.cache != nil && s.cacheTTL > 0 {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store progress cache")
			}
		}
	}

	return response, nil
}

func (s *progressService) Invalidate(ctx context.Context, studentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, progressCacheKey(studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to invalidate progress cache")
	}
}

func (s *progressService) buildResponse(studentID uint, assignments []models.Assignment, submissions []models.Submission) dto.StudentProgressResponse {
	now := s.now().UTC()
	byAssignment := make(map[uint]models.Submission, len(submissions))
	for _, submission := range submissions {
		byAssignment[submission.AssignmentID] = submission
	}

	summary := dto.ProgressSummary{}
	rows := make([]dto.AssignmentProgress, 0, len(assignments))
	var gradeTotal float64

	for _, assignment := range assignments {
		summary.TotalAssignments++
		row := dto.AssignmentProgress{
			AssignmentID: assignment.ID,
			Title:        assignment.Title,
			DueDate:      assignment.DueDate,
			Timeliness:   string(lifecycle.Classify(now, assignment.DueDate)),
			AcceptsWork:  assignment.AcceptsWork(now),
			State:        dto.ProgressNotSubmitted,
			MaxPoints:    assignment.PointsCap(),
		}

		submission, submitted := byAssignment[assignment.ID]
		if !submitted {
			if assignment.IsPastDue(now) {
				summary.Missing++
			}
			rows = append(rows, row)
			continue
		}

		summary.Submitted++
		submittedAt := submission.SubmittedAt
		submissionID := submission.ID
		row.SubmissionID = &submissionID
		row.SubmittedAt = &submittedAt
		row.DaysLate = submission.DaysLate
		if submission.Late {
			summary.Late++
		}

		switch {
		case submission.IsGraded():
			row.State = dto.ProgressGraded
			summary.Graded++
			if submission.Grade != nil {
				grade := *submission.Grade
				adjusted := grade * lifecycle.PenaltyFactor(submission.DaysLate, assignment.LatePenaltyPercentPerDay)
				row.Grade = &grade
				row.AdjustedGrade = &adjusted
				gradeTotal += grade
			}
		case submission.Late:
			row.State = dto.ProgressLate
			summary.AwaitingGrade++
		default:
			row.State = dto.ProgressSubmitted
			summary.AwaitingGrade++
		}

		rows = append(rows, row)
	}

	if summary.Graded > 0 {
		summary.AverageGrade = gradeTotal / float64(summary.Graded)
	}
	if summary.TotalAssignments > 0 {
		summary.CompletionRate = float64(summary.Graded) / float64(summary.TotalAssignments) * 100
	}

	return dto.StudentProgressResponse{
		StudentID:   studentID,
		Summary:     summary,
		Assignments: rows,
		GeneratedAt: now,
	}
}
