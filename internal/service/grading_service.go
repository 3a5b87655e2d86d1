package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/lifecycle"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/observability"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

// GradingService encapsulates grading workflows for teachers and administrators.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor Actor) (dto.SubmissionResponse, error)
}

type gradingService struct {
	repo      repository.SubmissionRepository
	validator *validator.Validate
	activity  ActivityRecorder
	events    EventPublisher
	cache     *submissionListCache
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGradingService constructs the grading service. activity, events and
// cache are optional.
func NewGradingService(repo repository.SubmissionRepository, validator *validator.Validate, activity ActivityRecorder, events EventPublisher, cache *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) GradingService {
	serviceLogger := logger.With().Str("component", "grading_service").Logger()
	return &gradingService{
		repo:      repo,
		validator: validator,
		activity:  activity,
		events:    events,
		cache:     newSubmissionListCache(cache, cacheTTL, serviceLogger),
		sanitizer: bluemonday.StrictPolicy(),
		logger:    serviceLogger,
		now:       time.Now,
	}
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint, payload dto.GradeSubmissionRequest, actor Actor) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	if !actor.IsStaff() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, ErrForbidden
	}

	submission, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	if !canGrade(actor, submission.Assignment) {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, ErrForbidden
	}

	var feedback *string
	if payload.Feedback != nil {
		cleaned := strings.TrimSpace(s.sanitizer.Sanitize(*payload.Feedback))
		feedback = &cleaned
	}

	if err := lifecycle.ValidateGrade(*payload.Grade, submission.Assignment.PointsCap()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_rejected")
		return dto.SubmissionResponse{}, err
	}

	if isSameGrade(submission, *payload.Grade, feedback, actor) {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewSubmissionResponse(submission), nil
	}

	graded, err := lifecycle.Grade(submission.Assignment, submission, lifecycle.Grading{
		Grade:    *payload.Grade,
		Feedback: feedback,
		GraderID: actor.ID,
	}, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_rejected")
		return dto.SubmissionResponse{}, err
	}

	if err := s.repo.Update(ctx, &graded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}

	history := models.SubmissionGradeHistory{
		SubmissionID: graded.ID,
		Score:        *graded.Grade,
		Feedback:     derefString(graded.Feedback),
		GradedBy:     actor.ID,
		GradedAt:     *graded.GradedAt,
	}
	if err := s.repo.CreateHistory(ctx, &history); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", graded.ID).Msg("failed to persist grading history")
		span.RecordError(err)
	} else {
		graded.History = append([]models.SubmissionGradeHistory{history}, graded.History...)
	}

	s.cache.invalidate(ctx, graded.AssignmentID, graded.StudentID)
	observability.SubmissionEvents().WithLabelValues(EventSubmissionGraded, string(graded.Status)).Inc()

	if s.activity != nil {
		_, err := s.activity.Record(ctx, ActivityEntry{
			Actor:      actor,
			Action:     EventSubmissionGraded,
			EntityType: "submission",
			EntityID:   &graded.ID,
			Metadata: map[string]interface{}{
				"assignment_id": graded.AssignmentID,
				"student_id":    graded.StudentID,
				"score":         *graded.Grade,
				"late":          graded.Late,
			},
		})
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", graded.ID).Msg("failed to record grading activity")
		}
	}

	publishEvent(ctx, s.events, s.logger, SubmissionEvent{
		Type:         EventSubmissionGraded,
		SubmissionID: graded.ID,
		AssignmentID: graded.AssignmentID,
		StudentID:    graded.StudentID,
		ActorID:      actor.ID,
		Status:       string(graded.Status),
		Late:         graded.Late,
		Grade:        graded.Grade,
		OccurredAt:   graded.GradedAt.UTC(),
	})

	span.SetAttributes(
		attribute.Float64("grading.score", *graded.Grade),
		attribute.String("grading.status", string(graded.Status)),
	)
	s.logger.Info().Uint("submission_id", graded.ID).Float64("grade", *graded.Grade).Msg("submission graded")

	return dto.NewSubmissionResponse(graded), nil
}

// canGrade allows administrators everywhere and teachers on assignments they
// instruct. Assignments without a recorded instructor accept any teacher.
func canGrade(actor Actor, assignment models.Assignment) bool {
	if actor.IsAdmin() {
		return true
	}
	if !actor.IsStaff() {
		return false
	}
	return assignment.InstructorID == nil || *assignment.InstructorID == actor.ID
}

// isSameGrade reports whether applying the request would change nothing the
// same grader has already recorded.
func isSameGrade(submission models.Submission, grade float64, feedback *string, actor Actor) bool {
	if !submission.IsGraded() || submission.Grade == nil || submission.GradedBy == nil {
		return false
	}
	if *submission.GradedBy != actor.ID || math.Abs(*submission.Grade-grade) >= 1e-6 {
		return false
	}
	if feedback == nil {
		return true
	}
	return strings.TrimSpace(derefString(submission.Feedback)) == *feedback
}
