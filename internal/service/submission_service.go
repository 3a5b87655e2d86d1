package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/lifecycle"
	"github.com/noah-isme/gema-lms-api/internal/listing"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/observability"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

// SubmissionSortFields maps the public sort keys to submission accessors.
var SubmissionSortFields = listing.Fields[dto.SubmissionResponse]{
	"submitted_at":     func(s dto.SubmissionResponse) any { return s.SubmittedAt },
	"graded_at":        func(s dto.SubmissionResponse) any { return s.GradedAt },
	"grade":            func(s dto.SubmissionResponse) any { return s.Grade },
	"status":           func(s dto.SubmissionResponse) any { return s.Status },
	"student_name":     func(s dto.SubmissionResponse) any { return s.Student.Name },
	"assignment_title": func(s dto.SubmissionResponse) any { return s.Assignment.Title },
	"days_late":        func(s dto.SubmissionResponse) any { return s.DaysLate },
	"created_at":       func(s dto.SubmissionResponse) any { return s.CreatedAt },
	"updated_at":       func(s dto.SubmissionResponse) any { return s.UpdatedAt },
}

var submissionSearchFields = []func(dto.SubmissionResponse) string{
	func(s dto.SubmissionResponse) string { return s.Student.Name },
	func(s dto.SubmissionResponse) string { return s.Student.Email },
	func(s dto.SubmissionResponse) string { return s.Assignment.Title },
	func(s dto.SubmissionResponse) string { return derefString(s.Content) },
	func(s dto.SubmissionResponse) string { return derefString(s.Feedback) },
	func(s dto.SubmissionResponse) string {
		if s.Attachment == nil {
			return ""
		}
		return s.Attachment.FileName
	},
}

// SubmissionService orchestrates the student side of the submission lifecycle.
type SubmissionService interface {
	List(ctx context.Context, actor Actor, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, int, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, bool, error)
}

// SubmissionDependencies groups collaborators of the submission service.
type SubmissionDependencies struct {
	Submissions repository.SubmissionRepository
	Assignments repository.AssignmentRepository
	Students    repository.StudentRepository
	Attachments AttachmentService
	Activity    ActivityRecorder
	Events      EventPublisher
	Cache       *redis.Client
	CacheTTL    time.Duration
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	students    repository.StudentRepository
	attachments AttachmentService
	activity    ActivityRecorder
	events      EventPublisher
	cache       *submissionListCache
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionDependencies, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	serviceLogger := logger.With().Str("component", "submission_service").Logger()
	return &submissionService{
		submissions: deps.Submissions,
		assignments: deps.Assignments,
		students:    deps.Students,
		attachments: deps.Attachments,
		activity:    deps.Activity,
		events:      deps.Events,
		cache:       newSubmissionListCache(deps.Cache, deps.CacheTTL, serviceLogger),
		validator:   validate,
		logger:      serviceLogger,
		tracer:      otel.Tracer("github.com/noah-isme/gema-lms-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) List(ctx context.Context, actor Actor, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, int, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, 0, err
	}

	repoFilter := repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		StudentID:    filter.StudentID,
	}
	switch {
	case actor.IsStudent():
		studentID := actor.ID
		repoFilter.StudentID = &studentID
	case actor.IsStaff():
	default:
		return nil, 0, ErrForbidden
	}

	items, cached := s.cache.get(ctx, repoFilter)
	if !cached {
		submissions, err := s.submissions.List(ctx, repoFilter)
		if err != nil {
			return nil, 0, err
		}
		items = dto.NewSubmissionResponseSlice(submissions)
		s.cache.set(ctx, repoFilter, items)
	}

	items = listing.FilterByStatus(items, filter.Status, func(item dto.SubmissionResponse) string { return item.Status })
	items = listing.FilterBySearch(items, filter.Search, submissionSearchFields...)
	if key, ok := SubmissionSortFields.Lookup(filter.Sort); ok {
		items = listing.SortBy(items, key, listing.ParseOrder(filter.Order))
	}

	total := len(items)
	return listing.Paginate(items, filter.Page, filter.PageSize), total, nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	switch {
	case actor.IsStaff():
	case actor.IsStudent() && submission.StudentID == actor.ID:
	default:
		return dto.SubmissionResponse{}, ErrForbidden
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Submit(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, bool, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit")
	span.SetAttributes(
		attribute.Int64("submission.assignment_id", int64(payload.AssignmentID)),
		attribute.Int64("submission.student_id", int64(actor.ID)),
		attribute.Bool("submission.has_file", file != nil),
	)
	defer span.End()

	result, created, err := s.submit(ctx, actor, payload, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
		return dto.SubmissionResponse{}, false, err
	}

	span.SetAttributes(attribute.String("submission.status", result.Status))
	return result, created, nil
}

func (s *submissionService) submit(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, bool, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, false, err
	}
	if !actor.IsStudent() || actor.ID == 0 {
		return dto.SubmissionResponse{}, false, ErrForbidden
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" && file == nil {
		return dto.SubmissionResponse{}, false, fmt.Errorf("%w: submission requires content or an attachment", ErrValidation)
	}

	exists, err := s.students.Exists(ctx, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, false, err
	}
	if !exists {
		return dto.SubmissionResponse{}, false, ErrStudentNotFound
	}

	assignment, err := s.assignments.GetByID(ctx, payload.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, false, ErrAssignmentNotFound
		}
		return dto.SubmissionResponse{}, false, err
	}

	var current *models.Submission
	existing, err := s.submissions.GetByAssignmentAndStudent(ctx, assignment.ID, actor.ID)
	switch {
	case err == nil:
		current = &existing
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dto.SubmissionResponse{}, false, err
	}

	now := s.now()
	// Reject a closed resubmission before spending an upload on it.
	if current != nil {
		if err := lifecycle.CheckResubmission(assignment, *current, now); err != nil {
			return dto.SubmissionResponse{}, false, err
		}
	}

	work := lifecycle.Work{Content: content}
	if file != nil {
		attachment, err := s.attachments.Store(ctx, file)
		if err != nil {
			return dto.SubmissionResponse{}, false, err
		}
		work.Attachment = attachment
	}

	next, err := lifecycle.Submit(assignment, current, actor.ID, work, now)
	if err != nil {
		return dto.SubmissionResponse{}, false, err
	}

	created := current == nil
	if created {
		err = s.submissions.Create(ctx, &next)
	} else {
		err = s.submissions.Update(ctx, &next)
	}
	if err != nil {
		return dto.SubmissionResponse{}, false, err
	}

	stored, err := s.submissions.GetByID(ctx, next.ID)
	if err != nil {
		return dto.SubmissionResponse{}, false, err
	}

	action := EventSubmissionSubmitted
	if !created {
		action = EventSubmissionResubmitted
	}
	s.afterMutation(ctx, actor, action, stored)

	s.logger.Info().
		Uint("submission_id", stored.ID).
		Uint("assignment_id", stored.AssignmentID).
		Str("status", string(stored.Status)).
		Bool("late", stored.Late).
		Msg(strings.ReplaceAll(action, ".", " "))

	return dto.NewSubmissionResponse(stored), created, nil
}

func (s *submissionService) afterMutation(ctx context.Context, actor Actor, action string, submission models.Submission) {
	observability.SubmissionEvents().WithLabelValues(action, string(submission.Status)).Inc()
	s.cache.invalidate(ctx, submission.AssignmentID, submission.StudentID)

	if s.activity != nil {
		_, err := s.activity.Record(ctx, ActivityEntry{
			Actor:      actor,
			Action:     action,
			EntityType: "submission",
			EntityID:   &submission.ID,
			Metadata: map[string]interface{}{
				"assignment_id": submission.AssignmentID,
				"status":        string(submission.Status),
				"late":          submission.Late,
				"days_late":     submission.DaysLate,
				"has_file":      submission.HasAttachment(),
			},
		})
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to record submission activity")
		}
	}

	publishEvent(ctx, s.events, s.logger, SubmissionEvent{
		Type:         action,
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		ActorID:      actor.ID,
		Status:       string(submission.Status),
		Late:         submission.Late,
		OccurredAt:   s.now().UTC(),
	})
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
