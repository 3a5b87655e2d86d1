package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

type submissionFixture struct {
	db       *gorm.DB
	svc      *submissionService
	grading  *gradingService
	events   *recordingPublisher
	activity *recordingActivity
	redis    *redis.Client
	now      time.Time
	open     models.Assignment
	closed   models.Assignment
	lenient  models.Assignment
	alice    models.Student
	bob      models.Student
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db := openTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	fixture := &submissionFixture{
		db:       db,
		events:   &recordingPublisher{},
		activity: &recordingActivity{},
		redis:    redisClient,
		now:      now,
		alice:    models.Student{Name: "Alice Rahma", Email: "alice@example.com"},
		bob:      models.Student{Name: "Bob Santoso", Email: "bob@example.com"},
		open:     models.Assignment{Title: "Essay on Networks", DueDate: now.Add(24 * time.Hour), MaxPoints: 100},
		closed: models.Assignment{
			Title:     "Lab Report",
			DueDate:   now.Add(-36 * time.Hour),
			MaxPoints: 50,
		},
		lenient: models.Assignment{
			Title:                    "Reading Journal",
			DueDate:                  now.Add(-2 * time.Hour),
			MaxPoints:                20,
			AllowLateSubmissions:     true,
			LatePenaltyPercentPerDay: 10,
		},
	}
	require.NoError(t, db.Create(&fixture.alice).Error)
	require.NoError(t, db.Create(&fixture.bob).Error)
	require.NoError(t, db.Create(&fixture.open).Error)
	require.NoError(t, db.Create(&fixture.closed).Error)
	require.NoError(t, db.Create(&fixture.lenient).Error)

	submissions := repository.NewSubmissionRepository(db)
	attachments := NewAttachmentService(&storageStub{}, 5, testLogger())

	svc := NewSubmissionService(SubmissionDependencies{
		Submissions: submissions,
		Assignments: repository.NewAssignmentRepository(db),
		Students:    repository.NewStudentRepository(db),
		Attachments: attachments,
		Activity:    fixture.activity,
		Events:      fixture.events,
		Cache:       redisClient,
		CacheTTL:    time.Minute,
	}, testValidator(), testLogger()).(*submissionService)
	svc.now = fixedClock(now)
	fixture.svc = svc

	grading := NewGradingService(submissions, testValidator(), fixture.activity, fixture.events, redisClient, time.Minute, testLogger()).(*gradingService)
	grading.now = fixedClock(now)
	fixture.grading = grading

	return fixture
}

func (f *submissionFixture) student(s models.Student) Actor {
	return Actor{ID: s.ID, Role: RoleStudent}
}

func TestSubmissionServiceFirstSubmissionOnTime(t *testing.T) {
	f := newSubmissionFixture(t)

	result, created, err := f.svc.Submit(context.Background(), f.student(f.alice), dto.SubmissionCreateRequest{
		AssignmentID: f.open.ID,
		Content:      "  Packets travel in frames.  ",
	}, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, string(models.SubmissionStatusSubmitted), result.Status)
	require.False(t, result.Late)
	require.Equal(t, 0, result.DaysLate)
	require.Equal(t, "Packets travel in frames.", *result.Content)
	require.Nil(t, result.Grade)
	require.Equal(t, "Essay on Networks", result.Assignment.Title)
	require.Equal(t, "Alice Rahma", result.Student.Name)
	require.Equal(t, []string{EventSubmissionSubmitted}, f.events.types())
	require.Len(t, f.activity.entries, 1)
}

func TestSubmissionServiceLateFirstSubmissionAccepted(t *testing.T) {
	f := newSubmissionFixture(t)

	result, created, err := f.svc.Submit(context.Background(), f.student(f.alice), dto.SubmissionCreateRequest{
		AssignmentID: f.closed.ID,
		Content:      "results attached",
	}, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, string(models.SubmissionStatusLate), result.Status)
	require.True(t, result.Late)
	require.Equal(t, 2, result.DaysLate)
}

func TestSubmissionServiceResubmissionClosed(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.closed.ID, Content: "v1"}, nil)
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.closed.ID, Content: "v2"}, nil)
	require.ErrorIs(t, err, ErrSubmissionClosed)

	stored, err := f.svc.Get(ctx, f.student(f.alice), first.ID)
	require.NoError(t, err)
	require.Equal(t, "v1", *stored.Content)
	require.Equal(t, []string{EventSubmissionSubmitted}, f.events.types())
}

func TestSubmissionServiceResubmissionOverwrites(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "draft"}, nil)
	require.NoError(t, err)

	second, created, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "final"}, nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "final", *second.Content)

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.Equal(t, []string{EventSubmissionSubmitted, EventSubmissionResubmitted}, f.events.types())
}

func TestSubmissionServiceLateResubmissionAllowed(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.lenient.ID, Content: "day one"}, nil)
	require.NoError(t, err)

	result, created, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.lenient.ID, Content: "day one, revised"}, nil)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, string(models.SubmissionStatusLate), result.Status)
	require.Equal(t, 1, result.DaysLate)
}

func TestSubmissionServiceResubmitAfterGradeKeepsGrade(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "draft"}, nil)
	require.NoError(t, err)

	_, err = f.grading.Grade(ctx, first.ID, dto.GradeSubmissionRequest{Grade: floatPointer(88)}, Actor{ID: 500, Role: RoleTeacher})
	require.NoError(t, err)

	result, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "polished"}, nil)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), result.Status)
	require.Equal(t, 88.0, *result.Grade)
	require.Equal(t, "polished", *result.Content)
	require.Len(t, result.History, 1)
}

func TestSubmissionServiceGradedWorkFrozenAfterDue(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.lenient.ID, Content: "journal entry"}, nil)
	require.NoError(t, err)

	_, err = f.grading.Grade(ctx, first.ID, dto.GradeSubmissionRequest{Grade: floatPointer(18)}, Actor{ID: 500, Role: RoleTeacher})
	require.NoError(t, err)

	_, _, err = f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.lenient.ID, Content: "swapped after grading"}, nil)
	require.ErrorIs(t, err, ErrSubmissionClosed)

	stored, err := f.svc.Get(ctx, f.student(f.alice), first.ID)
	require.NoError(t, err)
	require.Equal(t, "journal entry", *stored.Content)
	require.Equal(t, string(models.SubmissionStatusGraded), stored.Status)
	require.Equal(t, 18.0, *stored.Grade)
}

func TestSubmissionServiceRequiresWork(t *testing.T) {
	f := newSubmissionFixture(t)

	_, _, err := f.svc.Submit(context.Background(), f.student(f.alice), dto.SubmissionCreateRequest{
		AssignmentID: f.open.ID,
		Content:      "   \t\n ",
	}, nil)
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, f.events.types())
}

func TestSubmissionServiceStoresContentVerbatim(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	result, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{
		AssignmentID: f.open.ID,
		Content:      "  if a < b && b > c then x ",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "if a < b && b > c then x", *result.Content)

	markup, _, err := f.svc.Submit(ctx, f.student(f.bob), dto.SubmissionCreateRequest{
		AssignmentID: f.open.ID,
		Content:      "<script>x</script>",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "<script>x</script>", *markup.Content)

	var stored models.Submission
	require.NoError(t, f.db.First(&stored, result.ID).Error)
	require.Equal(t, "if a < b && b > c then x", *stored.Content)
}

func TestSubmissionServiceWithAttachment(t *testing.T) {
	f := newSubmissionFixture(t)

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	file := buildFileHeader(t, "Diagram Final.PNG", pngHeader)

	result, _, err := f.svc.Submit(context.Background(), f.student(f.bob), dto.SubmissionCreateRequest{AssignmentID: f.open.ID}, file)
	require.NoError(t, err)
	require.Nil(t, result.Content)
	require.NotNil(t, result.Attachment)
	require.Equal(t, "diagram-final.png", result.Attachment.FileName)
	require.Equal(t, "https://cdn.example.com/diagram-final.png", result.Attachment.FileURL)
	require.Equal(t, "image/png", result.Attachment.MimeType)
	require.Len(t, result.Attachment.Checksum, 64)
}

func TestSubmissionServiceRejectsNonStudents(t *testing.T) {
	f := newSubmissionFixture(t)

	_, _, err := f.svc.Submit(context.Background(), Actor{ID: f.alice.ID, Role: RoleTeacher}, dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "x"}, nil)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSubmissionServiceUnknownReferences(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: 999, Content: "x"}, nil)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	_, _, err = f.svc.Submit(ctx, Actor{ID: 999, Role: RoleStudent}, dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "x"}, nil)
	require.ErrorIs(t, err, ErrStudentNotFound)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmissionServiceGetScopesStudents(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	own, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "mine"}, nil)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.student(f.bob), own.ID)
	require.ErrorIs(t, err, ErrForbidden)

	viewed, err := f.svc.Get(ctx, Actor{ID: 77, Role: RoleTeacher}, own.ID)
	require.NoError(t, err)
	require.Equal(t, own.ID, viewed.ID)

	_, err = f.svc.Get(ctx, Actor{ID: 77, Role: RoleTeacher}, 12345)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmissionServiceListFilters(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "alice essay"}, nil)
	require.NoError(t, err)
	_, _, err = f.svc.Submit(ctx, f.student(f.bob), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "bob essay"}, nil)
	require.NoError(t, err)
	late, _, err := f.svc.Submit(ctx, f.student(f.bob), dto.SubmissionCreateRequest{AssignmentID: f.closed.ID, Content: "bob lab"}, nil)
	require.NoError(t, err)

	teacher := Actor{ID: 500, Role: RoleTeacher}

	all, total, err := f.svc.List(ctx, teacher, dto.SubmissionFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, all, 3)

	lateOnly, total, err := f.svc.List(ctx, teacher, dto.SubmissionFilter{Status: "late"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, late.ID, lateOnly[0].ID)

	searched, total, err := f.svc.List(ctx, teacher, dto.SubmissionFilter{Search: "ALICE"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "Alice Rahma", searched[0].Student.Name)

	sorted, _, err := f.svc.List(ctx, teacher, dto.SubmissionFilter{Sort: "student_name", Order: "desc"})
	require.NoError(t, err)
	require.Equal(t, "Bob Santoso", sorted[0].Student.Name)
	require.Equal(t, "Alice Rahma", sorted[2].Student.Name)

	paged, total, err := f.svc.List(ctx, teacher, dto.SubmissionFilter{Sort: "student_name", Order: "asc", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, paged, 1)

	own, total, err := f.svc.List(ctx, f.student(f.alice), dto.SubmissionFilter{StudentID: ptrUint(f.bob.ID)})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, f.alice.ID, own[0].StudentID)

	_, _, err = f.svc.List(ctx, Actor{ID: 1, Role: "guest"}, dto.SubmissionFilter{})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSubmissionServiceListCacheInvalidatedOnSubmit(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	teacher := Actor{ID: 500, Role: RoleTeacher}

	_, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "first"}, nil)
	require.NoError(t, err)

	_, total, err := f.svc.List(ctx, teacher, dto.SubmissionFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	exists, err := f.redis.Exists(ctx, submissionListKey(0, 0)).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), exists)

	_, _, err = f.svc.Submit(ctx, f.student(f.bob), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "second"}, nil)
	require.NoError(t, err)

	_, total, err = f.svc.List(ctx, teacher, dto.SubmissionFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestSubmissionMutationsDropProgressCache(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	key := progressCacheKey(f.alice.ID)

	require.NoError(t, f.redis.Set(ctx, key, `{"student_id":1}`, time.Minute).Err())
	first, _, err := f.svc.Submit(ctx, f.student(f.alice), dto.SubmissionCreateRequest{AssignmentID: f.open.ID, Content: "outline"}, nil)
	require.NoError(t, err)

	exists, err := f.redis.Exists(ctx, key).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists)

	require.NoError(t, f.redis.Set(ctx, key, `{"student_id":1}`, time.Minute).Err())
	_, err = f.grading.Grade(ctx, first.ID, dto.GradeSubmissionRequest{Grade: floatPointer(70)}, Actor{ID: 500, Role: RoleTeacher})
	require.NoError(t, err)

	exists, err = f.redis.Exists(ctx, key).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists)
}

func TestSubmissionServiceListRejectsUnknownSort(t *testing.T) {
	f := newSubmissionFixture(t)

	_, _, err := f.svc.List(context.Background(), Actor{ID: 500, Role: RoleTeacher}, dto.SubmissionFilter{Sort: "password"})
	require.Error(t, err)
}
