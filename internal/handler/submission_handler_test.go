package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-lms-api/internal/config"
	"github.com/noah-isme/gema-lms-api/internal/database"
	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/handler"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/repository"
	"github.com/noah-isme/gema-lms-api/internal/router"
	"github.com/noah-isme/gema-lms-api/internal/service"
)

type submissionTestUploader struct{}

func (s *submissionTestUploader) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "https://files.test/" + name, nil
}

type courseworkEnv struct {
	app     *fiber.App
	db      *gorm.DB
	student models.Student
	open    models.Assignment
	closed  models.Assignment
}

// setupCourseworkApp wires the full HTTP stack on sqlite. The JWT middleware
// is replaced by one that trusts X-Test-User and X-Test-Role headers.
func setupCourseworkApp(t *testing.T) *courseworkEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	validate := validator.New(validator.WithRequiredStructEnabled())
	log := zerolog.New(io.Discard)

	submissionRepo := repository.NewSubmissionRepository(db)
	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), validate, log)
	events := service.NewSubmissionEventPublisher(nil, nil, "gema:coursework", log)

	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		Submissions: submissionRepo,
		Assignments: repository.NewAssignmentRepository(db),
		Students:    repository.NewStudentRepository(db),
		Attachments: service.NewAttachmentService(&submissionTestUploader{}, 1, log),
		Activity:    activityService,
		Events:      events,
	}, validate, log)
	gradingService := service.NewGradingService(submissionRepo, validate, activityService, events, nil, 0, log)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, nil, log),
		GradingHandler:    handler.NewGradingHandler(gradingService, log),
		ActivityHandler:   handler.NewActivityHandler(activityService, log),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get("X-Test-User"), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
				c.Locals("user_role", c.Get("X-Test-Role"))
			}
			return c.Next()
		},
	})

	env := &courseworkEnv{
		app:     app,
		db:      db,
		student: models.Student{Name: "Jane Putri", Email: "jane@example.com"},
		open: models.Assignment{
			Title:     "Lab Report",
			DueDate:   time.Now().Add(3 * time.Hour),
			MaxPoints: 100,
		},
		closed: models.Assignment{
			Title:     "Field Notes",
			DueDate:   time.Now().Add(-50 * time.Hour),
			MaxPoints: 100,
		},
	}
	require.NoError(t, db.Create(&env.student).Error)
	require.NoError(t, db.Create(&env.open).Error)
	require.NoError(t, db.Create(&env.closed).Error)

	return env
}

type submissionEnvelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    dto.SubmissionResponse `json:"data"`
}

func submitRequest(t *testing.T, assignmentID uint, content string, file []byte, fileName string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("assignment_id", strconv.FormatUint(uint64(assignmentID), 10)))
	if content != "" {
		require.NoError(t, writer.WriteField("content", content))
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v2/coursework/submissions", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func as(req *http.Request, userID uint, role string) *http.Request {
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	req.Header.Set("X-Test-Role", role)
	return req
}

func decodeSubmission(t *testing.T, resp *http.Response) submissionEnvelope {
	t.Helper()
	defer resp.Body.Close()

	var payload submissionEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestSubmissionHandlerSubmitResubmitAndGrade(t *testing.T) {
	env := setupCourseworkApp(t)

	resp, err := env.app.Test(as(submitRequest(t, env.open.ID, "first draft", []byte("hello world"), "draft.txt"), env.student.ID, "student"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	created := decodeSubmission(t, resp)
	require.True(t, created.Success)
	require.Equal(t, "SUBMITTED", created.Data.Status)
	require.NotNil(t, created.Data.Attachment)
	require.Equal(t, "draft.txt", created.Data.Attachment.FileName)
	require.True(t, strings.HasPrefix(created.Data.Attachment.FileURL, "https://files.test/"))

	resp, err = env.app.Test(as(submitRequest(t, env.open.ID, "final draft", nil, ""), env.student.ID, "student"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	updated := decodeSubmission(t, resp)
	require.Equal(t, created.Data.ID, updated.Data.ID)
	require.Equal(t, "final draft", *updated.Data.Content)

	path := fmt.Sprintf("/api/v2/coursework/submissions/%d", created.Data.ID)
	resp, err = env.app.Test(as(httptest.NewRequest(http.MethodGet, path, nil), env.student.ID, "student"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "final draft", *decodeSubmission(t, resp).Data.Content)

	gradeReq := httptest.NewRequest(http.MethodPatch, path+"/grade", strings.NewReader(`{"grade":91.5,"feedback":"Clear methodology"}`))
	gradeReq.Header.Set("Content-Type", "application/json")
	resp, err = env.app.Test(as(gradeReq, 500, "teacher"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	graded := decodeSubmission(t, resp)
	require.Equal(t, "GRADED", graded.Data.Status)
	require.InDelta(t, 91.5, *graded.Data.Grade, 0.001)
	require.Equal(t, "Clear methodology", *graded.Data.Feedback)

	listReq := httptest.NewRequest(http.MethodGet, "/api/v2/coursework/submissions?status=graded&page=1&page_size=10", nil)
	resp, err = env.app.Test(as(listReq, 500, "teacher"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("X-Total-Count"))

	var list struct {
		Data []dto.SubmissionResponse `json:"data"`
		Meta dto.PaginationMeta       `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Data, 1)
	require.Equal(t, int64(1), list.Meta.TotalItems)
	require.Equal(t, 1, list.Meta.TotalPages)

	resp, err = env.app.Test(as(httptest.NewRequest(http.MethodGet, "/api/v2/admin/activities?action=submission.graded", nil), 500, "teacher"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmissionHandlerResubmitAfterDeadlineConflicts(t *testing.T) {
	env := setupCourseworkApp(t)

	resp, err := env.app.Test(as(submitRequest(t, env.closed.ID, "late notes", nil, ""), env.student.ID, "student"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	late := decodeSubmission(t, resp)
	require.Equal(t, "LATE", late.Data.Status)
	require.True(t, late.Data.Late)
	require.Equal(t, 3, late.Data.DaysLate)

	resp, err = env.app.Test(as(submitRequest(t, env.closed.ID, "revised notes", nil, ""), env.student.ID, "student"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmissionHandlerRejectsInvalidRequests(t *testing.T) {
	env := setupCourseworkApp(t)

	t.Run("teacher cannot submit", func(t *testing.T) {
		resp, err := env.app.Test(as(submitRequest(t, env.open.ID, "work", nil, ""), 500, "teacher"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("anonymous cannot submit", func(t *testing.T) {
		resp, err := env.app.Test(submitRequest(t, env.open.ID, "work", nil, ""), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("missing assignment id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v2/coursework/submissions", strings.NewReader("content=hello"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := env.app.Test(as(req, env.student.ID, "student"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unknown assignment", func(t *testing.T) {
		resp, err := env.app.Test(as(submitRequest(t, 9999, "work", nil, ""), env.student.ID, "student"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("oversized attachment", func(t *testing.T) {
		oversized := bytes.Repeat([]byte("a"), 1024*1024+10)
		resp, err := env.app.Test(as(submitRequest(t, env.open.ID, "", oversized, "big.txt"), env.student.ID, "student"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("student cannot grade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v2/coursework/submissions/1/grade", strings.NewReader(`{"grade":90}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := env.app.Test(as(req, env.student.ID, "student"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("grade above maximum", func(t *testing.T) {
		resp, err := env.app.Test(as(submitRequest(t, env.open.ID, "essay", nil, ""), env.student.ID, "student"), -1)
		require.NoError(t, err)
		submission := decodeSubmission(t, resp)

		req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v2/coursework/submissions/%d/grade", submission.Data.ID), strings.NewReader(`{"grade":140}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err = env.app.Test(as(req, 500, "admin"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unknown sort key", func(t *testing.T) {
		resp, err := env.app.Test(as(httptest.NewRequest(http.MethodGet, "/api/v2/coursework/submissions?sort=shoe_size", nil), 500, "teacher"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("students cannot read the audit log", func(t *testing.T) {
		resp, err := env.app.Test(as(httptest.NewRequest(http.MethodGet, "/api/v2/admin/activities", nil), env.student.ID, "student"), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})
}
