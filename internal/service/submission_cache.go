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
	"github.com/noah-isme/gema-lms-api/internal/repository"
)

// submissionListCache keeps the database-narrowed submission lists in Redis.
// Search, status filtering and sorting always run on top of the cached slice.
type submissionListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func newSubmissionListCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *submissionListCache {
	return &submissionListCache{client: client, ttl: ttl, logger: logger}
}

func submissionListKey(assignmentID, studentID uint) string {
	return fmt.Sprintf("submissions:list:a%d:s%d", assignmentID, studentID)
}

func keyForFilter(filter repository.SubmissionFilter) string {
	var assignmentID, studentID uint
	if filter.AssignmentID != nil {
		assignmentID = *filter.AssignmentID
	}
	if filter.StudentID != nil {
		studentID = *filter.StudentID
	}
	return submissionListKey(assignmentID, studentID)
}

func (c *submissionListCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *submissionListCache) get(ctx context.Context, filter repository.SubmissionFilter) ([]dto.SubmissionResponse, bool) {
	if !c.enabled() {
		return nil, false
	}

	cached, err := c.client.Get(ctx, keyForFilter(filter)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read submission list cache")
		}
		return nil, false
	}

	var items []dto.SubmissionResponse
	if err := json.Unmarshal([]byte(cached), &items); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed submission list cache entry")
		return nil, false
	}
	return items, true
}

func (c *submissionListCache) set(ctx context.Context, filter repository.SubmissionFilter, items []dto.SubmissionResponse) {
	if !c.enabled() {
		return
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyForFilter(filter), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store submission list cache")
	}
}

// invalidate drops every cached list that can contain the given submission,
// plus the owning student's progress overview.
func (c *submissionListCache) invalidate(ctx context.Context, assignmentID, studentID uint) {
	if !c.enabled() {
		return
	}

	keys := []string{
		submissionListKey(assignmentID, studentID),
		submissionListKey(assignmentID, 0),
		submissionListKey(0, studentID),
		submissionListKey(0, 0),
		progressCacheKey(studentID),
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to invalidate submission list cache")
	}
}
