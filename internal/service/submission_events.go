package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Submission event types.
const (
	EventSubmissionSubmitted   = "submission.submitted"
	EventSubmissionResubmitted = "submission.resubmitted"
	EventSubmissionGraded      = "submission.graded"
)

// SubmissionEvent is broadcast after a submission changes so that other
// portals (notifications, dashboards) can react without polling.
type SubmissionEvent struct {
	Type         string    `json:"type"`
	Source       string    `json:"source"`
	SubmissionID uint      `json:"submission_id"`
	AssignmentID uint      `json:"assignment_id"`
	StudentID    uint      `json:"student_id"`
	ActorID      uint      `json:"actor_id"`
	Status       string    `json:"status"`
	Late         bool      `json:"late"`
	Grade        *float64  `json:"grade,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher delivers submission events to the configured brokers.
type EventPublisher interface {
	Publish(ctx context.Context, event SubmissionEvent) error
}

type submissionEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewSubmissionEventPublisher builds a publisher writing to Redis pub/sub and
// NATS. Either client may be nil; an empty channelBase disables publishing.
func NewSubmissionEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	channel := ""
	subject := ""
	if base := strings.TrimSpace(channelBase); base != "" {
		channel = base + ":submissions"
		subject = strings.ReplaceAll(base, ":", ".") + ".submissions"
	}

	return &submissionEventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "submission_events").Logger(),
	}
}

// RedisChannel returns the pub/sub channel events are published on.
func RedisChannel(channelBase string) string {
	return strings.TrimSpace(channelBase) + ":submissions"
}

func (p *submissionEventPublisher) Publish(ctx context.Context, event SubmissionEvent) error {
	if event.Type == "" {
		return errors.New("event type is required")
	}
	event.Source = p.nodeID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject+"."+strings.TrimPrefix(event.Type, "submission."), payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// publishEvent sends an event and only logs failures; delivery is best effort.
func publishEvent(ctx context.Context, publisher EventPublisher, logger zerolog.Logger, event SubmissionEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event", event.Type).Uint("submission_id", event.SubmissionID).Msg("failed to publish submission event")
	}
}

// ConsumeSubmissionEvents listens on the Redis submission channel and invokes
// handle for every decodable event until ctx is cancelled.
func ConsumeSubmissionEvents(ctx context.Context, client *redis.Client, channelBase string, logger zerolog.Logger, handle func(SubmissionEvent)) {
	if client == nil || strings.TrimSpace(channelBase) == "" || handle == nil {
		return
	}

	log := logger.With().Str("component", "submission_event_consumer").Logger()
	pubsub := client.Subscribe(ctx, RedisChannel(channelBase))
	defer func() { _ = pubsub.Close() }()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				log.Warn().Msg("submission event subscription closed")
				return
			}

			var event SubmissionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("invalid submission event payload")
				continue
			}
			handle(event)
		}
	}
}
