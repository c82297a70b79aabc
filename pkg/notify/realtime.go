// Package notify implements best-effort outcome propagation: real-time
// dashboard events over Redis pub/sub and chat confirmations over an HTTP
// gateway. Nothing in this package is on the critical path of a delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event names published to dashboard sessions.
const (
	EventQuestionApproved = "question:approved"
	EventQuestionUpdated  = "question:updated"
	EventQuestionFailed   = "question:failed"
	EventAnswerConfirmed  = "answer:confirmed"
)

// RealtimeEmitter publishes named events to live dashboard sessions.
type RealtimeEmitter interface {
	// Emit publishes an event on the organization's channel.
	Emit(ctx context.Context, orgID uuid.UUID, event string, payload any) error
}

// redisEmitter publishes events over Redis pub/sub. Dashboard sessions
// subscribe to their organization's channel.
type redisEmitter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisEmitter creates a RealtimeEmitter backed by Redis pub/sub.
// A nil client yields a no-op emitter (Redis not configured).
func NewRedisEmitter(client *redis.Client, logger *zap.Logger) RealtimeEmitter {
	if client == nil {
		return NopEmitter{}
	}
	return &redisEmitter{client: client, logger: logger}
}

// envelope is the wire format of a realtime event.
type envelope struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *redisEmitter) Emit(ctx context.Context, orgID uuid.UUID, event string, payload any) error {
	channel := fmt.Sprintf("org:%s:questions", orgID)

	body, err := json.Marshal(envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}

	if err := e.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event, err)
	}

	return nil
}

// NopEmitter discards all events. Used when Redis is not configured and in
// tests.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, orgID uuid.UUID, event string, payload any) error {
	return nil
}
