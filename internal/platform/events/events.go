// Copyright (c) 2026 Veridian Labs. All rights reserved.

/*
Package events delivers domain events raised by the identity aggregates to
external consumers.

Aggregates append plain event values to an in-memory list while they mutate;
the orchestration layer drains that list after a successful persistence and
hands it to a [Publisher]. The aggregates never know how (or whether) the
facts are delivered.

Implementations:

  - RedisPublisher: fan-out over a Redis pub/sub channel for downstream
    consumers (audit pipeline, notification workers).
  - LogPublisher: structured-log sink for development and tests.
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veridianlabs/veridian/internal/platform/constants"
)

// Event is the envelope every domain fact is published in.
type Event struct {
	// Name identifies the fact, e.g. "user.registered" or "application.key_rotated".
	Name string `json:"name"`
	// OccurredAt is stamped by the aggregate when the fact happened.
	OccurredAt time.Time `json:"occurred_at"`
	// Payload carries fact-specific fields. Never includes secrets.
	Payload map[string]any `json:"payload,omitempty"`
}

// Publisher delivers domain events after the owning transaction committed.
//
// Delivery is best-effort: a publish failure must not roll back the
// already-committed state change, so implementations log and move on.
type Publisher interface {
	Publish(ctx context.Context, events []Event)
}

// # Redis Publisher

// RedisPublisher fans events out over a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisPublisher creates a publisher on the standard identity events channel.
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: constants.RedisChannelEvents,
		logger:  logger,
	}
}

// Publish serializes each event as JSON and publishes it. Failures are logged
// and swallowed; the state change they describe has already committed.
func (publisher *RedisPublisher) Publish(ctx context.Context, domainEvents []Event) {
	for _, event := range domainEvents {
		payload, err := json.Marshal(event)
		if err != nil {
			publisher.logger.Error("event_marshal_failed",
				slog.String("event", event.Name),
				slog.Any("error", err),
			)
			continue
		}

		if err := publisher.client.Publish(ctx, publisher.channel, payload).Err(); err != nil {
			publisher.logger.Error("event_publish_failed",
				slog.String("event", event.Name),
				slog.Any("error", err),
			)
		}
	}
}

// # Log Publisher

// LogPublisher writes events to the structured log. Used in development and
// as the fallback when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a slog-backed publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs each event at INFO with its payload fields.
func (publisher *LogPublisher) Publish(ctx context.Context, domainEvents []Event) {
	for _, event := range domainEvents {
		publisher.logger.InfoContext(ctx, "domain_event",
			slog.String("event", event.Name),
			slog.Time("occurred_at", event.OccurredAt),
			slog.Any("payload", event.Payload),
		)
	}
}

// String implements fmt.Stringer for log-friendly event rendering.
func (e Event) String() string {
	return fmt.Sprintf("%s@%s", e.Name, e.OccurredAt.Format(time.RFC3339))
}
