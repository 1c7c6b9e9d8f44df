// Package notify implements the notification intent emitter: a bounded queue
// feeding a background worker that hands intents to delivery sinks. Delivery
// is a side effect of a committed state transition, never part of it. A sink
// failure is logged and counted, and the queue never blocks the caller.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anshulpatel/event-waitlist-service/internal/metrics"
	"github.com/anshulpatel/event-waitlist-service/internal/model"
)

// Intent is one notification request emitted after a state transition.
type Intent struct {
	RegistrationID string                 `json:"registration_id"`
	EventID        string                 `json:"event_id"`
	UserID         string                 `json:"user_id"`
	Type           model.NotificationType `json:"type"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// Sink delivers one intent to the outside world.
type Sink interface {
	Deliver(ctx context.Context, intent Intent) error
}

// Emitter queues intents and fans them out to sinks from a worker goroutine.
type Emitter struct {
	inbox   chan Intent
	sinks   []Sink
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewEmitter constructs an Emitter with a bounded queue.
func NewEmitter(queueSize int, log *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Emitter {
	return &Emitter{
		inbox:   make(chan Intent, queueSize),
		sinks:   sinks,
		log:     log,
		metrics: m,
	}
}

// Emit enqueues an intent without blocking. When the queue is full the intent
// is dropped: losing a notification is acceptable, stalling a registration
// state transition is not.
func (e *Emitter) Emit(intent Intent) {
	if intent.OccurredAt.IsZero() {
		intent.OccurredAt = time.Now().UTC()
	}
	select {
	case e.inbox <- intent:
		e.metrics.NotificationsEmitted.WithLabelValues(string(intent.Type)).Inc()
	default:
		e.metrics.NotificationsDropped.Inc()
		e.log.Warn("notification queue full, intent dropped",
			"registration_id", intent.RegistrationID, "type", intent.Type)
	}
}

// Run consumes the queue until ctx is cancelled. Sink failures are logged and
// swallowed.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case intent := <-e.inbox:
			e.deliver(ctx, intent)
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, intent Intent) {
	for _, sink := range e.sinks {
		if err := sink.Deliver(ctx, intent); err != nil {
			e.metrics.NotificationFailures.Inc()
			e.log.Error("notification delivery failed",
				"registration_id", intent.RegistrationID,
				"type", intent.Type, "error", err)
		}
	}
}

// LogSink writes intents to the structured log. It is the always-available
// delivery boundary for local development.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Deliver(_ context.Context, intent Intent) error {
	s.Log.Info("notification intent",
		"registration_id", intent.RegistrationID,
		"event_id", intent.EventID,
		"user_id", intent.UserID,
		"type", intent.Type)
	return nil
}

// RedisSink publishes intents as JSON on a Redis pub/sub channel, where the
// actual delivery pipeline (email/SMS/push) picks them up.
type RedisSink struct {
	Client  *redis.Client
	Channel string
}

func (s RedisSink) Deliver(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.Client.Publish(ctx, s.Channel, payload).Err()
}

// NewRedisClient connects a Redis client from a URL, pinging once to fail
// fast on misconfiguration.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
