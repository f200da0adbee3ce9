package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"soundradius/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "soundradius:events"

// envelope is the wire form of a published event, stamped with the publishing
// instance so subscribers can skip their own traffic.
type envelope struct {
	InstanceID string       `json:"instance_id"`
	Event      domain.Event `json:"event"`
}

// EventBus publishes session lifecycle events over redis pub/sub. It
// implements the core's NotificationSink port; publish failures are logged,
// never surfaced to the caller.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Notify publishes one event. Fire-and-forget: a sink must never block or
// fail the session operation that produced the event.
func (eb *EventBus) Notify(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(envelope{InstanceID: eb.instanceID, Event: event})
	if err != nil {
		eb.logger.Warnw("marshaling event", "type", event.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eb.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		eb.logger.Warnw("publishing event", "type", event.Type, "error", err)
		return
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"component", event.Component,
		"participant_id", event.ParticipantID,
	)
}

// Subscribe consumes events published by other instances until ctx ends.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(domain.Event)) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eventsChannel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				eb.logger.Warnw("unmarshaling event", "error", err, "payload", msg.Payload)
				continue
			}
			if env.InstanceID == eb.instanceID {
				continue
			}
			handler(env.Event)
		}
	}
}

func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

// Ping reports redis reachability for health checks.
func (eb *EventBus) Ping(ctx context.Context) error {
	return eb.client.Ping(ctx).Err()
}
