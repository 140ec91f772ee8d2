package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/infra"
)

// Publisher writes messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...infra.Message) error
}

// StatusMessage is the broker representation of a published event.
type StatusMessage struct {
	EventID      int64            `json:"eventId"`
	PermissionID string           `json:"permissionId"`
	EventType    domain.EventType `json:"eventType"`
	Status       domain.Status    `json:"status"`
	EventCreated time.Time        `json:"eventCreated"`
	Payload      json.RawMessage  `json:"payload"`
}

// Relay drains the publication queue of the event log and publishes every
// non-internal event to the broker. Events leave the queue only after their
// batch is published, so delivery to the broker is at-least-once.
type Relay struct {
	queue     eventstore.Publications
	publisher Publisher
	topic     string
	logger    *slog.Logger
	metrics   *infra.Metrics
	interval  time.Duration
	batchSize int
}

// RelayConfig holds Relay tuning.
type RelayConfig struct {
	Topic     string
	Interval  time.Duration
	BatchSize int
}

// NewRelay creates a relay. metrics may be nil.
func NewRelay(queue eventstore.Publications, publisher Publisher, cfg RelayConfig, logger *slog.Logger, metrics *infra.Metrics) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		queue:     queue,
		publisher: publisher,
		topic:     cfg.Topic,
		logger:    logger,
		metrics:   metrics,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("event relay started", "interval", r.interval, "batch_size", r.batchSize, "topic", r.topic)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("event relay stopped")
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					r.logger.Error("event relay poll error", "error", err)
				}
			}
		}
	}()
}

// RunOnce publishes one batch and returns how many queued events it took
// off the queue, internal ones included. Zero means the queue was empty.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.queue.Unpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("read unpublished events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]infra.Message, 0, len(events))
	for _, stored := range events {
		if domain.IsInternal(stored.Event) {
			continue
		}
		msg, err := r.message(stored)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}

	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish %d events: %w", len(msgs), err)
	}

	ids := make([]int64, len(events))
	for i, stored := range events {
		ids[i] = stored.ID
	}
	if err := r.queue.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark %d events published: %w", len(ids), err)
	}

	for _, stored := range events {
		if !domain.IsInternal(stored.Event) {
			r.metrics.Relayed(string(stored.Event.EventType()), stored.ID)
		}
	}
	r.logger.Debug("event relay batch published", "published", len(msgs), "dequeued", len(events))
	return len(events), nil
}

func (r *Relay) message(stored domain.StoredEvent) (infra.Message, error) {
	ev := stored.Event
	payload, err := json.Marshal(ev)
	if err != nil {
		return infra.Message{}, fmt.Errorf("marshal event %d: %w", stored.ID, err)
	}
	value, err := json.Marshal(StatusMessage{
		EventID:      stored.ID,
		PermissionID: ev.PermissionID(),
		EventType:    ev.EventType(),
		Status:       ev.Status(),
		EventCreated: ev.EventCreated(),
		Payload:      payload,
	})
	if err != nil {
		return infra.Message{}, fmt.Errorf("marshal status message %d: %w", stored.ID, err)
	}
	return infra.Message{
		Topic: r.topic,
		Key:   []byte(ev.PermissionID()),
		Value: value,
		Headers: map[string]string{
			"event-id":   strconv.FormatInt(stored.ID, 10),
			"event-type": string(ev.EventType()),
		},
	}, nil
}
