package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/logger"
)

const (
	DefaultStream      = "quiz:completions"
	DefaultGroup       = "gamification"
	defaultStreamMax   = 10000
	defaultReadCount   = 100
	defaultBlock       = 2 * time.Second
	defaultClaimIdle   = 30 * time.Second
	payloadField       = "data"
	busyGroupErrPrefix = "BUSYGROUP"
)

// EventPublisher appends quiz completion events to a Redis stream.
type EventPublisher struct {
	client *redis.Client
	stream string
}

func NewEventPublisher(client *redis.Client, stream string) *EventPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &EventPublisher{client: client, stream: stream}
}

// PublishQuizCompletion validates evt and appends it, returning the entry ID.
func (p *EventPublisher) PublishQuizCompletion(ctx context.Context, evt domain.QuizCompletionEvent) (string, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{payloadField: string(payload)},
		MaxLen: defaultStreamMax,
		Approx: true,
	}).Result()
	if err != nil {
		return "", domain.Transient("publish quiz completion", err)
	}
	return id, nil
}

// CompletionHandler applies one quiz completion event.
type CompletionHandler func(ctx context.Context, evt domain.QuizCompletionEvent) error

// Disposition says what the consumer did with a message.
type Disposition int

const (
	Acked Disposition = iota
	Dropped
	Pending
)

// EventConsumer reads completions through a consumer group, so each event
// is handled by one worker. Transient failures stay pending and are
// reclaimed after claimIdle; anything else is acked.
type EventConsumer struct {
	client    *redis.Client
	stream    string
	group     string
	consumer  string
	handle    CompletionHandler
	log       *logger.Logger
	block     time.Duration
	claimIdle time.Duration
}

// ConsumerOption customizes an EventConsumer.
type ConsumerOption func(*EventConsumer)

// WithBlock sets how long a read waits for new entries.
func WithBlock(d time.Duration) ConsumerOption {
	return func(c *EventConsumer) { c.block = d }
}

// WithClaimIdle sets how long an entry must sit unacked before reclaim.
func WithClaimIdle(d time.Duration) ConsumerOption {
	return func(c *EventConsumer) { c.claimIdle = d }
}

// WithConsumerName overrides the host-pid consumer name.
func WithConsumerName(name string) ConsumerOption {
	return func(c *EventConsumer) { c.consumer = name }
}

func NewEventConsumer(client *redis.Client, stream, group string, handle CompletionHandler, log *logger.Logger, opts ...ConsumerOption) *EventConsumer {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	if log == nil {
		log = logger.Nop()
	}
	hostname, _ := os.Hostname()
	c := &EventConsumer{
		client:    client,
		stream:    stream,
		group:     group,
		consumer:  fmt.Sprintf("consumer-%s-%d", hostname, os.Getpid()),
		handle:    handle,
		log:       log,
		block:     defaultBlock,
		claimIdle: defaultClaimIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureGroup creates the stream and consumer group if missing.
func (c *EventConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), busyGroupErrPrefix) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled.
func (c *EventConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.log.Info("event consumer started", "stream", c.stream, "group", c.group, "consumer", c.consumer)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("stream read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if _, err := c.Reclaim(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("reclaim pending failed", "error", err)
		}
	}
}

// Poll reads one batch of new entries and handles them. It returns how many
// entries were read.
func (c *EventConsumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    defaultReadCount,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			n++
			c.process(ctx, msg)
		}
	}
	return n, nil
}

// Reclaim takes over entries left pending longer than claimIdle by any
// consumer in the group and handles them again.
func (c *EventConsumer) Reclaim(ctx context.Context) (int, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  defaultReadCount,
	}).Result()
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= c.claimIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, msg := range claimed {
		c.process(ctx, msg)
	}
	return len(claimed), nil
}

func (c *EventConsumer) process(ctx context.Context, msg redis.XMessage) Disposition {
	disp := c.dispatch(ctx, msg)
	if disp == Pending {
		return disp
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.log.Warn("ack failed", "id", msg.ID, "error", err)
	}
	return disp
}

func (c *EventConsumer) dispatch(ctx context.Context, msg redis.XMessage) Disposition {
	evt, err := decodeEvent(msg)
	if err != nil {
		c.log.Error("dropping malformed event", "id", msg.ID, "error", err)
		return Dropped
	}

	err = c.handle(ctx, evt)
	var partial *app.PartialFailureError
	switch {
	case err == nil:
		return Acked
	case errors.As(err, &partial):
		// Counters are committed; a redelivery would double count.
		c.log.Error("event partially applied", "id", msg.ID, "userId", evt.UserID, "error", err)
		return Acked
	case domain.IsTransient(err):
		c.log.Warn("event left pending", "id", msg.ID, "userId", evt.UserID, "error", err)
		return Pending
	case domain.IsValidation(err), errors.Is(err, domain.ErrUserNotFound):
		c.log.Warn("dropping rejected event", "id", msg.ID, "userId", evt.UserID, "error", err)
		return Dropped
	default:
		c.log.Error("event handled with errors", "id", msg.ID, "userId", evt.UserID, "error", err)
		return Acked
	}
}

func decodeEvent(msg redis.XMessage) (domain.QuizCompletionEvent, error) {
	var evt domain.QuizCompletionEvent
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return evt, fmt.Errorf("missing %q field", payloadField)
	}
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		return evt, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}
