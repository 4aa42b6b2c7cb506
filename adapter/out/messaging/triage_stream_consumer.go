package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Delivery is one stream entry handed to a JobHandler.
type Delivery struct {
	Stream string
	ID     string
	Data   []byte
	// Redelivered is set when the entry was claimed from the pending list.
	Redelivered bool
}

// JobHandler processes jobs from streams. A nil error acknowledges the entry.
type JobHandler interface {
	Handle(ctx context.Context, d *Delivery) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, d *Delivery) error

func (f JobHandlerFunc) Handle(ctx context.Context, d *Delivery) error {
	return f(ctx, d)
}

// Consumer consumes messages from Redis Streams.
type Consumer struct {
	client   redis.UniversalClient
	group    string
	consumer string
	streams  []string
	handler  JobHandler
	log      zerolog.Logger

	batchSize int64
	block     time.Duration

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	BatchSize int
	Block     time.Duration

	// Optional; zero values use defaults.
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// NewConsumer creates a new Consumer.
func NewConsumer(client redis.UniversalClient, cfg *ConsumerConfig) *Consumer {
	group := cfg.Group
	if group == "" {
		group = ConsumerGroup
	}
	streams := cfg.Streams
	if len(streams) == 0 {
		streams = []string{StreamIngest}
	}

	batchSize := int64(cfg.BatchSize)
	if batchSize <= 0 {
		batchSize = 10
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}

	pendingCheckInterval := cfg.PendingCheckInterval
	if pendingCheckInterval == 0 {
		pendingCheckInterval = 30 * time.Second
	}
	pendingIdleTime := cfg.PendingIdleTime
	if pendingIdleTime == 0 {
		pendingIdleTime = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Consumer{
		client:               client,
		group:                group,
		consumer:             cfg.Consumer,
		streams:              streams,
		handler:              cfg.Handler,
		log:                  cfg.Logger.With().Str("component", "stream_consumer").Logger(),
		batchSize:            batchSize,
		block:                block,
		pendingCheckInterval: pendingCheckInterval,
		pendingIdleTime:      pendingIdleTime,
		maxRetries:           maxRetries,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Strs("streams", c.streams).
		Msg("starting consumer")

	for _, stream := range c.streams {
		c.createConsumerGroup(ctx, stream)
	}

	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.handle(ctx, stream.Stream, msg, false)
			}
		}
	}
}

// handle processes one entry and acknowledges it on success. Failed entries
// stay pending and are claimed again by the pending processor.
func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage, redelivered bool) bool {
	if err := c.processMessage(ctx, stream, msg, redelivered); err != nil {
		c.log.Error().
			Err(err).
			Str("stream", stream).
			Str("id", msg.ID).
			Bool("redelivered", redelivered).
			Msg("error processing message")
		return false
	}

	if err := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); err != nil {
		c.log.Error().
			Err(err).
			Str("stream", stream).
			Str("id", msg.ID).
			Msg("error acknowledging message")
		return false
	}
	return true
}

func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	c.log.Info().
		Dur("check_interval", c.pendingCheckInterval).
		Dur("idle_time", c.pendingIdleTime).
		Int("max_retries", c.maxRetries).
		Msg("starting pending message processor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

// claimAndProcessPending claims stuck entries and reprocesses them; entries
// delivered maxRetries times go to the dead-letter stream.
func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	for _, stream := range c.streams {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  c.group,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
			}
			continue
		}

		for _, p := range pending {
			if p.Idle < c.pendingIdleTime {
				continue
			}

			if int(p.RetryCount) >= c.maxRetries {
				c.log.Warn().
					Str("stream", stream).
					Str("id", p.ID).
					Int64("retries", p.RetryCount).
					Msg("message exceeded max retries, moving to DLQ")

				if err := c.moveToDeadLetterQueue(ctx, stream, p.ID); err != nil {
					c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
					continue
				}
				c.client.XAck(ctx, stream, c.group, p.ID)
				continue
			}

			claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    c.group,
				Consumer: c.consumer,
				MinIdle:  c.pendingIdleTime,
				Messages: []string{p.ID},
			}).Result()
			if err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
				continue
			}

			for _, msg := range claimed {
				if c.handle(ctx, stream, msg, true) {
					c.log.Info().Str("stream", stream).Str("id", msg.ID).Msg("reprocessed pending message")
				}
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		c.log.Warn().Err(err).Str("stream", stream).Msg("error creating consumer group")
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	if len(c.streams) == 0 {
		return nil, nil
	}

	args := make([]string, len(c.streams)*2)
	for i, stream := range c.streams {
		args[i] = stream
		args[len(c.streams)+i] = ">"
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  args,
		Count:    c.batchSize,
		Block:    c.block,
	}).Result()
}

func (c *Consumer) processMessage(ctx context.Context, stream string, msg redis.XMessage, redelivered bool) error {
	data, err := payload(msg)
	if err != nil {
		return err
	}
	return c.handler.Handle(ctx, &Delivery{
		Stream:      stream,
		ID:          msg.ID,
		Data:        data,
		Redelivered: redelivered,
	})
}

func payload(msg redis.XMessage) ([]byte, error) {
	data, ok := msg.Values[dataField]
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing %s field", dataField)
	}
	s, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: %s is not a string", dataField)
	}
	return []byte(s), nil
}

// moveToDeadLetterQueue copies an entry to dlq:<stream> with failure metadata.
func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, stream string, msgID string) error {
	messages, err := c.client.XRange(ctx, stream, msgID, msgID).Result()
	if err != nil {
		return fmt.Errorf("failed to read message for DLQ: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("message %s not found in stream %s", msgID, stream)
	}

	dlqStream := DeadLetterStream(stream)
	_, err = c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: deadLetterValues(stream, messages[0], c.consumer, c.group, time.Now()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add message to DLQ: %w", err)
	}

	c.log.Info().
		Str("dlq_stream", dlqStream).
		Str("original_stream", stream).
		Str("original_id", msgID).
		Msg("message moved to DLQ")
	return nil
}

func deadLetterValues(stream string, msg redis.XMessage, consumer, group string, at time.Time) map[string]any {
	values := map[string]any{
		"original_stream": stream,
		"original_id":     msg.ID,
		"failed_at":       at.UTC().Format(time.RFC3339),
		"consumer":        consumer,
		"group":           group,
	}
	for k, v := range msg.Values {
		values["original_"+k] = v
	}
	return values
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
