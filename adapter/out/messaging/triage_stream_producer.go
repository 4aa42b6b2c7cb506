// Package messaging provides the Redis Streams transport for ingest jobs.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// Stream names
const (
	StreamIngest = "triage:ingest"

	// ConsumerGroup is shared by every worker process.
	ConsumerGroup = "triage-workers"

	dataField = "data"
	dlqPrefix = "dlq:"
)

// DeadLetterStream returns the DLQ stream for stream.
func DeadLetterStream(stream string) string {
	return dlqPrefix + stream
}

// RedisProducer implements out.IngestQueue using Redis Streams.
type RedisProducer struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

var _ out.IngestQueue = (*RedisProducer)(nil)

// NewRedisProducer creates a producer for the ingest stream. maxLen caps the
// stream approximately; zero leaves it unbounded.
func NewRedisProducer(client redis.UniversalClient, maxLen int64) *RedisProducer {
	return &RedisProducer{client: client, stream: StreamIngest, maxLen: maxLen}
}

// Enqueue publishes one inbound message.
func (p *RedisProducer) Enqueue(ctx context.Context, in *domain.InboundMessage) error {
	return p.publish(ctx, p.stream, in)
}

// publish publishes a job to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{
			dataField: string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}
