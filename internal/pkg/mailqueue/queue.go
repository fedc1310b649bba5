// Package mailqueue moves outbound mail through a redis stream so SMTP
// latency and outages stay off the request path. The API process enqueues;
// a worker drains the stream and hands each job to the SMTP notifier.
package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "taskify:mail:queue"

// queue wraps the stream-level redis operations shared by producer and
// worker.
type queue struct {
	rdb    *redis.Client
	logger *slog.Logger
	stream string
}

func newQueue(rdb *redis.Client, logger *slog.Logger, stream string) *queue {
	if stream == "" {
		stream = DefaultStream
	}
	return &queue{
		rdb:    rdb,
		logger: logger,
		stream: stream,
	}
}

func (q *queue) publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.publishRaw(ctx, q.stream, map[string]interface{}{
		"data": string(data),
	})
}

func (q *queue) publishRaw(ctx context.Context, stream string, values map[string]interface{}) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: 100000,
		Approx: true,
		Values: values,
	}
	msgID, err := q.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}

	q.logger.Debug("mail message published",
		slog.String("stream", stream),
		slog.String("msg_id", msgID))
	return nil
}

func (q *queue) createConsumerGroup(ctx context.Context, group string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (q *queue) length(ctx context.Context) (int64, error) {
	length, err := q.rdb.XLen(ctx, q.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen failed: %w", err)
	}
	return length, nil
}

func parseMessage(data string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}
