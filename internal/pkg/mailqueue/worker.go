package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MayerS22/Taskify/internal/pkg/metrics"
	"github.com/MayerS22/Taskify/internal/pkg/notify"
)

// Worker drains the mail stream and delivers each job through the real
// notifier. Failed deliveries are re-enqueued up to maxRetry times, then
// parked on the dead-letter stream.
type Worker struct {
	queue      *queue
	mailer     notify.Mailer
	logger     *slog.Logger
	group      string
	consumerID string
	blockTime  time.Duration
	batchSize  int64
	idleClaim  time.Duration
	claimStart string
	dlqStream  string
	maxRetry   int
}

// WorkerOption tweaks worker behavior.
type WorkerOption func(*Worker)

// WithBlockTime sets how long a read blocks waiting for new jobs.
func WithBlockTime(d time.Duration) WorkerOption {
	return func(w *Worker) { w.blockTime = d }
}

// WithBatchSize sets how many jobs one read may return.
func WithBatchSize(n int64) WorkerOption {
	return func(w *Worker) { w.batchSize = n }
}

// WithMaxRetry sets how many delivery attempts a job gets before the DLQ.
func WithMaxRetry(n int) WorkerOption {
	return func(w *Worker) { w.maxRetry = n }
}

// NewWorker creates a worker and its consumer group.
func NewWorker(rdb *redis.Client, mailer notify.Mailer, logger *slog.Logger, stream, group, consumerID string, opts ...WorkerOption) (*Worker, error) {
	if group == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if consumerID == "" {
		consumerID = fmt.Sprintf("mailer-%d", time.Now().UnixNano())
	}

	q := newQueue(rdb, logger, stream)
	w := &Worker{
		queue:      q,
		mailer:     mailer,
		logger:     logger,
		group:      group,
		consumerID: consumerID,
		blockTime:  time.Second,
		batchSize:  10,
		idleClaim:  time.Minute,
		claimStart: "0-0",
		dlqStream:  q.stream + ":dlq",
		maxRetry:   3,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := q.createConsumerGroup(context.Background(), group); err != nil {
		return nil, err
	}

	logger.Info("mail worker ready",
		slog.String("stream", q.stream),
		slog.String("group", group),
		slog.String("consumer_id", consumerID))
	return w, nil
}

// Run blocks delivering mail until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("mail worker stopped")
			return
		default:
		}

		jobs, err := w.read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error("read mail queue failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, job := range jobs {
			w.deliver(ctx, job)
		}
	}
}

type job struct {
	id  string
	msg *Message
}

// read drains abandoned pending jobs first, then new ones.
func (w *Worker) read(ctx context.Context) ([]*job, error) {
	claimed, nextStart, err := w.queue.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   w.queue.stream,
		Group:    w.group,
		Consumer: w.consumerID,
		MinIdle:  w.idleClaim,
		Start:    w.claimStart,
		Count:    w.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim failed: %w", err)
	}
	if nextStart != "" {
		w.claimStart = nextStart
	}
	if len(claimed) > 0 {
		return w.parse(ctx, claimed)
	}

	streams, err := w.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    w.group,
		Consumer: w.consumerID,
		Streams:  []string{w.queue.stream, ">"},
		Count:    w.batchSize,
		Block:    w.blockTime,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup failed: %w", err)
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}
	return w.parse(ctx, messages)
}

func (w *Worker) parse(ctx context.Context, messages []redis.XMessage) ([]*job, error) {
	jobs := make([]*job, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok || data == "" {
			w.poison(ctx, msg.ID, fmt.Sprintf("%v", msg.Values["data"]), "invalid message format")
			continue
		}
		parsed, err := parseMessage(data)
		if err != nil {
			w.poison(ctx, msg.ID, data, err.Error())
			continue
		}
		jobs = append(jobs, &job{id: msg.ID, msg: parsed})
	}
	return jobs, nil
}

func (w *Worker) deliver(ctx context.Context, j *job) {
	var err error
	switch j.msg.Kind {
	case KindPasswordReset:
		err = w.mailer.SendPasswordReset(j.msg.To, j.msg.Token)
	case KindInvitation:
		err = w.mailer.SendInvitation(j.msg.To, j.msg.TaskTitle, j.msg.Role, j.msg.Token)
	default:
		w.poison(ctx, j.id, string(j.msg.Kind), "unknown message kind")
		return
	}

	if err != nil {
		w.logger.Warn("mail delivery failed",
			slog.String("kind", string(j.msg.Kind)),
			slog.String("to", j.msg.To),
			slog.Int("retry", j.msg.Retry),
			slog.String("error", err.Error()))
		w.fail(ctx, j, err)
		return
	}

	metrics.MailDeliveredTotal.Inc()
	if err := w.ack(ctx, j.id); err != nil {
		w.logger.Error("ack delivered mail failed",
			slog.String("msg_id", j.id),
			slog.String("error", err.Error()))
	}
}

// fail re-enqueues the job with an incremented retry counter, or parks it on
// the dead-letter stream once retries are exhausted. Either way the original
// entry is acked so it stops being redelivered.
func (w *Worker) fail(ctx context.Context, j *job, cause error) {
	j.msg.Retry++
	if j.msg.Retry > w.maxRetry {
		if err := w.deadLetter(ctx, j.id, j.msg, cause); err != nil {
			w.logger.Error("publish dead letter failed",
				slog.String("msg_id", j.id),
				slog.String("error", err.Error()))
			return
		}
		metrics.MailDLQTotal.Inc()
	} else {
		if err := w.queue.publish(ctx, j.msg); err != nil {
			w.logger.Error("requeue mail failed",
				slog.String("msg_id", j.id),
				slog.String("error", err.Error()))
			return
		}
		metrics.MailRetriedTotal.Inc()
	}

	if err := w.ack(ctx, j.id); err != nil {
		w.logger.Error("ack failed mail failed",
			slog.String("msg_id", j.id),
			slog.String("error", err.Error()))
	}
}

func (w *Worker) poison(ctx context.Context, msgID, payload, reason string) {
	w.logger.Warn("poison mail message",
		slog.String("msg_id", msgID),
		slog.String("reason", reason))
	if err := w.queue.publishRaw(ctx, w.dlqStream, map[string]interface{}{
		"original_id": msgID,
		"payload":     payload,
		"reason":      reason,
		"failed_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		w.logger.Error("publish dead letter failed", slog.String("error", err.Error()))
	}
	metrics.MailDLQTotal.Inc()
	if err := w.ack(ctx, msgID); err != nil {
		w.logger.Error("ack poison message failed", slog.String("error", err.Error()))
	}
}

func (w *Worker) deadLetter(ctx context.Context, msgID string, msg *Message, cause error) error {
	data := ""
	if raw, err := msg.marshal(); err == nil {
		data = raw
	}
	return w.queue.publishRaw(ctx, w.dlqStream, map[string]interface{}{
		"original_id": msgID,
		"payload":     data,
		"reason":      cause.Error(),
		"failed_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (w *Worker) ack(ctx context.Context, msgID string) error {
	if err := w.queue.rdb.XAck(ctx, w.queue.stream, w.group, msgID).Err(); err != nil {
		return fmt.Errorf("xack failed: %w", err)
	}
	return nil
}

// Pending reports the consumer group's unacked job count.
func (w *Worker) Pending(ctx context.Context) (int64, error) {
	info, err := w.queue.rdb.XPending(ctx, w.queue.stream, w.group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending failed: %w", err)
	}
	return info.Count, nil
}
