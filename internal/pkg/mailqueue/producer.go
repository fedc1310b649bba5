package mailqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MayerS22/Taskify/internal/pkg/metrics"
)

// Producer enqueues outbound mail instead of talking to SMTP directly. It
// satisfies notify.Mailer, so handlers and the task service do not know
// whether mail goes out synchronously or through the queue.
type Producer struct {
	queue  *queue
	logger *slog.Logger
}

// NewProducer creates a mail producer on the given stream.
func NewProducer(rdb *redis.Client, logger *slog.Logger, stream string) *Producer {
	return &Producer{
		queue:  newQueue(rdb, logger, stream),
		logger: logger,
	}
}

// SendPasswordReset enqueues a password-reset mail.
func (p *Producer) SendPasswordReset(toEmail, token string) error {
	return p.enqueue(NewPasswordResetMessage(toEmail, token))
}

// SendInvitation enqueues an invitation mail.
func (p *Producer) SendInvitation(toEmail, taskTitle, role, token string) error {
	return p.enqueue(NewInvitationMessage(toEmail, taskTitle, role, token))
}

func (p *Producer) enqueue(msg *Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.queue.publish(ctx, msg); err != nil {
		p.logger.Error("enqueue mail failed",
			slog.String("kind", string(msg.Kind)),
			slog.String("to", msg.To),
			slog.String("error", err.Error()))
		return err
	}

	metrics.MailQueuedTotal.Inc()
	p.logger.Debug("mail enqueued",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", msg.To))
	return nil
}

// QueueLength reports how many jobs sit in the stream.
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.length(ctx)
}
