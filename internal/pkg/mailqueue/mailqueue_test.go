package mailqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingMailer struct {
	mu       sync.Mutex
	resets   []string
	invites  []string
	failWith error
}

func (m *recordingMailer) SendPasswordReset(toEmail, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.resets = append(m.resets, toEmail+":"+token)
	return nil
}

func (m *recordingMailer) SendInvitation(toEmail, taskTitle, role, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.invites = append(m.invites, toEmail+":"+taskTitle+":"+role)
	return nil
}

func (m *recordingMailer) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resets), len(m.invites)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProducer_EnqueuesJobs(t *testing.T) {
	_, rdb := newTestRedis(t)
	p := NewProducer(rdb, discardLogger(), "test:mail")

	if err := p.SendPasswordReset("alice@example.com", "tok-1"); err != nil {
		t.Fatalf("enqueue reset: %v", err)
	}
	if err := p.SendInvitation("bob@example.com", "project", "editor", "tok-2"); err != nil {
		t.Fatalf("enqueue invitation: %v", err)
	}

	n, err := p.QueueLength(context.Background())
	if err != nil {
		t.Fatalf("queue length: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", n)
	}
}

func TestWorker_DeliversAndAcks(t *testing.T) {
	_, rdb := newTestRedis(t)
	p := NewProducer(rdb, discardLogger(), "test:mail")
	mailer := &recordingMailer{}

	w, err := NewWorker(rdb, mailer, discardLogger(), "test:mail", "test-group", "w1",
		WithBlockTime(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := p.SendPasswordReset("alice@example.com", "tok-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := p.SendInvitation("bob@example.com", "project", "editor", "tok-2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		resets, invites := mailer.counts()
		if resets == 1 && invites == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("jobs not delivered: resets=%d invites=%d", resets, invites)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Everything acked.
	waitFor(t, func() bool {
		pending, err := w.Pending(context.Background())
		return err == nil && pending == 0
	}, "pending count did not drain")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop on cancel")
	}
}

func TestWorker_ExhaustedRetriesGoToDeadLetter(t *testing.T) {
	_, rdb := newTestRedis(t)
	p := NewProducer(rdb, discardLogger(), "test:mail")
	mailer := &recordingMailer{failWith: errors.New("smtp down")}

	w, err := NewWorker(rdb, mailer, discardLogger(), "test:mail", "test-group", "w1",
		WithBlockTime(10*time.Millisecond), WithMaxRetry(1))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := p.SendPasswordReset("alice@example.com", "tok-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// One original attempt plus one retry, then the DLQ.
	waitFor(t, func() bool {
		n, err := rdb.XLen(context.Background(), "test:mail:dlq").Result()
		return err == nil && n == 1
	}, "job never reached the dead-letter stream")
}

func TestWorker_PoisonMessageParked(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &recordingMailer{}

	w, err := NewWorker(rdb, mailer, discardLogger(), "test:mail", "test-group", "w1",
		WithBlockTime(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	// Garbage straight onto the stream, bypassing the producer.
	if err := rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "test:mail",
		Values: map[string]interface{}{"data": "{not json"},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, func() bool {
		n, err := rdb.XLen(context.Background(), "test:mail:dlq").Result()
		return err == nil && n == 1
	}, "poison message never parked")

	if resets, invites := mailer.counts(); resets != 0 || invites != 0 {
		t.Fatalf("no mail may be sent for poison messages")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
