// Package sweeper runs the periodic invitation-expiry pass.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/MayerS22/Taskify/internal/pkg/metrics"
)

// InvitationExpirer is the slice of the task service the sweeper needs.
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper flips stale pending invitations to expired on a fixed cadence.
type Sweeper struct {
	svc      InvitationExpirer
	logger   *slog.Logger
	interval time.Duration
}

// New creates a sweeper; interval defaults to one hour when unset.
func New(svc InvitationExpirer, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		svc:      svc,
		logger:   logger,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("invitation sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.svc.ExpireInvitations(ctx, time.Now())
	if err != nil {
		s.logger.Error("invitation sweep failed", slog.String("error", err.Error()))
		return
	}
	if expired > 0 {
		metrics.InvitationsExpiredTotal.Add(float64(expired))
		s.logger.Info("invitations expired", slog.Int64("count", expired))
	}
}
