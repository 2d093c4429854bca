package investigator

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the periodic_review (6h) and daily_digest (24h)
// scheduled investigation variants, mirroring pkg/baseline.Tracker's
// ticker-loop Start/Stop shape.
type Scheduler struct {
	inv    *Investigator
	tenant string

	reviewInterval time.Duration
	digestInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler for tenant. Zero intervals default to
// the spec.md §4.7 values.
func NewScheduler(inv *Investigator, tenant string, reviewInterval, digestInterval time.Duration) *Scheduler {
	if reviewInterval <= 0 {
		reviewInterval = PeriodicReviewInterval
	}
	if digestInterval <= 0 {
		digestInterval = DailyDigestInterval
	}
	return &Scheduler{inv: inv, tenant: tenant, reviewInterval: reviewInterval, digestInterval: digestInterval}
}

// Start launches the two ticker loops. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("investigation scheduler started", "review_interval", s.reviewInterval, "digest_interval", s.digestInterval)
}

// Stop cancels the loops and waits for exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	reviewTicker := time.NewTicker(s.reviewInterval)
	defer reviewTicker.Stop()
	digestTicker := time.NewTicker(s.digestInterval)
	defer digestTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reviewTicker.C:
			s.inv.RunScheduled(ctx, s.tenant, NewInvestigationID(), PeriodicReviewPrompt())
		case <-digestTicker.C:
			s.inv.RunScheduled(ctx, s.tenant, NewInvestigationID(), DailyDigestPrompt())
		}
	}
}
