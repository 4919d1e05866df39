// Package scheduler runs the three periodic maintenance jobs named in §4.5:
// offer expiry, location history cleanup, and idempotency record cleanup.
// Execution is gated on leadership so a multi-instance deployment runs each
// tick at most once, mirroring the teacher's ticker-per-job scheduler loop.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/coordination"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
)

// OfferExpirer is the subset of the Job Offer Service the scheduler drives.
type OfferExpirer interface {
	ExpireOffers(ctx context.Context) (int64, error)
}

// LocationHistoryCleaner is the subset of the Location Service the
// scheduler drives.
type LocationHistoryCleaner interface {
	CleanupOldHistory(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyPurger purges expired idempotency records from the Durable
// Store directly, since the Idempotency Layer has no standing reference to
// the Durable Store's purge method beyond what callers supply.
type IdempotencyPurger interface {
	PurgeExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)
}

// Job is one named, independently scheduled unit of work. FirstDelay, when
// nonzero, overrides Interval for the job's first fire only — used to pin a
// job to a fixed wall-clock time (e.g. "daily at 02:00") instead of
// whatever moment the process happened to start at.
type Job struct {
	Name       string
	Interval   time.Duration
	FirstDelay time.Duration
	Run        func(ctx context.Context) error
}

// Scheduler ticks each Job on its own interval, skipping a tick entirely
// when this instance does not currently hold leadership.
type Scheduler struct {
	elector *coordination.LeaderElector
	jobs    []Job
}

func New(elector *coordination.LeaderElector) *Scheduler {
	return &Scheduler{elector: elector}
}

// NewDefault wires the three standing jobs at the cadences named in §4.5:
// expire-offers every 10s, location-history cleanup daily, idempotency
// cleanup hourly.
func NewDefault(elector *coordination.LeaderElector, offers OfferExpirer, locations LocationHistoryCleaner, idem IdempotencyPurger, locationRetention time.Duration) *Scheduler {
	s := New(elector)
	s.jobs = []Job{
		{
			Name:     "expire_offers",
			Interval: 10 * time.Second,
			Run: func(ctx context.Context) error {
				_, err := offers.ExpireOffers(ctx)
				return err
			},
		},
		{
			Name:       "cleanup_location_history",
			Interval:   24 * time.Hour,
			FirstDelay: delayUntilNextUTCHour(time.Now().UTC(), 2),
			Run: func(ctx context.Context) error {
				_, err := locations.CleanupOldHistory(ctx, locationRetention)
				return err
			},
		},
		{
			Name:     "cleanup_idempotency_records",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				_, err := idem.PurgeExpiredIdempotencyRecords(ctx, time.Now().UTC())
				return err
			},
		},
	}
	return s
}

// Run starts one goroutine per job and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.jobs))
	for _, j := range s.jobs {
		go s.runJob(ctx, j, done)
	}
	for range s.jobs {
		<-done
	}
}

func (s *Scheduler) runJob(ctx context.Context, j Job, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	delay := j.Interval
	if j.FirstDelay > 0 {
		delay = j.FirstDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx, j)
			timer.Reset(j.Interval)
		}
	}
}

// delayUntilNextUTCHour returns the delay from now until the next occurrence
// of the given hour (0-23) in UTC, used to pin a daily job's first fire to a
// fixed wall-clock time rather than whatever moment the process started at.
func delayUntilNextUTCHour(now time.Time, hour int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (s *Scheduler) tick(ctx context.Context, j Job) {
	if s.elector != nil && !s.elector.IsLeader() {
		return
	}
	start := time.Now()
	err := j.Run(ctx)
	observability.SchedulerJobDuration.WithLabelValues(j.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.SchedulerJobFailures.WithLabelValues(j.Name).Inc()
		log.Printf("scheduler: job %s failed: %v", j.Name, err)
	}
}
