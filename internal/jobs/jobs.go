// Package jobs runs the marketplace's scheduled maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// OfferSweeper cancels pending offers older than maxAge.
type OfferSweeper interface {
	SweepExpiredOffers(ctx context.Context, maxAge time.Duration) (int, error)
}

// Jobs holds the scheduled tasks.
type Jobs struct {
	sweeper     OfferSweeper
	offerExpiry time.Duration
	timeout     time.Duration
}

// NewJobs returns the job set.
func NewJobs(sweeper OfferSweeper, offerExpiry time.Duration) *Jobs {
	return &Jobs{sweeper: sweeper, offerExpiry: offerExpiry, timeout: 2 * time.Minute}
}

// ExpireOffers cancels stale pending offers and releases their listings.
func (j *Jobs) ExpireOffers() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	n, err := j.sweeper.SweepExpiredOffers(ctx, j.offerExpiry)
	logger := log.WithFields(log.Fields{
		"job":       "expire_offers",
		"cancelled": n,
		"duration":  time.Since(start).String(),
	})
	if err != nil {
		logger.WithError(err).Error("Offer expiry sweep failed")
		return
	}
	if n > 0 {
		logger.Info("Expired stale offers")
		return
	}
	logger.Debug("No stale offers")
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
}

// NewScheduler creates a scheduler whose jobs recover from panics and never
// overlap with themselves.
func NewScheduler(jobs *Jobs) *Scheduler {
	cronLogger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	return &Scheduler{cron: c, jobs: jobs}
}

// Start registers the offer sweep on schedule and starts the scheduler.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.jobs.ExpireOffers); err != nil {
		return fmt.Errorf("failed to schedule offer expiry job %q: %w", schedule, err)
	}
	log.WithField("schedule", schedule).Info("Scheduled offer expiry job")
	s.cron.Start()
	return nil
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
