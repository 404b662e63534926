// Package jobs runs the in-process settlement schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/fieldbook/ppv-settlement/internal/services"
)

// Sweeper is the part of the scheduler service the cron job drives.
type Sweeper interface {
	RunSweep(ctx context.Context) (*services.SweepResult, error)
}

// Scheduler runs the settlement sweep on a cron spec. Overlapping ticks are
// skipped while a sweep is still running.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	spec    string
	timeout time.Duration
}

func NewScheduler(sweeper Sweeper, spec string, timeout time.Duration) *Scheduler {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		spec:    spec,
		timeout: timeout,
	}
}

// Start registers the sweep and starts the cron loop. Jobs stop receiving new
// ticks once ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid settlement cron spec %q: %w", s.spec, err)
	}

	s.cron.Start()
	log.WithField("spec", s.spec).Info("Settlement scheduler started")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Info("[CRON] Settlement sweep")
	result, err := s.sweeper.RunSweep(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Settlement sweep failed")
		return
	}
	entry := log.WithFields(log.Fields{
		"processed":          result.ProcessedPools,
		"distributed_best":   result.DistributedBest,
		"distributed_others": result.DistributedOthers,
		"repaired":           result.RepairedPools,
	})
	if sweepErr := result.Err(); sweepErr != nil {
		entry.WithError(sweepErr).Warn("[CRON] Settlement sweep finished with failures")
		return
	}
	entry.Info("[CRON] Settlement sweep finished")
}

// Stop waits for a running sweep to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Settlement scheduler stopped")
}

// cronLogger routes robfig/cron's logging through logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).Debug("[CRON] " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithError(err).WithFields(fields(keysAndValues)).Error("[CRON] " + msg)
}

func fields(keysAndValues []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
