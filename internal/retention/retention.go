// Package retention prunes the append-only audit trail on a schedule. The
// archive and daily store are never pruned.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/eventlog"
)

// Job purges event log records older than the retention window, nightly at
// 03:30 in the reporting zone.
type Job struct {
	events        *eventlog.Logger
	retentionDays int
	cron          *cron.Cron
	logger        logging.Logger
}

// New creates the retention job. retentionDays below 1 defaults to 90.
func New(events *eventlog.Logger, retentionDays int, loc *time.Location, logger logging.Logger) *Job {
	if retentionDays < 1 {
		retentionDays = 90
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Job{
		events:        events,
		retentionDays: retentionDays,
		cron:          cron.New(cron.WithLocation(loc)),
		logger:        logger,
	}
}

// Start schedules the nightly purge.
func (j *Job) Start() error {
	_, err := j.cron.AddFunc("30 3 * * *", j.RunOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("Event log retention scheduled",
		logging.Int("retention_days", j.retentionDays))
	return nil
}

// Stop halts the schedule and waits for a running purge to finish.
func (j *Job) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// RunOnce purges immediately. Also called by the scheduler.
func (j *Job) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	purged, err := j.events.Purge(ctx, cutoff)
	if err != nil {
		j.logger.Error("Event log purge failed", err)
		return
	}
	if purged > 0 {
		j.logger.Info("Event log purged",
			logging.Int("records", int(purged)),
			logging.String("cutoff", cutoff.Format(time.RFC3339)))
	}
}
