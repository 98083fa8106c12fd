package tracker

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Janitor drives Tracker.Sweep on a fixed background schedule. cron's
// seconds-resolution parser is a natural fit for a sub-minute fixed
// tick that a plain crontab expression can't express.
type Janitor struct {
	cron    *cron.Cron
	tracker *Tracker
	logger  *logrus.Logger
}

// NewJanitor builds a Janitor that sweeps t on the schedule later
// passed to Start.
func NewJanitor(t *Tracker, logger *logrus.Logger) *Janitor {
	c := cron.New(cron.WithSeconds())
	return &Janitor{cron: c, tracker: t, logger: logger}
}

// Start schedules the sweep at the given interval and begins running
// it in the background. Call Stop to halt it.
func (j *Janitor) Start(spec string) error {
	_, err := j.cron.AddFunc(spec, func() {
		j.tracker.Sweep()
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	if j.logger != nil {
		j.logger.WithField("schedule", spec).Info("tracker janitor started")
	}
	return nil
}

// Stop halts the janitor and waits for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// DefaultSchedule is cron's "every 5 seconds" expression (seconds-field
// parser enabled via cron.WithSeconds).
const DefaultSchedule = "*/5 * * * * *"
