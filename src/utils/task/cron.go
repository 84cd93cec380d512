package task

import (
	"github.com/robfig/cron"
)

// Runs f according to a cron spec (e.g. "@every 10m") until the task is stopped.
// Runs never overlap.
func (self *Task) WithCronSubtaskFunc(spec string, f func() error) *Task {
	scheduler := cron.New()
	busy := make(chan struct{}, 1)

	self.onBeforeStart = append(self.onBeforeStart, func() error {
		return scheduler.AddFunc(spec, func() {
			select {
			case busy <- struct{}{}:
			default:
				self.Log.Warn("Previous run still in progress, skipping")
				return
			}
			defer func() { <-busy }()

			err := f()
			if err != nil {
				self.Log.WithError(err).Error("Scheduled run failed")
			}
		})
	})

	return self.WithSubtaskFunc(func() error {
		scheduler.Start()
		<-self.StopChannel
		scheduler.Stop()

		// Wait for the run in progress
		busy <- struct{}{}
		return nil
	})
}
