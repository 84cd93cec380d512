package cmd

import (
	"github.com/hive-micro/watcher/src/utils/logger"
	"github.com/hive-micro/watcher/src/watcher"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll Hive nodes for new blocks and save hive.micro operations to the database",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("watch-cmd")

		if !conf.Watcher.Enabled {
			log.Warn("Watcher is disabled in the configuration, exiting")
			return
		}

		controller, err := watcher.NewController(applicationCtx, conf)
		if err != nil {
			return
		}

		err = controller.Start()
		if err != nil {
			return
		}

		select {
		case <-controller.CtxRunning.Done():
		case <-applicationCtx.Done():
		}

		controller.StopWait()

		return
	},
	PostRunE: func(cmd *cobra.Command, args []string) (err error) {
		log := logger.NewSublogger("root-cmd")
		log.Debug("Finished watch command")
		return
	},
}
