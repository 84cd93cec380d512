package cmd

import (
	"encoding/json"
	"os"

	"github.com/hive-micro/watcher/src/utils/hive"
	"github.com/hive-micro/watcher/src/utils/model"
	"github.com/hive-micro/watcher/src/watcher"

	"github.com/spf13/cobra"
)

var statusWithHead bool

func init() {
	statusCmd.Flags().BoolVar(&statusWithHead, "head", false, "ask Hive nodes for the current head")
	RootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the ingestion status as JSON",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		db, err := model.Connect(applicationCtx, &conf.Database, conf.Database.User, conf.Database.Password, "status")
		if err != nil {
			return
		}

		status := watcher.NewStatusProvider(conf).WithDB(db)
		if statusWithHead {
			status = status.WithClient(hive.NewClient(conf))
		}

		snapshot, err := status.Snapshot(applicationCtx)
		if err != nil {
			return
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snapshot)
	},
}
