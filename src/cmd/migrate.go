package cmd

import (
	"github.com/hive-micro/watcher/src/utils/model"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		db, err := model.NewConnection(applicationCtx, conf, "migrate")
		if err != nil {
			return
		}

		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		return sqlDB.Close()
	},
}
