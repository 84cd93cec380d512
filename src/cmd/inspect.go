package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hive-micro/watcher/src/utils/hive"
	"github.com/hive-micro/watcher/src/watcher"

	"github.com/spf13/cobra"
)

var (
	inspectHeight int64
	inspectAll    bool
)

func init() {
	inspectCmd.Flags().Int64Var(&inspectHeight, "height", 0, "block number")
	inspectCmd.Flags().BoolVar(&inspectAll, "all", false, "print all operations, not only decoded actions")
	RootCmd.AddCommand(inspectCmd)
}

type inspectedOperation struct {
	TrxId   string          `json:"trx_id"`
	OpIndex int             `json:"op_index"`
	Type    string          `json:"type"`
	Kind    string          `json:"kind,omitempty"`
	Action  watcher.Action  `json:"action,omitempty"`
	Error   string          `json:"error,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Fetch one block and print the operations the watcher would ingest",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if inspectHeight <= 0 {
			return errors.New("--height is required")
		}

		block, err := hive.NewClient(conf).FetchBlock(applicationCtx, inspectHeight)
		if err != nil {
			return
		}

		extractor := watcher.NewExtractor(conf)

		out := make([]*inspectedOperation, 0)
		for txIdx, tx := range block.Transactions {
			for opIdx, op := range tx.Operations {
				action, err := extractor.Decode(block, txIdx, opIdx)
				if action == nil && err == nil && !inspectAll {
					continue
				}

				inspected := &inspectedOperation{
					TrxId:   tx.TransactionId,
					OpIndex: opIdx,
					Type:    op.Type,
				}
				switch {
				case err != nil:
					inspected.Error = err.Error()
					inspected.Value = op.Value
				case action != nil:
					inspected.Kind = string(action.Kind())
					inspected.Action = action
				default:
					inspected.Value = op.Value
				}
				out = append(out, inspected)
			}
		}

		fmt.Fprintf(os.Stderr, "Block %d (%s), %d transactions\n", block.Height, block.Timestamp.Format(hive.TimestampFormat), len(block.Transactions))

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	},
}
