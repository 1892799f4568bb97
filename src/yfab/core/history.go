package core

import (
	"strconv"
	"time"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past builds, flashes and deploys",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("kind", "", "Only show one kind: build, flash or deploy")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of entries")
	_ = historyCmd.RegisterFlagCompletionFunc("kind", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"build", "flash", "deploy"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Shutdown()

	ops, err := db.NewOperationRepository(database).List(db.OperationFilter{Kind: kind, Limit: limit})
	if err != nil {
		return errors.ErrDatabaseQuery.WithCause(err)
	}
	if ops == nil {
		ops = []db.OperationRecord{}
	}

	return output.Print(outputFormat, ops, func() {
		if len(ops) == 0 {
			output.PrintMessage("No operations recorded")
			return
		}
		rows := make([][]string, 0, len(ops))
		for _, op := range ops {
			duration := "-"
			if op.FinishedAt != nil {
				duration = op.Duration().Round(time.Second).String()
			}
			status := op.Status
			if op.ExitCode != 0 {
				status += " (" + strconv.Itoa(op.ExitCode) + ")"
			}
			rows = append(rows, []string{
				op.StartedAt.Local().Format("2006-01-02 15:04"),
				op.Kind,
				op.Target,
				status,
				duration,
			})
		}
		output.PrintTable([]string{"STARTED", "KIND", "TARGET", "STATUS", "DURATION"}, rows)
	})
}
