package core

import (
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/workspace"
	"github.com/spf13/cobra"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Show the layers the selected machine requires",
	Args:  cobra.NoArgs,
	RunE:  runLayers,
}

var layersFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Clone the missing layers next to poky",
	Long: `Clones every missing layer on the branch of the poky checkout, or on
--branch when given. A layer whose branch does not exist is retried on the
remote's default branch.`,
	Args: cobra.NoArgs,
	RunE: runLayersFetch,
}

func init() {
	layersFetchCmd.Flags().String("branch", "", "Branch to clone (default: the poky branch)")
	layersCmd.AddCommand(layersFetchCmd)
}

func runLayers(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.workspace.Layers()
	if err != nil {
		return err
	}
	if status == nil {
		status = []workspace.LayerStatus{}
	}

	return output.Print(outputFormat, status, func() {
		if len(status) == 0 {
			output.PrintMessage("The selected machine requires no extra layers")
			return
		}
		rows := make([][]string, 0, len(status))
		for _, l := range status {
			state := "missing"
			if l.Present {
				state = "present"
			}
			branch := l.Branch
			if branch == "" {
				branch = "(poky branch)"
			}
			rows = append(rows, []string{l.Name, state, branch, l.URL})
		}
		output.PrintTable([]string{"LAYER", "STATUS", "BRANCH", "URL"}, rows)
	})
}

func runLayersFetch(cmd *cobra.Command, args []string) error {
	branch, _ := cmd.Flags().GetString("branch")

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.run(operation.KindBuild, "layers", a.workspace.FetchLayersOp(branch))
}
