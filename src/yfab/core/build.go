package core

import (
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [target]",
	Short: "Configure the tree and run bitbake",
	Long: `Rewrites the managed configuration, fetches missing layers and builds
the session image, or target when given. A layer that cannot be fetched is
reported as a warning and the build proceeds.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Run the cleanall task on the session image",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func runBuild(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	var target string
	if len(args) == 1 {
		target = args[0]
	}
	label := target
	if label == "" {
		snap, err := a.workspace.Snapshot()
		if err != nil {
			return err
		}
		label = snap.State.Image
	}

	return a.run(operation.KindBuild, label, a.workspace.BuildOp(target))
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.workspace.Snapshot()
	if err != nil {
		return err
	}
	return a.run(operation.KindBuild, "clean "+snap.State.Image, a.workspace.CleanOp())
}
