package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/poky"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pokyCmd = &cobra.Command{
	Use:   "poky",
	Short: "List and clone poky releases",
}

var pokyBranchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List the release branches of the poky remote",
	Args:  cobra.NoArgs,
	RunE:  runPokyBranches,
}

var pokyCloneCmd = &cobra.Command{
	Use:   "clone <branch> [parent-dir]",
	Short: "Clone poky and remember it as the build tree",
	Long: `Clones the poky remote on branch into <parent-dir>/poky (default: the
current directory) and stores the checkout as the poky path.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPokyClone,
}

func init() {
	pokyCmd.PersistentFlags().String("remote", poky.DefaultRemote, "Poky git remote")
	_ = viper.BindPFlag("poky.remote", pokyCmd.PersistentFlags().Lookup("remote"))

	pokyCmd.AddCommand(pokyBranchesCmd)
	pokyCmd.AddCommand(pokyCloneCmd)
}

func runPokyBranches(cmd *cobra.Command, args []string) error {
	branches, remote := poky.ListBranches(context.Background(), newRunner(), viper.GetString("poky.remote"))
	if !remote {
		output.PrintWarning("Remote unreachable, showing the known releases")
	}

	return output.Print(outputFormat, branches, func() {
		for _, b := range branches {
			output.PrintMessage(b)
		}
	})
}

func runPokyClone(cmd *cobra.Command, args []string) error {
	branch := args[0]
	if !VersionInfo.Supports(branch) {
		output.PrintWarning(fmt.Sprintf("%s is not a validated Yocto series (%s)", branch, strings.Join(VersionInfo.YoctoSeries, ", ")))
	}
	parent := "."
	if len(args) == 2 {
		parent = args[1]
	}
	parent, err := filepath.Abs(paths.Expand(parent))
	if err != nil {
		return errors.ErrInvalidSetting.WithCause(err)
	}
	if dest := filepath.Join(parent, "poky"); paths.Exists(dest) {
		return errors.ErrDestinationExists.WithMessagef("%s already exists", dest)
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return errors.ErrConfigWrite.WithMessagef("Cannot create %s", parent).WithCause(err)
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var dest string
	remote := viper.GetString("poky.remote")
	err = a.run(operation.KindBuild, "poky "+branch, func(ctx context.Context, sink process.Sink) process.Result {
		path, err := poky.Clone(ctx, a.runner, remote, branch, parent, sink)
		if err != nil {
			return process.Failed("%v", err)
		}
		dest = path
		return process.Result{Succeeded: true}
	})
	if err != nil {
		return err
	}

	if err := a.database.SetSetting(db.SettingPokyPath, dest); err != nil {
		return errors.ErrConfigWrite.WithCause(err)
	}
	output.PrintSuccess("Poky cloned to " + dest)
	output.PrintMessage("Initialize the build directory with: source " + dest + "/oe-init-build-env")
	return nil
}
