package core

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bitswalk/yfab/src/common/cli"
	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/build"
	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change build settings",
	Long: `Show and change the session settings of the poky build tree.

Base settings (machine, image, package_format, init_system, features.*,
layer_series) apply to every target. Board settings are prefixed with the
provider name, e.g. raspberrypi.hostname or raspberrypi.ota.enabled.

poky.path is remembered in the yfab database and selects the build tree.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Change settings and rewrite the managed configuration",
	Example: `  yfab config set machine=raspberrypi4 init_system=systemd
  yfab config set raspberrypi.wifi=true raspberrypi.wifi_ssid=home
  yfab config set poky.path=~/yocto/poky`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfigSet,
}

var configApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Rewrite the managed configuration from the saved settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigApply,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the yfab.yaml keys with their effective values",
	Long: `Lists every yfab.yaml key with the value in effect after the config file,
environment variables and flags are applied, and the environment variable
that overrides it.`,
	Args: cobra.NoArgs,
	RunE: runConfigKeys,
}

var configDiffCmd = &cobra.Command{
	Use:   "diff [key=value]...",
	Short: "Preview the configuration changes without writing them",
	RunE:  runConfigDiff,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configApplyCmd)
	configCmd.AddCommand(configDiffCmd)
	configCmd.AddCommand(configKeysCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.workspace.Snapshot()
	if err != nil {
		return err
	}

	return output.Print(outputFormat, snap, func() {
		fmt.Printf("Poky:     %s\n", snap.PokyDir)
		fmt.Printf("Build:    %s\n", snap.BuildDir)
		provider := snap.Provider
		if provider == "" {
			provider = "(generic target)"
		}
		fmt.Printf("Provider: %s\n\n", provider)

		rows := make([][]string, 0, len(snap.Settings))
		for _, f := range snap.Settings {
			rows = append(rows, []string{f.Key, f.Value})
		}
		output.PrintTable([]string{"KEY", "VALUE"}, rows)
	})
}

// configKey is one row of `config keys`
type configKey struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
	Env   string `json:"env" yaml:"env"`
}

func runConfigKeys(cmd *cobra.Command, args []string) error {
	opts := cli.DefaultConfigOptions()
	keys := make([]configKey, 0, len(configDefaults))
	for _, d := range configDefaults {
		keys = append(keys, configKey{
			Key:   d.Key,
			Value: cli.Effective(d),
			Env:   cli.EnvName(opts.EnvPrefix, d.Key),
		})
	}

	return output.Print(outputFormat, keys, func() {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("Config file: %s\n\n", used)
		}
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k.Key, k.Value, k.Env})
		}
		output.PrintTable([]string{"KEY", "VALUE", "ENV"}, rows)
	})
}

// splitPokyPath separates poky.path, which is stored in the database, from
// the session assignments
func splitPokyPath(changes []workspace.Assignment) (string, []workspace.Assignment) {
	var pokyPath string
	rest := make([]workspace.Assignment, 0, len(changes))
	for _, c := range changes {
		if c.Key == db.SettingPokyPath {
			pokyPath = c.Value
			continue
		}
		rest = append(rest, c)
	}
	return pokyPath, rest
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	changes, err := workspace.ParseAssignments(args)
	if err != nil {
		return err
	}
	pokyPath, changes := splitPokyPath(changes)

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if pokyPath != "" {
		pokyPath = paths.Expand(pokyPath)
		if !paths.IsFile(filepath.Join(pokyPath, "oe-init-build-env")) {
			return errors.ErrBuildTreeMissing.WithMessagef("%s is not a poky checkout", pokyPath)
		}
		if err := a.database.SetSetting(db.SettingPokyPath, pokyPath); err != nil {
			return errors.ErrConfigWrite.WithCause(err)
		}
		output.PrintSuccess(fmt.Sprintf("Poky path set to %s", pokyPath))
	}
	if len(changes) == 0 {
		return nil
	}

	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	if err := ws.Validate(changes); err != nil {
		return err
	}
	return a.run(operation.KindBuild, "configure", ws.ConfigureOp(changes))
}

func runConfigApply(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.run(operation.KindBuild, "configure", a.workspace.ConfigureOp(nil))
}

func runConfigDiff(cmd *cobra.Command, args []string) error {
	changes, err := workspace.ParseAssignments(args)
	if err != nil {
		return err
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	diffs, err := a.workspace.Preview(context.Background(), changes)
	if err != nil {
		return err
	}
	if diffs == nil {
		diffs = []build.FileDiff{}
	}

	return output.Print(outputFormat, diffs, func() {
		if len(diffs) == 0 {
			output.PrintMessage("Configuration is up to date")
			return
		}
		for _, d := range diffs {
			fmt.Print(d.Diff)
		}
	})
}
