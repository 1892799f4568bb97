// Package core provides the yfab commands and the HTTP server behind
// `yfab serve`.
package core

import (
	"os"

	"github.com/bitswalk/yfab/src/common/cli"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/version"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/flash"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/poky"
	"github.com/spf13/cobra"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log = logs.NewDefault()

	// Configuration file path
	cfgFile string

	// Output format (table, json or yaml)
	outputFormat string
)

// Linker variables - set via ldflags at build time
var (
	Version        string
	ReleaseName    string
	ReleaseVersion string
	BuildDate      string
	GitCommit      string
)

// configDefaults are the built-in values of every yfab.yaml key
var configDefaults = []cli.Default{
	{Key: "poky.path", Value: "", Path: true},
	{Key: "poky.build_dir", Value: "build"},
	{Key: "poky.remote", Value: poky.DefaultRemote},
	{Key: "poky.default_branch", Value: layers.DefaultBranch},
	{Key: "build.run_as", Value: ""},
	{Key: "flash.block_size", Value: flash.DefaultBlockSize},
	{Key: "flash.sudo", Value: false},
	{Key: "board.wifi_stack", Value: string(board.WifiNetworkd)},
	{Key: "ota.keys_dir", Value: "~/.yfab/rauc-keys", Path: true},
	{Key: "database.path", Value: "~/.yfab/yfab.db", Path: true},
	{Key: "storage.type", Value: "local"},
	{Key: "storage.local.path", Value: "~/.yfab/artifacts", Path: true},
	{Key: "storage.s3.endpoint", Value: ""},
	{Key: "storage.s3.region", Value: "us-east-1"},
	{Key: "storage.s3.bucket", Value: "yfab-artifacts"},
	{Key: "storage.s3.path_style", Value: true},
	{Key: "security.master_key_path", Value: "~/.yfab/master.key", Path: true},
	{Key: "server.bind", Value: "127.0.0.1"},
	{Key: "server.port", Value: 8765},
}

var rootCmd = &cobra.Command{
	Use:   "yfab",
	Short: "Yocto image fabrication assistant",
	Long: `yfab configures a poky build tree for a hardware target, runs bitbake,
writes the resulting image to removable media and deploys RAUC update
bundles over the network.

Settings live in the build tree (conf/yfab-session.json) and are rendered
into managed blocks of local.conf and bblayers.conf. User content outside
those blocks is never touched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command
func Execute() {
	VersionInfo.Stamp(Version, ReleaseName, ReleaseVersion, BuildDate, GitCommit)

	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err)
		os.Exit(1)
	}
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "~/.yfab/yfab.yaml")

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "Output format: table, json, yaml")
	rootCmd.PersistentFlags().String("poky", "", "Path to the poky checkout (default: remembered path)")
	rootCmd.PersistentFlags().String("build-dir", "build", "Build directory name inside poky")

	cli.RegisterLogFlags(rootCmd)

	_ = cli.BindPersistentFlag(rootCmd, "poky", "poky.path")
	_ = cli.BindPersistentFlag(rootCmd, "build-dir", "poky.build_dir")

	cli.ApplyDefaults(configDefaults)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(layersCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(drivesCmd)
	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(otaCmd)
	rootCmd.AddCommand(pokyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(serveCmd)

	_ = rootCmd.RegisterFlagCompletionFunc("output", completionOutputFormat)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	opts := cli.DefaultConfigOptions()
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(opts); err != nil {
		return err
	}

	log = cli.InitLogger("yfab")
	setPackageLoggers(log)
	return nil
}

func completionOutputFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{output.FormatTable, output.FormatJSON, output.FormatYAML}, cobra.ShellCompDirectiveNoFileComp
}
