// Package cli provides the shared Cobra/Viper plumbing for yfab commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigOptions controls where the yfab.yaml file is looked up
type ConfigOptions struct {
	// ConfigFile is an explicit --config path; it disables the search
	ConfigFile string

	ConfigName  string
	ConfigType  string
	SearchPaths []string

	// EnvPrefix maps keys to variables: poky.path -> YFAB_POKY_PATH
	EnvPrefix string
}

// DefaultConfigOptions returns the standard yfab search locations
func DefaultConfigOptions() ConfigOptions {
	return ConfigOptions{
		ConfigName:  "yfab",
		ConfigType:  "yaml",
		EnvPrefix:   "YFAB",
		SearchPaths: []string{"/etc/yfab", "~/.yfab", "."},
	}
}

// Default is one configuration key with its built-in value
type Default struct {
	Key   string
	Value any
	// Path marks values that go through home expansion when read
	Path  bool
}

// ApplyDefaults registers every default with viper
func ApplyDefaults(defaults []Default) {
	for _, d := range defaults {
		viper.SetDefault(d.Key, d.Value)
	}
}

// EnvName returns the environment variable that overrides key
func EnvName(prefix, key string) string {
	return strings.ToUpper(prefix + "_" + strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Effective returns the value viper resolves for a default, expanded when
// it names a path
func Effective(d Default) string {
	if d.Path {
		return GetExpandedString(d.Key)
	}
	return viper.GetString(d.Key)
}

// InitConfig loads the explicit file or the first yfab.yaml found on the
// search paths, then enables prefixed environment overrides. A missing
// config file is not an error.
func InitConfig(opts ConfigOptions) error {
	if opts.ConfigFile != "" {
		viper.SetConfigFile(paths.Expand(opts.ConfigFile))
	} else {
		viper.SetConfigName(opts.ConfigName)
		viper.SetConfigType(opts.ConfigType)
		for _, p := range opts.SearchPaths {
			viper.AddConfigPath(paths.Expand(p))
		}
	}

	if opts.EnvPrefix != "" {
		viper.SetEnvPrefix(opts.EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// RegisterLogFlags adds --log-output and --log-level to every subcommand
func RegisterLogFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-output", "auto", "Log output destination (auto, stderr, stdout, journald)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = viper.BindPFlag("log.output", cmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	viper.SetDefault("log.output", "auto")
	viper.SetDefault("log.level", "info")
}

// RegisterConfigFlag adds --config to cmd
func RegisterConfigFlag(cmd *cobra.Command, cfgFile *string, defaultPath string) {
	cmd.PersistentFlags().StringVar(cfgFile, "config", "", fmt.Sprintf("config file (default: %s)", defaultPath))
}

// InitLogger creates a logger from the log.* keys. Call after InitConfig.
func InitLogger(prefix string) *logs.Logger {
	return logs.New(logs.Config{
		Output: logs.LogOutput(viper.GetString("log.output")),
		Level:  viper.GetString("log.level"),
		Prefix: prefix,
	})
}

// BindPersistentFlag binds a persistent flag to a viper key
func BindPersistentFlag(cmd *cobra.Command, flagName, viperKey string) error {
	return viper.BindPFlag(viperKey, cmd.PersistentFlags().Lookup(flagName))
}

// BindFlag binds a local flag to a viper key
func BindFlag(cmd *cobra.Command, flagName, viperKey string) error {
	return viper.BindPFlag(viperKey, cmd.Flags().Lookup(flagName))
}

// GetExpandedString reads key and expands a leading ~
func GetExpandedString(key string) string {
	return paths.Expand(viper.GetString(key))
}
