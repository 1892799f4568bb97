package core

import (
	"fmt"

	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, args []string) error {
	return output.Print(outputFormat, VersionInfo, func() {
		fmt.Println(VersionInfo.Full())
	})
}
