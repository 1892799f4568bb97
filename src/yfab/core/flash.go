package core

import (
	"fmt"
	"strconv"

	"github.com/bitswalk/yfab/src/yfab/flash"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/spf13/cobra"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "List removable drives that can be flashed",
	Args:  cobra.NoArgs,
	RunE:  runDrives,
}

var flashCmd = &cobra.Command{
	Use:   "flash <device>",
	Short: "Write the built image to a removable drive",
	Long: `Unmounts every partition of the device, then writes the image with dd.
Compressed images (.gz, .bz2, .xz) are decompressed on the fly. Without
--image the newest image of the session machine is written.

Everything on the device is overwritten.`,
	Example: `  yfab drives
  yfab flash /dev/sdb --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().String("image", "", "Image file to write (default: newest image of the session machine)")
	flashCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	flashCmd.ValidArgsFunction = completionDrives
}

func runDrives(cmd *cobra.Command, args []string) error {
	drives, err := flash.ScanDrives(flash.DefaultSysRoot)
	if err != nil {
		return err
	}
	if drives == nil {
		drives = []flash.Drive{}
	}

	return output.Print(outputFormat, drives, func() {
		if len(drives) == 0 {
			output.PrintMessage("No removable drives found")
			return
		}
		rows := make([][]string, 0, len(drives))
		for _, d := range drives {
			rows = append(rows, []string{d.Path, d.Transport, d.HumanSize(), d.Model})
		}
		output.PrintTable([]string{"DEVICE", "BUS", "SIZE", "MODEL"}, rows)
	})
}

func runFlash(cmd *cobra.Command, args []string) error {
	image, _ := cmd.Flags().GetString("image")
	yes, _ := cmd.Flags().GetBool("yes")

	var device string
	if len(args) == 1 {
		device = args[0]
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.workspace.FlashOp(device, image)
	if err != nil {
		return err
	}

	size := "unknown size"
	if plan.Request.SizeBytes > 0 {
		size = strconv.FormatInt(plan.Request.SizeBytes, 10) + " bytes"
	}
	fmt.Printf("Image:  %s (%s)\nDevice: %s\n", plan.Request.Image, size, plan.Request.Device)
	if !yes && !confirm(fmt.Sprintf("All data on %s will be lost. Continue?", plan.Request.Device)) {
		output.PrintWarning("Flash cancelled")
		return nil
	}

	return a.run(operation.KindFlash, plan.Request.Device, plan.Op)
}

func completionDrives(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	drives, err := flash.ScanDrives(flash.DefaultSysRoot)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	out := make([]string, 0, len(drives))
	for _, d := range drives {
		out = append(out, d.Path+"\t"+d.String())
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
