package core

import (
	"context"
	"fmt"

	"github.com/bitswalk/yfab/src/common/cli"
	"github.com/bitswalk/yfab/src/yfab/deploy"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/workspace"
	"github.com/spf13/cobra"
)

var otaCmd = &cobra.Command{
	Use:   "ota",
	Short: "Build and deploy RAUC update bundles",
	Long: `Over-the-air updates use RAUC with a dual root filesystem layout.
Enable them with: yfab config set raspberrypi.ota.enabled=true`,
}

var otaKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the bundle signing key and certificate",
	Args:  cobra.NoArgs,
	RunE:  runOTAKeys,
}

var otaBundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Build the update bundle",
	Args:  cobra.NoArgs,
	RunE:  runOTABundle,
}

var otaDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Copy the newest bundle to the target, install it and reboot",
	Long: `Copies the update bundle to the OTA target with scp, runs rauc install
and reboots the target. The password comes from raspberrypi.ota.target_password
or is prompted for with --ask-password. It is passed to sshpass through the
environment and never appears on a command line.`,
	Args: cobra.NoArgs,
	RunE: runOTADeploy,
}

func init() {
	otaDeployCmd.Flags().String("bundle", "", "Bundle to deploy (default: newest bundle of the session machine)")
	otaDeployCmd.Flags().Bool("ask-password", false, "Prompt for the target password")

	otaCmd.AddCommand(otaKeysCmd)
	otaCmd.AddCommand(otaBundleCmd)
	otaCmd.AddCommand(otaDeployCmd)
}

func runOTAKeys(cmd *cobra.Command, args []string) error {
	dir := cli.GetExpandedString("ota.keys_dir")
	created, err := deploy.GenerateKeys(context.Background(), newRunner(), dir)
	if err != nil {
		return err
	}
	if created {
		output.PrintSuccess(fmt.Sprintf("Signing key and certificate written to %s", dir))
	} else {
		output.PrintMessage(fmt.Sprintf("Signing key already present in %s", dir))
	}
	return nil
}

func runOTABundle(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.run(operation.KindBuild, workspace.BundleTarget, a.workspace.BuildOp(workspace.BundleTarget))
}

func runOTADeploy(cmd *cobra.Command, args []string) error {
	bundle, _ := cmd.Flags().GetString("bundle")
	ask, _ := cmd.Flags().GetBool("ask-password")

	var password string
	if ask {
		p, err := readPassword("Target password: ")
		if err != nil {
			return err
		}
		password = p
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.workspace.DeployOp(bundle, password)
	if err != nil {
		return err
	}
	fmt.Printf("Bundle: %s\nTarget: %s@%s\n", plan.Bundle, plan.Target.User, plan.Target.Host)

	return a.run(operation.KindDeploy, plan.Target.Host, plan.Op)
}
