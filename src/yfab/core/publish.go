package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/storage"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [file]",
	Short: "Upload the newest image or bundle to artifact storage",
	Long: `Uploads a build artifact with its sha256 checksum under <machine>/<name>
to the configured storage backend: a local directory (storage.local.path)
or an S3-compatible bucket (storage.s3.*).

Without arguments the newest image of the session machine is published;
--bundle publishes the newest update bundle instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().Bool("bundle", false, "Publish the newest update bundle")
}

func runPublish(cmd *cobra.Command, args []string) error {
	bundle, _ := cmd.Flags().GetBool("bundle")

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.workspace.Snapshot()
	if err != nil {
		return err
	}

	var file string
	switch {
	case len(args) == 1:
		file = args[0]
	case bundle:
		file, err = a.workspace.LatestBundle()
	default:
		file, err = a.workspace.LatestImage()
	}
	if err != nil {
		return err
	}

	backend, err := storage.New(storageConfig())
	if err != nil {
		return errors.ErrStorageUnavailable.WithCause(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	if err := backend.Ping(ctx); err != nil {
		return errors.ErrStorageUnavailable.WithMessagef("%s storage at %s is not reachable", backend.Type(), backend.Location()).WithCause(err)
	}

	artifact, err := storage.Publish(ctx, backend, snap.State.Machine, file)
	if err != nil {
		return err
	}

	return output.Print(outputFormat, artifact, func() {
		output.PrintSuccess(fmt.Sprintf("Published %s", artifact.Key))
		output.PrintTable([]string{"KEY", "SIZE", "SHA256", "LOCATION"}, [][]string{
			{artifact.Key, fmt.Sprintf("%d", artifact.Size), artifact.SHA256, artifact.Location},
		})
	})
}
