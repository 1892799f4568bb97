// Package flash writes built images to removable block devices.
package flash

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/progress"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the flash package
func SetLogger(l *logs.Logger) {
	log = l
}

// State is a flash lifecycle state
type State string

// Flash states
const (
	StateIdle       State = "idle"
	StateUnmounting State = "unmounting"
	StateCopying    State = "copying"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Request describes one flash
type Request struct {
	Image  string `json:"image"`
	Device string `json:"device"`
	// SizeBytes is the expected number of bytes written, 0 when unknown
	SizeBytes int64 `json:"size_bytes"`
}

// Config holds orchestrator configuration
type Config struct {
	BlockSize string
	// Sudo runs umount and dd through sudo
	Sudo bool
}

// Orchestrator unmounts the target device and copies the image onto it
type Orchestrator struct {
	runner process.Runner
	config Config
	// OnState, when set, receives every state transition
	OnState func(State)
	glob    func(pattern string) ([]string, error)
}

// NewOrchestrator creates an orchestrator running commands through runner
func NewOrchestrator(runner process.Runner, cfg Config) *Orchestrator {
	return &Orchestrator{runner: runner, config: cfg, glob: filepath.Glob}
}

// Flash writes req.Image to req.Device. The returned error is a
// precondition failure raised before anything is unmounted or written;
// command failures are reported in the Result.
func (o *Orchestrator) Flash(ctx context.Context, req Request, sink process.Sink) (process.Result, error) {
	if sink == nil {
		sink = process.Discard
	}
	if err := validate(req); err != nil {
		return process.Result{}, err
	}

	log.Info("Flashing image", "image", req.Image, "device", req.Device, "size", req.SizeBytes)

	o.setState(StateUnmounting)
	o.unmount(ctx, req.Device)

	o.setState(StateCopying)
	sink.Append("Flashing " + filepath.Base(req.Image) + " to " + req.Device)

	pipeline := Plan(req.Image, req.Device, o.config.BlockSize, o.config.Sudo)
	res := pipeline.Execute(ctx, o.runner, process.Monitor(progress.Bytes(req.SizeBytes), sink))

	if !res.Succeeded {
		log.Error("Flash failed", "device", req.Device, "error", res.ErrorText)
		o.setState(StateFailed)
		return res, nil
	}

	sink.Progress(100)
	log.Info("Flash completed", "device", req.Device)
	o.setState(StateDone)
	return res, nil
}

func validate(req Request) error {
	if req.Device == "" {
		return errors.ErrNoDevice
	}
	if !strings.HasPrefix(req.Device, "/dev/") {
		return errors.ErrNoDevice.WithMessagef("%s is not a block device path", req.Device)
	}
	if req.Image == "" || !paths.IsFile(req.Image) {
		return errors.ErrImageNotFound.WithMessagef("Image %q not found", req.Image)
	}
	return nil
}

// unmount runs umount on the device and each of its partitions. Failures
// are expected for paths that are not mounted.
func (o *Orchestrator) unmount(ctx context.Context, device string) {
	matches, err := o.glob(device + "*")
	if err != nil {
		log.Debug("Failed to list device partitions", "device", device, "error", err)
		return
	}

	for _, p := range matches {
		cmd := process.Command{Name: "umount", Args: []string{p}}
		if o.config.Sudo {
			cmd = process.Command{Name: "sudo", Args: []string{"umount", p}}
		}
		if res := o.runner.Run(ctx, cmd, nil); !res.Succeeded {
			log.Debug("umount failed", "path", p, "error", res.ErrorText)
		}
	}
}

func (o *Orchestrator) setState(s State) {
	log.Debug("Flash state", "state", s)
	if o.OnState != nil {
		o.OnState(s)
	}
}
