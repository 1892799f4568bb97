// Package workspace wires one poky build tree to the builder, the flash
// orchestrator and the deployer, and turns their calls into operation
// bodies for the controller. The CLI and the API both drive it.
package workspace

import (
	"context"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/build"
	"github.com/bitswalk/yfab/src/yfab/deploy"
	"github.com/bitswalk/yfab/src/yfab/flash"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/session"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the workspace package
func SetLogger(l *logs.Logger) {
	log = l
}

// BundleTarget is the bitbake recipe producing the RAUC update bundle
const BundleTarget = "update-bundle"

// Config holds workspace configuration
type Config struct {
	Tree          build.Tree
	RunAs         string
	DefaultBranch string
	WifiStack     board.WifiStack
	KeysDir       string
	Flash         flash.Config
	// SysRoot is where removable drives are discovered
	SysRoot string
	Sealer  board.Sealer
}

func (c Config) env() *board.Env {
	return &board.Env{
		PokyDir:   c.Tree.PokyDir,
		KeysDir:   c.KeysDir,
		WifiStack: c.WifiStack,
		Sealer:    c.Sealer,
	}
}

// Workspace is the set of operations available on one build tree
type Workspace struct {
	config   Config
	runner   process.Runner
	builder  *build.Builder
	resolver *layers.Resolver
	flasher  *flash.Orchestrator
	deployer *deploy.Deployer
}

// New creates a workspace running external commands through runner
func New(cfg Config, runner process.Runner) *Workspace {
	if cfg.SysRoot == "" {
		cfg.SysRoot = flash.DefaultSysRoot
	}
	env := cfg.env()

	return &Workspace{
		config: cfg,
		runner: runner,
		builder: build.New(build.Config{
			Tree:          cfg.Tree,
			RunAs:         cfg.RunAs,
			DefaultBranch: cfg.DefaultBranch,
		}, env, board.Default(env), runner),
		resolver: layers.NewResolver(runner, cfg.DefaultBranch),
		flasher:  flash.NewOrchestrator(runner, cfg.Flash),
		deployer: deploy.NewDeployer(runner),
	}
}

// Tree returns the build tree
func (w *Workspace) Tree() build.Tree {
	return w.config.Tree
}

// Builder returns the builder. It must only be used from the build class
// or while no operation runs.
func (w *Workspace) Builder() *build.Builder {
	return w.builder
}

// Runner returns the command runner
func (w *Workspace) Runner() process.Runner {
	return w.runner
}

// Snapshot is a read-only view of the session and provider settings
type Snapshot struct {
	PokyDir  string          `json:"poky_dir"`
	BuildDir string          `json:"build_dir"`
	Provider string          `json:"provider,omitempty"`
	Settings []session.Field `json:"settings"`

	State *session.State `json:"-"`

	registry *board.Registry
}

// Snapshot reads the session file into a private registry, so it is safe
// to call while a build runs.
func (w *Workspace) Snapshot() (*Snapshot, error) {
	registry := board.Default(w.config.env())
	s, err := session.Load(w.config.Tree.SessionPath())
	if err != nil {
		return nil, err
	}
	if err := registry.Load(s); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		PokyDir:  w.config.Tree.PokyDir,
		BuildDir: w.config.Tree.BuildPath(),
		Settings: Fields(s, registry),
		State:    s,
		registry: registry,
	}
	if p := registry.Select(s.Machine); p != nil {
		snap.Provider = p.Name()
	}
	return snap, nil
}

// Fields lists the base settings followed by every configurable provider's
// settings, prefixed with the provider name
func Fields(s *session.State, registry *board.Registry) []session.Field {
	fields := s.Fields()
	for _, p := range registry.Providers() {
		c, ok := p.(board.Configurable)
		if !ok {
			continue
		}
		for _, f := range c.Fields() {
			fields = append(fields, session.Field{Key: p.Name() + "." + f.Key, Value: f.Value})
		}
	}
	return fields
}

// Set changes one setting on s or on a provider of the builder's registry.
// Provider keys are prefixed with the provider name.
func (w *Workspace) Set(s *session.State, key, value string) error {
	return set(w.builder.Registry(), s, key, value)
}

func set(registry *board.Registry, s *session.State, key, value string) error {
	if name, rest, ok := strings.Cut(key, "."); ok {
		if p := registry.Get(name); p != nil {
			c, ok := p.(board.Configurable)
			if !ok {
				return errors.ErrInvalidSetting.WithMessagef("%s has no settings", name)
			}
			return c.Set(rest, value)
		}
	}

	if err := s.Set(key, value); err != nil {
		return err
	}
	if key == "image" && !session.KnownImage(value) {
		log.Warn("Image is not a standard poky image, building it anyway", "image", value)
	}
	return nil
}

// BuildOp returns the body of a build of target. An empty target builds
// the session image.
func (w *Workspace) BuildOp(target string) operation.Func {
	return func(ctx context.Context, sink process.Sink) process.Result {
		s, err := w.builder.LoadSession()
		if err != nil {
			return process.Failed("%v", err)
		}
		res, _ := w.builder.Build(ctx, s, target, sink)
		return res
	}
}

// CleanOp returns the body of a cleanall of the session image
func (w *Workspace) CleanOp() operation.Func {
	return func(ctx context.Context, sink process.Sink) process.Result {
		s, err := w.builder.LoadSession()
		if err != nil {
			return process.Failed("%v", err)
		}
		res, _ := w.builder.Clean(ctx, s, sink)
		return res
	}
}

// FlashPlan is a validated flash request
type FlashPlan struct {
	Request flash.Request
	Op      operation.Func
}

// FlashOp checks the flash preconditions and returns the operation body.
// An empty image selects the newest image of the session machine.
func (w *Workspace) FlashOp(device, image string) (*FlashPlan, error) {
	if device == "" {
		return nil, errors.ErrNoDevice.WithMessage("No target device selected, pick one from `yfab drives`")
	}

	if image == "" {
		found, err := w.LatestImage()
		if err != nil {
			return nil, err
		}
		image = found
	}

	size, err := flash.ImageSize(image)
	if err != nil {
		return nil, errors.ErrImageNotFound.WithMessagef("Cannot read %s", image).WithCause(err)
	}

	req := flash.Request{Image: image, Device: device, SizeBytes: size}
	return &FlashPlan{
		Request: req,
		Op: func(ctx context.Context, sink process.Sink) process.Result {
			res, err := w.flasher.Flash(ctx, req, sink)
			if err != nil {
				return process.Failed("%v", err)
			}
			return res
		},
	}, nil
}

// DeployPlan is a validated deploy request
type DeployPlan struct {
	Bundle string
	Target deploy.Target
	Op     operation.Func
}

// DeployOp resolves the bundle and the target from the session and returns
// the operation body. An empty bundle selects the newest one; a non-empty
// password overrides the stored target password.
func (w *Workspace) DeployOp(bundle, password string) (*DeployPlan, error) {
	snap, err := w.Snapshot()
	if err != nil {
		return nil, err
	}

	if bundle == "" {
		bundle, err = deploy.LatestBundle(w.config.Tree.DeployDir(snap.State.Machine))
		if err != nil {
			return nil, err
		}
	}

	target := targetOf(snap)
	if password != "" {
		target.Password = password
	}
	if target.Host == "" {
		return nil, errors.ErrInvalidSetting.WithMessage("No target host, set raspberrypi.ota.target_host")
	}

	return &DeployPlan{
		Bundle: bundle,
		Target: target,
		Op: func(ctx context.Context, sink process.Sink) process.Result {
			res, err := w.deployer.Deploy(ctx, bundle, target, sink)
			if err != nil {
				return process.Failed("%v", err)
			}
			return res
		},
	}, nil
}

func targetOf(snap *Snapshot) deploy.Target {
	rpi, ok := snap.registry.Get("raspberrypi").(*board.RaspberryPi)
	if !ok {
		return deploy.Target{}
	}
	ota := rpi.Settings.OTA
	return deploy.Target{Host: ota.TargetHost, User: ota.TargetUser, Password: ota.TargetPassword}
}

// LatestImage returns the newest image of the session machine
func (w *Workspace) LatestImage() (string, error) {
	snap, err := w.Snapshot()
	if err != nil {
		return "", err
	}
	return flash.LocateImage(w.config.Tree.BuildPath(), snap.State.Machine, snap.State.Image)
}

// LatestBundle returns the newest update bundle of the session machine
func (w *Workspace) LatestBundle() (string, error) {
	snap, err := w.Snapshot()
	if err != nil {
		return "", err
	}
	return deploy.LatestBundle(w.config.Tree.DeployDir(snap.State.Machine))
}

// Drives lists removable drives
func (w *Workspace) Drives() ([]flash.Drive, error) {
	return flash.ScanDrives(w.config.SysRoot)
}
