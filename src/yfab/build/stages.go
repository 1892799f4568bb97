package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/conf"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/progress"
)

// ConfigureStage patches local.conf and bblayers.conf from the session and
// saves the session file
type ConfigureStage struct {
	registry *board.Registry
}

// NewConfigureStage creates a new configure stage
func NewConfigureStage(registry *board.Registry) *ConfigureStage {
	return &ConfigureStage{registry: registry}
}

// Name returns the stage name
func (s *ConfigureStage) Name() StageName {
	return StageConfigure
}

// Validate checks that the build tree exists
func (s *ConfigureStage) Validate(ctx context.Context, sc *StageContext) error {
	return validateTree(sc.Tree)
}

// Execute writes both managed blocks, then persists the session
func (s *ConfigureStage) Execute(ctx context.Context, sc *StageContext, report ProgressFunc) error {
	report(0, "Applying configuration")

	patch, err := BasePatch(sc.Session, sc.Provider, s.registry.LegacyCleanup())
	if err != nil {
		return err
	}
	if err := conf.Local().PatchFile(sc.Tree.LocalConf(), patch, true); err != nil {
		return err
	}
	report(40, "")

	var lines []string
	if sc.Provider != nil {
		lines = sc.Provider.LayerRegistrationLines()
	}
	if err := conf.RegisterLayers(sc.Tree.BBLayersConf(), lines); err != nil {
		return err
	}
	report(70, "")

	if err := s.registry.Store(sc.Session); err != nil {
		return err
	}
	if err := sc.Session.Save(sc.Tree.SessionPath()); err != nil {
		return err
	}

	log.Info("Configuration applied",
		"machine", sc.Session.Machine,
		"image", sc.Session.Image,
		"directives", len(patch.Directives),
		"layers", len(lines),
	)
	report(100, "Configuration applied")
	return nil
}

// LayersStage clones the layers the selected board needs
type LayersStage struct {
	resolver *layers.Resolver
}

// NewLayersStage creates a new layers stage
func NewLayersStage(resolver *layers.Resolver) *LayersStage {
	return &LayersStage{resolver: resolver}
}

// Name returns the stage name
func (s *LayersStage) Name() StageName {
	return StageLayers
}

// Validate checks whether this stage can run
func (s *LayersStage) Validate(ctx context.Context, sc *StageContext) error {
	if sc.Tree.PokyDir == "" {
		return errors.ErrPokyPathUnset
	}
	return nil
}

// Execute fetches missing layers. Fetch failures are recorded as warnings
// and the pipeline continues.
func (s *LayersStage) Execute(ctx context.Context, sc *StageContext, report ProgressFunc) error {
	if sc.Provider == nil {
		report(100, "")
		return nil
	}

	missing := s.resolver.Resolve(sc.Provider.RequiredLayers(), sc.Tree.PokyDir)
	if len(missing) == 0 {
		report(100, "")
		return nil
	}

	report(0, fmt.Sprintf("Fetching %d missing layer(s)", len(missing)))
	err := s.resolver.Fetch(ctx, missing, sc.Branch, sc.Tree.PokyDir, stageSink{Sink: sc.Sink, progress: report})
	if err != nil {
		log.Warn("Layer fetch incomplete, continuing", "error", err)
		sc.Warnings = append(sc.Warnings, err)
		report(-1, "Warning: "+err.Error())
		return nil
	}

	report(100, "")
	return nil
}

// Scripts run by bash. Paths and targets are passed as positional
// arguments and never interpolated into the script.
const (
	bitbakeScript     = `source oe-init-build-env "$1" >/dev/null && bitbake "$2"`
	bitbakeTaskScript = `source oe-init-build-env "$1" >/dev/null && bitbake -c "$3" "$2"`
)

// BitbakeStage sources the build environment and runs bitbake
type BitbakeStage struct {
	runner process.Runner
	runAs  string
	isRoot func() bool
}

// NewBitbakeStage creates a new bitbake stage. When runAs is set and yfab
// runs as root, bitbake runs as that user through sudo.
func NewBitbakeStage(runner process.Runner, runAs string, isRoot func() bool) *BitbakeStage {
	return &BitbakeStage{runner: runner, runAs: runAs, isRoot: isRoot}
}

// Name returns the stage name
func (s *BitbakeStage) Name() StageName {
	return StageBitbake
}

// Validate checks for the environment script and a target
func (s *BitbakeStage) Validate(ctx context.Context, sc *StageContext) error {
	if err := validateTree(sc.Tree); err != nil {
		return err
	}
	script := filepath.Join(sc.Tree.PokyDir, "oe-init-build-env")
	if !paths.IsFile(script) {
		return errors.ErrBuildTreeMissing.WithMessagef("%s not found, is %s a poky checkout?", script, sc.Tree.PokyDir)
	}
	if sc.Target == "" {
		return errors.ErrInvalidSetting.WithMessage("No bitbake target selected")
	}
	return nil
}

// Execute runs bitbake with the discrete task counter as progress
func (s *BitbakeStage) Execute(ctx context.Context, sc *StageContext, report ProgressFunc) error {
	cmd := s.Command(sc)
	log.Info("Running bitbake", "target", sc.Target, "task", sc.Task, "sudo", cmd.Name == "sudo")

	sink := stageSink{Sink: sc.Sink, progress: report}
	sc.Result = s.runner.Run(ctx, cmd, process.Monitor(progress.Tasks(), sink))
	if !sc.Result.Succeeded {
		return errors.ErrCommandFailed.WithMessage(sc.Result.ErrorText)
	}

	report(100, "")
	return nil
}

// Command returns the bitbake invocation for the stage context
func (s *BitbakeStage) Command(sc *StageContext) process.Command {
	args := []string{"-c", bitbakeScript, "yfab", sc.Tree.BuildPath(), sc.Target}
	if sc.Task != "" {
		args = []string{"-c", bitbakeTaskScript, "yfab", sc.Tree.BuildPath(), sc.Target, sc.Task}
	}

	name := "bash"
	if s.runAs != "" && s.isRoot != nil && s.isRoot() {
		args = append([]string{"-u", s.runAs, "bash"}, args...)
		name = "sudo"
	}

	return process.Command{Name: name, Args: args, Dir: sc.Tree.PokyDir}
}

func validateTree(t Tree) error {
	if t.PokyDir == "" {
		return errors.ErrPokyPathUnset.WithMessage("Poky path not set, use --poky or `yfab config set poky.path`")
	}
	confDir := filepath.Join(t.BuildPath(), "conf")
	if !paths.IsDir(confDir) {
		return errors.ErrBuildTreeMissing.WithMessagef(
			"Directory %s does not exist, initialize the build tree first", confDir)
	}
	return nil
}
