package build

import (
	"context"
	"os"

	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/conf"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/session"
)

// CleanTask is the bitbake task run by Clean
const CleanTask = "cleanall"

// Config holds builder configuration
type Config struct {
	Tree Tree
	// RunAs is the user bitbake runs as when yfab runs as root
	RunAs string
	// DefaultBranch is used when the poky branch cannot be detected
	DefaultBranch string
}

// Builder runs configure, layer fetch, build and clean on one build tree.
// It is not safe for concurrent use; callers serialize operations through
// the build class of the operation controller.
type Builder struct {
	config   Config
	env      *board.Env
	registry *board.Registry
	runner   process.Runner
	resolver *layers.Resolver
	isRoot   func() bool
}

// New creates a builder. env is shared with the providers of registry.
func New(cfg Config, env *board.Env, registry *board.Registry, runner process.Runner) *Builder {
	return &Builder{
		config:   cfg,
		env:      env,
		registry: registry,
		runner:   runner,
		resolver: layers.NewResolver(runner, cfg.DefaultBranch),
		isRoot:   func() bool { return os.Geteuid() == 0 },
	}
}

// Tree returns the build tree
func (b *Builder) Tree() Tree {
	return b.config.Tree
}

// Registry returns the provider registry
func (b *Builder) Registry() *board.Registry {
	return b.registry
}

// LoadSession reads the tree's session file and restores provider state
func (b *Builder) LoadSession() (*session.State, error) {
	s, err := session.Load(b.config.Tree.SessionPath())
	if err != nil {
		return nil, err
	}
	if err := b.registry.Load(s); err != nil {
		return nil, err
	}
	b.env.Session = s
	return s, nil
}

// Configure applies the session to local.conf and bblayers.conf
func (b *Builder) Configure(ctx context.Context, s *session.State, sink process.Sink) error {
	sc := b.prepare(ctx, s, "", sink)
	return NewPipeline(NewConfigureStage(b.registry)).Run(ctx, sc)
}

// Build configures the tree, fetches missing layers and runs bitbake on
// target. An empty target builds the session image.
func (b *Builder) Build(ctx context.Context, s *session.State, target string, sink process.Sink) (process.Result, error) {
	sc := b.prepare(ctx, s, target, sink)
	pipeline := NewPipeline(
		NewConfigureStage(b.registry),
		NewLayersStage(b.resolver),
		b.bitbakeStage(),
	)
	if err := pipeline.Run(ctx, sc); err != nil {
		return resultOf(sc, err), err
	}
	return sc.Result, nil
}

// Clean runs the cleanall task on the session image
func (b *Builder) Clean(ctx context.Context, s *session.State, sink process.Sink) (process.Result, error) {
	sc := b.prepare(ctx, s, "", sink)
	sc.Task = CleanTask
	if err := NewPipeline(b.bitbakeStage()).Run(ctx, sc); err != nil {
		return resultOf(sc, err), err
	}
	return sc.Result, nil
}

// FileDiff is the pending change of one managed file
type FileDiff struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// Preview returns the diffs Configure would apply, without writing
// anything. Files that would not change are omitted.
func (b *Builder) Preview(ctx context.Context, s *session.State) ([]FileDiff, error) {
	sc := b.prepare(ctx, s, "", nil)
	if err := validateTree(sc.Tree); err != nil {
		return nil, err
	}

	b.env.DryRun = true
	patch, err := BasePatch(s, sc.Provider, b.registry.LegacyCleanup())
	b.env.DryRun = false
	if err != nil {
		return nil, err
	}

	var diffs []FileDiff
	before, after, err := conf.Local().Preview(sc.Tree.LocalConf(), patch, true)
	if err != nil {
		return nil, err
	}
	if d := conf.Diff("conf/local.conf", before, after); d != "" {
		diffs = append(diffs, FileDiff{Path: sc.Tree.LocalConf(), Diff: d})
	}

	var lines []string
	if sc.Provider != nil {
		lines = sc.Provider.LayerRegistrationLines()
	}
	before, after, err = conf.PreviewLayers(sc.Tree.BBLayersConf(), lines)
	if err != nil {
		return nil, err
	}
	if d := conf.Diff("conf/bblayers.conf", before, after); d != "" {
		diffs = append(diffs, FileDiff{Path: sc.Tree.BBLayersConf(), Diff: d})
	}

	return diffs, nil
}

func (b *Builder) bitbakeStage() *BitbakeStage {
	return NewBitbakeStage(b.runner, b.config.RunAs, b.isRoot)
}

// prepare points the shared provider env at the session and tree, and
// resolves the poky branch used for layer series and clones.
func (b *Builder) prepare(ctx context.Context, s *session.State, target string, sink process.Sink) *StageContext {
	tree := b.config.Tree
	branch := b.config.DefaultBranch
	if branch == "" {
		branch = layers.DefaultBranch
	}
	if tree.PokyDir != "" {
		branch = b.resolver.DetectBranch(ctx, tree.PokyDir)
	}

	b.env.Session = s
	b.env.PokyDir = tree.PokyDir
	b.env.Series = branch
	if s.LayerSeries != "" {
		b.env.Series = s.LayerSeries
	}

	if target == "" {
		target = s.Image
	}

	return &StageContext{
		Tree:     tree,
		Session:  s,
		Provider: b.registry.Select(s.Machine),
		Branch:   branch,
		Target:   target,
		Sink:     sink,
	}
}

func resultOf(sc *StageContext, err error) process.Result {
	if !sc.Result.Succeeded && sc.Result.ErrorText != "" {
		return sc.Result
	}
	return process.Failed("%v", err)
}
