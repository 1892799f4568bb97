// Package build drives a poky build tree: it patches the configuration,
// fetches the layers the board needs and runs bitbake.
package build

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/session"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the build package
func SetLogger(l *logs.Logger) {
	log = l
}

// StageName identifies a pipeline stage
type StageName string

// Pipeline stages
const (
	StageConfigure StageName = "configure"
	StageLayers    StageName = "layers"
	StageBitbake   StageName = "bitbake"
)

// stageWeights is each stage's share of a pipeline's overall progress.
// Stages not listed weigh defaultStageWeight.
var stageWeights = map[StageName]int{
	StageConfigure: 5,
	StageLayers:    10,
	StageBitbake:   85,
}

const defaultStageWeight = 10

func weightOf(name StageName) int {
	if w, ok := stageWeights[name]; ok {
		return w
	}
	return defaultStageWeight
}

// Stage defines the interface for a single build pipeline stage
type Stage interface {
	// Name returns the stage name
	Name() StageName

	// Validate checks whether this stage can run given the current context
	Validate(ctx context.Context, sc *StageContext) error

	// Execute runs the stage, updating progress via the callback
	Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error
}

// ProgressFunc reports stage progress (0-100) with an optional message
type ProgressFunc func(percent int, message string)

// Tree locates a poky checkout and its build directory
type Tree struct {
	PokyDir string
	// BuildDir is relative to PokyDir unless absolute. Empty means "build".
	BuildDir string
}

// BuildPath returns the build directory
func (t Tree) BuildPath() string {
	dir := t.BuildDir
	if dir == "" {
		dir = "build"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(t.PokyDir, dir)
}

// LocalConf returns the path of local.conf
func (t Tree) LocalConf() string {
	return filepath.Join(t.BuildPath(), "conf", "local.conf")
}

// BBLayersConf returns the path of bblayers.conf
func (t Tree) BBLayersConf() string {
	return filepath.Join(t.BuildPath(), "conf", "bblayers.conf")
}

// SessionPath returns the session file of the tree
func (t Tree) SessionPath() string {
	return session.Path(t.BuildPath())
}

// DeployDir returns the image deploy directory for a machine
func (t Tree) DeployDir(machine string) string {
	return filepath.Join(t.BuildPath(), "tmp", "deploy", "images", machine)
}

// StageContext holds shared state passed through the pipeline
type StageContext struct {
	Tree     Tree
	Session  *session.State
	Provider board.Provider // nil for generic targets
	Branch   string         // poky branch, used when cloning layers
	Target   string         // bitbake target
	Task     string         // bitbake task, empty for the default build
	Sink     process.Sink

	// Populated by the bitbake stage
	Result process.Result
	// Warnings collects non-fatal stage errors
	Warnings []error
}

// Pipeline runs stages sequentially, stopping at the first failure
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from stages in execution order
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in order
func (p *Pipeline) Stages() []StageName {
	names := make([]StageName, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run validates and executes every stage. Messages reported by stages are
// appended to the sink. Stage percentages are scaled into the stage's
// weighted slice of 0-100, and the overall value never decreases.
func (p *Pipeline) Run(ctx context.Context, sc *StageContext) error {
	if sc.Sink == nil {
		sc.Sink = process.Discard
	}

	total := 0
	for _, stage := range p.stages {
		total += weightOf(stage.Name())
	}
	offset, last := 0, -1

	for _, stage := range p.stages {
		stageName := stage.Name()
		weight := weightOf(stageName)

		if err := stage.Validate(ctx, sc); err != nil {
			log.Error("Stage validation failed", "stage", stageName, "error", err)
			return err
		}

		base := offset
		progress := func(percent int, message string) {
			if message != "" {
				sc.Sink.Append(message)
			}
			if percent < 0 {
				return
			}
			percent = min(percent, 100)
			overall := (base*100 + percent*weight) / total
			if overall > last {
				last = overall
				sc.Sink.Progress(overall)
			}
		}

		log.Debug("Starting stage", "stage", stageName, "target", sc.Target)
		stageStart := time.Now()

		if err := stage.Execute(ctx, sc, progress); err != nil {
			log.Error("Stage failed", "stage", stageName, "error", err)
			return err
		}

		log.Debug("Stage completed", "stage", stageName, "duration_ms", time.Since(stageStart).Milliseconds())
		offset += weight
	}
	return nil
}

// stageSink routes the percentages of a monitored command through the
// stage progress callback.
type stageSink struct {
	process.Sink
	progress ProgressFunc
}

func (s stageSink) Progress(percent int) {
	s.progress(percent, "")
}
