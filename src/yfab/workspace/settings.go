package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/build"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/session"
)

// Assignment is one key=value setting change
type Assignment struct {
	Key   string
	Value string
}

// ParseAssignments parses key=value arguments
func ParseAssignments(args []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.ErrInvalidSetting.WithMessagef("Expected key=value, got %q", arg)
		}
		out = append(out, Assignment{Key: key, Value: value})
	}
	return out, nil
}

// apply loads the session and applies changes on the builder's registry
func (w *Workspace) apply(changes []Assignment) (*session.State, error) {
	s, err := w.builder.LoadSession()
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		if err := w.Set(s, c.Key, c.Value); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Validate checks changes without keeping them
func (w *Workspace) Validate(changes []Assignment) error {
	s, err := session.Load(w.config.Tree.SessionPath())
	if err != nil {
		return err
	}
	registry := board.Default(w.config.env())
	if err := registry.Load(s); err != nil {
		return err
	}
	for _, c := range changes {
		if err := set(registry, s, c.Key, c.Value); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureOp returns the body of a configuration apply. changes are
// applied to the session first; the managed blocks and generated files are
// then rewritten and the session saved.
func (w *Workspace) ConfigureOp(changes []Assignment) operation.Func {
	return func(ctx context.Context, sink process.Sink) process.Result {
		s, err := w.apply(changes)
		if err != nil {
			return process.Failed("%v", err)
		}
		if err := w.builder.Configure(ctx, s, sink); err != nil {
			return process.Failed("%v", err)
		}
		sink.Append(fmt.Sprintf("Configuration written to %s", w.config.Tree.LocalConf()))
		return process.Result{Succeeded: true}
	}
}

// Preview returns the diffs applying changes would produce, writing nothing
func (w *Workspace) Preview(ctx context.Context, changes []Assignment) ([]build.FileDiff, error) {
	s, err := w.apply(changes)
	if err != nil {
		return nil, err
	}
	return w.builder.Preview(ctx, s)
}

// LayerStatus is one layer the session target needs
type LayerStatus struct {
	layers.Requirement
	Path    string `json:"path"`
	Present bool   `json:"present"`
}

// Layers lists the layers the session target requires. A generic target
// requires none.
func (w *Workspace) Layers() ([]LayerStatus, error) {
	snap, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	p := snap.registry.Select(snap.State.Machine)
	if p == nil {
		return nil, nil
	}

	reqs := p.RequiredLayers()
	missing := map[string]bool{}
	for _, m := range w.resolver.Resolve(reqs, w.config.Tree.PokyDir) {
		missing[m.Name] = true
	}

	out := make([]LayerStatus, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, LayerStatus{
			Requirement: r,
			Path:        filepath.Join(w.config.Tree.PokyDir, r.Name),
			Present:     !missing[r.Name],
		})
	}
	return out, nil
}

// FetchLayersOp returns the body of a fetch of the missing layers. branch
// overrides the branch detected from the poky checkout.
func (w *Workspace) FetchLayersOp(branch string) operation.Func {
	return func(ctx context.Context, sink process.Sink) process.Result {
		status, err := w.Layers()
		if err != nil {
			return process.Failed("%v", err)
		}
		var missing []layers.Requirement
		for _, l := range status {
			if !l.Present {
				missing = append(missing, l.Requirement)
			}
		}
		if len(missing) == 0 {
			sink.Append("All required layers are present")
			return process.Result{Succeeded: true}
		}

		if branch == "" {
			branch = w.resolver.DetectBranch(ctx, w.config.Tree.PokyDir)
		}
		if err := w.resolver.Fetch(ctx, missing, branch, w.config.Tree.PokyDir, sink); err != nil {
			return process.Failed("%v", err)
		}
		sink.Progress(100)
		return process.Result{Succeeded: true}
	}
}
