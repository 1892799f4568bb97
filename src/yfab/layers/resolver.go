// Package layers resolves the external layer trees a board needs and
// clones the missing ones next to poky.
package layers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/progress"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the layers package
func SetLogger(l *logs.Logger) {
	log = l
}

// DefaultBranch is used when the poky checkout has no named branch
const DefaultBranch = "scarthgap"

// Requirement is one external layer tree
type Requirement struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Branch, when set, is used instead of the detected poky branch
	Branch string `json:"branch,omitempty"`
}

// Resolver detects and fetches layer trees through a process.Runner
type Resolver struct {
	runner        process.Runner
	defaultBranch string
}

// NewResolver creates a resolver. An empty default branch falls back to
// DefaultBranch.
func NewResolver(runner process.Runner, defaultBranch string) *Resolver {
	if defaultBranch == "" {
		defaultBranch = DefaultBranch
	}
	return &Resolver{runner: runner, defaultBranch: defaultBranch}
}

// Resolve returns the requirements whose directory does not exist directly
// under sourceRoot, in order and without duplicates. Contents are not
// validated.
func (r *Resolver) Resolve(reqs []Requirement, sourceRoot string) []Requirement {
	seen := make(map[string]bool)
	var missing []Requirement

	for _, req := range reqs {
		if seen[req.Name] {
			continue
		}
		seen[req.Name] = true

		if paths.IsDir(filepath.Join(sourceRoot, req.Name)) {
			log.Debug("Layer present", "name", req.Name)
			continue
		}
		missing = append(missing, req)
	}

	return missing
}

// DetectBranch returns the branch checked out in the primary tree, or the
// default branch when it cannot be determined or HEAD is detached.
func (r *Resolver) DetectBranch(ctx context.Context, primaryTree string) string {
	var branch string
	res := r.runner.Run(ctx, process.Command{
		Name: "git",
		Args: []string{"rev-parse", "--abbrev-ref", "HEAD"},
		Dir:  primaryTree,
	}, func(line string) {
		if branch == "" {
			branch = line
		}
	})

	if !res.Succeeded || branch == "" || branch == "HEAD" {
		log.Debug("Branch detection failed, using default",
			"tree", primaryTree, "default", r.defaultBranch, "error", res.ErrorText)
		return r.defaultBranch
	}
	return branch
}

// Fetch clones every missing requirement into sourceRoot. Each clone is
// tried on the requirement's branch (or branchHint), then once more on the
// remote's default branch. Every requirement is attempted; the returned
// error lists those for which both attempts failed.
func (r *Resolver) Fetch(ctx context.Context, missing []Requirement, branchHint, sourceRoot string, sink process.Sink) error {
	if sink == nil {
		sink = process.Discard
	}
	if branchHint == "" {
		branchHint = r.defaultBranch
	}

	var failed []string
	var causes []string

	for _, req := range missing {
		branch := req.Branch
		if branch == "" {
			branch = branchHint
		}
		dest := filepath.Join(sourceRoot, req.Name)

		sink.Append(fmt.Sprintf("Cloning %s (%s)", req.Name, branch))
		log.Info("Cloning layer", "name", req.Name, "branch", branch, "url", req.URL)

		res := r.clone(ctx, req.URL, branch, dest, sink)
		if res.Succeeded {
			continue
		}

		sink.Append(fmt.Sprintf("Branch %s unavailable for %s, retrying with the default branch", branch, req.Name))
		log.Warn("Clone failed, retrying without branch", "name", req.Name, "branch", branch)

		res = r.clone(ctx, req.URL, "", dest, sink)
		if res.Succeeded {
			continue
		}

		log.Error("Failed to fetch layer", "name", req.Name, "error", res.ErrorText)
		failed = append(failed, req.Name)
		causes = append(causes, fmt.Sprintf("%s: %s", req.Name, res.ErrorText))
	}

	if len(failed) > 0 {
		return errors.ErrLayerFetch.
			WithMessagef("Failed to fetch %s", strings.Join(failed, ", ")).
			WithCause(fmt.Errorf("%s", strings.Join(causes, "\n")))
	}
	return nil
}

func (r *Resolver) clone(ctx context.Context, url, branch, dest string, sink process.Sink) process.Result {
	args := []string{"clone", "--progress"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, url, dest)

	return r.runner.Run(ctx, process.Command{Name: "git", Args: args},
		process.Monitor(progress.Percent(), sink))
}
