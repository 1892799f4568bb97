// Package poky lists the release branches of the poky repository and
// clones new checkouts.
package poky

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/progress"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the poky package
func SetLogger(l *logs.Logger) {
	log = l
}

// DefaultRemote is the upstream poky repository
const DefaultRemote = "git://git.yoctoproject.org/poky"

// FallbackBranches is returned when the remote cannot be listed
var FallbackBranches = []string{"scarthgap", "kirkstone", "dunfell", "master"}

// ListBranches returns the remote's branches in descending order with
// master first. Development "-next" branches are omitted. The returned
// bool is false when the fallback list was used.
func ListBranches(ctx context.Context, runner process.Runner, remote string) ([]string, bool) {
	if remote == "" {
		remote = DefaultRemote
	}

	var refs []string
	res := runner.Run(ctx, process.Command{
		Name: "git",
		Args: []string{"ls-remote", "--heads", remote},
	}, func(line string) {
		refs = append(refs, line)
	})

	if !res.Succeeded {
		log.Warn("Failed to list poky branches, using fallback list", "remote", remote, "error", res.ErrorText)
		return append([]string(nil), FallbackBranches...), false
	}

	branches := parseHeads(refs)
	if len(branches) == 0 {
		return append([]string(nil), FallbackBranches...), false
	}
	return branches, true
}

func parseHeads(lines []string) []string {
	var branches []string
	hasMaster := false

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "refs/heads/") {
			continue
		}
		name := strings.TrimPrefix(fields[1], "refs/heads/")
		switch {
		case strings.HasSuffix(name, "-next"):
			continue
		case name == "master":
			hasMaster = true
			continue
		}
		branches = append(branches, name)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(branches)))
	if hasMaster {
		branches = append([]string{"master"}, branches...)
	}
	return branches
}

// Clone clones branch of remote into <parent>/poky and returns the new
// checkout path. The destination must not exist.
func Clone(ctx context.Context, runner process.Runner, remote, branch, parent string, sink process.Sink) (string, error) {
	if sink == nil {
		sink = process.Discard
	}
	if remote == "" {
		remote = DefaultRemote
	}

	parent = paths.Expand(parent)
	if !paths.IsDir(parent) {
		return "", errors.ErrInvalidSetting.WithMessagef("Parent directory %s does not exist", parent)
	}
	dest := filepath.Join(parent, "poky")
	if paths.Exists(dest) {
		return "", errors.ErrDestinationExists.WithMessagef("%s already exists", dest)
	}

	args := []string{"clone", "--progress"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, remote, dest)

	sink.Append(fmt.Sprintf("Cloning %s (%s) into %s", remote, branch, dest))
	log.Info("Cloning poky", "remote", remote, "branch", branch, "dest", dest)

	res := runner.Run(ctx, process.Command{Name: "git", Args: args}, process.Monitor(progress.Percent(), sink))
	if !res.Succeeded {
		return "", errors.ErrCommandFailed.WithMessagef("git clone failed: %s", res.ErrorText)
	}

	sink.Progress(100)
	return dest, nil
}
