package layers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/process/processtest"
)

// ===== Test Helpers =====

func sourceRoot(t *testing.T, present ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range present {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0755))
	}
	return root
}

var (
	layerA = Requirement{Name: "meta-openembedded", URL: "https://git.openembedded.org/meta-openembedded"}
	layerB = Requirement{Name: "meta-raspberrypi", URL: "https://git.yoctoproject.org/meta-raspberrypi"}
)

// ===== Resolve Tests =====

func TestResolve_ReturnsOnlyMissing(t *testing.T) {
	root := sourceRoot(t, layerA.Name)
	r := NewResolver(processtest.New(), "")

	missing := r.Resolve([]Requirement{layerA, layerB}, root)

	assert.Equal(t, []Requirement{layerB}, missing)
}

func TestResolve_FileIsNotALayer(t *testing.T) {
	root := sourceRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, layerA.Name), nil, 0644))

	missing := NewResolver(processtest.New(), "").Resolve([]Requirement{layerA, layerA}, root)

	assert.Equal(t, []Requirement{layerA}, missing, "a plain file is not a layer and duplicates collapse")
}

// ===== DetectBranch Tests =====

func TestDetectBranch(t *testing.T) {
	tests := []struct {
		name  string
		reply processtest.Reply
		want  string
	}{
		{"named branch", processtest.OK("kirkstone"), "kirkstone"},
		{"detached head", processtest.OK("HEAD"), "scarthgap"},
		{"no output", processtest.OK(), "scarthgap"},
		{"not a repository", processtest.Fail(128, "fatal: not a git repository"), "scarthgap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := processtest.New().On("git rev-parse", tt.reply)
			r := NewResolver(runner, "")

			assert.Equal(t, tt.want, r.DetectBranch(context.Background(), "/poky"))

			calls := runner.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "/poky", calls[0].Command.Dir)
		})
	}
}

func TestDetectBranch_ConfiguredDefault(t *testing.T) {
	runner := processtest.New().On("git rev-parse", processtest.Fail(1, ""))
	assert.Equal(t, "dunfell", NewResolver(runner, "dunfell").DetectBranch(context.Background(), "/poky"))
}

// ===== Fetch Tests =====

func TestFetch_ClonesWithDetectedBranch(t *testing.T) {
	root := sourceRoot(t)
	runner := processtest.New()
	sink := &processtest.Sink{}

	err := NewResolver(runner, "").Fetch(context.Background(), []Requirement{layerB}, "kirkstone", root, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"git clone --progress -b kirkstone https://git.yoctoproject.org/meta-raspberrypi " + filepath.Join(root, "meta-raspberrypi"),
	}, runner.Lines())
}

func TestFetch_RetriesWithoutBranch(t *testing.T) {
	root := sourceRoot(t)
	runner := processtest.New().
		On("git clone --progress -b", processtest.Fail(128, "fatal: Remote branch kirkstone not found"))

	err := NewResolver(runner, "").Fetch(context.Background(), []Requirement{layerB}, "kirkstone", root, nil)

	require.NoError(t, err)
	lines := runner.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "-b kirkstone")
	assert.Equal(t, "git clone --progress https://git.yoctoproject.org/meta-raspberrypi "+filepath.Join(root, "meta-raspberrypi"), lines[1])
}

func TestFetch_FailsOnlyWhenBothAttemptsFail(t *testing.T) {
	root := sourceRoot(t)
	runner := processtest.New().
		On("git clone --progress -b scarthgap https://git.openembedded.org", processtest.Fail(128, "branch missing")).
		On("git clone --progress https://git.openembedded.org", processtest.Fail(128, "unreachable"))

	err := NewResolver(runner, "").Fetch(context.Background(), []Requirement{layerA, layerB}, "", root, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLayerFetch))
	assert.True(t, errors.IsWarning(err))
	assert.Contains(t, err.Error(), "meta-openembedded")
	assert.NotContains(t, err.Error(), "Failed to fetch meta-raspberrypi")
	assert.Len(t, runner.Lines(), 3, "both attempts for A, one for B")
}

func TestFetch_BranchOverrideWins(t *testing.T) {
	runner := processtest.New()
	rauc := Requirement{Name: "meta-rauc", URL: "https://github.com/rauc/meta-rauc", Branch: "scarthgap"}

	err := NewResolver(runner, "").Fetch(context.Background(), []Requirement{rauc}, "kirkstone", sourceRoot(t), nil)

	require.NoError(t, err)
	require.Len(t, runner.Lines(), 1)
	assert.Contains(t, runner.Lines()[0], "-b scarthgap")
}

func TestFetch_StreamsProgress(t *testing.T) {
	runner := processtest.New().On("git clone", processtest.OK(
		"Cloning into 'meta-raspberrypi'...",
		"Receiving objects:  50% (5/10)",
		"Receiving objects: 100% (10/10), done.",
	))
	sink := &processtest.Sink{}

	err := NewResolver(runner, "").Fetch(context.Background(), []Requirement{layerB}, "", sourceRoot(t), sink)

	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, sink.Percents)
	assert.Contains(t, sink.Appended, "Cloning into 'meta-raspberrypi'...")
	assert.Len(t, sink.Overwrites, 2)
}
