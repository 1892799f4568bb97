// Package version holds build-time version information for yfab.
package version

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
)

// Series lists the Yocto release series yfab's generated configuration is
// validated against, newest first.
var Series = []string{"scarthgap", "nanbield", "kirkstone", "dunfell"}

// Info describes one yfab build. Fields are filled from linker variables.
type Info struct {
	// Version is the full version string: "Dunlin (2026.10) - v1.2.0-4f9f297"
	Version        string `json:"version" yaml:"version"`
	ReleaseName    string `json:"release_name" yaml:"release_name"`
	ReleaseVersion string `json:"release_version" yaml:"release_version"`
	BuildDate      string `json:"build_date" yaml:"build_date"`
	GitCommit      string `json:"git_commit" yaml:"git_commit"`
	GoVersion      string `json:"go_version" yaml:"go_version"`

	// YoctoSeries are the release series this build supports
	YoctoSeries []string `json:"yocto_series" yaml:"yocto_series"`
}

// New returns the info of an unreleased development build
func New() *Info {
	return &Info{
		Version:        "dev",
		ReleaseName:    "Dunlin",
		ReleaseVersion: "0.0.0",
		BuildDate:      "unknown",
		GitCommit:      "unknown",
		GoVersion:      runtime.Version(),
		YoctoSeries:    slices.Clone(Series),
	}
}

// Stamp overrides the development defaults with the non-empty linker values
func (i *Info) Stamp(version, releaseName, releaseVersion, buildDate, gitCommit string) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&i.Version, version)
	set(&i.ReleaseName, releaseName)
	set(&i.ReleaseVersion, releaseVersion)
	set(&i.BuildDate, buildDate)
	set(&i.GitCommit, gitCommit)
}

func (i *Info) String() string {
	return i.Version
}

// AppID identifies yfab to remote services such as S3
func (i *Info) AppID() string {
	return "yfab-" + i.ReleaseVersion
}

// Supports reports whether a poky branch belongs to a validated series.
// master is accepted but tracks unreleased metadata.
func (i *Info) Supports(branch string) bool {
	return branch == "master" || slices.Contains(i.YoctoSeries, branch)
}

// Full returns a detailed multi-line version string
func (i *Info) Full() string {
	return fmt.Sprintf(`%s
  Release:      %s
  Version:      %s
  Build Date:   %s
  Git Commit:   %s
  Go Version:   %s
  Yocto Series: %s`,
		i.Version,
		i.ReleaseName,
		i.ReleaseVersion,
		i.BuildDate,
		i.GitCommit,
		i.GoVersion,
		strings.Join(i.YoctoSeries, ", "),
	)
}
