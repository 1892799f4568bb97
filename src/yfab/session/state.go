// Package session holds the persisted per-build-tree settings: target
// machine, image, package and init choices, feature flags and the state
// blobs of board providers.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the session package
func SetLogger(l *logs.Logger) {
	log = l
}

// FileName is the session file name inside <build>/conf
const FileName = "yfab-session.json"

// Init systems
const (
	InitSysvinit = "sysvinit"
	InitSystemd  = "systemd"
)

// Choices offered for the base settings
var (
	Machines       = []string{"raspberrypi0-wifi", "raspberrypi3", "raspberrypi4", "raspberrypi5", "qemux86-64"}
	Images         = []string{"core-image-minimal", "core-image-base", "core-image-full-cmdline"}
	PackageFormats = []string{"package_rpm", "package_deb", "package_ipk"}
	InitSystems    = []string{InitSysvinit, InitSystemd}
)

// Features are the EXTRA_IMAGE_FEATURES toggles
type Features struct {
	DebugTweaks bool `json:"debug_tweaks"`
	SSHServer   bool `json:"ssh_server"`
	ToolsDebug  bool `json:"tools_debug"`
}

// List returns the image feature names that are enabled, in a fixed order
func (f Features) List() []string {
	var out []string
	if f.DebugTweaks {
		out = append(out, "debug-tweaks")
	}
	if f.SSHServer {
		out = append(out, "ssh-server-openssh")
	}
	if f.ToolsDebug {
		out = append(out, "tools-debug")
	}
	return out
}

// State is the session record. It is passed explicitly to every component
// that reads or changes settings.
type State struct {
	Machine       string   `json:"machine"`
	Image         string   `json:"image"`
	PackageFormat string   `json:"package_format"`
	InitSystem    string   `json:"init_system"`
	Features      Features `json:"features"`
	// LayerSeries overrides the release name written to generated layers.
	// Empty means the branch detected from the poky checkout.
	LayerSeries string `json:"layer_series,omitempty"`
	// Providers maps provider names to their serialized state
	Providers map[string]json.RawMessage `json:"providers,omitempty"`
}

// Defaults returns the built-in settings used when no session file exists
func Defaults() *State {
	return &State{
		Machine:       "raspberrypi0-wifi",
		Image:         "core-image-full-cmdline",
		PackageFormat: "package_rpm",
		InitSystem:    InitSysvinit,
		Features: Features{
			DebugTweaks: true,
			SSHServer:   true,
		},
		Providers: map[string]json.RawMessage{},
	}
}

// Path returns the session file location for a build directory
func Path(buildDir string) string {
	return filepath.Join(buildDir, "conf", FileName)
}

// Load reads the session file. A missing file yields the defaults; fields
// absent from the file keep their default values.
func Load(path string) (*State, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Debug("No session file, using defaults", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, errors.ErrConfigRead.WithMessagef("Failed to read session %s", path).WithCause(err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.ErrConfigRead.WithMessagef("Session file %s is not valid JSON", path).WithCause(err)
	}
	if err := checkImage(s.Image); err != nil {
		return nil, errors.ErrConfigRead.WithMessagef("Session file %s is invalid", path).WithCause(err)
	}
	if s.Providers == nil {
		s.Providers = map[string]json.RawMessage{}
	}
	return s, nil
}

// Save writes the session atomically
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.ErrInternal.WithMessage("Failed to encode session").WithCause(err)
	}
	data = append(data, '\n')

	if err := paths.WriteFileAtomic(path, data, 0600); err != nil {
		return errors.ErrConfigWrite.WithMessagef("Failed to write session %s", path).WithCause(err)
	}
	log.Debug("Session saved", "path", path)
	return nil
}

// ProviderState returns the stored blob for a provider, nil if none
func (s *State) ProviderState(name string) json.RawMessage {
	return s.Providers[name]
}

// SetProviderState stores the blob for a provider
func (s *State) SetProviderState(name string, raw json.RawMessage) {
	if s.Providers == nil {
		s.Providers = map[string]json.RawMessage{}
	}
	s.Providers[name] = raw
}

// Field is one displayable setting
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Fields lists the base settings in display order
func (s *State) Fields() []Field {
	return []Field{
		{"machine", s.Machine},
		{"image", s.Image},
		{"package_format", s.PackageFormat},
		{"init_system", s.InitSystem},
		{"features.debug_tweaks", strconv.FormatBool(s.Features.DebugTweaks)},
		{"features.ssh_server", strconv.FormatBool(s.Features.SSHServer)},
		{"features.tools_debug", strconv.FormatBool(s.Features.ToolsDebug)},
		{"layer_series", s.LayerSeries},
	}
}

// Set changes one base setting. Unknown keys and values outside the known
// choices are rejected; the image name is free-form.
func (s *State) Set(key, value string) error {
	switch key {
	case "machine":
		if err := oneOf(key, value, Machines); err != nil {
			return err
		}
		s.Machine = value
	case "image":
		if err := checkImage(value); err != nil {
			return err
		}
		s.Image = value
	case "package_format":
		if err := oneOf(key, value, PackageFormats); err != nil {
			return err
		}
		s.PackageFormat = value
	case "init_system":
		if err := oneOf(key, value, InitSystems); err != nil {
			return err
		}
		s.InitSystem = value
	case "features.debug_tweaks":
		return setBool(&s.Features.DebugTweaks, key, value)
	case "features.ssh_server":
		return setBool(&s.Features.SSHServer, key, value)
	case "features.tools_debug":
		return setBool(&s.Features.ToolsDebug, key, value)
	case "layer_series":
		s.LayerSeries = value
	default:
		return errors.ErrInvalidSetting.WithMessagef("unknown setting %q", key)
	}
	return nil
}

// imagePattern matches bitbake target names. The image is written into
// quoted directives and used in file globs.
var imagePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

func checkImage(value string) error {
	if value == "" {
		return errors.ErrInvalidSetting.WithMessage("image must not be empty")
	}
	if !imagePattern.MatchString(value) {
		return errors.ErrInvalidSetting.WithMessagef("invalid image name %q", value)
	}
	return nil
}

// KnownImage reports whether the image is one of the standard poky images
func KnownImage(name string) bool {
	return contains(Images, name)
}

func oneOf(key, value string, choices []string) error {
	if contains(choices, value) {
		return nil
	}
	sorted := append([]string(nil), choices...)
	sort.Strings(sorted)
	return errors.ErrInvalidSetting.WithMessagef("%s must be one of %v, got %q", key, sorted, value)
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return errors.ErrInvalidSetting.WithMessagef("%s must be true or false, got %q", key, value)
	}
	*dst = b
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// String renders a one-line summary for logs
func (s *State) String() string {
	return fmt.Sprintf("%s/%s (%s, %s)", s.Machine, s.Image, s.PackageFormat, s.InitSystem)
}
