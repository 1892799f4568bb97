// Package board contains the hardware-family providers that turn session
// settings into generated directives, layer requirements and auxiliary
// build files.
package board

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/yfab/conf"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/session"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the board package
func SetLogger(l *logs.Logger) {
	log = l
}

// GeneratedLayer is the layer directory, next to poky's own layers, that
// receives every generated recipe and configuration file.
const GeneratedLayer = "meta-yfab-board"

// Provider is the capability set of one hardware family
type Provider interface {
	// Name identifies the provider in the session file
	Name() string
	// IsSupported reports whether the provider handles the machine
	IsSupported(machine string) bool
	// RequiredLayers lists the layer trees the current settings need
	RequiredLayers() []layers.Requirement
	// LayerRegistrationLines returns the bblayers.conf lines to add
	LayerRegistrationLines() []string
	// GeneratedDirectives renders the local.conf directives. It also
	// regenerates the provider's auxiliary files.
	GeneratedDirectives() ([]conf.Directive, error)
	// SerializeState encodes the provider settings for the session file
	SerializeState() (json.RawMessage, error)
	// DeserializeState restores settings saved by SerializeState
	DeserializeState(raw json.RawMessage) error
}

// LegacyCleaner is implemented by providers whose earlier versions wrote
// standalone lines that must be removed from user-owned content.
type LegacyCleaner interface {
	LegacyCleanup() []conf.Predicate
}

// Configurable is implemented by providers exposing their settings to
// `yfab config set/show`.
type Configurable interface {
	Set(key, value string) error
	Fields() []session.Field
}

// Sealer protects secrets written to the session file
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// WifiStack selects which networking packages back the Wi-Fi option
type WifiStack string

// Wi-Fi stacks
const (
	// WifiNetworkd installs wpa_supplicant driven by a systemd unit with
	// systemd-networkd DHCP. It switches the image to systemd.
	WifiNetworkd WifiStack = "networkd"
	// WifiMinimal installs wpa_supplicant and firmware only and ships the
	// credentials through a wpa-supplicant bbappend.
	WifiMinimal WifiStack = "minimal"
)

// ParseWifiStack validates a configured stack name. Empty selects networkd.
func ParseWifiStack(s string) (WifiStack, error) {
	switch WifiStack(s) {
	case "", WifiNetworkd:
		return WifiNetworkd, nil
	case WifiMinimal:
		return WifiMinimal, nil
	}
	return "", errors.ErrInvalidSetting.WithMessagef("board.wifi_stack must be networkd or minimal, got %q", s)
}

// Env is the context providers generate against
type Env struct {
	// PokyDir is the poky checkout; the generated layer lives next to it
	PokyDir string
	// Series is written to LAYERSERIES_COMPAT of the generated layer
	Series string
	// KeysDir holds the RAUC signing key and certificate
	KeysDir   string
	WifiStack WifiStack
	Session   *session.State
	// Sealer, when set, seals secrets in serialized state
	Sealer Sealer
	// DryRun renders directives without touching the generated layer
	DryRun bool
}

// LayerDir returns the generated layer directory
func (e *Env) LayerDir() string {
	return filepath.Join(e.PokyDir, GeneratedLayer)
}

func (e *Env) seal(v string) (string, error) {
	if e.Sealer == nil {
		return v, nil
	}
	return e.Sealer.Seal(v)
}

func (e *Env) open(v string) (string, error) {
	if e.Sealer == nil {
		return v, nil
	}
	return e.Sealer.Open(v)
}

// Registry is the static, ordered list of providers
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry. Order matters: Select returns the first
// provider supporting the machine.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Default returns the registry of built-in providers
func Default(env *Env) *Registry {
	return NewRegistry(NewRaspberryPi(env))
}

// Providers returns the registered providers in order
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Select returns the provider for the machine, or nil for a generic target
func (r *Registry) Select(machine string) Provider {
	for _, p := range r.providers {
		if p.IsSupported(machine) {
			return p
		}
	}
	return nil
}

// Get returns a provider by name
func (r *Registry) Get(name string) Provider {
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// LegacyCleanup gathers the cleanup predicates of every registered
// provider, so lines from an earlier board survive a machine switch only
// if the user wrote them.
func (r *Registry) LegacyCleanup() []conf.Predicate {
	var out []conf.Predicate
	for _, p := range r.providers {
		if c, ok := p.(LegacyCleaner); ok {
			out = append(out, c.LegacyCleanup()...)
		}
	}
	return out
}

// Load restores every provider from the session
func (r *Registry) Load(s *session.State) error {
	for _, p := range r.providers {
		raw := s.ProviderState(p.Name())
		if len(raw) == 0 {
			continue
		}
		if err := p.DeserializeState(raw); err != nil {
			return errors.ErrConfigRead.WithMessagef("Invalid %s settings in session", p.Name()).WithCause(err)
		}
	}
	return nil
}

// Store serializes every provider into the session
func (r *Registry) Store(s *session.State) error {
	for _, p := range r.providers {
		raw, err := p.SerializeState()
		if err != nil {
			return errors.ErrInternal.WithMessagef("Failed to serialize %s settings", p.Name()).WithCause(err)
		}
		s.SetProviderState(p.Name(), raw)
	}
	return nil
}

// fileSet is the content of generated files keyed by path relative to the
// generated layer.
type fileSet map[string]string

// sync writes every file of the set and removes the known files that are
// no longer generated.
func (fs fileSet) sync(layerDir string, known []string) error {
	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := conf.WriteGenerated(filepath.Join(layerDir, name), []byte(fs[name])); err != nil {
			return err
		}
	}

	for _, name := range known {
		if _, ok := fs[name]; ok {
			continue
		}
		path := filepath.Join(layerDir, name)
		if err := os.Remove(path); err == nil {
			log.Debug("Removed stale generated file", "path", path)
		} else if !os.IsNotExist(err) {
			return errors.ErrConfigWrite.WithMessagef("Failed to remove %s", path).WithCause(err)
		}
	}
	return nil
}
