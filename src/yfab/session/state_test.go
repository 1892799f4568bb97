package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitswalk/yfab/src/common/errors"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "conf", FileName))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Machine != "raspberrypi0-wifi" || s.InitSystem != InitSysvinit || !s.Features.SSHServer {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	s := Defaults()
	s.Machine = "raspberrypi4"
	s.InitSystem = InitSystemd
	s.SetProviderState("raspberrypi", json.RawMessage(`{"hostname":"pi"}`))

	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Machine != "raspberrypi4" || loaded.InitSystem != InitSystemd {
		t.Errorf("loaded = %+v", loaded)
	}
	var blob map[string]string
	if err := json.Unmarshal(loaded.ProviderState("raspberrypi"), &blob); err != nil || blob["hostname"] != "pi" {
		t.Errorf("provider state = %s (%v)", loaded.ProviderState("raspberrypi"), err)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(`{"machine":"raspberrypi3"}`), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Machine != "raspberrypi3" || s.Image != "core-image-full-cmdline" || s.Providers == nil {
		t.Errorf("Load() = %+v", s)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, errors.ErrConfigRead) {
		t.Errorf("Load() error = %v, want ErrConfigRead", err)
	}
}

func TestLoad_RejectsUnsafeImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(`{"image":"core-image\"\nMACHINE = \"x"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, errors.ErrConfigRead) {
		t.Errorf("Load() error = %v, want ErrConfigRead", err)
	}
}

func TestState_Set(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{"machine", "raspberrypi5", false},
		{"machine", "beaglebone", true},
		{"image", "my-custom-image", false},
		{"image", "", true},
		{"image", "core-image-base+dev_1.0", false},
		{"image", `core"image`, true},
		{"image", "core-image\nMACHINE = \"x\"", true},
		{"image", `core\image`, true},
		{"image", "core-image-*", true},
		{"image", "core-image-[ab]", true},
		{"image", "core image", true},
		{"package_format", "package_deb", false},
		{"package_format", "package_tar", true},
		{"init_system", "systemd", false},
		{"init_system", "openrc", true},
		{"features.tools_debug", "true", false},
		{"features.tools_debug", "maybe", true},
		{"layer_series", "kirkstone", false},
		{"nope", "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := Defaults()
			err := s.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidSetting) {
				t.Errorf("error = %v, want ErrInvalidSetting", err)
			}
		})
	}
}

func TestFeatures_List(t *testing.T) {
	f := Features{DebugTweaks: true, ToolsDebug: true}
	got := f.List()
	if len(got) != 2 || got[0] != "debug-tweaks" || got[1] != "tools-debug" {
		t.Errorf("List() = %v", got)
	}
	if len(Features{}.List()) != 0 {
		t.Error("no features should produce an empty list")
	}
}

func TestKnownImage(t *testing.T) {
	if !KnownImage("core-image-minimal") || KnownImage("my-image") {
		t.Error("unexpected KnownImage result")
	}
}
