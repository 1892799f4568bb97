package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitswalk/yfab/src/common/errors"
)

// ===== Test Helpers =====

const userLocalConf = `# This file is your local configuration file
MACHINE ??= "qemux86-64"
DISTRO ?= "poky"
PACKAGE_CLASSES ?= "package_ipk"
ENABLE_UART = "1"
BB_NUMBER_THREADS = "8"
CONF_VERSION = "2"`

func samplePatch() Patch {
	return Patch{
		Pinned: []Directive{
			D("MACHINE", `MACHINE ??= "raspberrypi0-wifi"`),
			D("PACKAGE_CLASSES", `PACKAGE_CLASSES ?= "package_rpm"`),
		},
		Directives: []Directive{
			{Line: `DISTRO_FEATURES:append = " systemd"`},
			{Line: `ENABLE_UART = "1"`},
		},
		Cleanup: []Predicate{KeyPattern("ENABLE_UART")},
	}
}

func writeConf(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "build", "conf")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create conf dir: %v", err)
	}
	path := filepath.Join(dir, "local.conf")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write conf: %v", err)
	}
	return path
}

func readConf(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read conf: %v", err)
	}
	return string(data)
}

func countMatches(content string, match Predicate) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if match(line) {
			n++
		}
	}
	return n
}

// ===== Apply Tests =====

func TestApply_Idempotent(t *testing.T) {
	inputs := map[string]string{
		"user file":          userLocalConf,
		"empty":              "",
		"crlf":               "A = \"1\"\r\nB = \"2\"\r\n",
		"already patched":    string(Local().Apply([]byte(userLocalConf), samplePatch())),
		"unterminated block": "X = \"1\"\n" + LocalStart + "\nOLD = \"1\"\n",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			first := Local().Apply([]byte(input), samplePatch())
			second := Local().Apply(first, samplePatch())
			if string(first) != string(second) {
				t.Errorf("second apply differs:\n--- first\n%s\n--- second\n%s", first, second)
			}
		})
	}
}

func TestApply_PreservesUserLines(t *testing.T) {
	out := string(Local().Apply([]byte(userLocalConf), samplePatch()))

	want := "# This file is your local configuration file\n" +
		"DISTRO ?= \"poky\"\n" +
		"BB_NUMBER_THREADS = \"8\"\n" +
		"CONF_VERSION = \"2\"\n" +
		"MACHINE ??= \"raspberrypi0-wifi\"\n" +
		"PACKAGE_CLASSES ?= \"package_rpm\"\n" +
		LocalStart + "\n" +
		"DISTRO_FEATURES:append = \" systemd\"\n" +
		"ENABLE_UART = \"1\"\n" +
		LocalEnd + "\n"

	if out != want {
		t.Errorf("Apply() =\n%s\nwant\n%s", out, want)
	}
}

func TestApply_PinnedKeyUniqueness(t *testing.T) {
	input := "MACHINE = \"a\"\n  MACHINE ?= \"b\"\nMACHINE:append = \" x\"\n"
	out := string(Local().Apply([]byte(input), samplePatch()))

	if n := countMatches(out, KeyPattern("MACHINE")); n != 1 {
		t.Errorf("MACHINE assignments = %d, want 1\n%s", n, out)
	}
	if !strings.Contains(out, "MACHINE:append = \" x\"\n") {
		t.Error("override syntax must not be treated as a pinned assignment")
	}
}

func TestApply_ReplacesPreviousBlock(t *testing.T) {
	input := "A = \"1\"\n" + LocalStart + "\nOLD = \"gone\"\n" + LocalEnd + "\nB = \"2\"\n"
	out := string(Local().Apply([]byte(input), Patch{Directives: []Directive{{Line: "NEW = \"1\""}}}))

	if strings.Contains(out, "OLD") {
		t.Errorf("previous block survived:\n%s", out)
	}
	if strings.Count(out, LocalStart) != 1 || strings.Count(out, LocalEnd) != 1 {
		t.Errorf("expected exactly one managed block:\n%s", out)
	}
	if !strings.HasPrefix(out, "A = \"1\"\nB = \"2\"\n") {
		t.Errorf("user lines reordered:\n%s", out)
	}
}

func TestApply_TerminatesLastLine(t *testing.T) {
	out := string(Local().Apply([]byte("A = \"1\""), Patch{Directives: []Directive{{Line: "B = \"2\""}}}))
	if !strings.HasPrefix(out, "A = \"1\"\n"+LocalStart+"\n") {
		t.Errorf("Apply() = %q", out)
	}
}

func TestApply_EmptyPatchRemovesBlock(t *testing.T) {
	input := "A = \"1\"\n" + LocalStart + "\nB = \"2\"\n" + LocalEnd + "\n"
	if out := string(Local().Apply([]byte(input), Patch{})); out != "A = \"1\"\n" {
		t.Errorf("Apply() = %q", out)
	}
}

// ===== Predicate Tests =====

func TestKeyPattern(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{`MACHINE = "x"`, true},
		{`MACHINE ?= "x"`, true},
		{`MACHINE ??= "x"`, true},
		{`   MACHINE="x"`, true},
		{`MACHINE:append = "x"`, false},
		{`MACHINE_FEATURES = "x"`, false},
		{`# MACHINE = "x"`, false},
	}

	match := KeyPattern("MACHINE")
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := match(tt.line); got != tt.want {
				t.Errorf("KeyPattern(MACHINE)(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}

	if !KeyPattern("VIRTUAL-RUNTIME_init_manager")(`VIRTUAL-RUNTIME_init_manager = "systemd"`) {
		t.Error("keys with regexp metacharacters should match literally")
	}
}

func TestContains(t *testing.T) {
	match := Contains("IMAGE_INSTALL", "kernel-module-dwc2")
	if !match(`IMAGE_INSTALL:append = " kernel-module-dwc2"`) {
		t.Error("expected match")
	}
	if match(`IMAGE_INSTALL:append = " rauc"`) {
		t.Error("unexpected match")
	}
}

// ===== PatchFile Tests =====

func TestPatchFile_WritesAndIsStable(t *testing.T) {
	path := writeConf(t, userLocalConf)

	if err := Local().PatchFile(path, samplePatch(), true); err != nil {
		t.Fatalf("PatchFile() error = %v", err)
	}
	first := readConf(t, path)

	if err := Local().PatchFile(path, samplePatch(), true); err != nil {
		t.Fatalf("PatchFile() error = %v", err)
	}
	if second := readConf(t, path); second != first {
		t.Errorf("second patch changed the file:\n%s", Diff("local.conf", []byte(first), []byte(second)))
	}
}

func TestPatchFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build", "conf", "local.conf")

	err := Local().PatchFile(path, samplePatch(), true)
	if !errors.Is(err, errors.ErrBuildTreeMissing) {
		t.Fatalf("PatchFile() error = %v, want ErrBuildTreeMissing", err)
	}
	if errors.Category(err) != "configuration error" {
		t.Errorf("Category() = %q", errors.Category(err))
	}
}

func TestPatchFile_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.conf")

	if err := Local().PatchFile(path, samplePatch(), true); !errors.Is(err, errors.ErrConfigNotFound) {
		t.Fatalf("primary: error = %v, want ErrConfigNotFound", err)
	}

	aux := filepath.Join(dir, "auto.conf")
	if err := Local().PatchFile(aux, samplePatch(), false); err != nil {
		t.Fatalf("auxiliary: error = %v", err)
	}
	if !strings.Contains(readConf(t, aux), LocalStart) {
		t.Error("auxiliary file should be created with the block")
	}
}

// ===== Layer Registration Tests =====

func TestLayerName(t *testing.T) {
	tests := map[string]string{
		`BBLAYERS += "${TOPDIR}/../meta-raspberrypi"`:            "meta-raspberrypi",
		`BBLAYERS += " ${TOPDIR}/../meta-openembedded/meta-oe "`: "meta-oe",
		`  /home/dev/poky/meta-yocto-bsp \`:                     "meta-yocto-bsp",
		`BBLAYERS += ""`:                                         "",
	}
	for line, want := range tests {
		if got := LayerName(line); got != want {
			t.Errorf("LayerName(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestRegisterLayers(t *testing.T) {
	bblayers := `BBLAYERS ?= " \
  /home/dev/poky/meta \
  /home/dev/poky/meta-raspberrypi \
  "
`
	path := writeConf(t, bblayers)
	lines := []string{
		`BBLAYERS += "${TOPDIR}/../meta-openembedded/meta-oe"`,
		`BBLAYERS += "${TOPDIR}/../meta-raspberrypi"`,
	}

	if err := RegisterLayers(path, lines); err != nil {
		t.Fatalf("RegisterLayers() error = %v", err)
	}
	out := readConf(t, path)

	if !strings.HasPrefix(out, bblayers) {
		t.Errorf("user content changed:\n%s", out)
	}
	if !strings.Contains(out, lines[0]) {
		t.Errorf("meta-oe not registered:\n%s", out)
	}
	if strings.Contains(out, lines[1]) {
		t.Errorf("meta-raspberrypi registered twice:\n%s", out)
	}

	if err := RegisterLayers(path, nil); err != nil {
		t.Fatalf("RegisterLayers(nil) error = %v", err)
	}
	if out := readConf(t, path); out != bblayers {
		t.Errorf("empty registration should remove the block, got:\n%s", out)
	}
}

func TestPreviewLayers(t *testing.T) {
	path := writeConf(t, "BBLAYERS ?= \"/poky/meta\"\n")
	line := `BBLAYERS += "${TOPDIR}/../meta-rauc"`

	before, after, err := PreviewLayers(path, []string{line})
	if err != nil {
		t.Fatalf("PreviewLayers() error = %v", err)
	}
	if !strings.Contains(string(after), line) || strings.Contains(string(before), line) {
		t.Errorf("after = %q", after)
	}
	if readConf(t, path) != string(before) {
		t.Error("preview must not write the file")
	}
}

// ===== Generated File Tests =====

func TestWriteGenerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta-yfab-board", "conf", "layer.conf")

	changed, err := WriteGenerated(path, []byte("A\n"))
	if err != nil || !changed {
		t.Fatalf("first write: changed=%v err=%v", changed, err)
	}
	changed, err = WriteGenerated(path, []byte("A\n"))
	if err != nil || changed {
		t.Fatalf("identical write: changed=%v err=%v", changed, err)
	}
	changed, err = WriteGenerated(path, []byte("B\n"))
	if err != nil || !changed {
		t.Fatalf("new content: changed=%v err=%v", changed, err)
	}
	if got := readConf(t, path); got != "B\n" {
		t.Errorf("content = %q", got)
	}
}

func TestDiff(t *testing.T) {
	if Diff("local.conf", []byte("a\n"), []byte("a\n")) != "" {
		t.Error("identical content should produce no diff")
	}
	d := Diff("local.conf", []byte("a\n"), []byte("a\nb\n"))
	if !strings.Contains(d, "+b") || !strings.Contains(d, "b/local.conf") {
		t.Errorf("Diff() = %q", d)
	}
}
