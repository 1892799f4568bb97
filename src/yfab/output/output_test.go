package output

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

// captureStdout captures stdout output during fn execution
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

// =============================================================================
// Format Tests
// =============================================================================

func TestPrintJSON(t *testing.T) {
	out := captureStdout(t, func() {
		if err := PrintJSON(map[string]string{"machine": "raspberrypi4"}); err != nil {
			t.Fatalf("PrintJSON error: %v", err)
		}
	})
	if !strings.Contains(out, `  "machine": "raspberrypi4"`) {
		t.Errorf("expected indented JSON, got %q", out)
	}
}

func TestPrintYAML_RespectsJsonTags(t *testing.T) {
	type item struct {
		PokyPath string `json:"poky_path"`
		Threads  int    `json:"threads"`
	}
	out := captureStdout(t, func() {
		if err := PrintYAML(item{PokyPath: "/work/poky", Threads: 8}); err != nil {
			t.Fatalf("PrintYAML error: %v", err)
		}
	})
	if !strings.Contains(out, "poky_path: /work/poky") || !strings.Contains(out, "threads: 8") {
		t.Errorf("unexpected YAML %q", out)
	}
}

func TestPrint_DispatchesOnFormat(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{FormatJSON, `"k": "v"`},
		{FormatYAML, "k: v"},
		{FormatTable, "table called"},
		{"", "table called"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out := captureStdout(t, func() {
				_ = Print(tt.format, map[string]string{"k": "v"}, func() { PrintMessage("table called") })
			})
			if !strings.Contains(out, tt.want) {
				t.Errorf("Print(%q) = %q, want %q", tt.format, out, tt.want)
			}
		})
	}
}

func TestPrintTable(t *testing.T) {
	out := captureStdout(t, func() {
		PrintTable(
			[]string{"NAME", "SIZE"},
			[][]string{
				{"sdb", "14.5G"},
				{"mmcblk0", "29.7G"},
			},
		)
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}
	if strings.Index(lines[1], "14.5G") != strings.Index(lines[2], "29.7G") {
		t.Errorf("columns not aligned: %q", out)
	}
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"structured", errors.ErrPokyPathUnset.WithMessage("Poky path not set, run `yfab config set poky.path <dir>`"),
			"Configuration error: Poky path not set, run `yfab config set poky.path <dir>`"},
		{"with cause", errors.ErrImageNotFound.WithMessage("Cannot read x").WithCause(fmt.Errorf("EOF")),
			"Precondition error: Cannot read x: EOF"},
		{"plain", fmt.Errorf("boom"), "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureStderr(t, func() { PrintError(tt.err) })
			if strings.TrimSpace(out) != tt.want {
				t.Errorf("PrintError() = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestPrintWarning(t *testing.T) {
	out := captureStderr(t, func() { PrintWarning("layer meta-rauc could not be fetched") })
	if strings.TrimSpace(out) != "Warning: layer meta-rauc could not be fetched" {
		t.Errorf("PrintWarning() = %q", out)
	}
}

// =============================================================================
// Renderer Tests
// =============================================================================

func events(id string, result process.Result) []operation.Event {
	return []operation.Event{
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventStarted, Line: "core-image-base"},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventLine, Line: "Loading cache..."},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventOverwrite, Line: "Running task 37 of 148"},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventProgress, Percent: 25},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventOverwrite, Line: "Running task 40 of 148"},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventProgress, Percent: 27},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventLine, Line: "NOTE: Tasks Summary"},
		{OperationID: id, Kind: operation.KindBuild, Type: operation.EventFinished, Result: &result},
	}
}

func TestRenderer_Terminal(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true)
	for _, e := range events("a", process.Result{Succeeded: true}) {
		r.Render(e)
	}

	want := "==> build core-image-base\n" +
		"Loading cache...\n" +
		"\r\033[KRunning task 37 of 148" +
		"\r\033[K[ 25%] Running task 37 of 148" +
		"\r\033[K[ 25%] Running task 40 of 148" +
		"\r\033[K[ 27%] Running task 40 of 148" +
		"\n" +
		"NOTE: Tasks Summary\n" +
		"build finished\n"
	if buf.String() != want {
		t.Errorf("rendered:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestRenderer_Plain(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false)
	for _, e := range events("a", process.Failed("ERROR: Task do_compile failed")) {
		r.Render(e)
	}

	out := buf.String()
	if strings.Contains(out, "\r") {
		t.Errorf("plain output must not redraw: %q", out)
	}
	if !strings.Contains(out, "[ 25%] Running task 37 of 148\n") {
		t.Errorf("missing coarse progress: %q", out)
	}
	if strings.Contains(out, "27%") {
		t.Errorf("progress below the step should be skipped: %q", out)
	}
	if !strings.HasSuffix(out, "build failed: ERROR: Task do_compile failed\n") {
		t.Errorf("missing failure line: %q", out)
	}
}

func TestRenderer_Follow(t *testing.T) {
	ch := make(chan operation.Event, 16)
	for _, e := range events("other", process.Result{Succeeded: true}) {
		ch <- e
	}
	for _, e := range events("mine", process.Failed("exit 1")) {
		ch <- e
	}
	close(ch)

	var buf bytes.Buffer
	res := newRenderer(&buf, false).Follow(ch, "mine")
	if res.Succeeded || res.ErrorText != "exit 1" {
		t.Errorf("Follow() = %+v", res)
	}

	closed := make(chan operation.Event)
	close(closed)
	if res := newRenderer(&buf, false).Follow(closed, "x"); res.Succeeded {
		t.Error("closed stream should yield a failed result")
	}
}
