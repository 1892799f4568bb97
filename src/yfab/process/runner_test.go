package process

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/bitswalk/yfab/src/yfab/progress"
)

// ===== Test Helpers =====

type recordingSink struct {
	appended   []string
	overwrites []string
	percents   []int
}

func (s *recordingSink) Append(line string)    { s.appended = append(s.appended, line) }
func (s *recordingSink) Overwrite(line string) { s.overwrites = append(s.overwrites, line) }
func (s *recordingSink) Progress(p int)        { s.percents = append(s.percents, p) }

func collect(t *testing.T, c Command) ([]string, Result) {
	t.Helper()
	var lines []string
	res := NewExecRunner().Run(context.Background(), c, func(line string) {
		lines = append(lines, line)
	})
	return lines, res
}

// ===== ExecRunner Tests =====

func TestExecRunner_MergedOrderedOutput(t *testing.T) {
	lines, res := collect(t, Command{
		Name: "sh",
		Args: []string{"-c", "echo first; echo second 1>&2; echo; echo '  third  '"},
	})

	if !res.Succeeded {
		t.Fatalf("Run() failed: %+v", res)
	}
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestExecRunner_ExitCode(t *testing.T) {
	_, res := collect(t, Command{
		Name: "sh",
		Args: []string{"-c", "echo 'ERROR: Nothing PROVIDES core-image-foo'; exit 3"},
	})

	if res.Succeeded {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.ErrorText, "Nothing PROVIDES core-image-foo") {
		t.Errorf("ErrorText should carry the output tail, got %q", res.ErrorText)
	}
}

func TestExecRunner_CommandNotFound(t *testing.T) {
	_, res := collect(t, Command{Name: "yfab-no-such-tool"})

	if res.Succeeded {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.ErrorText, "not found") {
		t.Errorf("ErrorText = %q", res.ErrorText)
	}
}

func TestExecRunner_WorkingDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	lines, res := collect(t, Command{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $YFAB_MARK"},
		Dir:  dir,
		Env:  map[string]string{"YFAB_MARK": "marked"},
	})

	if !res.Succeeded {
		t.Fatalf("Run() failed: %+v", res)
	}
	if len(lines) != 2 || !strings.HasSuffix(lines[0], dirBase(dir)) || lines[1] != "marked" {
		t.Errorf("lines = %q", lines)
	}
}

func TestExecRunner_Stdin(t *testing.T) {
	lines, res := collect(t, Command{
		Name:  "cat",
		Stdin: strings.NewReader("from stdin\n"),
	})
	if !res.Succeeded || len(lines) != 1 || lines[0] != "from stdin" {
		t.Errorf("Run() = %+v, lines %q", res, lines)
	}
}

func TestExecRunner_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	res := NewExecRunner().Run(ctx, Command{Name: "true"}, func(string) { called = true })
	if res.Succeeded || called {
		t.Errorf("canceled context must not spawn: %+v", res)
	}
}

func dirBase(dir string) string {
	parts := strings.Split(dir, "/")
	return parts[len(parts)-1]
}

// ===== Line Splitting Tests =====

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newlines", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"carriage return redraw", "10 bytes\r20 bytes\r30 bytes\ndone\n", []string{"10 bytes", "20 bytes", "30 bytes", "done"}},
		{"trailing cr", "x\r", []string{"x"}},
		{"no terminator", "last", []string{"last"}},
		{"blank lines dropped", "\n\n  \nx\n\r\n", []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			if err := Scan(strings.NewReader(tt.input), func(l string) { got = append(got, l) }); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Scan() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ===== Monitor Tests =====

func TestMonitor_RoutesProgressLines(t *testing.T) {
	sink := &recordingSink{}
	onLine := Monitor(progress.Tasks(), sink)

	for _, l := range []string{
		"Loading cache: done",
		"Running task 1 of 4",
		"Running task 2 of 4",
		"Running task 2 of 4",
		"NOTE: Tasks Summary",
	} {
		onLine(l)
	}

	if !reflect.DeepEqual(sink.appended, []string{"Loading cache: done", "NOTE: Tasks Summary"}) {
		t.Errorf("appended = %q", sink.appended)
	}
	if len(sink.overwrites) != 3 {
		t.Errorf("overwrites = %q", sink.overwrites)
	}
	if !reflect.DeepEqual(sink.percents, []int{25, 50}) {
		t.Errorf("percents = %v, want repeated values collapsed", sink.percents)
	}
}

func TestMonitor_UnknownTotalStillOverwrites(t *testing.T) {
	sink := &recordingSink{}
	onLine := Monitor(progress.Bytes(0), sink)

	onLine("4194304 bytes (4.2 MB, 4.0 MiB) copied, 1 s, 4.2 MB/s")
	onLine("1+0 records in")

	if len(sink.overwrites) != 1 || len(sink.percents) != 0 {
		t.Errorf("overwrites = %q percents = %v", sink.overwrites, sink.percents)
	}
	if len(sink.appended) != 1 {
		t.Errorf("appended = %q", sink.appended)
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "git", Args: []string{"clone", "--progress", "url"}}
	if c.String() != "git clone --progress url" {
		t.Errorf("String() = %q", c.String())
	}
}
