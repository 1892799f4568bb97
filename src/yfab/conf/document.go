// Package conf merges machine-generated directives into user-owned,
// line-oriented build configuration files (local.conf, bblayers.conf).
package conf

import (
	"regexp"
	"strings"

	"github.com/bitswalk/yfab/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the conf package
func SetLogger(l *logs.Logger) {
	log = l
}

// Directive is one generated configuration line. Key is the variable name
// used to match earlier copies of a pinned directive; it may be empty for
// block directives that are never pinned.
type Directive struct {
	Key  string `json:"key,omitempty"`
	Line string `json:"line"`
}

// D builds a directive from a key and its rendered line
func D(key, line string) Directive {
	return Directive{Key: key, Line: line}
}

// Lines returns the rendered text of the directives
func Lines(ds []Directive) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Line
	}
	return out
}

// Predicate selects lines to remove. It receives the line without its
// terminator.
type Predicate func(line string) bool

// KeyPattern matches assignments to key with =, ?= or ??=, ignoring
// leading whitespace. Overrides such as KEY:append are not matched.
func KeyPattern(key string) Predicate {
	re := regexp.MustCompile(`^\s*` + regexp.QuoteMeta(key) + `\s*\?{0,2}=`)
	return re.MatchString
}

// Contains matches lines containing every one of the given substrings
func Contains(subs ...string) Predicate {
	return func(line string) bool {
		for _, s := range subs {
			if !strings.Contains(line, s) {
				return false
			}
		}
		return true
	}
}

// Document is a configuration file as an ordered list of lines. Each line
// keeps its original terminator so untouched content is written back byte
// for byte.
type Document struct {
	lines []string
}

// Parse splits content into a document
func Parse(content []byte) *Document {
	s := string(content)
	if s == "" {
		return &Document{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return &Document{lines: lines}
}

// Len returns the number of lines
func (d *Document) Len() int {
	return len(d.lines)
}

// Text returns line i without its terminator
func (d *Document) Text(i int) string {
	return strings.TrimRight(d.lines[i], "\r\n")
}

// Filter keeps only the lines for which keep returns true
func (d *Document) Filter(keep func(text string) bool) {
	out := d.lines[:0]
	for i := range d.lines {
		if keep(d.Text(i)) {
			out = append(out, d.lines[i])
		}
	}
	d.lines = out
}

// Terminate makes sure the last line ends with a line terminator
func (d *Document) Terminate() {
	if n := len(d.lines); n > 0 && !strings.HasSuffix(d.lines[n-1], "\n") {
		d.lines[n-1] += "\n"
	}
}

// Append adds lines, each terminated with \n
func (d *Document) Append(lines ...string) {
	for _, l := range lines {
		d.lines = append(d.lines, l+"\n")
	}
}

// Contains reports whether any line satisfies the predicate
func (d *Document) Contains(match Predicate) bool {
	for i := range d.lines {
		if match(d.Text(i)) {
			return true
		}
	}
	return false
}

// Bytes renders the document
func (d *Document) Bytes() []byte {
	return []byte(strings.Join(d.lines, ""))
}
