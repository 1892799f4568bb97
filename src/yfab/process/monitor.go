package process

import "github.com/bitswalk/yfab/src/yfab/progress"

// Sink receives the routed output of a monitored command
type Sink interface {
	// Append adds a new log line
	Append(line string)
	// Overwrite replaces the last displayed progress line
	Overwrite(line string)
	// Progress reports a normalized percentage (0-100)
	Progress(percent int)
}

// Monitor returns a LineFunc that routes lines matching the grammar to the
// overwrite sink, reporting any extracted percentage, and appends every
// other line.
func Monitor(g progress.Grammar, sink Sink) LineFunc {
	last := -1
	return func(line string) {
		if !g.Matches(line) {
			sink.Append(line)
			return
		}
		sink.Overwrite(line)
		if p, ok := g.Extract(line); ok && p != last {
			last = p
			sink.Progress(p)
		}
	}
}

// Discard is a Sink that drops everything
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(string)    {}
func (discard) Overwrite(string) {}
func (discard) Progress(int)     {}

// LogSink forwards output to the package logger at debug level. Used for
// background commands whose output is not shown to the user.
type LogSink struct {
	Prefix string
}

func (s LogSink) Append(line string)    { log.Debug(line, "cmd", s.Prefix) }
func (s LogSink) Overwrite(line string) { log.Debug(line, "cmd", s.Prefix) }
func (s LogSink) Progress(int)          {}
