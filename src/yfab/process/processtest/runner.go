// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/bitswalk/yfab/src/yfab/process"
)

// Reply is the scripted outcome for commands matched by a rule
type Reply struct {
	Lines  []string
	Result process.Result
	// Block, when set, is waited on before the reply is returned
	Block <-chan struct{}
}

// OK is a successful reply emitting the given lines
func OK(lines ...string) Reply {
	return Reply{Lines: lines, Result: process.Result{Succeeded: true}}
}

// Fail is a failed reply with the given exit code and error text
func Fail(code int, text string) Reply {
	return Reply{Result: process.Result{ExitCode: code, ErrorText: text}}
}

type rule struct {
	match func(process.Command) bool
	reply Reply
	once  bool
	used  bool
}

// Call records one invocation
type Call struct {
	Command process.Command
	// Stdin holds everything read from Command.Stdin
	Stdin []byte
}

// Line returns the command as a single space-joined string
func (c Call) Line() string {
	return c.Command.String()
}

// Runner replays scripted replies. Unmatched commands succeed silently.
type Runner struct {
	mu    sync.Mutex
	rules []*rule
	calls []Call
}

// New creates an empty scripted runner
func New() *Runner {
	return &Runner{}
}

// On scripts the reply for every command whose rendered line has the prefix
func (r *Runner) On(prefix string, reply Reply) *Runner {
	return r.When(hasPrefix(prefix), reply, false)
}

// Once scripts a reply used for the first matching command only
func (r *Runner) Once(prefix string, reply Reply) *Runner {
	return r.When(hasPrefix(prefix), reply, true)
}

// When scripts a reply for commands matching an arbitrary predicate.
// Rules are evaluated in registration order.
func (r *Runner) When(match func(process.Command) bool, reply Reply, once bool) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{match: match, reply: reply, once: once})
	return r
}

func hasPrefix(prefix string) func(process.Command) bool {
	return func(c process.Command) bool {
		return strings.HasPrefix(c.String(), prefix)
	}
}

// Run implements process.Runner
func (r *Runner) Run(ctx context.Context, c process.Command, onLine process.LineFunc) process.Result {
	call := Call{Command: c}
	if c.Stdin != nil {
		call.Stdin, _ = io.ReadAll(c.Stdin)
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	reply := Reply{Result: process.Result{Succeeded: true}}
	for _, ru := range r.rules {
		if ru.once && ru.used {
			continue
		}
		if ru.match(c) {
			ru.used = true
			reply = ru.reply
			break
		}
	}
	r.mu.Unlock()

	if reply.Block != nil {
		<-reply.Block
	}
	for _, line := range reply.Lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return reply.Result
}

// Calls returns a snapshot of the recorded invocations
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns the rendered command lines in call order
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}

// Sink records routed output for assertions
type Sink struct {
	mu         sync.Mutex
	Appended   []string
	Overwrites []string
	Percents   []int
}

func (s *Sink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Appended = append(s.Appended, line)
}

func (s *Sink) Overwrite(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Overwrites = append(s.Overwrites, line)
}

func (s *Sink) Progress(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Percents = append(s.Percents, p)
}
