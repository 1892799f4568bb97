package output

import (
	"fmt"
	"io"
	"os"

	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/process"
	"golang.org/x/term"
)

// plainStep is the percentage granularity printed when the output is not
// a terminal
const plainStep = 10

// Renderer is the console consumer of operation events. On a terminal,
// progress lines are redrawn in place; otherwise only appended lines and
// coarse percentages are printed.
type Renderer struct {
	out io.Writer
	tty bool

	current   string
	percent   int
	lastPrint int
	inPlace   bool
}

// NewRenderer creates a renderer writing to out
func NewRenderer(out io.Writer) *Renderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return newRenderer(out, tty)
}

func newRenderer(out io.Writer, tty bool) *Renderer {
	return &Renderer{out: out, tty: tty, percent: -1, lastPrint: -plainStep}
}

// Render draws one event
func (r *Renderer) Render(e operation.Event) {
	switch e.Type {
	case operation.EventStarted:
		r.reset()
		fmt.Fprintf(r.out, "==> %s %s\n", e.Kind, e.Line)

	case operation.EventLine:
		r.breakLine()
		fmt.Fprintln(r.out, e.Line)

	case operation.EventOverwrite:
		r.current = e.Line
		if r.tty {
			r.redraw()
		}

	case operation.EventProgress:
		r.percent = e.Percent
		if r.tty {
			r.redraw()
			return
		}
		if e.Percent >= r.lastPrint+plainStep || (e.Percent == 100 && r.lastPrint != 100) {
			r.lastPrint = e.Percent
			fmt.Fprintf(r.out, "[%3d%%] %s\n", e.Percent, r.current)
		}

	case operation.EventFinished:
		r.breakLine()
		if e.Result == nil {
			return
		}
		if e.Result.Succeeded {
			successColor.Fprintf(r.out, "%s finished\n", e.Kind)
		} else {
			errorColor.Fprintf(r.out, "%s failed: ", e.Kind)
			fmt.Fprintln(r.out, e.Result.ErrorText)
		}
	}
}

// Follow renders events until the operation id finishes and returns its
// result. Events of other operations are rendered too. A closed channel
// before the finish yields a failed result.
func (r *Renderer) Follow(events <-chan operation.Event, id string) process.Result {
	for e := range events {
		r.Render(e)
		if e.OperationID == id && e.Type == operation.EventFinished && e.Result != nil {
			return *e.Result
		}
	}
	return process.Failed("event stream closed before the operation finished")
}

func (r *Renderer) redraw() {
	line := r.current
	if r.percent >= 0 {
		line = fmt.Sprintf("[%3d%%] %s", r.percent, r.current)
	}
	fmt.Fprintf(r.out, "\r\033[K%s", line)
	r.inPlace = true
}

// breakLine ends an in-place progress line before appending
func (r *Renderer) breakLine() {
	if r.inPlace {
		fmt.Fprintln(r.out)
		r.inPlace = false
	}
}

func (r *Renderer) reset() {
	r.breakLine()
	r.current = ""
	r.percent = -1
	r.lastPrint = -plainStep
}
