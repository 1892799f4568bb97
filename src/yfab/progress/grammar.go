// Package progress recognizes progress signals in tool output and
// normalizes them to a 0-100 percentage.
package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies how progress is expressed in a command's output
type Kind int

const (
	// None never matches; every line is appended to the log
	None Kind = iota
	// DiscreteCounter matches "<label> <current> of <total>" (bitbake tasks)
	DiscreteCounter
	// ByteCounter matches lines whose first token is a byte count (dd)
	ByteCounter
	// Percentage matches an embedded "NN%" token (git clone)
	Percentage
)

// String returns the grammar kind name
func (k Kind) String() string {
	switch k {
	case DiscreteCounter:
		return "discrete-counter"
	case ByteCounter:
		return "byte-counter"
	case Percentage:
		return "percentage"
	default:
		return "none"
	}
}

var (
	counterPattern = regexp.MustCompile(`\S+\s+(\d+)\s+of\s+(\d+)`)
	percentPattern = regexp.MustCompile(`(\d{1,3})%`)
)

// Grammar describes how to extract progress for one invocation.
// Total is only used by ByteCounter; zero or negative means the total size
// is unknown and no percentage is produced.
type Grammar struct {
	Kind  Kind
	Total int64
}

// Tasks returns the discrete-counter grammar
func Tasks() Grammar { return Grammar{Kind: DiscreteCounter} }

// Bytes returns the byte-counter grammar against a known total size
func Bytes(total int64) Grammar { return Grammar{Kind: ByteCounter, Total: total} }

// Percent returns the embedded-percentage grammar
func Percent() Grammar { return Grammar{Kind: Percentage} }

// Matches reports whether the line carries a progress signal of this
// grammar. Matching lines are rendered in place rather than appended, even
// when no percentage can be computed from them.
func (g Grammar) Matches(line string) bool {
	switch g.Kind {
	case DiscreteCounter:
		return counterPattern.MatchString(line)
	case ByteCounter:
		_, ok := leadingInt(line)
		return ok
	case Percentage:
		return percentPattern.MatchString(line)
	default:
		return false
	}
}

// Extract returns the normalized percentage carried by the line.
// Percentages are floored and clamped to [0, 100].
func (g Grammar) Extract(line string) (int, bool) {
	switch g.Kind {
	case DiscreteCounter:
		m := counterPattern.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		current, err1 := strconv.ParseInt(m[1], 10, 64)
		total, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil || total <= 0 {
			return 0, false
		}
		return ratio(current, total), true

	case ByteCounter:
		if g.Total <= 0 {
			return 0, false
		}
		n, ok := leadingInt(line)
		if !ok {
			return 0, false
		}
		return ratio(n, g.Total), true

	case Percentage:
		m := percentPattern.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return clamp(n), true
	}

	return 0, false
}

func leadingInt(line string) (int64, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func ratio(n, total int64) int {
	if n >= total {
		return 100
	}
	return clamp(int(n * 100 / total))
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
