package console

import (
	"strings"
	"sync"
	"time"
)

// DefaultScrollback is the number of lines reserved up front. It is a
// capacity hint only, lines are never evicted except by Clear.
const DefaultScrollback = 10000

// TimestampLayout prefixes every line when timestamps are enabled
const TimestampLayout = "15:04:05.000 -> "

// StampFunc returns the prefix written at the start of a line
type StampFunc func() string

// DefaultStamp formats the current local time with TimestampLayout
func DefaultStamp() string {
	return time.Now().Format(TimestampLayout)
}

// LineBuffer is the scrollback: an ordered list of lines where only the last
// one is open for appends.
type LineBuffer struct {
	mu sync.RWMutex

	closed  []string
	open    strings.Builder
	hasOpen bool

	// stamped is true once the open line carries its timestamp prefix
	stamped bool

	reserve int
	stamp   StampFunc
}

// NewLineBuffer creates a line buffer reserving room for reserve lines
func NewLineBuffer(reserve int, stamp StampFunc) *LineBuffer {
	if reserve <= 0 {
		reserve = DefaultScrollback
	}
	if stamp == nil {
		stamp = DefaultStamp
	}

	return &LineBuffer{
		closed:  make([]string, 0, reserve),
		reserve: reserve,
		stamp:   stamp,
	}
}

// AppendText splits text into the scrollback and returns the resulting
// notifications: one EventLineCompleted per line closed by this call, or a
// single EventTextAppended when no line closed, followed by
// EventBufferChanged.
func (lb *LineBuffer) AppendText(text string, withTimestamp bool) []Event {
	if text == "" {
		return nil
	}

	data := strings.ReplaceAll(text, "\r\n", "\n")

	lb.mu.Lock()
	defer lb.mu.Unlock()

	if !lb.hasOpen {
		lb.hasOpen = true
		lb.stamped = false
	}

	prefix := ""
	if withTimestamp {
		prefix = lb.stamp()
	}

	firstClosed := len(lb.closed)

	rest := data
	for len(rest) > 0 {
		if !lb.stamped {
			lb.open.WriteString(prefix)
			lb.stamped = true
		}

		i := strings.IndexAny(rest, "\r\n")
		if i < 0 {
			lb.open.WriteString(rest)
			break
		}

		lb.open.WriteString(rest[:i])
		lb.closeLine()
		rest = rest[i+1:]
	}

	var events []Event
	for i := firstClosed; i < len(lb.closed); i++ {
		events = append(events, Event{Kind: EventLineCompleted, Index: i, Line: lb.closed[i]})
	}
	if len(events) == 0 {
		events = append(events, Event{Kind: EventTextAppended, Text: data})
	}

	return append(events, Event{Kind: EventBufferChanged})
}

// closeLine freezes the open line and opens an empty one
func (lb *LineBuffer) closeLine() {
	lb.closed = append(lb.closed, lb.open.String())
	lb.open.Reset()
	lb.stamped = false
}

// ResetTimestamp asks for a timestamp on the next character appended. It has
// no effect while the open line already holds text, so a line never carries
// more than one prefix.
func (lb *LineBuffer) ResetTimestamp() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.open.Len() == 0 {
		lb.stamped = false
	}
}

// Clear removes every line
func (lb *LineBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.closed = make([]string, 0, lb.reserve)
	lb.open.Reset()
	lb.hasOpen = false
	lb.stamped = false
}

// LineCount returns the number of lines, including the open one
func (lb *LineBuffer) LineCount() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	return lb.lineCount()
}

func (lb *LineBuffer) lineCount() int {
	if !lb.hasOpen {
		return len(lb.closed)
	}
	return len(lb.closed) + 1
}

// Lines returns a copy of every line, oldest first
func (lb *LineBuffer) Lines() []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	lines := make([]string, 0, lb.lineCount())
	lines = append(lines, lb.closed...)
	if lb.hasOpen {
		lines = append(lines, lb.open.String())
	}
	return lines
}

// Window returns a copy of at most count lines starting at index start
func (lb *LineBuffer) Window(start, count int) []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	total := lb.lineCount()
	start = max(start, 0)
	end := min(start+count, total)
	if count <= 0 || start >= end {
		return nil
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if i < len(lb.closed) {
			lines = append(lines, lb.closed[i])
		} else {
			lines = append(lines, lb.open.String())
		}
	}
	return lines
}
