package output

import (
	"github.com/slok/scriptrun/internal/model"
)

// Transcript is a bounded in-memory sequence of output lines.
// When the size bound is exceeded the oldest lines are dropped.
// Transcript is not safe for concurrent use.
type Transcript struct {
	maxBytes  int
	lines     []model.OutputLine
	bytes     int
	dropped   int
	truncated bool
}

// NewTranscript returns a new transcript that retains at most maxBytes of line text.
// Zero or negative means unbounded.
func NewTranscript(maxBytes int) *Transcript {
	return &Transcript{maxBytes: maxBytes}
}

func lineSize(l model.OutputLine) int { return len(l.Text) + 1 }

// Append adds a line, dropping the oldest ones if needed.
func (t *Transcript) Append(l model.OutputLine) {
	if t.maxBytes > 0 && lineSize(l) > t.maxBytes {
		l.Text = truncateUTF8(l.Text, t.maxBytes-1)
		t.truncated = true
	}

	t.lines = append(t.lines, l)
	t.bytes += lineSize(l)

	if t.maxBytes <= 0 {
		return
	}

	drop := 0
	for t.bytes > t.maxBytes && drop < len(t.lines) {
		t.bytes -= lineSize(t.lines[drop])
		drop++
	}
	if drop == 0 {
		return
	}

	t.dropped += drop
	t.truncated = true

	// Compact once the dropped head is as big as the live part to reuse memory.
	remaining := t.lines[drop:]
	if drop >= len(remaining) {
		t.lines = append(make([]model.OutputLine, 0, len(remaining)*2), remaining...)
		return
	}
	t.lines = remaining
}

// Lines returns a copy of the retained lines.
func (t *Transcript) Lines() []model.OutputLine {
	if len(t.lines) == 0 {
		return nil
	}
	return append([]model.OutputLine(nil), t.lines...)
}

// Truncated returns true if any data has been dropped or cut.
func (t *Transcript) Truncated() bool { return t.truncated }

// Dropped returns the number of whole lines dropped.
func (t *Transcript) Dropped() int { return t.dropped }

// Bytes returns the retained size.
func (t *Transcript) Bytes() int { return t.bytes }

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
