// Package transcript accumulates incremental transcription fragments for
// one side of a debate.
//
// A Buffer is not safe for concurrent use. It is owned by the debate event
// loop, which is the only goroutine that touches it.
package transcript

import "strings"

// turnSeparator joins committed turns in the log.
const turnSeparator = "\n"

// Buffer holds the text of the turn in progress and the log of committed turns.
type Buffer struct {
	pending   strings.Builder
	committed strings.Builder
	turns     int
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append concatenates fragment to the pending text.
func (b *Buffer) Append(fragment string) {
	b.pending.WriteString(fragment)
}

// Flush returns the pending text, clears it, and moves it into the
// committed log. Flushing an empty buffer returns "" and commits nothing;
// whitespace-only text is returned but not committed.
func (b *Buffer) Flush() string {
	text := b.pending.String()
	b.pending.Reset()
	if strings.TrimSpace(text) == "" {
		return text
	}
	if b.committed.Len() > 0 {
		b.committed.WriteString(turnSeparator)
	}
	b.committed.WriteString(text)
	b.turns++
	return text
}

// Pending returns the text accumulated since the last flush.
func (b *Buffer) Pending() string {
	return b.pending.String()
}

// Committed returns every flushed turn, oldest first.
func (b *Buffer) Committed() string {
	return b.committed.String()
}

// Turns returns the number of non-empty flushes.
func (b *Buffer) Turns() int {
	return b.turns
}

// Reset discards both the pending text and the committed log.
func (b *Buffer) Reset() {
	b.pending.Reset()
	b.committed.Reset()
	b.turns = 0
}

// CaptionLength is how many trailing characters of a transcript are shown
// as a caption.
const CaptionLength = 150

// Tail returns the last n runes of s.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
