package relay

import (
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Accumulator holds the text generated so far.
//
// Append must only be called by a single writer (the producer). Snapshot may
// be called from any goroutine and always returns a whole prefix of the text:
// every append publishes a new immutable string through an atomic pointer, so
// a reader never observes a half-written fragment.
type Accumulator struct {
	buf  strings.Builder
	snap atomic.Pointer[string]
	n    atomic.Int64
}

// NewAccumulator 返回空的累加器。
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds fragment to the end of the text. Empty fragments are ignored.
func (a *Accumulator) Append(fragment string) {
	if fragment == "" {
		return
	}
	a.buf.WriteString(fragment)
	// strings.Builder only ever appends, so earlier String() results stay valid.
	text := a.buf.String()
	a.snap.Store(&text)
	a.n.Add(1)
}

// Snapshot returns the text as of the call.
func (a *Accumulator) Snapshot() string {
	if p := a.snap.Load(); p != nil {
		return *p
	}
	return ""
}

// Fragments returns how many non-empty fragments have been appended.
func (a *Accumulator) Fragments() int {
	return int(a.n.Load())
}

// RuneCount 返回当前快照的字符数。
func (a *Accumulator) RuneCount() int {
	return utf8.RuneCountInString(a.Snapshot())
}
