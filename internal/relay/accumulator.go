package relay

import (
	"strings"
	"time"
)

// Accumulator owns the growing answer of one relay operation and decides
// when an interim update is due. It is not shared between operations.
type Accumulator struct {
	buf       strings.Builder
	interval  time.Duration
	lastFlush time.Time
	now       func() time.Time
}

// NewAccumulator starts the flush clock at now(), which is when the
// provisional message went out.
func NewAccumulator(interval time.Duration, now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	return &Accumulator{
		interval:  interval,
		lastFlush: now(),
		now:       now,
	}
}

// Append adds a fragment.
func (a *Accumulator) Append(fragment string) {
	a.buf.WriteString(fragment)
}

// Text returns everything appended so far.
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Empty reports whether the buffer holds only whitespace.
func (a *Accumulator) Empty() bool {
	return strings.TrimSpace(a.buf.String()) == ""
}

// ShouldFlush reports whether the interval has elapsed since the last flush
// and there is something to show.
func (a *Accumulator) ShouldFlush() bool {
	if a.Empty() {
		return false
	}
	return a.now().Sub(a.lastFlush) >= a.interval
}

// MarkFlushed restarts the interval.
func (a *Accumulator) MarkFlushed() {
	a.lastFlush = a.now()
}
