// Package progress throttles and renders user-facing transfer progress.
//
// Progress for one fetch or upload call is tracked by an explicit State
// snapshot rather than closure-local variables, so the emission policy can
// be tested in isolation from any transport.
package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmarwaha/release-relay/internal/format"
	"github.com/dmarwaha/release-relay/pkg/models"
)

// Emission policy thresholds.
const (
	// EmitPercentDelta is the minimum percentage-point advance that forces
	// an emission regardless of elapsed time.
	EmitPercentDelta = 2.0

	// EmitInterval is the maximum time between emissions while bytes are
	// still flowing.
	EmitInterval = 2 * time.Second
)

// State is the snapshot of the last emitted update.
type State struct {
	LastPercent float64
	LastBytes   int64
	LastEmitAt  time.Time
}

// ShouldEmit reports whether a new update is due: progress advanced by at
// least EmitPercentDelta percentage points, or EmitInterval elapsed since
// the last emission.
func ShouldEmit(currentPercent, lastPercent float64, now, lastEmitAt time.Time) bool {
	return currentPercent-lastPercent >= EmitPercentDelta || now.Sub(lastEmitAt) >= EmitInterval
}

// Speed computes instantaneous bytes/second, guarding zero elapsed time.
func Speed(byteDelta int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(byteDelta) / elapsed.Seconds()
}

// Tracker drives one status message through a transfer, editing it in place
// whenever the emission policy fires.
type Tracker struct {
	msg       models.StatusMessage
	header    string
	filename  string
	total     int64
	remaining func() int

	state State
	now   func() time.Time
}

// NewTracker creates a Tracker bound to msg. A zero total disables
// percentage and bar rendering. remaining may be nil when no queue count
// belongs in the status text.
func NewTracker(msg models.StatusMessage, header, filename string, total int64, remaining func() int) *Tracker {
	return &Tracker{
		msg:       msg,
		header:    header,
		filename:  filename,
		total:     total,
		remaining: remaining,
		now:       time.Now,
	}
}

// Update applies the emission policy for bytesNow and edits the status
// message when an update is due. Edit errors are swallowed: a missed status
// edit must never fail the transfer.
func (t *Tracker) Update(ctx context.Context, bytesNow int64) {
	now := t.now()

	var percent float64
	if t.total > 0 {
		percent = float64(bytesNow) / float64(t.total) * 100
	}

	if !t.shouldEmit(percent, now) {
		return
	}

	speed := Speed(bytesNow-t.state.LastBytes, now.Sub(t.state.LastEmitAt))
	if t.state.LastEmitAt.IsZero() {
		speed = 0
	}

	_ = t.msg.Edit(ctx, t.render(bytesNow, percent, speed))

	t.state = State{LastPercent: percent, LastBytes: bytesNow, LastEmitAt: now}
}

func (t *Tracker) shouldEmit(percent float64, now time.Time) bool {
	if t.state.LastEmitAt.IsZero() {
		return true
	}
	if t.total <= 0 {
		// Unknown size: no percentage, fall back to the time threshold.
		return now.Sub(t.state.LastEmitAt) >= EmitInterval
	}
	return ShouldEmit(percent, t.state.LastPercent, now, t.state.LastEmitAt)
}

func (t *Tracker) render(bytesNow int64, percent, speed float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", t.header)
	fmt.Fprintf(&b, "📁 %s\n", t.filename)

	if t.total > 0 {
		fmt.Fprintf(&b, "📊 %s / %s\n", format.Size(bytesNow), format.Size(t.total))
		fmt.Fprintf(&b, "⏳ %.1f%%\n", percent)
	} else {
		fmt.Fprintf(&b, "📊 %s\n", format.Size(bytesNow))
	}

	fmt.Fprintf(&b, "🚀 Speed: %s/s\n", format.Size(int64(speed)))

	if t.remaining != nil {
		fmt.Fprintf(&b, "📋 Remaining: %d files\n", t.remaining())
	}

	if t.total > 0 {
		b.WriteString(format.Bar(percent))
	}

	return b.String()
}
