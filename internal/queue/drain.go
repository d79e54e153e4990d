package queue

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

// drain processes the owner's queue until it is empty or the stop flag is
// observed. At most one drain runs per owner; Enqueue only starts one after
// winning the draining flag under the coordinator lock.
//
// The draining flag is cleared in the same critical section that observes
// the exit condition. Clearing it later (in a defer) opens a window where a
// concurrent Enqueue appends an item, still sees draining == true, and
// starts no loop, stranding the item.
func (c *Coordinator) drain(ctx context.Context, ownerID int64) {
	c.mu.Lock()
	total := len(c.owners[ownerID].pending)
	c.mu.Unlock()

	current := 0

	for {
		c.mu.Lock()
		st := c.owners[ownerID]

		if c.stopped.Load() {
			// Stop clears pending queues under this same lock, but an
			// Enqueue that passed its flag check just before Stop set it
			// can still have appended afterwards. Those items count as
			// arriving while stopped: drop them here too.
			st.pending = nil
			st.draining = false
			st.active = nil
			metrics.QueueDepth.WithLabelValues(ownerLabel(ownerID)).Set(0)
			c.mu.Unlock()
			c.log.InfoContext(ctx, "Drain stopped by admin", "owner", ownerID)
			return
		}

		if len(st.pending) == 0 {
			st.draining = false
			st.active = nil
			c.mu.Unlock()
			return
		}
		item := st.pending[0]
		st.pending = st.pending[1:]
		st.active = item
		remaining := len(st.pending)
		metrics.QueueDepth.WithLabelValues(ownerLabel(ownerID)).Set(float64(remaining))
		c.mu.Unlock()

		current++
		if current+remaining > total {
			// Items were appended mid-drain; keep the x/y text monotonic.
			total = current + remaining
		}

		c.processOne(ctx, item, current, total)
	}
}

// processOne runs a single item through the processor with per-item error
// isolation: a failure is recorded and reported, never allowed to abort the
// rest of the owner's queue.
func (c *Coordinator) processOne(ctx context.Context, item *models.TransferItem, current, total int) {
	ctx, span := tracer.Start(ctx, "process-item")
	defer span.End()

	span.SetAttributes(
		attribute.String("item.kind", string(item.Kind)),
		attribute.String("item.filename", item.DestinationFilename),
		attribute.Int64("item.owner", item.OwnerID),
	)

	metrics.ActiveTransfers.Inc()
	defer metrics.ActiveTransfers.Dec()

	ic := ItemContext{
		Index:       current,
		Total:       total,
		Remaining:   func() int { return c.PendingCount(item.OwnerID) },
		CancelCheck: c.cancelCheck,
		Sessions:    c.sessions,
	}

	err := c.proc.Process(ctx, item, ic)
	switch {
	case err == nil:
		metrics.RecordSuccess(string(item.Kind))
	case errors.Is(err, models.ErrStoppedByAdmin):
		metrics.RecordStopped(string(item.Kind))
		c.log.InfoContext(ctx, "Item aborted by admin stop",
			"owner", item.OwnerID,
			"filename", item.DestinationFilename,
		)
	default:
		metrics.RecordFailure(string(item.Kind))
		c.log.ErrorContext(ctx, "Item failed",
			"owner", item.OwnerID,
			"filename", item.DestinationFilename,
			"error", err,
		)
	}
}
