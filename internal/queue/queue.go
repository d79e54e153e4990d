// Package queue implements the per-owner upload queues, their drain loops,
// and the global cooperative stop.
//
// Each owner has one FIFO of pending transfer items and at most one drain
// loop executing at any time; different owners' loops run fully
// concurrently. Cancellation is cooperative: the stop flag is observed at
// every chunk boundary, never preemptively.
package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"

	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

var tracer = otel.Tracer("relay-queue")

// Processor executes one transfer item end to end: materialize the source,
// upload it, post status text. Implementations must honor ic.CancelCheck
// at every chunk boundary.
type Processor interface {
	Process(ctx context.Context, item *models.TransferItem, ic ItemContext) error
}

// ItemContext carries an item's queue position and the cancellation hooks
// the processor needs.
type ItemContext struct {
	// Index and Total describe the item's position within the current
	// drain, 1-based, for "(n/m)" status text.
	Index int
	Total int

	// Remaining reports how many items are still queued behind this one.
	Remaining func() int

	// CancelCheck returns ErrStoppedByAdmin once the global stop flag is
	// set, nil otherwise.
	CancelCheck func() error

	// Sessions is the owner-scoped registry for force-closable network
	// sessions.
	Sessions *SessionSet
}

// ownerState is the queue state for one owner, created lazily on first
// enqueue and kept for the process lifetime.
type ownerState struct {
	pending  []*models.TransferItem
	draining bool
	active   *models.TransferItem
}

// Coordinator owns every per-owner queue. All mutation funnels through
// Enqueue, the drain loops, and Stop.
type Coordinator struct {
	mu       sync.Mutex
	owners   map[int64]*ownerState
	stopped  atomic.Bool
	sessions *SessionSet

	proc Processor
	log  *slog.Logger
}

// NewCoordinator creates a Coordinator that hands items to proc.
func NewCoordinator(proc Processor, log *slog.Logger) *Coordinator {
	return &Coordinator{
		owners:   make(map[int64]*ownerState),
		sessions: NewSessionSet(),
		proc:     proc,
		log:      log,
	}
}

// Enqueue appends item to its owner's queue and starts a drain loop if one
// is not already running. It returns the item's 1-based queue position.
// While the global stop flag is set the item is silently dropped and 0 is
// returned.
func (c *Coordinator) Enqueue(ctx context.Context, item *models.TransferItem) int {
	if c.stopped.Load() {
		c.log.InfoContext(ctx, "Dropping enqueue while stopped",
			"owner", item.OwnerID,
			"filename", item.DestinationFilename,
		)
		return 0
	}

	c.mu.Lock()
	st, ok := c.owners[item.OwnerID]
	if !ok {
		st = &ownerState{}
		c.owners[item.OwnerID] = st
	}

	st.pending = append(st.pending, item)
	position := len(st.pending)
	metrics.QueueDepth.WithLabelValues(ownerLabel(item.OwnerID)).Set(float64(len(st.pending)))

	startDrain := !st.draining
	if startDrain {
		st.draining = true
	}
	c.mu.Unlock()

	if startDrain {
		go c.drain(context.WithoutCancel(ctx), item.OwnerID)
	}

	return position
}

// PendingCount returns the number of items queued for the owner, not
// counting the one currently in flight.
func (c *Coordinator) PendingCount(ownerID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.owners[ownerID]; ok {
		return len(st.pending)
	}
	return 0
}

// ActiveItem returns the item currently being processed for the owner, or
// nil when the owner's queue is idle.
func (c *Coordinator) ActiveItem(ownerID int64) *models.TransferItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.owners[ownerID]; ok {
		return st.active
	}
	return nil
}

// Sessions returns the coordinator's session registry, shared with the
// fetch layer so a global stop can force-close in-flight connections.
func (c *Coordinator) Sessions() *SessionSet {
	return c.sessions
}

// Stopped reports whether the global stop flag is set.
func (c *Coordinator) Stopped() bool {
	return c.stopped.Load()
}

// Stop sets the global stop flag, force-closes every registered session,
// and clears all pending queues. In-flight drain loops observe the flag at
// their next chunk boundary and unwind themselves; their draining flags are
// never touched here.
func (c *Coordinator) Stop() {
	c.stopped.Store(true)
	metrics.AdminStops.Inc()

	c.sessions.CloseAll()

	c.mu.Lock()
	for ownerID, st := range c.owners {
		st.pending = nil
		metrics.QueueDepth.WithLabelValues(ownerLabel(ownerID)).Set(0)
	}
	c.mu.Unlock()

	c.log.Info("Global stop issued, queues cleared")
}

// Restart clears the stop flag. Items dropped by Stop are not resurrected.
func (c *Coordinator) Restart() {
	c.stopped.Store(false)
	c.log.Info("Processing restarted")
}

// cancelCheck is the cooperative cancellation token handed to processors.
func (c *Coordinator) cancelCheck() error {
	if c.stopped.Load() {
		return models.ErrStoppedByAdmin
	}
	return nil
}

func ownerLabel(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10)
}
