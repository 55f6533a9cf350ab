package overlay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Annotator receives completed annotations. The ledger's side table satisfies
// this; so does any export sink.
type Annotator interface {
	Annotate(ctx context.Context, a contracts.DiagnosticAnnotation) error
}

// Consumer runs the overlay as an independent, non-blocking subscriber to the
// kernel path. Publish never blocks: when the buffer is full the oldest
// pending frame is dropped so a stalled overlay can never delay a decision.
// Per-frame failures degrade that epoch's annotation to absent and are
// logged; processing continues with the next frame.
type Consumer struct {
	overlay *Overlay
	sink    Annotator
	frames  chan Frame
	dropped atomic.Uint64
	log     *slog.Logger
	done    chan struct{}
}

// NewConsumer wraps an overlay with an async frame queue of the given depth.
func NewConsumer(o *Overlay, sink Annotator, depth int, log *slog.Logger) *Consumer {
	if depth <= 0 {
		depth = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		overlay: o,
		sink:    sink,
		frames:  make(chan Frame, depth),
		log:     log,
		done:    make(chan struct{}),
	}
}

// Publish enqueues a frame without blocking. Frames are copied by value; the
// caller's state is never shared with the overlay goroutine.
func (c *Consumer) Publish(f Frame) {
	for {
		select {
		case c.frames <- f:
			return
		default:
		}
		select {
		case old := <-c.frames:
			c.dropped.Add(1)
			c.log.Warn("overlay frame dropped", "epoch_index", old.EpochIndex)
		default:
		}
	}
}

// Dropped returns the number of frames discarded under backpressure.
func (c *Consumer) Dropped() uint64 { return c.dropped.Load() }

// Run consumes frames until the context is cancelled. It is the only
// goroutine touching the overlay's history.
func (c *Consumer) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.frames:
			c.process(ctx, f)
		}
	}
}

// Done is closed when Run returns.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Flush processes any frames still queued. Callers must not invoke it
// concurrently with Run; it exists for orderly shutdown after Run has
// stopped.
func (c *Consumer) Flush(ctx context.Context) {
	for {
		select {
		case f := <-c.frames:
			c.process(ctx, f)
		default:
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("overlay computation panicked", "epoch_index", f.EpochIndex, "panic", r)
		}
	}()

	ann, err := c.overlay.ProcessFrame(f)
	if err != nil {
		c.log.Error("overlay computation failed", "epoch_index", f.EpochIndex, "error", err)
		return
	}
	if c.sink == nil {
		return
	}
	if err := c.sink.Annotate(ctx, ann); err != nil {
		c.log.Error("annotation write failed", "epoch_index", f.EpochIndex, "error", err)
	}
}
