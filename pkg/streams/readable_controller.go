package streams

import (
	"context"
	"sync"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/promise"
)

// ReadableState describes the lifecycle state of a readable stream.
type ReadableState int32

const (
	// ReadableStateReadable accepts enqueues and serves reads.
	ReadableStateReadable ReadableState = iota

	// ReadableStateClosed serves remaining queued chunks, then done markers.
	ReadableStateClosed

	// ReadableStateErrored rejects every pending and future read with the
	// stored reason.
	ReadableStateErrored
)

// String returns the lowercase state name.
func (s ReadableState) String() string {
	switch s {
	case ReadableStateReadable:
		return "readable"
	case ReadableStateClosed:
		return "closed"
	case ReadableStateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// readResult is the settlement value of one read: a chunk, or a terminal
// done marker (ok == false).
type readResult[T any] struct {
	value T
	ok    bool
}

// ReadableController drives a readable stream's state machine. It owns the
// queue and backpressure bookkeeping exclusively; sources mutate stream state
// only through Enqueue, Close, and Error.
type ReadableController[T any] struct {
	mu sync.Mutex

	// adapterMu serializes source callback invocations; the engine never
	// runs two callbacks of one adapter concurrently.
	adapterMu sync.Mutex

	source   Source[T]
	strategy QueuingStrategy[T]
	queue    chunkQueue[T]

	state       ReadableState
	storedError error
	cancelled   bool

	// pending reads settle strictly in FIFO submission order.
	pending []*promise.Promise[readResult[T]]

	// pulling guards re-entrancy: at most one Pull in flight per stream.
	pulling bool
	started bool

	// spaceCh is re-made on every broadcast; waiters re-check state.
	spaceCh chan struct{}

	closedP *promise.Promise[struct{}]

	ctx       context.Context
	cancelCtx context.CancelFunc

	instr          instruments
	onBackpressure func()
	onError        func(error)
}

func newReadableController[T any](source Source[T], strategy QueuingStrategy[T], opts Options) *ReadableController[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReadableController[T]{
		source:         source,
		strategy:       strategy,
		spaceCh:        make(chan struct{}),
		closedP:        promise.New[struct{}](),
		ctx:            ctx,
		cancelCtx:      cancel,
		instr:          newInstruments("readable", opts),
		onBackpressure: opts.OnBackpressure,
		onError:        opts.OnError,
	}
}

// start runs the source's Start callback once. A failure transitions the
// stream directly to errored. Pulling is armed only after Start returns, so
// re-entrant pulls from within Start are deferred rather than executed.
func (c *ReadableController[T]) start() {
	if c.source.Start != nil {
		c.adapterMu.Lock()
		err := c.source.Start(c.ctx, c)
		c.adapterMu.Unlock()
		if err != nil {
			c.errorInternal(&gserrors.AdapterError{Op: "start", Err: err})
			return
		}
	}

	c.mu.Lock()
	c.started = true
	c.maybePullLocked()
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *ReadableController[T]) State() ReadableState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DesiredSize returns highWaterMark minus the queued size. A result of zero
// or below signals backpressure. Once the stream is closed or errored it
// returns 0.
func (c *ReadableController[T]) DesiredSize() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredSizeLocked()
}

func (c *ReadableController[T]) desiredSizeLocked() float64 {
	if c.state != ReadableStateReadable {
		return 0
	}
	return c.strategy.HighWaterMark() - c.queue.runningSize
}

// Enqueue makes a chunk available to readers. If a read is already waiting,
// the chunk settles it directly without touching the queue; otherwise it is
// appended. Enqueuing on a closed or errored stream is a programming error
// and fails fast with a StateError.
func (c *ReadableController[T]) Enqueue(chunk T) error {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		state := c.state
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Enqueue", State: state.String()}
	}

	size := c.strategy.Size(chunk)
	if size < 0 {
		c.mu.Unlock()
		return gserrors.NewValidationError(moduleName, "size", size, "cannot be negative").
			WithHint("strategy Size must return >= 0")
	}

	// A waiting read takes the chunk directly; queuing it first would only
	// buffer-then-drain for no reason.
	if len(c.pending) > 0 {
		p := c.pending[0]
		c.pending = c.pending[1:]
		c.instr.pendingReads(len(c.pending))
		c.mu.Unlock()

		p.Resolve(readResult[T]{value: chunk, ok: true})
		c.instr.enqueued()
		c.instr.read()
		return nil
	}

	c.queue.enqueue(chunk, size)
	backpressure := c.desiredSizeLocked() <= 0
	c.maybePullLocked()
	c.instr.queueSize(c.queue.runningSize)
	c.mu.Unlock()

	c.instr.enqueued()
	if backpressure {
		c.instr.backpressure()
		if c.onBackpressure != nil {
			c.onBackpressure()
		}
	}
	return nil
}

// Close transitions the stream to closed. Chunks already queued remain
// readable; waiting reads settle with a done marker; further enqueues fail.
func (c *ReadableController[T]) Close() error {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		state := c.state
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Close", State: state.String()}
	}
	c.state = ReadableStateClosed
	pending := c.pending
	c.pending = nil
	c.instr.pendingReads(0)
	c.broadcastSpaceLocked()
	c.mu.Unlock()

	for _, p := range pending {
		p.Resolve(readResult[T]{ok: false})
	}
	c.closedP.Resolve(struct{}{})
	c.cancelCtx()
	c.instr.closed()
	return nil
}

// Error transitions the stream to errored with reason, discards the queue,
// and rejects every pending and future read. Erroring a stream that is
// already terminal is a no-op.
func (c *ReadableController[T]) Error(reason error) {
	c.errorInternal(reason)
}

func (c *ReadableController[T]) errorInternal(reason error) {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		c.mu.Unlock()
		return
	}
	c.state = ReadableStateErrored
	c.storedError = reason
	c.queue.reset()
	pending := c.pending
	c.pending = nil
	c.instr.pendingReads(0)
	c.instr.queueSize(0)
	c.broadcastSpaceLocked()
	c.mu.Unlock()

	for _, p := range pending {
		p.Reject(reason)
	}
	c.closedP.Reject(reason)
	c.cancelCtx()
	c.instr.errored()
	if c.onError != nil {
		c.onError(reason)
	}
}

// read delivers the next chunk, a done marker, or the stream's failure.
// Settlement order is strict FIFO relative to other reads on this stream.
func (c *ReadableController[T]) read(ctx context.Context) (T, bool, error) {
	var zero T

	c.mu.Lock()
	if chunk, ok := c.queue.dequeue(); ok {
		c.instr.queueSize(c.queue.runningSize)
		c.broadcastSpaceLocked()
		c.maybePullLocked()
		c.mu.Unlock()
		c.instr.read()
		return chunk.value, true, nil
	}

	switch c.state {
	case ReadableStateErrored:
		err := &gserrors.PropagatedError{Reason: c.storedError}
		c.mu.Unlock()
		return zero, false, err
	case ReadableStateClosed:
		c.mu.Unlock()
		return zero, false, nil
	}

	p := promise.New[readResult[T]]()
	c.pending = append(c.pending, p)
	c.instr.pendingReads(len(c.pending))
	// A waiting read means the stream can accept data regardless of the
	// high-water mark; wake any gated producer.
	c.broadcastSpaceLocked()
	c.maybePullLocked()
	c.mu.Unlock()

	res, err := p.Await(ctx)
	if err != nil {
		// The caller stopped waiting. If the request is still pending, retract
		// it so a future chunk is not delivered to nobody; if it settled in
		// the meantime, deliver that settlement.
		c.mu.Lock()
		if c.removePendingLocked(p) {
			c.mu.Unlock()
			return zero, false, err
		}
		c.mu.Unlock()
		res, err = p.Value()
		if err != nil {
			return zero, false, err
		}
	}
	return res.value, res.ok, nil
}

func (c *ReadableController[T]) removePendingLocked(p *promise.Promise[readResult[T]]) bool {
	for i, q := range c.pending {
		if q == p {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.instr.pendingReads(len(c.pending))
			return true
		}
	}
	return false
}

// cancel discards the queue, settles waiting reads with done markers, and
// invokes the source's Cancel exactly once. The stream transitions to closed
// unless the cancel adapter itself fails, which errors it instead.
func (c *ReadableController[T]) cancel(ctx context.Context, reason error) error {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		c.mu.Unlock()
		return nil
	}
	c.state = ReadableStateClosed
	c.cancelled = true
	c.queue.reset()
	pending := c.pending
	c.pending = nil
	c.instr.pendingReads(0)
	c.instr.queueSize(0)
	c.broadcastSpaceLocked()
	c.mu.Unlock()

	for _, p := range pending {
		p.Resolve(readResult[T]{ok: false})
	}

	// Free a blocked pull before serializing on the adapter, otherwise the
	// cancel callback would wait on a pull that never returns.
	c.cancelCtx()
	c.instr.cancelled()

	if c.source.Cancel != nil {
		c.adapterMu.Lock()
		err := c.source.Cancel(ctx, reason)
		c.adapterMu.Unlock()
		if err != nil {
			ae := &gserrors.AdapterError{Op: "cancel", Err: err}
			c.mu.Lock()
			c.state = ReadableStateErrored
			c.storedError = ae
			c.broadcastSpaceLocked()
			c.mu.Unlock()
			c.closedP.Reject(ae)
			c.instr.errored()
			return ae
		}
	}

	c.closedP.Resolve(struct{}{})
	c.instr.closed()
	return nil
}

// closed settles when the stream reaches a terminal state: nil on close or
// cancel, the stored reason on error.
func (c *ReadableController[T]) closed(ctx context.Context) error {
	_, err := c.closedP.Await(ctx)
	return err
}

// wantsData reports whether the stream can put another chunk to use: it is
// still readable and either has buffering budget or a waiting read.
func (c *ReadableController[T]) wantsData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == ReadableStateReadable && (c.desiredSizeLocked() > 0 || len(c.pending) > 0)
}

// maybePullLocked arms a pull when the stream wants data and none is in
// flight. Callers must hold mu.
func (c *ReadableController[T]) maybePullLocked() {
	if !c.started || c.pulling || c.state != ReadableStateReadable || c.source.Pull == nil {
		return
	}
	if c.desiredSizeLocked() <= 0 && len(c.pending) == 0 {
		return
	}
	c.pulling = true
	go c.runPull()
}

func (c *ReadableController[T]) runPull() {
	c.adapterMu.Lock()
	err := c.source.Pull(c.ctx, c)
	c.adapterMu.Unlock()

	c.mu.Lock()
	c.pulling = false
	if err != nil {
		if c.state != ReadableStateReadable {
			// The stream went terminal while the pull was in flight; the
			// interrupted pull is not an adapter failure.
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.errorInternal(&gserrors.AdapterError{Op: "pull", Err: err})
		return
	}
	c.maybePullLocked()
	c.mu.Unlock()
}

// waitForSpace blocks until the stream can accept another chunk without
// exceeding its high-water mark, a read is waiting, or the stream goes
// terminal. The transform plumbing uses it to gate writable acceptance on
// the readable side's desired size.
func (c *ReadableController[T]) waitForSpace(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case ReadableStateErrored:
			err := &gserrors.PropagatedError{Reason: c.storedError}
			c.mu.Unlock()
			return err
		case ReadableStateClosed:
			c.mu.Unlock()
			return gserrors.ErrClosed
		}
		if c.desiredSizeLocked() > 0 || len(c.pending) > 0 {
			c.mu.Unlock()
			return nil
		}
		ch := c.spaceCh
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// broadcastSpaceLocked wakes waitForSpace waiters. Callers must hold mu.
func (c *ReadableController[T]) broadcastSpaceLocked() {
	close(c.spaceCh)
	c.spaceCh = make(chan struct{})
}
