package streams

import (
	"context"
	"sync"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/promise"
)

// WritableState describes the lifecycle state of a writable stream.
type WritableState int32

const (
	// WritableStateWritable accepts writes; desired size may go non-positive
	// to report backpressure.
	WritableStateWritable WritableState = iota

	// WritableStateClosing drains queued writes before the sink's Close runs.
	WritableStateClosing

	// WritableStateClosed is the successful terminal state.
	WritableStateClosed

	// WritableStateErroring is the transitional failure state during which
	// the sink's Abort runs with the captured reason.
	WritableStateErroring

	// WritableStateErrored is the terminal failure state; all further write
	// and close calls reject immediately with the stored reason.
	WritableStateErrored
)

// String returns the lowercase state name.
func (s WritableState) String() string {
	switch s {
	case WritableStateWritable:
		return "writable"
	case WritableStateClosing:
		return "closing"
	case WritableStateClosed:
		return "closed"
	case WritableStateErroring:
		return "erroring"
	case WritableStateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// pendingWrite carries one queued chunk and the promise its Write call
// settles on.
type pendingWrite[T any] struct {
	chunk T
	size  float64
	p     *promise.Promise[struct{}]
}

// WritableController drives a writable stream's state machine. Sink
// invocations are serialized so write completions settle strictly in
// submission order regardless of the sink's internal latency.
type WritableController[T any] struct {
	mu sync.Mutex

	// adapterMu serializes sink callback invocations.
	adapterMu sync.Mutex

	sink     Sink[T]
	strategy QueuingStrategy[T]

	state       WritableState
	storedError error

	queue      []pendingWrite[T]
	queuedSize float64

	draining     bool
	abortInvoked bool
	started      bool

	// readyCh is re-made on every broadcast; Ready waiters re-check state.
	readyCh chan struct{}

	closeP  *promise.Promise[struct{}]
	closedP *promise.Promise[struct{}]

	ctx       context.Context
	cancelCtx context.CancelFunc

	instr          instruments
	onBackpressure func()
	onError        func(error)
}

func newWritableController[T any](sink Sink[T], strategy QueuingStrategy[T], opts Options) *WritableController[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &WritableController[T]{
		sink:           sink,
		strategy:       strategy,
		readyCh:        make(chan struct{}),
		closedP:        promise.New[struct{}](),
		ctx:            ctx,
		cancelCtx:      cancel,
		instr:          newInstruments("writable", opts),
		onBackpressure: opts.OnBackpressure,
		onError:        opts.OnError,
	}
}

// start runs the sink's Start callback once. A failure moves the stream
// through erroring to errored before the first write.
func (c *WritableController[T]) start() {
	if c.sink.Start != nil {
		c.adapterMu.Lock()
		err := c.sink.Start(c.ctx, c)
		c.adapterMu.Unlock()
		if err != nil {
			c.errorInternal(context.Background(), &gserrors.AdapterError{Op: "start", Err: err})
			return
		}
	}
	c.mu.Lock()
	c.started = true
	c.ensureDrainLocked()
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *WritableController[T]) State() WritableState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DesiredSize returns highWaterMark minus the size of writes the sink has
// not yet consumed. Non-positive values report backpressure to producers;
// they never block a write.
func (c *WritableController[T]) DesiredSize() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredSizeLocked()
}

func (c *WritableController[T]) desiredSizeLocked() float64 {
	if c.state != WritableStateWritable {
		return 0
	}
	return c.strategy.HighWaterMark() - c.queuedSize
}

// write queues one chunk for the sink and blocks until the sink has consumed
// it. Completion order is strict FIFO. Cancelling ctx abandons the wait only;
// the queued write still reaches the sink and settles.
func (c *WritableController[T]) write(ctx context.Context, chunk T) error {
	c.mu.Lock()
	switch c.state {
	case WritableStateErroring, WritableStateErrored:
		err := &gserrors.PropagatedError{Reason: c.storedError}
		c.mu.Unlock()
		return err
	case WritableStateClosing, WritableStateClosed:
		state := c.state
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Write", State: state.String()}
	}

	size := c.strategy.Size(chunk)
	if size < 0 {
		c.mu.Unlock()
		return gserrors.NewValidationError(moduleName, "size", size, "cannot be negative").
			WithHint("strategy Size must return >= 0")
	}

	p := promise.New[struct{}]()
	c.queue = append(c.queue, pendingWrite[T]{chunk: chunk, size: size, p: p})
	c.queuedSize += size
	c.instr.pendingWrites(len(c.queue))
	backpressure := c.desiredSizeLocked() <= 0
	c.ensureDrainLocked()
	c.mu.Unlock()

	if backpressure {
		c.instr.backpressure()
		if c.onBackpressure != nil {
			c.onBackpressure()
		}
	}

	_, err := p.Await(ctx)
	return err
}

// close transitions to closing, drains queued writes, then runs the sink's
// Close. It blocks until the stream is closed or errored.
func (c *WritableController[T]) close(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case WritableStateErroring, WritableStateErrored:
		err := &gserrors.PropagatedError{Reason: c.storedError}
		c.mu.Unlock()
		return err
	case WritableStateClosing, WritableStateClosed:
		state := c.state
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Close", State: state.String()}
	}

	c.state = WritableStateClosing
	c.closeP = promise.New[struct{}]()
	closeP := c.closeP
	c.broadcastReadyLocked()
	c.ensureDrainLocked()
	c.mu.Unlock()

	_, err := closeP.Await(ctx)
	return err
}

// abort errors the stream with reason. Queued writes reject with reason, the
// sink's Abort runs exactly once, and the stream lands in errored. Aborting
// a stream that is already terminal is a no-op.
func (c *WritableController[T]) abort(ctx context.Context, reason error) error {
	c.instr.cancelled()
	return c.errorInternal(ctx, reason)
}

// errorInternal moves the stream through erroring to errored: it captures
// reason, rejects queued writes, invokes the sink's Abort with the reason,
// and settles the terminal watchers. It returns the abort adapter's failure,
// if any.
func (c *WritableController[T]) errorInternal(ctx context.Context, reason error) error {
	c.mu.Lock()
	switch c.state {
	case WritableStateClosed, WritableStateErroring, WritableStateErrored:
		c.mu.Unlock()
		return nil
	}
	c.state = WritableStateErroring
	c.storedError = reason
	rejected := c.queue
	c.queue = nil
	c.queuedSize = 0
	closeP := c.closeP
	c.instr.pendingWrites(0)
	c.broadcastReadyLocked()
	c.mu.Unlock()

	for _, w := range rejected {
		w.p.Reject(reason)
	}
	if closeP != nil {
		closeP.Reject(reason)
	}
	c.closedP.Reject(reason)
	c.instr.errored()
	if c.onError != nil {
		c.onError(reason)
	}

	var abortErr error
	c.mu.Lock()
	invoke := !c.abortInvoked
	c.abortInvoked = true
	c.mu.Unlock()
	if invoke && c.sink.Abort != nil {
		c.adapterMu.Lock()
		abortErr = c.sink.Abort(ctx, reason)
		c.adapterMu.Unlock()
		if abortErr != nil {
			abortErr = &gserrors.AdapterError{Op: "abort", Err: abortErr}
		}
	}

	c.mu.Lock()
	c.state = WritableStateErrored
	c.mu.Unlock()
	c.cancelCtx()
	return abortErr
}

// ready blocks until the stream can accept a write without backpressure, or
// returns immediately once the stream is closing or terminal.
func (c *WritableController[T]) ready(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case WritableStateErroring, WritableStateErrored:
			err := &gserrors.PropagatedError{Reason: c.storedError}
			c.mu.Unlock()
			return err
		case WritableStateClosing, WritableStateClosed:
			c.mu.Unlock()
			return gserrors.ErrClosed
		}
		if c.desiredSizeLocked() > 0 {
			c.mu.Unlock()
			return nil
		}
		ch := c.readyCh
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// closed settles when the stream reaches a terminal state: nil when closed,
// the stored reason when errored.
func (c *WritableController[T]) closed(ctx context.Context) error {
	_, err := c.closedP.Await(ctx)
	return err
}

// ensureDrainLocked arms the drain goroutine. Callers must hold mu. Draining
// is armed only after Start returns, deferring re-entrant writes issued from
// within Start to the next turn.
func (c *WritableController[T]) ensureDrainLocked() {
	if !c.started || c.draining {
		return
	}
	if len(c.queue) == 0 && c.state != WritableStateClosing {
		return
	}
	c.draining = true
	go c.drain()
}

// drain hands queued writes to the sink one at a time, settling each promise
// before invoking the sink for the next, so completion order always equals
// submission order.
func (c *WritableController[T]) drain() {
	for {
		c.mu.Lock()
		if c.state == WritableStateErroring || c.state == WritableStateErrored {
			c.draining = false
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			if c.state == WritableStateClosing {
				c.draining = false
				c.mu.Unlock()
				c.finishClose()
				return
			}
			c.draining = false
			c.mu.Unlock()
			return
		}
		req := c.queue[0]
		c.queue = c.queue[1:]
		c.instr.pendingWrites(len(c.queue))
		c.mu.Unlock()

		var err error
		if c.sink.Write != nil {
			c.adapterMu.Lock()
			err = c.sink.Write(c.ctx, req.chunk, c)
			c.adapterMu.Unlock()
		}
		if err != nil {
			ae := &gserrors.AdapterError{Op: "write", Err: err}
			c.mu.Lock()
			c.draining = false
			// If an abort won the race, the in-flight write settles against
			// the stored reason rather than its own failure.
			var reject error = ae
			if c.state == WritableStateErroring || c.state == WritableStateErrored {
				reject = c.storedError
			}
			c.mu.Unlock()
			_ = c.errorInternal(context.Background(), ae)
			req.p.Reject(reject)
			return
		}

		c.mu.Lock()
		c.queuedSize -= req.size
		if len(c.queue) == 0 || c.queuedSize < 0 {
			c.queuedSize = 0
		}
		c.broadcastReadyLocked()
		c.mu.Unlock()

		req.p.Resolve(struct{}{})
		c.instr.written()
	}
}

// finishClose runs the sink's Close after the queue has drained and settles
// the close and terminal watchers.
func (c *WritableController[T]) finishClose() {
	var err error
	if c.sink.Close != nil {
		c.adapterMu.Lock()
		err = c.sink.Close(c.ctx)
		c.adapterMu.Unlock()
	}

	c.mu.Lock()
	closeP := c.closeP
	c.mu.Unlock()

	if err != nil {
		ae := &gserrors.AdapterError{Op: "close", Err: err}
		_ = c.errorInternal(context.Background(), ae)
		return
	}

	c.mu.Lock()
	if c.state == WritableStateErroring || c.state == WritableStateErrored {
		// An abort raced the close; the failure transition already settled
		// the watchers.
		c.mu.Unlock()
		return
	}
	c.state = WritableStateClosed
	c.broadcastReadyLocked()
	c.mu.Unlock()

	if closeP != nil {
		closeP.Resolve(struct{}{})
	}
	c.closedP.Resolve(struct{}{})
	c.cancelCtx()
	c.instr.closed()
}

// broadcastReadyLocked wakes Ready waiters. Callers must hold mu.
func (c *WritableController[T]) broadcastReadyLocked() {
	close(c.readyCh)
	c.readyCh = make(chan struct{})
}
