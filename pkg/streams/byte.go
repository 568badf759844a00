package streams

import (
	"context"
	"sync"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/promise"
)

// ByteSource supplies data to a readable byte stream. All callbacks are
// optional and are never invoked concurrently.
type ByteSource struct {
	// Start runs once at construction and may enqueue initial bytes.
	Start func(ctx context.Context, c *ByteStreamController) error

	// Pull is invoked whenever the stream wants more bytes.
	Pull func(ctx context.Context, c *ByteStreamController) error

	// Cancel is invoked exactly once when the stream is cancelled.
	Cancel func(ctx context.Context, reason error) error
}

// byteReadResult settles one byte read: a whole chunk for default reads, a
// fill count for BYOB reads, or a terminal done marker.
type byteReadResult struct {
	chunk []byte
	n     int
	ok    bool
}

// pendingByteRead is one outstanding read. A non-nil view marks a BYOB
// request: the consumer's buffer is filled in place, skipping the queue.
type pendingByteRead struct {
	view []byte
	p    *promise.Promise[byteReadResult]
}

// ByteStreamController drives a readable byte stream. It shares the default
// controller's state machine and desired-size bookkeeping, measured in
// bytes, and adds the BYOB path: when a read has supplied a view, enqueued
// bytes are copied straight into it and never buffered.
//
// Enqueue takes ownership of the slice it is given; the source must not
// reuse it afterwards.
type ByteStreamController struct {
	mu        sync.Mutex
	adapterMu sync.Mutex

	source        ByteSource
	highWaterMark float64

	segments    [][]byte
	queuedBytes int

	state       ReadableState
	storedError error

	pending []*pendingByteRead

	pulling bool
	started bool

	closedP *promise.Promise[struct{}]

	ctx       context.Context
	cancelCtx context.CancelFunc

	instr          instruments
	onBackpressure func()
	onError        func(error)
}

// ReadableByteStream is the byte-oriented readable stream variant. Its
// reader supports both whole-chunk reads and BYOB reads into a
// caller-supplied buffer.
type ReadableByteStream struct {
	mu         sync.Mutex
	ctrl       *ByteStreamController
	locked     bool
	generation uint64
}

// NewReadableByteStream creates a byte stream fed by source, buffering up to
// highWaterMark bytes. A negative highWaterMark fails with a ValidationError.
func NewReadableByteStream(source ByteSource, highWaterMark float64) (*ReadableByteStream, error) {
	return NewReadableByteStreamWithOptions(source, highWaterMark, Options{})
}

// NewReadableByteStreamWithOptions creates a byte stream with explicit options.
func NewReadableByteStreamWithOptions(source ByteSource, highWaterMark float64, opts Options) (*ReadableByteStream, error) {
	if err := validateStrategy(highWaterMark); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctrl := &ByteStreamController{
		source:         source,
		highWaterMark:  highWaterMark,
		closedP:        promise.New[struct{}](),
		ctx:            ctx,
		cancelCtx:      cancel,
		instr:          newInstruments("byte", opts),
		onBackpressure: opts.OnBackpressure,
		onError:        opts.OnError,
	}
	ctrl.start()
	return &ReadableByteStream{ctrl: ctrl}, nil
}

// State returns the stream's lifecycle state.
func (s *ReadableByteStream) State() ReadableState {
	return s.ctrl.State()
}

// Locked reports whether a ByteReader currently holds the stream's lock.
func (s *ReadableByteStream) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// GetReader acquires the stream's exclusive read lease.
func (s *ReadableByteStream) GetReader() (*ByteReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, &gserrors.LockError{Op: "GetReader", Kind: "readable"}
	}
	s.locked = true
	s.generation++
	return &ByteReader{stream: s, ctrl: s.ctrl, generation: s.generation}, nil
}

// Cancel cancels the stream with reason. It fails with a LockError while a
// ByteReader holds the lock.
func (s *ReadableByteStream) Cancel(ctx context.Context, reason error) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return &gserrors.LockError{Op: "Cancel", Kind: "readable"}
	}
	s.mu.Unlock()
	return s.ctrl.cancel(ctx, reason)
}

func (s *ReadableByteStream) releaseLock(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked && s.generation == gen {
		s.locked = false
	}
}

func (s *ReadableByteStream) leaseActive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked && s.generation == gen
}

// ByteReader is the exclusive lease on a readable byte stream.
type ByteReader struct {
	stream     *ReadableByteStream
	ctrl       *ByteStreamController
	generation uint64
}

// Read delivers the next queued chunk whole. It returns ok == false with a
// nil error once the stream is done.
func (r *ByteReader) Read(ctx context.Context) ([]byte, bool, error) {
	if !r.stream.leaseActive(r.generation) {
		return nil, false, gserrors.ErrReleased
	}
	return r.ctrl.read(ctx)
}

// ReadInto fills view in place with up to len(view) bytes and returns the
// count written. Bytes already queued are copied out; otherwise the view is
// registered with the controller so the source can fill it directly,
// skipping allocation. ok == false with n == 0 marks the end of the stream.
func (r *ByteReader) ReadInto(ctx context.Context, view []byte) (int, bool, error) {
	if !r.stream.leaseActive(r.generation) {
		return 0, false, gserrors.ErrReleased
	}
	return r.ctrl.readInto(ctx, view)
}

// Cancel cancels the stream with reason through this lease.
func (r *ByteReader) Cancel(ctx context.Context, reason error) error {
	if !r.stream.leaseActive(r.generation) {
		return gserrors.ErrReleased
	}
	return r.ctrl.cancel(ctx, reason)
}

// ReleaseLock releases the lease without waiting for in-flight reads.
func (r *ByteReader) ReleaseLock() {
	r.stream.releaseLock(r.generation)
}

// Closed blocks until the stream reaches a terminal state.
func (r *ByteReader) Closed(ctx context.Context) error {
	_, err := r.ctrl.closedP.Await(ctx)
	return err
}

func (c *ByteStreamController) start() {
	if c.source.Start != nil {
		c.adapterMu.Lock()
		err := c.source.Start(c.ctx, c)
		c.adapterMu.Unlock()
		if err != nil {
			c.Error(&gserrors.AdapterError{Op: "start", Err: err})
			return
		}
	}
	c.mu.Lock()
	c.started = true
	c.maybePullLocked()
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *ByteStreamController) State() ReadableState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DesiredSize returns highWaterMark minus the queued byte count.
func (c *ByteStreamController) DesiredSize() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredSizeLocked()
}

func (c *ByteStreamController) desiredSizeLocked() float64 {
	if c.state != ReadableStateReadable {
		return 0
	}
	return c.highWaterMark - float64(c.queuedBytes)
}

// Enqueue makes bytes available to readers. If a BYOB read is waiting, the
// bytes are copied into its view directly; any overflow past the view's
// length is queued. If a default read is waiting, the chunk settles it
// whole. Otherwise the chunk is queued.
func (c *ByteStreamController) Enqueue(b []byte) error {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		state := c.state
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Enqueue", State: state.String()}
	}
	if len(b) == 0 {
		c.mu.Unlock()
		return nil
	}

	if len(c.pending) > 0 {
		req := c.pending[0]
		c.pending = c.pending[1:]
		c.instr.pendingReads(len(c.pending))

		if req.view != nil {
			n := copy(req.view, b)
			if n < len(b) {
				c.segments = append(c.segments, b[n:])
				c.queuedBytes += len(b) - n
				c.instr.queueSize(float64(c.queuedBytes))
			}
			c.mu.Unlock()
			req.p.Resolve(byteReadResult{n: n, ok: true})
			c.instr.enqueued()
			c.instr.bytesRead(n)
			return nil
		}

		c.mu.Unlock()
		req.p.Resolve(byteReadResult{chunk: b, ok: true})
		c.instr.enqueued()
		c.instr.bytesRead(len(b))
		return nil
	}

	c.segments = append(c.segments, b)
	c.queuedBytes += len(b)
	c.maybePullLocked()
	c.instr.queueSize(float64(c.queuedBytes))
	backpressure := c.desiredSizeLocked() <= 0
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

// PendingView returns the waiting BYOB read's buffer, or nil when none is
// waiting. A source may write into it in place and report the fill count
// with Respond, avoiding any intermediate allocation.
func (c *ByteStreamController) PendingView() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 && c.pending[0].view != nil {
		return c.pending[0].view
	}
	return nil
}

// Respond settles the waiting BYOB read with n bytes written into its view.
func (c *ByteStreamController) Respond(n int) error {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		state := c.state
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Respond", State: state.String()}
	}
	if len(c.pending) == 0 || c.pending[0].view == nil {
		c.mu.Unlock()
		return &gserrors.StateError{Op: "Respond", State: "no pending view"}
	}
	req := c.pending[0]
	if n < 0 || n > len(req.view) {
		c.mu.Unlock()
		return gserrors.NewValidationError(moduleName, "n", n, "outside the pending view's bounds")
	}
	c.pending = c.pending[1:]
	c.instr.pendingReads(len(c.pending))
	c.mu.Unlock()

	req.p.Resolve(byteReadResult{n: n, ok: true})
	c.instr.bytesRead(n)
	return nil
}

// Close transitions the stream to closed. Queued bytes remain readable;
// waiting reads settle with done markers.
func (c *ByteStreamController) Close() error {
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
	c.mu.Unlock()

	for _, req := range pending {
		req.p.Resolve(byteReadResult{ok: false})
	}
	c.closedP.Resolve(struct{}{})
	c.cancelCtx()
	c.instr.closed()
	return nil
}

// Error transitions the stream to errored, discards queued bytes, and
// rejects every pending and future read with reason.
func (c *ByteStreamController) Error(reason error) {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		c.mu.Unlock()
		return
	}
	c.state = ReadableStateErrored
	c.storedError = reason
	c.segments = nil
	c.queuedBytes = 0
	pending := c.pending
	c.pending = nil
	c.instr.pendingReads(0)
	c.instr.queueSize(0)
	c.mu.Unlock()

	for _, req := range pending {
		req.p.Reject(reason)
	}
	c.closedP.Reject(reason)
	c.cancelCtx()
	c.instr.errored()
	if c.onError != nil {
		c.onError(reason)
	}
}

func (c *ByteStreamController) read(ctx context.Context) ([]byte, bool, error) {
	c.mu.Lock()
	if len(c.segments) > 0 {
		head := c.segments[0]
		c.segments = c.segments[1:]
		c.queuedBytes -= len(head)
		c.instr.queueSize(float64(c.queuedBytes))
		c.maybePullLocked()
		c.mu.Unlock()
		c.instr.read()
		c.instr.bytesRead(len(head))
		return head, true, nil
	}

	switch c.state {
	case ReadableStateErrored:
		err := &gserrors.PropagatedError{Reason: c.storedError}
		c.mu.Unlock()
		return nil, false, err
	case ReadableStateClosed:
		c.mu.Unlock()
		return nil, false, nil
	}

	req := &pendingByteRead{p: promise.New[byteReadResult]()}
	c.pending = append(c.pending, req)
	c.instr.pendingReads(len(c.pending))
	c.maybePullLocked()
	c.mu.Unlock()

	res, err := c.await(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return res.chunk, res.ok, nil
}

func (c *ByteStreamController) readInto(ctx context.Context, view []byte) (int, bool, error) {
	if len(view) == 0 {
		return 0, false, gserrors.NewValidationError(moduleName, "view", len(view), "cannot be empty").
			WithHint("supply a non-empty buffer to fill")
	}

	c.mu.Lock()
	if c.queuedBytes > 0 {
		n := c.fillLocked(view)
		c.instr.queueSize(float64(c.queuedBytes))
		c.maybePullLocked()
		c.mu.Unlock()
		c.instr.read()
		c.instr.bytesRead(n)
		return n, true, nil
	}

	switch c.state {
	case ReadableStateErrored:
		err := &gserrors.PropagatedError{Reason: c.storedError}
		c.mu.Unlock()
		return 0, false, err
	case ReadableStateClosed:
		c.mu.Unlock()
		return 0, false, nil
	}

	req := &pendingByteRead{view: view, p: promise.New[byteReadResult]()}
	c.pending = append(c.pending, req)
	c.instr.pendingReads(len(c.pending))
	c.maybePullLocked()
	c.mu.Unlock()

	res, err := c.await(ctx, req)
	if err != nil {
		return 0, false, err
	}
	return res.n, res.ok, nil
}

// fillLocked copies queued bytes into view, consuming whole segments and
// keeping the remainder of a partially consumed one. Callers must hold mu.
func (c *ByteStreamController) fillLocked(view []byte) int {
	total := 0
	for total < len(view) && len(c.segments) > 0 {
		n := copy(view[total:], c.segments[0])
		total += n
		if n == len(c.segments[0]) {
			c.segments = c.segments[1:]
		} else {
			c.segments[0] = c.segments[0][n:]
		}
		c.queuedBytes -= n
	}
	return total
}

// await waits for req to settle, retracting it if the caller abandons the
// wait before settlement.
func (c *ByteStreamController) await(ctx context.Context, req *pendingByteRead) (byteReadResult, error) {
	res, err := req.p.Await(ctx)
	if err == nil {
		return res, nil
	}
	c.mu.Lock()
	for i, q := range c.pending {
		if q == req {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.instr.pendingReads(len(c.pending))
			c.mu.Unlock()
			return byteReadResult{}, err
		}
	}
	c.mu.Unlock()
	return req.p.Value()
}

func (c *ByteStreamController) cancel(ctx context.Context, reason error) error {
	c.mu.Lock()
	if c.state != ReadableStateReadable {
		c.mu.Unlock()
		return nil
	}
	c.state = ReadableStateClosed
	c.segments = nil
	c.queuedBytes = 0
	pending := c.pending
	c.pending = nil
	c.instr.pendingReads(0)
	c.instr.queueSize(0)
	c.mu.Unlock()

	for _, req := range pending {
		req.p.Resolve(byteReadResult{ok: false})
	}

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

func (c *ByteStreamController) maybePullLocked() {
	if !c.started || c.pulling || c.state != ReadableStateReadable || c.source.Pull == nil {
		return
	}
	if c.desiredSizeLocked() <= 0 && len(c.pending) == 0 {
		return
	}
	c.pulling = true
	go c.runPull()
}

func (c *ByteStreamController) runPull() {
	c.adapterMu.Lock()
	err := c.source.Pull(c.ctx, c)
	c.adapterMu.Unlock()

	c.mu.Lock()
	c.pulling = false
	if err != nil {
		if c.state != ReadableStateReadable {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.Error(&gserrors.AdapterError{Op: "pull", Err: err})
		return
	}
	c.maybePullLocked()
	c.mu.Unlock()
}
