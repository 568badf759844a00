package streams

import (
	"context"
	"errors"
	"sync"
)

// Tee splits the stream into two independent readable branches fed by one
// shared upstream pull cursor. It fails with a LockError if the stream is
// already locked; on success the source stream is locked by an internal
// reader for the rest of its life.
//
// Each branch owns an independent queue; a chunk pulled upstream is
// delivered to every live branch. Upstream pulls happen only while at least
// one live branch wants data, so cancelling one branch leaves the other
// driving pulls alone. Cancelling both branches cancels the upstream source
// exactly once, with both reasons combined.
func (s *ReadableStream[T]) Tee() (*ReadableStream[T], *ReadableStream[T], error) {
	reader, err := s.GetReader()
	if err != nil {
		return nil, nil, err
	}

	t := &teeState[T]{reader: reader, ready: make(chan struct{})}

	branch := func(idx int) *ReadableStream[T] {
		src := Source[T]{
			Pull: func(ctx context.Context, _ *ReadableController[T]) error {
				t.pump(ctx)
				return nil
			},
			Cancel: func(ctx context.Context, reason error) error {
				return t.cancelBranch(ctx, idx, reason)
			},
		}
		// Branch queues are count-buffered independently of the source's
		// strategy; sizes were already accounted upstream.
		b, _ := NewReadable(src, defaultStrategy[T]())
		return b
	}

	b1 := branch(0)
	b2 := branch(1)
	t.branches = [2]*ReadableController[T]{b1.ctrl, b2.ctrl}
	close(t.ready)
	return b1, b2, nil
}

// teeState coordinates two branch controllers around one upstream reader.
// The single-pull rule lives here: pulling guards the shared cursor so both
// branches together trigger at most one outstanding upstream read.
type teeState[T any] struct {
	mu        sync.Mutex
	reader    *Reader[T]
	branches  [2]*ReadableController[T]
	cancelled [2]bool
	reasons   [2]error
	pulling   bool
	waitCh    chan struct{}
	done      bool

	// ready settles once both branches are registered; pulls issued during
	// construction park here.
	ready chan struct{}
}

// pump is a branch's pull: it arms one shared upstream read if none is in
// flight and blocks until that read has settled, so a branch never spins
// re-pulling behind an unfinished cursor. Cancelling ctx abandons the wait;
// the upstream read continues for the surviving branch.
func (t *teeState[T]) pump(ctx context.Context) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return
	}

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if !t.pulling {
		t.pulling = true
		t.waitCh = make(chan struct{})
		go t.pumpOne()
	}
	ch := t.waitCh
	t.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// pumpOne performs one upstream read and fans the result out to every live
// branch.
func (t *teeState[T]) pumpOne() {
	value, ok, err := t.reader.Read(context.Background())

	t.mu.Lock()
	live := t.liveLocked()
	if err != nil || !ok {
		t.done = true
	}
	t.mu.Unlock()

	switch {
	case err != nil:
		for _, c := range live {
			c.Error(err)
		}
	case !ok:
		for _, c := range live {
			_ = c.Close()
		}
	default:
		for _, c := range live {
			// A branch cancelled mid-delivery rejects the enqueue; the chunk
			// is simply not observable there.
			_ = c.Enqueue(value)
		}
	}

	t.mu.Lock()
	t.pulling = false
	close(t.waitCh)
	t.mu.Unlock()
}

func (t *teeState[T]) liveLocked() []*ReadableController[T] {
	var live []*ReadableController[T]
	for i, c := range t.branches {
		if c != nil && !t.cancelled[i] {
			live = append(live, c)
		}
	}
	return live
}

// cancelBranch records one branch's cancellation; when both are cancelled
// the upstream source is cancelled exactly once with the combined reasons.
func (t *teeState[T]) cancelBranch(ctx context.Context, idx int, reason error) error {
	t.mu.Lock()
	if t.cancelled[idx] {
		t.mu.Unlock()
		return nil
	}
	t.cancelled[idx] = true
	t.reasons[idx] = reason
	both := t.cancelled[0] && t.cancelled[1]
	alreadyDone := t.done
	if both {
		t.done = true
	}
	combined := errors.Join(t.reasons[0], t.reasons[1])
	t.mu.Unlock()

	if both && !alreadyDone {
		return t.reader.Cancel(ctx, combined)
	}
	return nil
}
