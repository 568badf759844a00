package streams

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/gostream/internal/testutil"
	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// newManualReadable builds a stream whose controller is driven directly by
// the test, with a count strategy at the given high-water mark.
func newManualReadable[T any](t *testing.T, highWaterMark float64) (*ReadableStream[T], *ReadableController[T]) {
	t.Helper()
	var ctrl *ReadableController[T]
	strategy, err := NewCountStrategy[T](highWaterMark)
	testutil.AssertNoError(t, err)
	s, err := NewReadable(Source[T]{
		Start: func(ctx context.Context, c *ReadableController[T]) error {
			ctrl = c
			return nil
		},
	}, strategy)
	testutil.AssertNoError(t, err)
	return s, ctrl
}

func TestReadableDesiredSize(t *testing.T) {
	_, ctrl := newManualReadable[int](t, 10)
	testutil.AssertEqual(t, ctrl.DesiredSize(), 10)

	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, ctrl.Enqueue(i))
	}
	testutil.AssertEqual(t, ctrl.DesiredSize(), 7)
}

func TestReadableDesiredSizeGoesNegative(t *testing.T) {
	_, ctrl := newManualReadable[int](t, 1)

	testutil.AssertNoError(t, ctrl.Enqueue(1))
	testutil.AssertNoError(t, ctrl.Enqueue(2))
	testutil.AssertNoError(t, ctrl.Enqueue(3))

	// Enqueue past the high-water mark never fails; it only drives the
	// desired size below zero.
	testutil.AssertEqual(t, ctrl.DesiredSize(), -2)
}

func TestReadableReadsInFIFOOrder(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[string](t, 10)
	for _, v := range []string{"a", "b", "c"} {
		testutil.AssertNoError(t, ctrl.Enqueue(v))
	}
	testutil.AssertNoError(t, ctrl.Close())

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := reader.Read(ctx)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, got, want)
	}

	_, ok, err := reader.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)
}

func TestReadableReadBlocksUntilEnqueue(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 1)
	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	got := make(chan int, 1)
	go func() {
		v, ok, err := reader.Read(ctx)
		if err == nil && ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	testutil.AssertNoError(t, ctrl.Enqueue(42))

	select {
	case v := <-got:
		testutil.AssertEqual(t, v, 42)
	case <-ctx.Done():
		t.Fatal("read did not complete after enqueue")
	}
}

func TestReadableLockLifecycle(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 1)

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, rs.Locked(), true)

	_, err = rs.GetReader()
	testutil.AssertError(t, err)
	var lerr *gserrors.LockError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockError, got %T", err)
	}

	reader.ReleaseLock()
	testutil.AssertEqual(t, rs.Locked(), false)

	// A released lease is dead even after the stream is re-locked.
	reader2, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, ctrl.Enqueue(1))
	_, _, err = reader.Read(ctx)
	if !errors.Is(err, gserrors.ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}

	v, ok, err := reader2.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, v, 1)
}

func TestReadableCancel(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	var cancelCalls atomic.Int32
	reason := errors.New("consumer lost interest")
	var gotReason error

	strategy, err := NewCountStrategy[int](4)
	testutil.AssertNoError(t, err)
	var ctrl *ReadableController[int]
	rs, err := NewReadable(Source[int]{
		Start: func(ctx context.Context, c *ReadableController[int]) error {
			ctrl = c
			return nil
		},
		Cancel: func(ctx context.Context, reason error) error {
			cancelCalls.Add(1)
			gotReason = reason
			return nil
		},
	}, strategy)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, ctrl.Enqueue(1))

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, reader.Cancel(ctx, reason))
	testutil.AssertEqual(t, rs.State(), ReadableStateClosed)
	testutil.AssertEqual(t, cancelCalls.Load(), int32(1))
	testutil.AssertEqual(t, gotReason, reason)

	// Cancellation discards buffered chunks and lands on done markers.
	_, ok, err := reader.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)

	// A second cancel is a no-op.
	testutil.AssertNoError(t, reader.Cancel(ctx, reason))
	testutil.AssertEqual(t, cancelCalls.Load(), int32(1))

	testutil.AssertNoError(t, reader.Closed(ctx))
}

func TestReadableCancelRequiresUnlockedStream(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, _ := newManualReadable[int](t, 1)
	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	err = rs.Cancel(ctx, errors.New("nope"))
	var lerr *gserrors.LockError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockError, got %v", err)
	}

	reader.ReleaseLock()
	testutil.AssertNoError(t, rs.Cancel(ctx, errors.New("done with it")))
	testutil.AssertEqual(t, rs.State(), ReadableStateClosed)
}

func TestReadableErrorRejectsReads(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 4)
	testutil.AssertNoError(t, ctrl.Enqueue(1))

	boom := errors.New("upstream exploded")
	ctrl.Error(boom)
	testutil.AssertEqual(t, rs.State(), ReadableStateErrored)
	testutil.AssertEqual(t, ctrl.DesiredSize(), 0)

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	// The queue was discarded; every read fails with the stored reason.
	_, _, err = reader.Read(ctx)
	testutil.AssertError(t, err)
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to wrap the stored reason, got %v", err)
	}
	var perr *gserrors.PropagatedError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PropagatedError, got %T", err)
	}

	err = reader.Closed(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected Closed to report the stored reason, got %v", err)
	}
}

func TestReadableErrorRejectsPendingReads(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 1)
	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := reader.Read(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	boom := errors.New("mid-read failure")
	ctrl.Error(boom)

	select {
	case err := <-errCh:
		if !errors.Is(err, boom) {
			t.Fatalf("expected pending read to reject with the reason, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("pending read was not rejected")
	}
}

func TestReadableCloseDrainsQueueFirst(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 4)
	testutil.AssertNoError(t, ctrl.Enqueue(1))
	testutil.AssertNoError(t, ctrl.Enqueue(2))
	testutil.AssertNoError(t, ctrl.Close())

	err := ctrl.Enqueue(3)
	var serr *gserrors.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError after close, got %v", err)
	}

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)
	for _, want := range []int{1, 2} {
		v, ok, err := reader.Read(ctx)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, ok, true)
		testutil.AssertEqual(t, v, want)
	}
	_, ok, err := reader.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)
}

func TestReadablePullDrivenSource(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	strategy, err := NewCountStrategy[int](2)
	testutil.AssertNoError(t, err)

	next := 0
	rs, err := NewReadable(Source[int]{
		Pull: func(ctx context.Context, c *ReadableController[int]) error {
			next++
			if next > 5 {
				return c.Close()
			}
			return c.Enqueue(next)
		},
	}, strategy)
	testutil.AssertNoError(t, err)

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	var got []int
	for {
		v, ok, err := reader.Read(ctx)
		testutil.AssertNoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}

	testutil.AssertEqual(t, len(got), 5)
	for i, v := range got {
		testutil.AssertEqual(t, v, i+1)
	}
}

func TestReadablePullErrorErrorsStream(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("pull failed")
	strategy, err := NewCountStrategy[int](1)
	testutil.AssertNoError(t, err)
	rs, err := NewReadable(Source[int]{
		Pull: func(ctx context.Context, c *ReadableController[int]) error {
			return boom
		},
	}, strategy)
	testutil.AssertNoError(t, err)

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	_, _, err = reader.Read(ctx)
	testutil.AssertError(t, err)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the pull failure, got %v", err)
	}
	var aerr *gserrors.AdapterError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AdapterError, got %T", err)
	}
	testutil.AssertEqual(t, aerr.Op, "pull")
}

func TestReadableStartErrorErrorsStream(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("start failed")
	rs, err := NewReadable(Source[int]{
		Start: func(ctx context.Context, c *ReadableController[int]) error {
			return boom
		},
	}, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, rs.State(), ReadableStateErrored)

	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)
	_, _, err = reader.Read(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the start failure, got %v", err)
	}
}

func TestReadableAbandonedReadIsRetracted(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 1)
	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	doomed, abandon := context.WithCancel(context.Background())
	abandon()
	_, _, err = reader.Read(doomed)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}

	// The retracted read must not swallow the next chunk.
	testutil.AssertNoError(t, ctrl.Enqueue(7))
	v, ok, err := reader.Read(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, v, 7)
}

func TestReadableEnqueueSettlesWaitingReadDirectly(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	rs, ctrl := newManualReadable[int](t, 0)
	reader, err := rs.GetReader()
	testutil.AssertNoError(t, err)

	got := make(chan int, 1)
	go func() {
		v, ok, err := reader.Read(ctx)
		if err == nil && ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	testutil.AssertNoError(t, ctrl.Enqueue(9))

	select {
	case v := <-got:
		testutil.AssertEqual(t, v, 9)
	case <-ctx.Done():
		t.Fatal("waiting read was not settled")
	}

	// The chunk went straight to the waiting read, never through the queue.
	testutil.AssertEqual(t, ctrl.DesiredSize(), 0)
}
