package streams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/gostream/internal/testutil"
	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// recordingSink captures everything a writable stream hands to it. failOn
// makes the nth write fail (1-based); a non-nil gate makes each write block
// until a token arrives.
type recordingSink[T any] struct {
	mu          sync.Mutex
	written     []T
	writeCalls  int
	closeCalls  int
	abortCalls  int
	abortReason error

	failOn  int
	failErr error
	gate    chan struct{}
}

func (s *recordingSink[T]) sink() Sink[T] {
	return Sink[T]{
		Write: func(ctx context.Context, chunk T, c *WritableController[T]) error {
			if s.gate != nil {
				<-s.gate
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			s.writeCalls++
			if s.failOn > 0 && s.writeCalls == s.failOn {
				return s.failErr
			}
			s.written = append(s.written, chunk)
			return nil
		},
		Close: func(ctx context.Context) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.closeCalls++
			return nil
		},
		Abort: func(ctx context.Context, reason error) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.abortCalls++
			s.abortReason = reason
			return nil
		},
	}
}

func (s *recordingSink[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.written))
	copy(out, s.written)
	return out
}

func (s *recordingSink[T]) counts() (writes, closes, aborts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls, s.closeCalls, s.abortCalls
}

func TestWritableWritesReachSinkInOrder(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := &recordingSink[string]{}
	ws, err := NewWritable(sink.sink(), nil)
	testutil.AssertNoError(t, err)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)

	for _, v := range []string{"one", "two", "three"} {
		testutil.AssertNoError(t, writer.Write(ctx, v))
	}
	testutil.AssertNoError(t, writer.Close(ctx))

	got := sink.snapshot()
	testutil.AssertEqual(t, len(got), 3)
	testutil.AssertEqual(t, got[0], "one")
	testutil.AssertEqual(t, got[1], "two")
	testutil.AssertEqual(t, got[2], "three")

	_, closes, aborts := sink.counts()
	testutil.AssertEqual(t, closes, 1)
	testutil.AssertEqual(t, aborts, 0)
	testutil.AssertEqual(t, ws.State(), WritableStateClosed)
	testutil.AssertNoError(t, writer.Closed(ctx))
}

func TestWritableSinkFailureErrorsStream(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("disk full")
	sink := &recordingSink[int]{failOn: 2, failErr: boom}
	ws, err := NewWritable(sink.sink(), nil)
	testutil.AssertNoError(t, err)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)

	// The first write succeeds; the second fails and poisons the stream.
	testutil.AssertNoError(t, writer.Write(ctx, 1))

	err = writer.Write(ctx, 2)
	testutil.AssertError(t, err)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the sink failure, got %v", err)
	}
	var aerr *gserrors.AdapterError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AdapterError, got %T", err)
	}
	testutil.AssertEqual(t, aerr.Op, "write")

	testutil.AssertEqual(t, ws.State(), WritableStateErrored)

	// Close after failure reports the same stored reason and never reaches
	// the sink's Close.
	err = writer.Close(ctx)
	testutil.AssertError(t, err)
	if !errors.Is(err, boom) {
		t.Fatalf("expected close to reject with the stored reason, got %v", err)
	}

	_, closes, aborts := sink.counts()
	testutil.AssertEqual(t, closes, 0)
	testutil.AssertEqual(t, aborts, 1)
	if !errors.Is(sink.abortReason, boom) {
		t.Fatalf("expected abort reason to wrap the sink failure, got %v", sink.abortReason)
	}
}

func TestWritableAbortRejectsQueuedWrites(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	gate := make(chan struct{})
	sink := &recordingSink[int]{gate: gate}
	ws, err := NewWritable(sink.sink(), nil)
	testutil.AssertNoError(t, err)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- writer.Write(ctx, 1) }()
	time.Sleep(10 * time.Millisecond)
	go func() { second <- writer.Write(ctx, 2) }()
	time.Sleep(10 * time.Millisecond)

	// Abort settles only after the in-flight write has left the sink, so it
	// runs concurrently here.
	reason := errors.New("operator pulled the plug")
	aborted := make(chan error, 1)
	go func() { aborted <- writer.Abort(ctx, reason) }()

	// The queued write rejects with the abort reason without waiting for
	// the sink.
	select {
	case err := <-second:
		if !errors.Is(err, reason) {
			t.Fatalf("expected queued write to reject with the abort reason, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("queued write did not settle")
	}

	// The in-flight write already reached the sink; releasing it lets it
	// complete normally and unblocks the abort.
	close(gate)
	select {
	case err := <-first:
		testutil.AssertNoError(t, err)
	case <-ctx.Done():
		t.Fatal("in-flight write did not settle")
	}
	select {
	case err := <-aborted:
		testutil.AssertNoError(t, err)
	case <-ctx.Done():
		t.Fatal("abort did not settle")
	}
	testutil.AssertEqual(t, ws.State(), WritableStateErrored)

	_, _, aborts := sink.counts()
	testutil.AssertEqual(t, aborts, 1)

	err = writer.Write(ctx, 3)
	if !errors.Is(err, reason) {
		t.Fatalf("expected writes after abort to reject, got %v", err)
	}
}

func TestWriterReadyTracksBackpressure(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	gate := make(chan struct{})
	sink := &recordingSink[int]{gate: gate}
	strategy, err := NewCountStrategy[int](2)
	testutil.AssertNoError(t, err)
	ws, err := NewWritable(sink.sink(), strategy)
	testutil.AssertNoError(t, err)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, writer.DesiredSize(), 2)
	testutil.AssertNoError(t, writer.Ready(ctx))

	done := make(chan error, 2)
	go func() { done <- writer.Write(ctx, 1) }()
	go func() { done <- writer.Write(ctx, 2) }()

	// Both writes are unconsumed; the budget is exhausted.
	deadline := time.Now().Add(testutil.TestTimeout)
	for writer.DesiredSize() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("desired size never reached zero")
		}
		time.Sleep(time.Millisecond)
	}

	hurried, hurryCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer hurryCancel()
	err = writer.Ready(hurried)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Ready to block under backpressure, got %v", err)
	}

	// Let the sink drain; the budget recovers and Ready settles.
	gate <- struct{}{}
	gate <- struct{}{}
	testutil.AssertNoError(t, <-done)
	testutil.AssertNoError(t, <-done)
	testutil.AssertNoError(t, writer.Ready(ctx))
	testutil.AssertEqual(t, writer.DesiredSize(), 2)
}

func TestWritableLockLifecycle(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := &recordingSink[int]{}
	ws, err := NewWritable(sink.sink(), nil)
	testutil.AssertNoError(t, err)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ws.Locked(), true)

	_, err = ws.GetWriter()
	var lerr *gserrors.LockError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockError, got %v", err)
	}

	// Stream-level Close and Abort are refused while locked.
	err = ws.Close(ctx)
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockError from Close, got %v", err)
	}
	err = ws.Abort(ctx, errors.New("nope"))
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LockError from Abort, got %v", err)
	}

	writer.ReleaseLock()
	testutil.AssertEqual(t, ws.Locked(), false)

	writer2, err := ws.GetWriter()
	testutil.AssertNoError(t, err)

	err = writer.Write(ctx, 1)
	if !errors.Is(err, gserrors.ErrReleased) {
		t.Fatalf("expected ErrReleased from the stale lease, got %v", err)
	}

	testutil.AssertNoError(t, writer2.Write(ctx, 2))
	testutil.AssertNoError(t, writer2.Close(ctx))
}

func TestWritableWriteAfterCloseFails(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := &recordingSink[int]{}
	ws, err := NewWritable(sink.sink(), nil)
	testutil.AssertNoError(t, err)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, writer.Close(ctx))

	err = writer.Write(ctx, 1)
	var serr *gserrors.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError after close, got %v", err)
	}

	err = writer.Close(ctx)
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError from repeated close, got %v", err)
	}

	testutil.AssertEqual(t, writer.DesiredSize(), 0)
}

func TestWritableStartErrorPoisonsStream(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	boom := errors.New("sink refused to open")
	ws, err := NewWritable(Sink[int]{
		Start: func(ctx context.Context, c *WritableController[int]) error {
			return boom
		},
	}, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ws.State(), WritableStateErrored)

	writer, err := ws.GetWriter()
	testutil.AssertNoError(t, err)
	err = writer.Write(ctx, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the start failure, got %v", err)
	}
}
