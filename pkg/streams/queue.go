package streams

// sizedChunk pairs a chunk with its strategy-computed size.
type sizedChunk[T any] struct {
	value T
	size  float64
}

// chunkQueue is the ordered buffer behind a controller. It is owned
// exclusively by that controller and mutated only under its lock, only via
// enqueue and dequeue. runningSize always equals the sum of the queued
// chunk sizes.
type chunkQueue[T any] struct {
	chunks      []sizedChunk[T]
	runningSize float64
}

func (q *chunkQueue[T]) enqueue(value T, size float64) {
	q.chunks = append(q.chunks, sizedChunk[T]{value: value, size: size})
	q.runningSize += size
}

func (q *chunkQueue[T]) dequeue() (sizedChunk[T], bool) {
	if len(q.chunks) == 0 {
		return sizedChunk[T]{}, false
	}
	head := q.chunks[0]
	// Shift rather than reslice so consumed chunks do not pin the backing array.
	copy(q.chunks, q.chunks[1:])
	q.chunks[len(q.chunks)-1] = sizedChunk[T]{}
	q.chunks = q.chunks[:len(q.chunks)-1]
	q.runningSize -= head.size
	if len(q.chunks) == 0 {
		q.runningSize = 0
	}
	return head, true
}

func (q *chunkQueue[T]) len() int {
	return len(q.chunks)
}

// reset discards all queued chunks. Buffered data after an error or
// cancellation is unobservable.
func (q *chunkQueue[T]) reset() {
	q.chunks = nil
	q.runningSize = 0
}
