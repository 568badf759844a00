package streams

import (
	"github.com/vnykmshr/gostream/pkg/common/validation"
)

// moduleName is used for validation errors raised by this package.
const moduleName = "streams"

// QueuingStrategy decides how much data a stream buffers before signalling
// backpressure. HighWaterMark is the buffering target; Size assigns each
// chunk a non-negative cost against it. A stream's desired size is
// HighWaterMark minus the summed size of its queued chunks.
type QueuingStrategy[T any] interface {
	// HighWaterMark returns the buffering target fixed at construction.
	HighWaterMark() float64

	// Size returns the cost of one chunk. A negative result is rejected
	// synchronously at the enqueue or write call that supplied the chunk.
	Size(chunk T) float64
}

// CountQueuingStrategy counts every chunk as size 1.
type CountQueuingStrategy[T any] struct {
	highWaterMark float64
}

// NewCountStrategy creates a strategy that counts chunks, buffering up to
// highWaterMark of them. A negative highWaterMark fails with a ValidationError.
func NewCountStrategy[T any](highWaterMark float64) (*CountQueuingStrategy[T], error) {
	if err := validation.ValidateNonNegative(moduleName, "highWaterMark", highWaterMark); err != nil {
		return nil, err
	}
	return &CountQueuingStrategy[T]{highWaterMark: highWaterMark}, nil
}

// HighWaterMark returns the buffering target.
func (s *CountQueuingStrategy[T]) HighWaterMark() float64 {
	return s.highWaterMark
}

// Size returns 1 for every chunk.
func (s *CountQueuingStrategy[T]) Size(T) float64 {
	return 1
}

// ByteLengthQueuingStrategy sizes chunks by their byte length.
type ByteLengthQueuingStrategy struct {
	highWaterMark float64
}

// NewByteLengthStrategy creates a strategy that buffers up to highWaterMark
// bytes. A negative highWaterMark fails with a ValidationError.
func NewByteLengthStrategy(highWaterMark float64) (*ByteLengthQueuingStrategy, error) {
	if err := validation.ValidateNonNegative(moduleName, "highWaterMark", highWaterMark); err != nil {
		return nil, err
	}
	return &ByteLengthQueuingStrategy{highWaterMark: highWaterMark}, nil
}

// HighWaterMark returns the buffering target in bytes.
func (s *ByteLengthQueuingStrategy) HighWaterMark() float64 {
	return s.highWaterMark
}

// Size returns the chunk's byte length.
func (s *ByteLengthQueuingStrategy) Size(chunk []byte) float64 {
	return float64(len(chunk))
}

// SizeFuncStrategy adapts a high-water mark and an arbitrary size function
// into a QueuingStrategy.
type SizeFuncStrategy[T any] struct {
	highWaterMark float64
	size          func(T) float64
}

// NewSizeFuncStrategy creates a strategy from highWaterMark and size. A
// negative highWaterMark fails with a ValidationError; a nil size function
// falls back to counting chunks.
func NewSizeFuncStrategy[T any](highWaterMark float64, size func(T) float64) (*SizeFuncStrategy[T], error) {
	if err := validation.ValidateNonNegative(moduleName, "highWaterMark", highWaterMark); err != nil {
		return nil, err
	}
	if size == nil {
		size = func(T) float64 { return 1 }
	}
	return &SizeFuncStrategy[T]{highWaterMark: highWaterMark, size: size}, nil
}

// HighWaterMark returns the buffering target.
func (s *SizeFuncStrategy[T]) HighWaterMark() float64 {
	return s.highWaterMark
}

// Size returns the configured size function's result for chunk.
func (s *SizeFuncStrategy[T]) Size(chunk T) float64 {
	return s.size(chunk)
}

// defaultStrategy is used when a constructor receives a nil strategy.
func defaultStrategy[T any]() QueuingStrategy[T] {
	return &CountQueuingStrategy[T]{highWaterMark: 1}
}
