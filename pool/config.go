package pool

import (
	"log/slog"

	"github.com/joshuapare/fixedpool/internal/format"
)

const (
	// NumClasses is the number of regular size classes.
	NumClasses = 7

	// MinBlock is the block size of the finest regular class.
	MinBlock = 16

	// MaxRegular is the largest request served by the regular allocator.
	// Each class doubles the previous one: 16, 32, 64, 128, 256, 512, 1024.
	MaxRegular = MinBlock << (NumClasses - 1)

	// Alignment of every offset handed out by the pool.
	Alignment = format.WordSize

	// HeaderSize is the slot reserved in front of every non-regular payload.
	HeaderSize = format.TagSize

	// MinNonRegular is the smallest non-regular chunk Init accepts.
	MinNonRegular = 4096

	// DefaultPredictDepth is the capacity of each regular class's prediction stack.
	DefaultPredictDepth = 16

	// blockShift scales the buffer size into the block count of the finest class:
	// size>>14 blocks of 16 bytes is size/1024 bytes, and every coarser class
	// gets half as many blocks, so each class receives the same byte budget.
	blockShift = 14
)

// ClassSize returns the block size of regular class i.
func ClassSize(i int) int {
	return MinBlock << i
}

// classFor returns the smallest class whose block size fits n, or NumClasses
// when n is above MaxRegular.
func classFor(n int) int {
	for i := range NumClasses {
		if n <= ClassSize(i) {
			return i
		}
	}
	return NumClasses
}

// blockCounts computes the number of blocks per class for a buffer of size bytes.
func blockCounts(size int) [NumClasses]int {
	var counts [NumClasses]int
	n := size >> blockShift
	for i := range NumClasses {
		counts[i] = n
		n >>= 1
	}
	return counts
}

// Option configures a Pool at construction time.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	predict      bool
	predictDepth int
}

func defaultOptions() options {
	return options{
		predict:      true,
		predictDepth: DefaultPredictDepth,
	}
}

// WithLogger routes the pool's diagnostic logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithoutPrediction disables both prediction caches. Allocation results stay
// correct; only the search cost changes.
func WithoutPrediction() Option {
	return func(o *options) {
		o.predict = false
	}
}

// WithPredictDepth sets the capacity of each regular class's prediction stack.
func WithPredictDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.predictDepth = n
		}
	}
}
