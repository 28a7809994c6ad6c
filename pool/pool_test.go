package pool

import (
	"bytes"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveBlock struct {
	ptr  Ptr
	size int
	fill byte
}

// workload runs a seeded mix of Alloc, Realloc and Free against a and returns
// the blocks still live. Every payload is filled with a per-block byte and
// verified before it is resized or freed.
func workload(t *testing.T, a Allocator, seed uint64, ops int) []liveBlock {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var live []liveBlock

	size := func() int {
		if rng.IntN(4) == 0 {
			return 1 + rng.IntN(12000)
		}
		return 1 + rng.IntN(MaxRegular)
	}

	for i := range ops {
		switch op := rng.IntN(10); {
		case op < 5 || len(live) == 0:
			n := size()
			ptr, b, err := a.Alloc(n)
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace)
				continue
			}
			v := byte(i)
			fill(b, v)
			live = append(live, liveBlock{ptr: ptr, size: n, fill: v})

		case op < 7:
			k := rng.IntN(len(live))
			lb := live[k]
			requireFilled(t, a.Bytes(lb.ptr, lb.size), lb.fill)
			n := size()
			ptr, b, err := a.Realloc(lb.ptr, n)
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace)
				continue
			}
			requireFilled(t, b[:min(n, lb.size)], lb.fill)
			fill(b, lb.fill)
			live[k] = liveBlock{ptr: ptr, size: n, fill: lb.fill}

		default:
			k := rng.IntN(len(live))
			lb := live[k]
			requireFilled(t, a.Bytes(lb.ptr, lb.size), lb.fill)
			require.NoError(t, a.Free(lb.ptr))
			live = slices.Delete(live, k, k+1)
		}
	}
	return live
}

func Test_Pool_RandomWorkloadNoOverlap(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 42} {
		p := newTestPool(t, 256<<10)
		live := workload(t, p, seed, 4000)
		require.NoError(t, p.Check())

		type span struct{ lo, hi int }
		spans := make([]span, 0, len(live))
		for _, lb := range live {
			requireFilled(t, p.Bytes(lb.ptr, lb.size), lb.fill)
			spans = append(spans, span{int(lb.ptr), int(lb.ptr) + p.UsableSize(lb.ptr)})
		}
		slices.SortFunc(spans, func(a, b span) int { return a.lo - b.lo })
		for i := 1; i < len(spans); i++ {
			require.LessOrEqual(t, spans[i-1].hi, spans[i].lo, "seed %d: blocks overlap", seed)
		}
	}
}

func Test_Pool_FreeAllRestoresCapacity(t *testing.T) {
	p := newTestPool(t, 256<<10)
	before := p.Stats()

	live := workload(t, p, 7, 3000)
	for _, lb := range live {
		require.NoError(t, p.Free(lb.ptr))
	}
	require.NoError(t, p.Check())

	s := p.Stats()
	assert.Zero(t, s.UsedBytes)
	assert.Positive(t, s.PeakBytes)
	for i, c := range s.Classes {
		assert.Equal(t, c.Blocks, c.Free, "class %d", i)
	}
	// Blocks released by a moving realloc may still sit unmerged.
	nr := s.NonRegular
	assert.Equal(t, nr.Size, nr.FreeBytes+nr.Headers*HeaderSize)
	assert.Equal(t, nr.Headers, nr.FreeHeaders)

	// The largest request the fresh pool could serve still fits.
	ptr, _, err := p.Alloc(before.NonRegular.LargestFree)
	require.NoError(t, err)
	require.NoError(t, p.Free(ptr))
	assert.Equal(t, 1, p.Stats().NonRegular.Headers)
}

func Test_Pool_AllocRejectsBadSize(t *testing.T) {
	p := newTestPool(t, 64<<10)

	for _, n := range []int{0, -1} {
		_, _, err := p.Alloc(n)
		require.ErrorIs(t, err, ErrBadSize)
	}
	_, _, err := p.Calloc(-1, 8)
	require.ErrorIs(t, err, ErrBadSize)

	ptr, _, err := p.Alloc(16)
	require.NoError(t, err)
	_, _, err = p.Realloc(ptr, -5)
	require.ErrorIs(t, err, ErrBadSize)
	assert.Zero(t, p.Stats().Failures)
}

func Test_Pool_OutOfSpace(t *testing.T) {
	p := newTestPool(t, 64<<10)

	_, _, err := p.Alloc(64 << 10)
	require.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, uint64(1), p.Stats().Failures)
	require.NoError(t, p.Check())
}

func Test_Pool_CallocZeroes(t *testing.T) {
	p := newTestPool(t, 64<<10)

	for _, n := range []int{16, 3000} {
		ptr, b, err := p.Alloc(n)
		require.NoError(t, err)
		fill(b, 0xff)
		require.NoError(t, p.Free(ptr))

		cp, cb, err := p.Calloc(n/8, 8)
		require.NoError(t, err)
		assert.Equal(t, ptr, cp)
		assert.Len(t, cb, n)
		requireFilled(t, cb, 0)
	}
}

func Test_Pool_ReallocNilAndZero(t *testing.T) {
	p := newTestPool(t, 64<<10)

	ptr, b, err := p.Realloc(Nil, 40)
	require.NoError(t, err)
	require.NotEqual(t, Nil, ptr)
	assert.Len(t, b, 40)

	np, nb, err := p.Realloc(ptr, 0)
	require.NoError(t, err)
	assert.Equal(t, Nil, np)
	assert.Nil(t, nb)
	assert.Zero(t, p.Stats().UsedBytes)

	require.NoError(t, p.Free(Nil))
}

func Test_Pool_BytesBounds(t *testing.T) {
	p := newTestPool(t, 64<<10)

	ptr, _, err := p.Alloc(10)
	require.NoError(t, err)

	assert.Len(t, p.Bytes(ptr, 16), 16)
	assert.Equal(t, 16, cap(p.Bytes(ptr, 16)))
	assert.Nil(t, p.Bytes(Nil, 4))

	requireMisuse(t, ErrBadPtr, func() {
		_ = p.Bytes(ptr, 17)
	})
}

func Test_Pool_Contains(t *testing.T) {
	p := newTestPool(t, 64<<10)

	r, _, err := p.Alloc(16)
	require.NoError(t, err)
	n, _, err := p.Alloc(5000)
	require.NoError(t, err)

	assert.True(t, p.Contains(r))
	assert.True(t, p.Contains(n))
	assert.False(t, p.Contains(Nil))
	assert.False(t, p.Contains(r+8))
	assert.False(t, p.Contains(n+8))
	assert.False(t, p.Contains(1<<40))
}

func Test_Pool_PredictionDoesNotChangeResults(t *testing.T) {
	for _, seed := range []uint64{5, 6} {
		on := newTestPool(t, 1<<20)
		off := newTestPool(t, 1<<20, WithoutPrediction())

		// Light enough that neither pool runs out of space, so both see
		// the same sequence of requests.
		liveOn := workload(t, on, seed, 600)
		liveOff := workload(t, off, seed, 600)
		require.NoError(t, on.Check())
		require.NoError(t, off.Check())

		assert.Len(t, liveOff, len(liveOn))
		assert.Zero(t, on.Stats().Failures)
		assert.Zero(t, off.Stats().Failures)

		s := off.Stats()
		assert.Zero(t, s.PredictHits+s.PredictMisses)
		assert.Zero(t, s.CursorHits+s.CursorMisses)
		for _, c := range s.Classes {
			assert.Zero(t, c.Predicted)
		}
	}
}

func Test_Pool_ConcurrentUse(t *testing.T) {
	p := newTestPool(t, 1<<20)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(g), 99))
			var mine []liveBlock
			for range 500 {
				if len(mine) > 0 && rng.IntN(2) == 0 {
					lb := mine[len(mine)-1]
					mine = mine[:len(mine)-1]
					b := p.Bytes(lb.ptr, lb.size)
					assert.Equal(t, bytes.Repeat([]byte{lb.fill}, lb.size), b)
					assert.NoError(t, p.Free(lb.ptr))
					continue
				}
				n := 1 + rng.IntN(3000)
				ptr, b, err := p.Alloc(n)
				if err != nil {
					assert.ErrorIs(t, err, ErrNoSpace)
					continue
				}
				fill(b, byte(g+1))
				mine = append(mine, liveBlock{ptr: ptr, size: n, fill: byte(g + 1)})
			}
			for _, lb := range mine {
				assert.NoError(t, p.Free(lb.ptr))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, p.Check())
	assert.Zero(t, p.Stats().UsedBytes)
}

func Test_Pool_CheckDetectsCorruption(t *testing.T) {
	t.Run("header tag", func(t *testing.T) {
		p := newTestPool(t, 64<<10)
		p.buf[0] ^= 0xff
		require.ErrorIs(t, p.Check(), ErrCorrupt)
	})

	t.Run("bitmap", func(t *testing.T) {
		p := newTestPool(t, 64<<10)
		p.setBit(2)
		require.ErrorIs(t, p.Check(), ErrCorrupt)
	})

	t.Run("boundary tag", func(t *testing.T) {
		p := newTestPool(t, 64<<10)
		ptr, _, err := p.Alloc(5000)
		require.NoError(t, err)
		clear(p.buf[headerOf(ptr):ptr])
		require.ErrorIs(t, p.Check(), ErrCorrupt)
	})
}

func Test_Pool_DumpReport(t *testing.T) {
	p := newTestPool(t, 1<<20)
	_, _, err := p.Alloc(16)
	require.NoError(t, err)
	_, _, err = p.Alloc(5000)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, p.Dump(&out))

	s := out.String()
	assert.Contains(t, s, "pool: 1.0 MiB buffer")
	assert.Contains(t, s, "regular chunks (127 blocks")
	assert.Contains(t, s, "non-regular chunk")
	assert.Contains(t, s, "cursor 0x")
	assert.Contains(t, s, "allocs 2 (regular 1, non-regular 1)")

	var idle Pool
	out.Reset()
	require.NoError(t, idle.Dump(&out))
	assert.Equal(t, "pool: not initialised\n", out.String())
}

func Test_Pool_StatsRates(t *testing.T) {
	var s Stats
	assert.Zero(t, s.PredictHitRate())
	assert.Zero(t, s.CursorHitRate())

	s.PredictHits, s.PredictMisses = 3, 1
	s.CursorHits, s.CursorMisses = 1, 1
	assert.InDelta(t, 75.0, s.PredictHitRate(), 1e-9)
	assert.InDelta(t, 50.0, s.CursorHitRate(), 1e-9)
}

func BenchmarkPool_AllocFreeRegular(b *testing.B) {
	p := newTestPool(b, 1<<20)
	b.ReportAllocs()
	for b.Loop() {
		ptr, _, err := p.Alloc(48)
		if err != nil {
			b.Fatal(err)
		}
		_ = p.Free(ptr)
	}
}

func BenchmarkPool_AllocFreeRegularNoPredict(b *testing.B) {
	p := newTestPool(b, 1<<20, WithoutPrediction())
	b.ReportAllocs()
	for b.Loop() {
		ptr, _, err := p.Alloc(48)
		if err != nil {
			b.Fatal(err)
		}
		_ = p.Free(ptr)
	}
}

func BenchmarkPool_AllocFreeNonRegular(b *testing.B) {
	p := newTestPool(b, 1<<20)
	b.ReportAllocs()
	for b.Loop() {
		ptr, _, err := p.Alloc(5000)
		if err != nil {
			b.Fatal(err)
		}
		_ = p.Free(ptr)
	}
}
