package pool

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecked(t *testing.T, size int, opts ...CheckedOption) *Checked {
	t.Helper()
	return NewChecked(newTestPool(t, size), opts...)
}

func Test_Checked_RecordsCallSite(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	ptr, _, err := c.Alloc(10)
	require.NoError(t, err)

	leaks := c.Leaks()
	require.Len(t, leaks, 1)
	l := leaks[0]
	assert.Equal(t, ptr, l.Ptr)
	assert.Equal(t, 10, l.Requested)
	assert.Equal(t, 16, l.Usable)
	assert.True(t, strings.HasSuffix(l.Site.Func, "Test_Checked_RecordsCallSite"), l.Site.Func)
	assert.Equal(t, "checked_test.go", filepath.Base(l.Site.File))
	assert.Positive(t, l.Site.Line)
}

func Test_Checked_ExplicitSite(t *testing.T) {
	c := newTestChecked(t, 64<<10)
	site := Site{Func: "decoder.readFrame", File: "decoder.go", Line: 42}

	ptr, _, err := c.AllocAt(100, site)
	require.NoError(t, err)
	ptr, _, err = c.ReallocAt(ptr, 5000, site)
	require.NoError(t, err)

	leaks := c.Leaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, ptr, leaks[0].Ptr)
	assert.Equal(t, site, leaks[0].Site)
	assert.Equal(t, "decoder.readFrame (decoder.go:42)", site.String())
}

func Test_Checked_Accounting(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	a, _, err := c.Alloc(10)
	require.NoError(t, err)
	_, _, err = c.Calloc(3, 10)
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, 2, s.Live)
	assert.Equal(t, int64(40), s.NeededBytes)
	assert.Equal(t, int64(48), s.RealBytes)
	assert.InDelta(t, 100.0/6, s.WastePercent, 1e-9)
	assert.Equal(t, s.RealBytes, s.UsedBytes)

	require.NoError(t, c.Free(a))
	s = c.Stats()
	assert.Equal(t, 1, s.Live)
	assert.Equal(t, int64(30), s.NeededBytes)
	assert.Equal(t, int64(40), s.PeakNeeded)
}

func Test_Checked_FailedReallocKeepsUsableCurrent(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	a, _, err := c.Alloc(2000)
	require.NoError(t, err)
	mid, _, err := c.Alloc(1000)
	require.NoError(t, err)
	_, _, err = c.Alloc(c.Stats().NonRegular.LargestFree)
	require.NoError(t, err)
	require.NoError(t, c.Free(mid))

	// The free successor is absorbed before the move fails.
	_, _, err = c.Realloc(a, 10000)
	require.ErrorIs(t, err, ErrNoSpace)

	s := c.Stats()
	assert.Equal(t, s.RealBytes, s.UsedBytes)
	leaks := c.Leaks()
	require.NotEmpty(t, leaks)
	assert.Equal(t, a, leaks[0].Ptr)
	assert.Equal(t, 2000+HeaderSize+1000, leaks[0].Usable)
}

func Test_Checked_ReallocToZeroUntracks(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	ptr, _, err := c.Alloc(5000)
	require.NoError(t, err)
	np, _, err := c.Realloc(ptr, 0)
	require.NoError(t, err)
	assert.Equal(t, Nil, np)
	assert.Empty(t, c.Leaks())
	assert.Zero(t, c.Stats().NeededBytes)
}

func Test_Checked_RejectsDeadPointers(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	ptr, _, err := c.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, c.Free(ptr))

	requireMisuse(t, ErrDoubleFree, func() {
		_ = c.Free(ptr)
	})
	requireMisuse(t, ErrDoubleFree, func() {
		_, _, _ = c.Realloc(ptr, 32)
	})
	requireMisuse(t, ErrBadPtr, func() {
		_ = c.Free(8)
	})
	require.NoError(t, c.Free(Nil))
}

func Test_Checked_BytesLimitedToRequest(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	ptr, _, err := c.Alloc(10)
	require.NoError(t, err)
	assert.Len(t, c.Bytes(ptr, 10), 10)

	requireMisuse(t, ErrBadPtr, func() {
		_ = c.Bytes(ptr, 11)
	})
}

func Test_Checked_DetectsClobberedTag(t *testing.T) {
	c := newTestChecked(t, 64<<10)

	ptr, _, err := c.Alloc(5000)
	require.NoError(t, err)

	p := c.Pool()
	clear(p.buf[headerOf(ptr):ptr])

	requireMisuse(t, ErrCorrupt, func() {
		_ = c.Free(ptr)
	})
}

func Test_Checked_VerifyEachCall(t *testing.T) {
	c := newTestChecked(t, 64<<10, VerifyEachCall())

	live := workload(t, c, 11, 300)
	for _, lb := range live {
		require.NoError(t, c.Free(lb.ptr))
	}
	assert.Empty(t, c.Leaks())

	// Corrupt the bitmap; the next mutation notices.
	c.Pool().setBit(3)
	requirePanicIs(t, ErrCorrupt, func() {
		_, _, _ = c.Alloc(5000)
	})
}

func Test_Checked_DumpGroupsBySite(t *testing.T) {
	c := newTestChecked(t, 64<<10)
	hot := Site{Func: "cache.fill", File: "cache.go", Line: 7}
	cold := Site{Func: "cache.evict", File: "cache.go", Line: 19}

	for range 3 {
		_, _, err := c.AllocAt(100, hot)
		require.NoError(t, err)
	}
	_, _, err := c.AllocAt(16, cold)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, c.Dump(&out))
	s := out.String()

	assert.Contains(t, s, "live allocations: 4")
	hotAt := strings.Index(s, "cache.fill (cache.go:7)")
	coldAt := strings.Index(s, "cache.evict (cache.go:19)")
	require.NotEqual(t, -1, hotAt)
	require.NotEqual(t, -1, coldAt)
	assert.Less(t, hotAt, coldAt, "sites are ordered by bytes")
}

func Test_Caller_Unknown(t *testing.T) {
	s := Caller(1 << 20)
	assert.Equal(t, "unknown", s.Func)
	assert.Zero(t, s.Line)
}

func BenchmarkChecked_AllocFree(b *testing.B) {
	c := NewChecked(newTestPool(b, 1<<20))
	b.ReportAllocs()
	for b.Loop() {
		ptr, _, err := c.Alloc(48)
		if err != nil {
			b.Fatal(err)
		}
		_ = c.Free(ptr)
	}
}
