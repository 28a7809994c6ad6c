package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestPool initialises a pool over a fresh buffer and exits it at cleanup.
func newTestPool(t testing.TB, size int, opts ...Option) *Pool {
	t.Helper()
	p, err := New(make([]byte, size), opts...)
	require.NoError(t, err)
	t.Cleanup(p.Exit)
	return p
}

// requireMisuse runs fn and requires it to panic with a *UsageError whose
// cause matches target.
func requireMisuse(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", target)
		err, ok := r.(error)
		require.True(t, ok, "panic value %T is not an error", r)
		var ue *UsageError
		require.True(t, errors.As(err, &ue), "panic value %T is not a *UsageError", r)
		require.ErrorIs(t, err, target)
	}()
	fn()
}

// requirePanicIs runs fn and requires it to panic with an error matching target.
func requirePanicIs(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", target)
		err, ok := r.(error)
		require.True(t, ok, "panic value %T is not an error", r)
		require.ErrorIs(t, err, target)
	}()
	fn()
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func requireFilled(t testing.TB, b []byte, v byte) {
	t.Helper()
	for i, x := range b {
		if x != v {
			require.Failf(t, "payload clobbered", "byte %d is %#x, expected %#x", i, x, v)
		}
	}
}

// headerOf returns the header offset of a non-regular payload.
func headerOf(ptr Ptr) int {
	return int(ptr) - HeaderSize
}
