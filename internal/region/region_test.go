package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	for _, useMmap := range []bool{false, true} {
		b, release, err := Acquire(1<<16, useMmap, "")
		require.NoError(t, err)
		require.Len(t, b, 1<<16)

		for _, x := range b {
			require.Zero(t, x)
		}
		b[0], b[len(b)-1] = 1, 2

		require.NoError(t, release())
		// A second release is harmless.
		require.NoError(t, release())
	}
}

func TestAcquireFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.bin")

	b, release, err := Acquire(8192, false, path)
	require.NoError(t, err)
	require.Len(t, b, 8192)
	copy(b[100:], "arena")
	require.NoError(t, release())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 8192)
	require.Equal(t, "arena", string(data[100:105]))
}

func TestMapAnonRejectsBadSize(t *testing.T) {
	_, _, err := MapAnon(0)
	require.Error(t, err)

	_, _, err = MapFile(filepath.Join(t.TempDir(), "x"), -1)
	require.Error(t, err)
}
