package format

import (
	"errors"
	"testing"
)

func TestPoolHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, PoolHeaderSize)
	for i := range buf {
		buf[i] = 0xff
	}
	want := PoolHeader{Tag: 0x1122334455667788, Size: 1 << 20, Classes: 7, Version: PoolVersion}
	PutPoolHeader(buf, want)

	got, err := DecodePoolHeader(buf)
	if err != nil {
		t.Fatalf("DecodePoolHeader: %v", err)
	}
	if got != want {
		t.Fatalf("header mismatch: got %+v want %+v", got, want)
	}
	if ReadU64(buf, poolReservedOffset) != 0 {
		t.Fatalf("reserved word not cleared")
	}
}

func TestDecodePoolHeaderTruncated(t *testing.T) {
	if _, err := DecodePoolHeader(make([]byte, PoolHeaderSize-1)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
