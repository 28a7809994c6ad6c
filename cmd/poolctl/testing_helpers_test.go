package main

import (
	"bytes"
	"os"
	"testing"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	out := <-done
	r.Close()

	return string(out), fnErr
}

// withFlags sets the global flags for the duration of the test.
func withFlags(t *testing.T, size string, asJSON bool) {
	t.Helper()
	prevSize, prevJSON := sizeFlag, jsonOut
	sizeFlag, jsonOut = size, asJSON
	disableColor()
	t.Cleanup(func() {
		sizeFlag, jsonOut = prevSize, prevJSON
	})
}
