// Package utils contains small helpers shared by the entrypoint.
package utils

import (
	"bytes"
	"io"
	"sync"
)

// DeferredWriter buffers log lines while a full-screen program owns the terminal so they
// can be written out once it exits.
type DeferredWriter struct {
	mu    sync.Mutex
	lines [][]byte
}

// Write stores a copy of p. zerolog emits one event per call.
func (d *DeferredWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines = append(d.lines, bytes.Clone(p))
	return len(p), nil
}

// Flush writes the buffered lines to w in order and empties the buffer.
func (d *DeferredWriter) Flush(w io.Writer) error {
	d.mu.Lock()
	lines := d.lines
	d.lines = nil
	d.mu.Unlock()

	for _, line := range lines {
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of buffered lines.
func (d *DeferredWriter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}
