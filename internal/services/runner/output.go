package runner

import (
	"fmt"
	"strings"
	"sync"
)

// OutputBuffer is the append-only progress log of one run. Readers keep a cursor
// (a chunk index) and fetch only what was appended after it.
type OutputBuffer struct {
	mu     sync.RWMutex
	chunks []string
}

// NewOutputBuffer creates an empty buffer
func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{}
}

// Append adds a chunk of text; empty chunks are ignored
func (b *OutputBuffer) Append(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	b.chunks = append(b.chunks, text)
	b.mu.Unlock()
}

// Printf appends one formatted line
func (b *OutputBuffer) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	b.Append(line)
}

// Write implements io.Writer so the buffer can back other writers
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.Append(string(p))
	return len(p), nil
}

// ReadSince returns the chunks appended at or after cursor and the new cursor
func (b *OutputBuffer) ReadSince(cursor int) ([]string, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(b.chunks) {
		return nil, len(b.chunks)
	}
	return append([]string(nil), b.chunks[cursor:]...), len(b.chunks)
}

// Len returns the number of chunks
func (b *OutputBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// String returns the full output
func (b *OutputBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.chunks, "")
}
