// Package progress carries ordered, human-readable text chunks from the
// workflow engine to whoever is watching a run. Emission is
// fire-and-forget: a slow or absent consumer never blocks a step.
package progress

// Writer receives one chunk of progress text. Implementations must not
// block; the engine calls them inline.
type Writer func(text string)

// Discard is a Writer that drops everything.
func Discard(string) {}

// defaultBuffer is sized so that a full pipeline run (every step emitting
// several chunks plus streamed closing text) fits without backpressure.
const defaultBuffer = 256

// Stream buffers progress chunks on a channel for consumers that want to
// read them asynchronously, e.g. the MCP tool handlers relaying
// notifications. Writes never block: if the buffer is full the chunk is
// dropped rather than stalling the producing step.
type Stream struct {
	ch chan string
}

// NewStream returns a Stream with the default buffer size.
func NewStream() *Stream {
	return &Stream{ch: make(chan string, defaultBuffer)}
}

// Write queues a chunk. Safe for concurrent use.
func (s *Stream) Write(text string) {
	select {
	case s.ch <- text:
	default:
		// Consumer fell too far behind; drop rather than block the engine.
	}
}

// Chunks returns the receive side of the stream.
func (s *Stream) Chunks() <-chan string {
	return s.ch
}

// Close signals that no more chunks will be written. Write must not be
// called after Close.
func (s *Stream) Close() {
	close(s.ch)
}

// Drain collects all buffered chunks after Close, in emission order.
func (s *Stream) Drain() []string {
	var out []string
	for c := range s.ch {
		out = append(out, c)
	}
	return out
}
