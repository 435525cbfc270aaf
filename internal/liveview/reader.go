package liveview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// exactReader reads exact byte counts from r through a bounded scratch size.
// alive is checked before every underlying Read, and again when a Read fails
// so a read aborted by a deliberate close reports ErrCancelled.
type exactReader struct {
	r       io.Reader
	scratch []byte
	alive   func() bool
}

func newExactReader(r io.Reader, bufSize int, alive func() bool) *exactReader {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	return &exactReader{r: r, scratch: make([]byte, bufSize), alive: alive}
}

// ReadBytes returns a newly allocated slice holding exactly n bytes.
func (e *exactReader) ReadBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if err := e.ReadFull(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFull fills dst, reading at most len(scratch) bytes per call.
func (e *exactReader) ReadFull(dst []byte) error {
	off := 0
	return e.loop(len(dst), func(want int) (int, error) {
		n, err := e.r.Read(dst[off : off+want])
		off += n
		return n, err
	})
}

// Discard consumes n bytes without keeping them.
func (e *exactReader) Discard(n int) error {
	return e.loop(n, func(want int) (int, error) {
		return e.r.Read(e.scratch[:want])
	})
}

func (e *exactReader) loop(n int, read func(want int) (int, error)) error {
	remain := n
	for remain > 0 {
		if e.alive != nil && !e.alive() {
			return ErrCancelled
		}
		want := min(len(e.scratch), remain)
		got, err := read(want)
		if got > 0 {
			remain -= got
		}
		if err != nil {
			if remain == 0 && errors.Is(err, io.EOF) {
				return nil
			}
			if e.alive != nil && !e.alive() {
				return fmt.Errorf("%w: %v", ErrCancelled, err)
			}
			return classifyReadError(err)
		}
		if got <= 0 {
			return ErrEndOfStream
		}
	}
	return nil
}

func classifyReadError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrEndOfStream
	case errors.Is(err, net.ErrClosed),
		errors.Is(err, http.ErrBodyReadAfterClose),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrEndOfStream, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}
