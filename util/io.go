package util

import (
	"errors"
	"io"
	"net"
)

// DefaultBufSize is the standard buffer size for connection I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// WriteFull writes all of p to w, looping over short writes.  Stream
// writers in this module return partial counts instead of blocking
// until everything is sent, so callers that need the whole buffer
// delivered go through here.
func WriteFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// Pump copies src to dst with a pooled buffer until src reports EOF.
// Every chunk goes through [WriteFull].  Errors that only signal the
// end of the stream are reported as nil.
func Pump(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetBuf()
	defer PutBuf(buf)

	var written int64
	for {
		n, rerr := src.Read(*buf)
		if n > 0 {
			w, werr := WriteFull(dst, (*buf)[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
		}
		if rerr != nil {
			if isHarmless(rerr) {
				return written, nil
			}
			return written, rerr
		}
	}
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

type fullWriter struct{ w io.Writer }

func (f fullWriter) Write(p []byte) (int, error) { return WriteFull(f.w, p) }

// FullWriter adapts a short-writing stream for code such as io.Copy
// and os/exec that treats a partial count as io.ErrShortWrite.
func FullWriter(w io.Writer) io.Writer { return fullWriter{w} }
