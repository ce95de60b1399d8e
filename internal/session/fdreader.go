//go:build unix

package session

import (
	"io"

	"golang.org/x/sys/unix"
)

// FDReader reads straight from a raw descriptor without taking
// ownership of it.  Unlike os.NewFile, nothing ever closes fd.
type FDReader int

func (r FDReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(int(r), p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
