//go:build unix && !linux

package transport

import "golang.org/x/sys/unix"

// accept4 is not available everywhere; the descriptor is marked
// close-on-exec right after the blocking accept returns.
func accept(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}
