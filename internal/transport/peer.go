//go:build unix

package transport

import (
	"net/netip"

	"golang.org/x/sys/unix"

	apperr "fcgisock/internal/errors"
	"fcgisock/util"
)

// Peer returns the remote endpoint as "addr:port" for IPv4 and IPv6
// peers and "" for Unix domain peers.  Any other address family fails
// with errors.ErrUnsupportedPeer.
func (c *Conn) Peer() (string, error) {
	if c.closed.Load() {
		return "", apperr.Wrap("getpeername", c.fd, apperr.ErrClosed)
	}
	sa, err := unix.Getpeername(c.fd)
	if err != nil {
		// x/sys reports families it cannot decode as EAFNOSUPPORT.
		if apperr.Is(err, unix.EAFNOSUPPORT) {
			err = apperr.ErrUnsupportedPeer
		}
		return "", apperr.Wrap("getpeername", c.fd, err)
	}
	s, err := peerString(sa)
	if err != nil {
		return "", apperr.Wrap("getpeername", c.fd, err)
	}
	return s, nil
}

func peerString(sa unix.Sockaddr) (string, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return util.FormatAddr(netip.AddrFrom4(sa.Addr).String(), sa.Port), nil
	case *unix.SockaddrInet6:
		return util.FormatAddr(netip.AddrFrom16(sa.Addr).String(), sa.Port), nil
	case *unix.SockaddrUnix:
		return "", nil
	}
	return "", apperr.ErrUnsupportedPeer
}
