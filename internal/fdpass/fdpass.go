// internal/fdpass/fdpass.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package fdpass implements the single piece of ancillary-data wire
// protocol this daemon speaks to its clients: receiving exactly one open
// file descriptor over SCM_RIGHTS on the first message of a connection,
// accompanied by one dummy payload byte. It is grounded on the pack's own
// fd-passing example (containers/buildah's internal/open package, vendored
// under the lazydocker example), which uses the same
// Sendmsg/Recvmsg + ParseSocketControlMessage/ParseUnixRights pairing.
package fdpass

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// ErrNoDescriptor is returned when the control message accompanying the
// connection's first message does not carry exactly one file descriptor.
var ErrNoDescriptor = errors.New("fdpass: no descriptor received")

// Recv reads one message from conn and extracts exactly one file
// descriptor from its SCM_RIGHTS ancillary data. The caller owns the
// returned fd for its full lifetime and must close it on every exit path.
func Recv(conn *net.UnixConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}

	var (
		fd    = -1
		rerr  error
		dummy [1]byte
	)
	oob := make([]byte, unix.CmsgSpace(4))
	cerr := raw.Read(func(s uintptr) bool {
		n, oobn, _, _, err := unix.Recvmsg(int(s), dummy[:], oob[:], 0)
		if err == unix.EAGAIN {
			// Nothing queued yet; let the runtime wait for readability.
			return false
		}
		if err != nil {
			rerr = err
			return true
		}
		if n == 0 && oobn == 0 {
			rerr = ErrNoDescriptor
			return true
		}
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			rerr = err
			return true
		}
		for _, scm := range scms {
			fds, err := unix.ParseUnixRights(&scm)
			if err != nil {
				continue
			}
			if len(fds) > 0 {
				fd = fds[0]
				// Close any further descriptors beyond the first; the
				// protocol only ever passes one.
				for _, extra := range fds[1:] {
					unix.Close(extra)
				}
				return true
			}
		}
		rerr = ErrNoDescriptor
		return true
	})
	if cerr != nil {
		return -1, cerr
	}
	if rerr != nil {
		return -1, rerr
	}
	if fd < 0 {
		return -1, ErrNoDescriptor
	}
	return fd, nil
}

// Send passes fd to conn along with a single dummy payload byte,
// used by the test harness to play the role of a client.
func Send(conn *net.UnixConn, fd int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	rights := unix.UnixRights(fd)
	var serr error
	cerr := raw.Write(func(s uintptr) bool {
		serr = unix.Sendmsg(int(s), []byte{0}, rights, nil, 0)
		return true
	})
	if cerr != nil {
		return cerr
	}
	return serr
}
