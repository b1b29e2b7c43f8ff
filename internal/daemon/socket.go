// internal/daemon/socket.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package daemon

import (
	"bufio"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/1vegedog/android-backup/internal/fdpass"
)

// Exit codes matching spec.md §6: 1 on socket-create failure, 2 on bind
// failure, 3 on listen failure.
const (
	ExitSocketCreateFailed = 1
	ExitBindFailed         = 2
	ExitListenFailed       = 3
)

// Server is the control loop (C9). It never forks or spawns workers;
// request throughput is bounded by strictly serial execution.
type Server struct {
	cfg      Config
	listener *net.UnixListener
}

// Listen binds the abstract local socket (a leading NUL byte in the
// address name puts it in Linux's abstract namespace rather than the
// filesystem) under cfg.SockName and starts listening with cfg.Backlog.
// On failure it logs and exits the process with the exit code spec.md §6
// assigns to that failure stage; there is no recoverable path for a
// daemon that can't bind its own socket.
func Listen(cfg Config) *Server {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		cfg.Log.Fatal(ExitSocketCreateFailed, "socket() failed: %v", err)
	}
	unix.CloseOnExec(fd)

	sa := &unix.SockaddrUnix{Name: "\x00" + cfg.SockName}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		cfg.Log.Fatal(ExitBindFailed, "bind @%s failed: %v", cfg.SockName, err)
	}
	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		unix.Close(fd)
		cfg.Log.Fatal(ExitListenFailed, "listen @%s failed: %v", cfg.SockName, err)
	}

	f := os.NewFile(uintptr(fd), "mirrormediad-socket")
	netLn, err := net.FileListener(f)
	if err != nil {
		f.Close()
		cfg.Log.Fatal(ExitListenFailed, "wrap listener @%s failed: %v", cfg.SockName, err)
	}
	f.Close()
	ln, ok := netLn.(*net.UnixListener)
	if !ok {
		cfg.Log.Fatal(ExitListenFailed, "unexpected listener type for @%s", cfg.SockName)
	}

	cfg.Log.Verbose("mirrormediad listening on @%s", cfg.SockName)
	return &Server{cfg: cfg, listener: ln}
}

// Run accepts connections strictly one at a time, handling each to
// completion before accepting the next. It never returns except by panic
// or process exit; callers typically run it directly from main().
func (s *Server) Run() {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			s.cfg.Log.Warning("accept failed: %v", err)
			continue
		}
		s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	fd, err := fdpass.Recv(conn)
	if err != nil {
		s.cfg.Log.Warning("recvmsg failed: %v", err)
		return
	}
	iofd := os.NewFile(uintptr(fd), "passed-descriptor")
	defer iofd.Close()

	line, err := recvLine(conn)
	if err != nil && line == "" {
		s.cfg.Log.Warning("read command failed: %v", err)
		return
	}
	s.cfg.Log.Debug("received cmd: %q", line)

	s.dispatch(conn, iofd, line)
}

// recvLine reads a single line up to newline from conn. Null bytes are
// discarded; reaching EOF before a newline stops and returns whatever was
// accumulated, matching the original's recv_line.
func recvLine(conn *net.UnixConn) (string, error) {
	r := bufio.NewReader(conn)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(line), err
		}
		if b == '\n' {
			return string(line), nil
		}
		if b != 0 {
			line = append(line, b)
		}
	}
}
