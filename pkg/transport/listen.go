package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/sdejongh/fmerge/pkg/logging"
)

// DefaultPort is the TCP port a session uses unless configured otherwise
const DefaultPort = 4512

// Listen binds 0.0.0.0 on the given port with SO_REUSEADDR, accepts
// exactly one peer connection and returns it. The listening socket is
// closed once the peer is accepted; a session has exactly two ends.
func Listen(port int, logger logging.Logger) (*Conn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, raw syscall.RawConn) error {
			var sockErr error
			if err := raw.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	defer listener.Close()

	conn, err := listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}

	return newConn(conn, logger), nil
}

// Dial resolves the host over IPv4 and connects to its fmerge port
func Dial(host string, port int, logger logging.Logger) (*Conn, error) {
	conn, err := net.Dial("tcp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", host, port, err)
	}
	return newConn(conn, logger), nil
}

// Pipe returns two connected in-memory ends running the full protocol
// stack. Used by tests to pair two sessions without a network.
func Pipe(logger logging.Logger) (*Conn, *Conn) {
	a, b := net.Pipe()
	return newConn(a, logger), newConn(b, logger)
}
