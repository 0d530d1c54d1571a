// File: stream/tcp.go
//
// Plain TCP ByteStream. Identity transport: application bytes pass through
// unmodified. Nagle is disabled at construction, per §4.1's "TCP: identity;
// Nagle disabled at construction."
package stream

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/rmbt-go/rmbt/reactor"
	"github.com/rmbt-go/rmbt/rmbterr"
)

type tcpStream struct {
	netConnStream
	tcp *net.TCPConn
}

// DialTCP dials a client-side connection (the dial itself blocks up to
// timeout). The client driver never registers with a reactor (it runs one
// goroutine per parallel stream and retries after a short sleep whenever a
// step reports no progress), so RawFD/Register are present only for
// interface symmetry with the server-side variant.
func DialTCP(addr string, timeout time.Duration) (Stream, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return newTCPStream(conn)
}

// NewTCPStream wraps an already-accepted connection (server side).
func NewTCPStream(conn net.Conn) (Stream, error) {
	return newTCPStream(conn)
}

func newTCPStream(conn net.Conn) (Stream, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &tcpStream{netConnStream: netConnStream{conn: conn}, tcp: tcpConn}, nil
}

// nonBlockingWindow is how long a nonBlockingRead/nonBlockingWrite call may
// wait before reporting rmbterr.ErrWouldBlock. It must be positive: a
// deadline that has already passed makes net.Conn fail the call with a
// timeout before it attempts any I/O, even when data is buffered.
const nonBlockingWindow = time.Millisecond

// nonBlockingRead performs a Read that returns rmbterr.ErrWouldBlock
// instead of blocking when no data arrives within nonBlockingWindow, by
// racing a short read deadline against the call.
func nonBlockingRead(conn net.Conn, dst []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(nonBlockingWindow)); err != nil {
		return 0, err
	}
	n, err := conn.Read(dst)
	if err == nil {
		return n, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if n > 0 {
			return n, nil
		}
		return 0, rmbterr.ErrWouldBlock
	}
	return n, err
}

// nonBlockingWrite mirrors nonBlockingRead for writes.
func nonBlockingWrite(conn net.Conn, src []byte) (int, error) {
	if err := conn.SetWriteDeadline(time.Now().Add(nonBlockingWindow)); err != nil {
		return 0, err
	}
	n, err := conn.Write(src)
	if err == nil {
		return n, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if n > 0 {
			return n, nil
		}
		return 0, rmbterr.ErrWouldBlock
	}
	return n, err
}

func (s *tcpStream) Read(dst []byte) (int, error)  { return nonBlockingRead(s.conn, dst) }
func (s *tcpStream) Write(src []byte) (int, error) { return nonBlockingWrite(s.conn, src) }

func (s *tcpStream) RawFD() (uintptr, bool) {
	if s.tcp == nil {
		return 0, false
	}
	sc, err := s.tcp.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd uintptr
	err = sc.Control(func(f uintptr) { fd = f })
	if err != nil {
		return 0, false
	}
	return fd, true
}

func (s *tcpStream) Register(r reactor.Reactor, token uintptr, interests reactor.Interest) error {
	fd, ok := s.RawFD()
	if !ok {
		return os.ErrInvalid
	}
	return r.Register(fd, token, interests)
}

func (s *tcpStream) Reregister(r reactor.Reactor, token uintptr, interests reactor.Interest) error {
	fd, ok := s.RawFD()
	if !ok {
		return os.ErrInvalid
	}
	return r.Reregister(fd, token, interests)
}

func (s *tcpStream) UpgradeToWebSocket(isClient bool) Stream {
	return newWSStream(s, isClient)
}
