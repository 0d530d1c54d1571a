// Package stream implements the ByteStream abstraction: a uniform
// read/write/flush/close surface, independent of transport, that the
// measurement state machine in package protocol reads from and writes to.
//
// Four concrete variants exist: plain TCP, TLS, WebSocket-over-TCP and
// WebSocket-over-TLS. All four are driven the same non-blocking way: a Read
// or Write that cannot make progress returns rmbterr.ErrWouldBlock rather
// than blocking, so the server worker pool can multiplex many connections
// on one goroutine via the reactor poller, with registration split cleanly
// between transport and reactor.
package stream

import (
	"net"

	"github.com/rmbt-go/rmbt/reactor"
)

// Chunk-size bounds and default, advertised in the CHUNKSIZE greeting line.
const (
	MinChunkSize = 4096
	MaxChunkSize = 4194304
	DefaultChunkSize = 4096
)

// Stream is the transport-agnostic duplex the measurement state machine
// operates on. Read and Write wait at most a short bounded window (see
// nonBlockingWindow in tcp.go): they either make progress or return
// rmbterr.ErrWouldBlock, leaving all state unchanged so the caller can
// retry once the reactor reports readiness again.
type Stream interface {
	// Read copies up to len(dst) application bytes into dst. Returns
	// (0, rmbterr.ErrWouldBlock) if no bytes are currently available, or
	// (0, io.EOF) at a clean end of stream.
	Read(dst []byte) (int, error)

	// Write accepts up to len(src) bytes, returning the number actually
	// consumed. A partial write is legal; the caller must retry with the
	// remainder. Returns (0, rmbterr.ErrWouldBlock) if nothing could be
	// written right now.
	Write(src []byte) (int, error)

	// Flush pushes any transport-side buffered bytes (TLS records,
	// WebSocket frame padding). Every implementation here flushes
	// eagerly on Write, so Flush is a no-op kept for interface symmetry
	// with transports that do buffer (per the ByteStream contract).
	Flush() error

	// Register attaches the stream's underlying descriptor to r, arming
	// the given interests under token.
	Register(r reactor.Reactor, token uintptr, interests reactor.Interest) error

	// Reregister changes the armed interests for an already-registered
	// stream.
	Reregister(r reactor.Reactor, token uintptr, interests reactor.Interest) error

	// Close performs an orderly shutdown (TLS close-notify where
	// applicable) and tears down the socket.
	Close() error

	// RawFD returns the underlying OS file descriptor, for reactor
	// registration. The second return is false for streams that have no
	// syscall-level descriptor of their own.
	RawFD() (uintptr, bool)
}

// Upgradeable is implemented by stream variants that can transition a raw
// connection into WebSocket framing in place, per §4.1's
// upgrade_to_websocket / finish_server_handshake operations.
type Upgradeable interface {
	Stream
	// UpgradeToWebSocket consumes the stream and returns a new Stream
	// variant in which Read/Write transparently wrap/unwrap WebSocket
	// frames. isClient controls masking: client frames are masked,
	// server frames are not (RFC 6455 §5.1).
	UpgradeToWebSocket(isClient bool) Stream
}

// netConnStream is the shared base for the tcp and tls variants: both
// operate on a net.Conn, and both implement non-blocking Read/Write by
// racing a deadline nonBlockingWindow ahead against the call, converting
// the resulting timeout into rmbterr.ErrWouldBlock. This lets the
// reactor's readiness notification and the standard library's blocking
// I/O coexist: the reactor decides *when* to call Read/Write, this trick
// keeps that call from blocking longer than nonBlockingWindow.
type netConnStream struct {
	conn net.Conn
}

func (s *netConnStream) Flush() error { return nil }

func (s *netConnStream) Close() error { return s.conn.Close() }
