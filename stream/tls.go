// File: stream/tls.go
//
// TLS ByteStream. Wraps crypto/tls.Conn using the same short-deadline
// non-blocking trick as tcp.go. §4.1 and §9 describe a hand-rolled
// partial-write sentinel because a from-scratch TLS record engine can
// accept plaintext into its send buffer yet still report WouldBlock while
// draining ciphertext, leaving the caller unsure how many input bytes were
// actually consumed. crypto/tls.Conn.Write does not have that ambiguity: it
// already returns the exact count of input bytes it durably accepted before
// any error, including a deadline timeout, so the sentinel bit collapses to
// "trust tls.Conn's return value" rather than being reimplemented.
package stream

import (
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/rmbt-go/rmbt/reactor"
)

type tlsStream struct {
	netConnStream
	tls *tls.Conn
}

// ClientTLSConfig builds the default client-side TLS configuration. Per §9
// Open Question "trust", the client accepts any server certificate by
// default; pinning a CA is a matter of constructing a different
// *tls.Config at this call site, which is the documented interface point.
func ClientTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
	}
}

// DialTLS opens a blocking client-side TLS connection.
func DialTLS(addr string, cfg *tls.Config, timeout time.Duration) (Stream, error) {
	rawConn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	tlsConn := tls.Client(rawConn, cfg)
	tlsConn.SetDeadline(time.Now().Add(timeout))
	if err := tlsConn.Handshake(); err != nil {
		rawConn.Close()
		return nil, err
	}
	tlsConn.SetDeadline(time.Time{})
	return &tlsStream{netConnStream: netConnStream{conn: tlsConn}, tls: tlsConn}, nil
}

// NewTLSServerStream completes a server-side handshake on an already
// accepted raw connection, using cert as the certificate chain and key as
// the matching private key (both loaded once at startup per §6/§9).
func NewTLSServerStream(raw net.Conn, cert tls.Certificate, handshakeTimeout time.Duration) (Stream, error) {
	tlsConn := tls.Server(raw, &tls.Config{Certificates: []tls.Certificate{cert}})
	tlsConn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	tlsConn.SetDeadline(time.Time{})
	return &tlsStream{netConnStream: netConnStream{conn: tlsConn}, tls: tlsConn}, nil
}

// WrapTLSConn adapts an already-constructed *tls.Conn (handshake pending
// or already complete) into a Stream, for the server worker pool's
// greeting sniff: the sniff reads the connection's first bytes in
// blocking mode directly through conn, which transparently performs the
// TLS handshake on first use, so no separate Handshake() call is needed
// here.
func WrapTLSConn(conn *tls.Conn) Stream {
	return &tlsStream{netConnStream: netConnStream{conn: conn}, tls: conn}
}

func (s *tlsStream) Read(dst []byte) (int, error)  { return nonBlockingRead(s.conn, dst) }
func (s *tlsStream) Write(src []byte) (int, error) { return nonBlockingWrite(s.conn, src) }

func (s *tlsStream) RawFD() (uintptr, bool) {
	nc := s.tls.NetConn()
	tcpConn, ok := nc.(*net.TCPConn)
	if !ok {
		return 0, false
	}
	sc, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd uintptr
	if err := sc.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, false
	}
	return fd, true
}

func (s *tlsStream) Register(r reactor.Reactor, token uintptr, interests reactor.Interest) error {
	fd, ok := s.RawFD()
	if !ok {
		return errors.New("stream: tls connection has no raw fd")
	}
	return r.Register(fd, token, interests)
}

func (s *tlsStream) Reregister(r reactor.Reactor, token uintptr, interests reactor.Interest) error {
	fd, ok := s.RawFD()
	if !ok {
		return errors.New("stream: tls connection has no raw fd")
	}
	return r.Reregister(fd, token, interests)
}

func (s *tlsStream) UpgradeToWebSocket(isClient bool) Stream {
	return newWSStream(s, isClient)
}
