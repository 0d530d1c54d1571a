package stream

import (
	"net"
	"testing"
	"time"

	"github.com/rmbt-go/rmbt/rmbterr"
)

func retryWSWrite(t *testing.T, s Stream, p []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := s.Write(p)
		if err == nil {
			if n != len(p) {
				t.Fatalf("partial logical write: %d of %d", n, len(p))
			}
			return
		}
		if rmbterr.IsWouldBlock(err) {
			if time.Now().After(deadline) {
				t.Fatal("write timed out waiting for WouldBlock to clear")
			}
			time.Sleep(time.Millisecond)
			continue
		}
		t.Fatalf("unexpected write error: %v", err)
	}
}

func retryWSRead(t *testing.T, s Stream, dst []byte) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := s.Read(dst)
		if err == nil {
			return n
		}
		if rmbterr.IsWouldBlock(err) {
			if time.Now().After(deadline) {
				t.Fatal("read timed out waiting for WouldBlock to clear")
			}
			time.Sleep(time.Millisecond)
			continue
		}
		t.Fatalf("unexpected read error: %v", err)
	}
}

func TestWSStreamWriteReadRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	clientSide, err := NewTCPStream(a)
	if err != nil {
		t.Fatalf("NewTCPStream: %v", err)
	}
	serverSide, err := NewTCPStream(b)
	if err != nil {
		t.Fatalf("NewTCPStream: %v", err)
	}
	defer clientSide.Close()
	defer serverSide.Close()

	wsClient := newWSStream(clientSide, true)
	wsServer := newWSStream(serverSide, false)

	payload := []byte("0123456789abcdef")
	go retryWSWrite(t, wsClient, payload)

	dst := make([]byte, 64)
	n := retryWSRead(t, wsServer, dst)
	if string(dst[:n]) != string(payload) {
		t.Fatalf("got %q, want %q", dst[:n], payload)
	}
}

// recordingStream captures the bytes a wsStream writes through it; the
// embedded Stream is nil, so only Write may be called.
type recordingStream struct {
	Stream
	written []byte
}

func (r *recordingStream) Write(p []byte) (int, error) {
	r.written = append(r.written, p...)
	return len(p), nil
}

func TestWSStreamOpcodeHeuristic(t *testing.T) {
	chunkThreshold := 4096
	opcodeFor := func(payloadLen int) byte {
		rec := &recordingStream{}
		w := newWSStream(rec, false)
		w.SetChunkThreshold(chunkThreshold)
		if _, err := w.Write(make([]byte, payloadLen)); err != nil {
			t.Fatalf("Write(%d bytes): %v", payloadLen, err)
		}
		return rec.written[0] & 0x0F
	}
	if got := opcodeFor(1); got != OpcodeBinary {
		t.Fatalf("expected binary for 1-byte payload, got %x", got)
	}
	if got := opcodeFor(chunkThreshold); got != OpcodeBinary {
		t.Fatalf("expected binary for oversized payload, got %x", got)
	}
	if got := opcodeFor(100); got != OpcodeText {
		t.Fatalf("expected text for mid-sized payload, got %x", got)
	}
}
