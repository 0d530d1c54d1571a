package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/rmbt-go/rmbt/rmbterr"
	"github.com/rmbt-go/rmbt/stream"
)

// retryWrite/retryRead spin on rmbterr.ErrWouldBlock the way the client
// orchestrator's blocking wrapper does, since stream.Stream never blocks
// internally (see stream.DialTCP's non-blocking contract).
func retryWrite(s stream.Stream, p []byte) error {
	for len(p) > 0 {
		n, err := s.Write(p)
		if err != nil {
			if rmbterr.IsWouldBlock(err) {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		p = p[n:]
	}
	return nil
}

func retryReadFull(s stream.Stream, buf []byte) error {
	pos := 0
	for pos < len(buf) {
		n, err := s.Read(buf[pos:])
		if err != nil {
			if rmbterr.IsWouldBlock(err) {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		pos += n
	}
	return nil
}

func pipeStreams(t *testing.T) (stream.Stream, stream.Stream) {
	t.Helper()
	a, b := net.Pipe()
	sa, err := stream.NewTCPStream(a)
	if err != nil {
		t.Fatalf("NewTCPStream: %v", err)
	}
	sb, err := stream.NewTCPStream(b)
	if err != nil {
		t.Fatalf("NewTCPStream: %v", err)
	}
	return sa, sb
}

func TestChunkTerminatorRoundTrip(t *testing.T) {
	client, server := pipeStreams(t)
	defer client.Close()
	defer server.Close()

	sendState := &State{Stream: client, ChunkBuffer: make([]byte, 64)}
	recvState := &State{Stream: server, ChunkBuffer: make([]byte, 64)}

	SetTerminator(sendState, true)
	done := make(chan error, 1)
	go func() { done <- retryWrite(client, sendState.ChunkBuffer) }()

	if err := retryReadFull(server, recvState.ChunkBuffer); err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	end, err := Terminator(recvState)
	if err != nil {
		t.Fatalf("Terminator: %v", err)
	}
	if !end {
		t.Fatal("expected end-of-cycle terminator")
	}
}

func TestTerminatorRejectsInvalidByte(t *testing.T) {
	s := &State{ChunkBuffer: []byte{1, 2, 3, 0x42}}
	if _, err := Terminator(s); err == nil {
		t.Fatal("expected error for invalid terminator byte")
	}
}

func TestResizeChunkBufferPreservesLength(t *testing.T) {
	s := &State{ChunkBuffer: make([]byte, 4096), ChunkSize: 4096}
	s.ResizeChunkBuffer(8192)
	if len(s.ChunkBuffer) != 8192 || s.ChunkSize != 8192 {
		t.Fatalf("resize did not take effect: len=%d size=%d", len(s.ChunkBuffer), s.ChunkSize)
	}
	s.ResizeChunkBuffer(4096)
	if len(s.ChunkBuffer) != 4096 {
		t.Fatalf("shrink did not take effect: len=%d", len(s.ChunkBuffer))
	}
}
