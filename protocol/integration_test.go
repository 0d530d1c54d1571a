package protocol

import (
	"testing"
	"time"
)

// driveUntilClosed repeatedly calls step until the connection's state
// reports Closed, sleeping briefly whenever a step made no progress — the
// same polling shape the worker pool and client orchestrator use around
// ServerStep/ClientStep.
func driveUntilClosed(s *State, step func() (bool, error)) error {
	for !s.Closed {
		advanced, err := step()
		if err != nil {
			return err
		}
		if !advanced {
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

// TestServerClientFullExchange runs the server and client directional
// drivers concurrently over a net.Pipe, one thread_count=1 stream
// exercising the greeting, a PING round trip, one small GETCHUNKS warm-up
// cycle, and QUIT — the full control-plane path both drivers share.
func TestServerClientFullExchange(t *testing.T) {
	clientStream, serverStream := pipeStreams(t)
	defer clientStream.Close()
	defer serverStream.Close()

	serverState := NewState(1, serverStream, false)
	clientState := NewState(2, clientStream, true)

	scfg := ServerConfig{
		Version:          "1.0",
		ChunkSizeDefault: 4096,
		ChunkSizeMin:     4096,
		ChunkSizeMax:     4194304,
		Token:            "testtoken",
	}

	pingSent := false
	chunksSent := false
	ccfg := ClientConfig{
		Token: "testtoken",
		NextCommand: func(s *State) (string, []int, bool, bool) {
			if !pingSent {
				pingSent = true
				return "PING", nil, false, false
			}
			if !chunksSent {
				chunksSent = true
				return "GETCHUNKS", []int{1, 4096}, false, false
			}
			return "", nil, false, true
		},
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- driveUntilClosed(serverState, func() (bool, error) {
			return ServerStep(serverState, scfg)
		})
	}()
	go func() {
		errCh <- driveUntilClosed(clientState, func() (bool, error) {
			return ClientStep(clientState, ccfg)
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("driver returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for both drivers to close")
		}
	}

	if len(clientState.PingSamples) != 1 {
		t.Fatalf("expected exactly one ping sample, got %d", len(clientState.PingSamples))
	}
	if clientState.PingSamples[0] <= 0 {
		t.Fatalf("expected a positive round-trip time, got %v", clientState.PingSamples[0])
	}
	if !clientState.Closed || !serverState.Closed {
		t.Fatal("expected both sides closed after QUIT")
	}
}
