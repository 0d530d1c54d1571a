//go:build linux

package reactor

import (
	"net"
	"testing"
	"time"
)

func TestEpollReactorReportsReadable(t *testing.T) {
	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	defer r.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientConn.Close()

	serverConn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer serverConn.Close()

	tcpConn, ok := serverConn.(*net.TCPConn)
	if !ok {
		t.Fatal("expected *net.TCPConn")
	}
	sc, err := tcpConn.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	var fd uintptr
	if err := sc.Control(func(f uintptr) { fd = f }); err != nil {
		t.Fatalf("Control: %v", err)
	}

	const token uintptr = 42
	if err := r.Register(fd, token, Readable); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := clientConn.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := r.Poll(100, nil)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		found := false
		for _, ev := range events {
			if ev.Token == token && ev.Ready&Readable != 0 {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for readable event")
		}
	}

	if err := r.Unregister(fd); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
}
