package server

import (
	"net"
	"testing"
	"time"
)

func TestAdmissionQueueFIFO(t *testing.T) {
	q := newAdmissionQueue()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	a := admittedConn{conn: c1, queuedAt: time.Now()}
	b := admittedConn{conn: c2, queuedAt: time.Now()}
	q.push(a)
	q.push(b)

	first, ok := q.pop()
	if !ok || first.conn != c1 {
		t.Fatalf("expected c1 first, got %+v ok=%v", first, ok)
	}
	second, ok := q.pop()
	if !ok || second.conn != c2 {
		t.Fatalf("expected c2 second, got %+v ok=%v", second, ok)
	}
	if _, ok := q.pop(); ok {
		t.Fatal("expected empty queue after draining")
	}
}

func TestAdmissionQueueSweepStaleDropsOnlyOld(t *testing.T) {
	q := newAdmissionQueue()

	oldA, oldB := net.Pipe()
	defer oldB.Close()
	freshA, freshB := net.Pipe()
	defer freshB.Close()
	defer freshA.Close()

	q.push(admittedConn{conn: oldA, queuedAt: time.Now().Add(-time.Minute)})
	q.push(admittedConn{conn: freshA, queuedAt: time.Now()})

	dropped := q.sweepStale(10 * time.Second)
	if dropped != 1 {
		t.Fatalf("expected 1 dropped, got %d", dropped)
	}

	remaining, ok := q.pop()
	if !ok || remaining.conn != freshA {
		t.Fatalf("expected the fresh entry to survive, got %+v ok=%v", remaining, ok)
	}
}
