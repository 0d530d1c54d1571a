// File: server/queue.go
package server

import (
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// admittedConn is one accepted socket waiting for an idle worker, tagged
// with its transport kind per §4.3.
type admittedConn struct {
	conn      net.Conn
	isTLS     bool
	queuedAt  time.Time
}

// admissionQueue is the single shared cross-worker mutable structure
// besides per-worker connection counts, per §4.3's "shared-resource
// rules": one mutex, O(1) push/pop.
type admissionQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newAdmissionQueue() *admissionQueue {
	return &admissionQueue{q: queue.New()}
}

func (a *admissionQueue) push(c admittedConn) {
	a.mu.Lock()
	a.q.Add(c)
	a.mu.Unlock()
}

// pop removes and returns the oldest entry, or (zero, false) if empty.
func (a *admissionQueue) pop() (admittedConn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.q.Length() == 0 {
		return admittedConn{}, false
	}
	v := a.q.Remove()
	return v.(admittedConn), true
}

// sweepStale drops entries older than maxAge from the front of the
// queue, per §4.3's queue sweeper. Since eapache/queue is a FIFO, stale
// entries are always at the front.
func (a *admissionQueue) sweepStale(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	dropped := 0
	now := time.Now()
	for a.q.Length() > 0 {
		v := a.q.Peek().(admittedConn)
		if now.Sub(v.queuedAt) <= maxAge {
			break
		}
		a.q.Remove()
		v.conn.Close()
		dropped++
	}
	return dropped
}
