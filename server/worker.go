// File: server/worker.go
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rmbt-go/rmbt/protocol"
	"github.com/rmbt-go/rmbt/reactor"
	"github.com/rmbt-go/rmbt/rmbterr"
	"github.com/rmbt-go/rmbt/stream"
)

// connEntry pairs a connection's state machine with the bookkeeping the
// worker needs to close and evict it.
type connEntry struct {
	state *protocol.State
	raw   net.Conn
	fd    uintptr
}

// worker owns one readiness poller and one connection map, per §4.3: "each
// worker has its own readiness poller and its own connection map keyed by
// local tokens... state machines are never shared across workers."
type worker struct {
	id      int
	server  *Server
	reactor reactor.Reactor
	conns   map[uintptr]*connEntry
	iterCnt uint32
}

func newWorker(id int, s *Server) (*worker, error) {
	r, err := reactor.NewReactor()
	if err != nil {
		return nil, err
	}
	return &worker{
		id:      id,
		server:  s,
		reactor: r,
		conns:   make(map[uintptr]*connEntry),
	}, nil
}

// run is the worker's whole lifetime: pull from the admission queue only
// when idle, poll with a 10ms timeout, dispatch events, sweep timeouts.
// Exits when stop is closed.
func (w *worker) run(stop <-chan struct{}) {
	buf := make([]reactor.Event, 0, 64)
	for {
		select {
		case <-stop:
			w.closeAll()
			return
		default:
		}

		if len(w.conns) == 0 {
			w.tryAdmitOne()
		}

		ready, err := w.reactor.Poll(int(w.server.cfg.PollTimeout.Milliseconds()), buf[:0])
		if err != nil {
			w.server.logger.Debugw("reactor poll error", "worker", w.id, "err", err)
			continue
		}
		buf = ready
		for _, ev := range ready {
			w.dispatch(ev)
		}

		w.iterCnt++
		if w.iterCnt >= 10000 {
			w.iterCnt = 0
			w.sweepConnections()
		}
	}
}

// tryAdmitOne pulls one accepted socket off the shared queue, performs
// the greeting upgrade sniff, and registers a freshly initialised state
// machine.
func (w *worker) tryAdmitOne() {
	ac, ok := w.server.queue.pop()
	if !ok {
		return
	}

	s, isWS, err := w.upgradeGreeting(ac)
	if err != nil {
		w.server.logger.Debugw("greeting upgrade failed", "worker", w.id, "err", err)
		w.server.metrics.Add(metricConnectionsRejected, 1)
		ac.conn.Close()
		return
	}
	_ = isWS

	fd, ok := s.RawFD()
	if !ok {
		w.server.logger.Debugw("stream has no raw fd, dropping", "worker", w.id)
		s.Close()
		return
	}

	st := protocol.NewState(fd, s, false)
	st.ConnectionStart = time.Now()
	if host, _, err := net.SplitHostPort(ac.conn.RemoteAddr().String()); err == nil {
		st.ClientIP = host
	}
	entry := &connEntry{state: st, raw: ac.conn, fd: fd}
	w.conns[fd] = entry

	if err := s.Register(w.reactor, fd, reactor.Writable); err != nil {
		w.server.logger.Debugw("register failed", "worker", w.id, "err", err)
		delete(w.conns, fd)
		s.Close()
		return
	}
	w.server.metrics.Add(metricConnectionsAdmitted, 1)
}

// upgradeGreeting implements §4.3's bounded-read sniff: detect a
// WebSocket upgrade request vs a raw RMBT client within the configured
// deadline, and return the resulting Stream.
func (w *worker) upgradeGreeting(ac admittedConn) (stream.Stream, bool, error) {
	res, err := stream.Sniff(ac.conn, w.server.cfg.UpgradeDeadline)
	if err != nil {
		return nil, false, err
	}

	var base stream.Stream
	if ac.isTLS {
		tlsConn, ok := ac.conn.(*tls.Conn)
		if !ok {
			return nil, false, fmt.Errorf("server: tls-tagged connection is not a *tls.Conn")
		}
		base = stream.WrapTLSConn(tlsConn)
	} else {
		base, err = stream.NewTCPStream(ac.conn)
		if err != nil {
			return nil, false, err
		}
	}

	if w.server.cfg.ForceWebSocket && !res.IsWebSocket {
		return nil, false, rmbterr.Wrap(rmbterr.KindProtocol, rmbterr.ErrProtocol)
	}
	if !res.IsWebSocket {
		return base, false, nil
	}
	ws, err := stream.FinishServerHandshake(ac.conn, base, res.Request)
	if err != nil {
		return nil, false, err
	}
	return ws, true, nil
}

func (w *worker) dispatch(ev reactor.Event) {
	entry, ok := w.conns[ev.Token]
	if !ok {
		return
	}
	if ev.Err {
		w.evict(entry, nil)
		return
	}

	cfg := protocol.ServerConfig{
		Version:          w.server.cfg.Version,
		ChunkSizeDefault: w.server.cfg.ChunkSizeDefault,
		ChunkSizeMin:     w.server.cfg.ChunkSizeMin,
		ChunkSizeMax:     w.server.cfg.ChunkSizeMax,
	}

	advanced, err := protocol.ServerStep(entry.state, cfg)
	if err != nil {
		w.evict(entry, err)
		return
	}
	if !advanced {
		return
	}
	if entry.state.Closed {
		w.evict(entry, nil)
		return
	}

	interests := reactor.Readable
	if protocol.ServerIsWriteState(entry.state.Phase) {
		interests = reactor.Writable
	}
	if err := entry.state.Stream.Reregister(w.reactor, entry.fd, interests); err != nil {
		w.evict(entry, err)
	}
}

func (w *worker) evict(entry *connEntry, cause error) {
	if cause != nil {
		w.server.logger.Debugw("connection closed", "worker", w.id, "err", cause)
	}
	w.reactor.Unregister(entry.fd)
	entry.state.Stream.Close()
	delete(w.conns, entry.fd)
	w.server.metrics.Add(metricConnectionsEvicted, 1)
}

func (w *worker) closeAll() {
	for _, e := range w.conns {
		w.reactor.Unregister(e.fd)
		e.state.Stream.Close()
	}
	w.conns = make(map[uintptr]*connEntry)
	w.reactor.Close()
}

// sweepConnections drops any connection older than the configured
// lifetime cap, per §4.3's per-connection timeout sweeper.
func (w *worker) sweepConnections() {
	now := time.Now()
	for fd, e := range w.conns {
		if now.Sub(e.state.ConnectionStart) > w.server.cfg.ConnectionLifetime {
			w.reactor.Unregister(fd)
			e.state.Stream.Close()
			delete(w.conns, fd)
			w.server.metrics.Add(metricConnectionsEvicted, 1)
		}
	}
	atomic.AddInt64(&w.server.sweepCount, 1)
	w.server.metrics.Add(metricSweepRuns, 1)
}
