// File: server/server.go
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rmbt-go/rmbt/rmbterr"
)

// Server is the measurement daemon facade: a fixed worker pool fed by a
// shared admission queue, per §4.3.
type Server struct {
	cfg    *Config
	logger *zap.SugaredLogger

	queue      *admissionQueue
	workers    []*worker
	listeners  []net.Listener
	tlsConfig  *tls.Config
	stop       chan struct{}
	wg         sync.WaitGroup
	sweepCount int64
	metrics    *MetricsRegistry
}

// New validates cfg and constructs a Server, loading the TLS certificate
// chain eagerly if any TLS listener is configured — a Configuration-kind
// error (§7) if the cert/key pair is missing or invalid.
func New(cfg *Config, logger *zap.SugaredLogger) (*Server, error) {
	if cfg.Workers <= 0 {
		return nil, rmbterr.Wrap(rmbterr.KindConfiguration, fmt.Errorf("server: worker count must be positive, got %d", cfg.Workers))
	}
	if logger == nil {
		return nil, fmt.Errorf("server: logger is required")
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		queue:   newAdmissionQueue(),
		stop:    make(chan struct{}),
		metrics: NewMetricsRegistry(),
	}

	if cfg.TLSListenersRequested() {
		if cfg.CertPath == "" || cfg.KeyPath == "" {
			return nil, rmbterr.Wrap(rmbterr.KindConfiguration, fmt.Errorf("server: TLS listener configured without -c/-k"))
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, rmbterr.Wrap(rmbterr.KindConfiguration, fmt.Errorf("server: loading TLS certificate: %w", err))
		}
		s.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	for i := 0; i < cfg.Workers; i++ {
		w, err := newWorker(i, s)
		if err != nil {
			return nil, fmt.Errorf("server: creating worker %d: %w", i, err)
		}
		s.workers = append(s.workers, w)
	}
	return s, nil
}

// Run opens every configured listener, starts every worker, and blocks
// until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	for _, addr := range s.cfg.ListenAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return rmbterr.Wrap(rmbterr.KindConfiguration, fmt.Errorf("server: listen %s: %w", addr, err))
		}
		s.listeners = append(s.listeners, ln)
		s.acceptLoop(ln, false)
	}
	for _, addr := range s.cfg.TLSListenAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return rmbterr.Wrap(rmbterr.KindConfiguration, fmt.Errorf("server: listen %s: %w", addr, err))
		}
		s.listeners = append(s.listeners, ln)
		s.acceptLoop(ln, true)
	}

	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker) {
			defer s.wg.Done()
			w.run(s.stop)
		}(w)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepQueueLoop()
	}()

	s.logger.Infow("server started", "workers", s.cfg.Workers, "listeners", s.cfg.ListenAddrs, "tls_listeners", s.cfg.TLSListenAddrs)

	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown stops accepting new connections and signals every worker to
// drain and exit.
func (s *Server) Shutdown() error {
	for _, ln := range s.listeners {
		ln.Close()
	}
	close(s.stop)
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, isTLS bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.stop:
					return
				default:
					s.logger.Debugw("accept error", "err", err)
					continue
				}
			}
			if isTLS {
				conn = tls.Server(conn, s.tlsConfig)
			}
			s.queue.push(admittedConn{conn: conn, isTLS: isTLS, queuedAt: time.Now()})
		}
	}()
}

// sweepQueueLoop drops admission-queue entries older than
// QueueEntryMaxAge every QueueSweepInterval, per §4.3's queue sweeper.
func (s *Server) sweepQueueLoop() {
	ticker := time.NewTicker(s.cfg.QueueSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			dropped := s.queue.sweepStale(s.cfg.QueueEntryMaxAge)
			if dropped > 0 {
				s.logger.Debugw("dropped stale queued connections", "count", dropped)
				s.metrics.Add(metricQueueDropped, int64(dropped))
			}
		}
	}
}

// SweepCount reports how many per-connection timeout sweeps have run
// across all workers, exposed for tests and metrics.
func (s *Server) SweepCount() int64 {
	return atomic.LoadInt64(&s.sweepCount)
}

// Metrics exposes the server's live counters (admitted/evicted/rejected
// connections, queue drops, sweep runs), for a status endpoint or test
// assertions.
func (s *Server) Metrics() map[string]int64 {
	return s.metrics.Snapshot()
}
