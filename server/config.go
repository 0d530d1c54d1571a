// File: server/config.go
// Package server implements the worker pool that multiplexes many
// connections' measurement state machines across a fixed set of
// readiness-poller-driven goroutines.
package server

import "time"

// Config holds every server-side tunable, filled from CLI flags (see
// cmd/rmbtd) and optionally overlaid from a YAML file.
type Config struct {
	ListenAddrs    []string // plain TCP listen addresses, -l, repeatable
	TLSListenAddrs []string // TLS listen addresses, -L, repeatable
	CertPath       string   // -c, PEM certificate chain
	KeyPath        string   // -k, PEM private key
	Workers        int      // -t, default 200
	User           string   // -u, drop privileges to this user after bind
	Daemonize      bool     // -d
	Debug          bool     // -D
	ForceWebSocket bool     // -w, require a WebSocket upgrade; a raw client is rejected
	Version        string   // -v, legacy greeting negotiation, e.g. "0.3"

	ChunkSizeDefault int
	ChunkSizeMin     int
	ChunkSizeMax     int

	UpgradeDeadline       time.Duration // 3s sniff deadline, §4.3
	ConnectionLifetime    time.Duration // 60s per-connection cap, §4.3
	QueueSweepInterval    time.Duration // 10s
	QueueEntryMaxAge      time.Duration // 60s
	PollTimeout           time.Duration // 10ms
}

// DefaultConfig returns the bindings and bounds named in §6's CLI surface.
func DefaultConfig() *Config {
	return &Config{
		ListenAddrs:        []string{":5005"},
		Workers:            200,
		Version:            "1.0",
		ChunkSizeDefault:    4096,
		ChunkSizeMin:        4096,
		ChunkSizeMax:        4194304,
		UpgradeDeadline:     3 * time.Second,
		ConnectionLifetime:  60 * time.Second,
		QueueSweepInterval:  10 * time.Second,
		QueueEntryMaxAge:    60 * time.Second,
		PollTimeout:         10 * time.Millisecond,
	}
}

// TLSListenersRequested reports whether any TLS listener was configured,
// in which case CertPath/KeyPath become mandatory (a Configuration-kind
// error at startup per §7, if missing).
func (c *Config) TLSListenersRequested() bool {
	return len(c.TLSListenAddrs) > 0
}
