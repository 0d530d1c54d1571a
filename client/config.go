// Package client implements the measurement orchestration described in
// §4.4: it opens several parallel connections to a single server address,
// drives each one through the shared phase-driven state machine from
// package protocol, and aggregates their samples into the three reported
// numbers (ping, download, upload).
package client

import "time"

// Config holds every client-side tunable, filled from CLI flags only (see
// cmd/rmbtc); unlike the server, the client reads no YAML config overlay.
type Config struct {
	ServerAddr    string // host:port of the measurement server
	UseTLS        bool   // -tls
	UseWebSocket  bool   // -ws
	Threads       int    // thread_count, §4.4
	DialTimeout   time.Duration
	PingCount     int           // ping samples collected per stream before GETCHUNKS
	TestDuration  time.Duration // duration argument for GETTIME/PUT
	// Token is the opaque uuid_start_hmac value sent in the GreetingReceiveToken
	// phase. Obtaining it from a test-registration control endpoint is out
	// of scope (§1); the orchestrator is simply configured with it.
	Token string

	ReportURL string // control collaborator endpoint; empty disables reporting

	ConfigFilePath string // client identity file override, for tests
}

// DefaultConfig returns sane defaults for an interactive run.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:  5 * time.Second,
		PingCount:    10,
		TestDuration: 7 * time.Second,
		Threads:      3,
	}
}

// ConnectionType reports the wire-level transport label used in the
// reported JSON payload (§4.4: "connection type (TCP|TLS|WS|WSS)").
func (c *Config) ConnectionType() string {
	switch {
	case c.UseWebSocket && c.UseTLS:
		return "WSS"
	case c.UseWebSocket:
		return "WS"
	case c.UseTLS:
		return "TLS"
	default:
		return "TCP"
	}
}
