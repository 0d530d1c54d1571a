package client

import (
	"fmt"
	"net"

	"github.com/rmbt-go/rmbt/stream"
)

// openStream dials cfg.ServerAddr using whichever of the four transport
// combinations (§6: TCP|TLS|WS|WSS) cfg selects.
func openStream(cfg *Config) (stream.Stream, error) {
	host, _, err := net.SplitHostPort(cfg.ServerAddr)
	if err != nil {
		host = cfg.ServerAddr
	}

	switch {
	case !cfg.UseWebSocket && !cfg.UseTLS:
		return stream.DialTCP(cfg.ServerAddr, cfg.DialTimeout)

	case !cfg.UseWebSocket && cfg.UseTLS:
		return stream.DialTLS(cfg.ServerAddr, stream.ClientTLSConfig(host), cfg.DialTimeout)

	case cfg.UseWebSocket && !cfg.UseTLS:
		rawConn, under, err := stream.DialTCPRaw(cfg.ServerAddr, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		ws, err := stream.ClientHandshake(rawConn, under, host, "/rmbt", cfg.DialTimeout)
		if err != nil {
			rawConn.Close()
			return nil, err
		}
		return ws, nil

	case cfg.UseWebSocket && cfg.UseTLS:
		rawConn, under, err := stream.DialTLSRaw(cfg.ServerAddr, host, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		ws, err := stream.ClientHandshake(rawConn, under, host, "/rmbt", cfg.DialTimeout)
		if err != nil {
			rawConn.Close()
			return nil, err
		}
		return ws, nil

	default:
		return nil, fmt.Errorf("client: unreachable transport combination")
	}
}
