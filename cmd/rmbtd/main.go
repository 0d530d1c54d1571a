// Command rmbtd runs the measurement server: a fixed worker pool that
// multiplexes many connections' phase-driven state machines over
// readiness-based I/O, per §4.3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rmbt-go/rmbt/rmbtlog"
	"github.com/rmbt-go/rmbt/server"
)

// stringSlice collects a repeatable flag (-l, -L) into a slice.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("rmbtd", flag.ContinueOnError)

	var listen, listenTLS stringSlice
	fs.Var(&listen, "l", "plain TCP listen address (repeatable)")
	fs.Var(&listenTLS, "L", "TLS listen address (repeatable)")
	cert := fs.String("c", "", "PEM certificate chain path")
	key := fs.String("k", "", "PEM private key path")
	workers := fs.Int("t", 200, "worker count")
	user := fs.String("u", "", "drop privileges to this user after bind")
	daemonize := fs.Bool("d", false, "daemonise")
	debug := fs.Bool("D", false, "enable debug logging")
	forceWS := fs.Bool("w", false, "require a WebSocket upgrade, reject raw clients")
	version := fs.String("v", "1.0", "legacy greeting version, e.g. 0.3")
	configFile := fs.String("f", "", "optional YAML config overlay path")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	cfg.Version = *version
	if len(listen) > 0 {
		cfg.ListenAddrs = []string(listen)
	}
	cfg.TLSListenAddrs = []string(listenTLS)
	if len(listenTLS) == 0 && *cert != "" && *key != "" {
		// §6 default binding: TLS 8080 when both cert and key are given
		// but no explicit -L was passed.
		cfg.TLSListenAddrs = []string{":8080"}
	}
	cfg.CertPath = *cert
	cfg.KeyPath = *key
	cfg.Workers = *workers
	cfg.User = *user
	cfg.Daemonize = *daemonize
	cfg.Debug = *debug
	cfg.ForceWebSocket = *forceWS

	if *configFile != "" {
		if err := server.LoadConfigFile(*configFile, cfg); err != nil {
			return fmt.Errorf("rmbtd: loading config file: %w", err)
		}
	}

	logger, err := rmbtlog.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("rmbtd: building logger: %w", err)
	}
	defer logger.Sync()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("shutdown signal received")
		cancel()
	}()

	return srv.Run(ctx)
}
