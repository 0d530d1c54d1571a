// Command rmbtc runs a single measurement against a server, per §4.4:
// several parallel streams, each driven through the shared phase state
// machine, aggregated into a ping/download/upload result and optionally
// reported to a collector.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rmbt-go/rmbt/client"
	"github.com/rmbt-go/rmbt/rmbtlog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("rmbtc", flag.ContinueOnError)

	addr := fs.String("server", "", "measurement server address, host:port (required)")
	useTLS := fs.Bool("tls", false, "use TLS transport")
	useWS := fs.Bool("ws", false, "use WebSocket framing")
	threads := fs.Int("threads", 3, "parallel connections")
	pingCount := fs.Int("pings", 10, "ping samples collected per stream")
	duration := fs.Duration("duration", 7*time.Second, "duration of each timed phase")
	dialTimeout := fs.Duration("dial-timeout", 5*time.Second, "connection dial timeout")
	token := fs.String("token", "", "uuid_start_hmac token issued for this test")
	reportURL := fs.String("report-url", "", "collector URL to POST the JSON result to (optional)")
	identityPath := fs.String("identity-file", "", "override the persisted client identity file path")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		return fmt.Errorf("rmbtc: -server is required")
	}

	cfg := client.DefaultConfig()
	cfg.ServerAddr = *addr
	cfg.UseTLS = *useTLS
	cfg.UseWebSocket = *useWS
	cfg.Threads = *threads
	cfg.PingCount = *pingCount
	cfg.TestDuration = *duration
	cfg.DialTimeout = *dialTimeout
	cfg.Token = *token
	cfg.ReportURL = *reportURL
	cfg.ConfigFilePath = *identityPath

	logger, err := rmbtlog.New(*debug)
	if err != nil {
		return fmt.Errorf("rmbtc: building logger: %w", err)
	}
	defer logger.Sync()

	result, err := client.New(cfg, logger).Run()
	if err != nil {
		return fmt.Errorf("rmbtc: measurement failed: %w", err)
	}

	fmt.Printf("ping_ns=%d download_hmbps=%d upload_hmbps=%d envelopes=%d\n",
		result.PingNs, result.DownloadHmbps, result.UploadHmbps, len(result.Envelopes))
	return nil
}
