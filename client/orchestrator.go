package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rmbt-go/rmbt/protocol"
	"github.com/rmbt-go/rmbt/rmbtlog"
)

// Result is the fully aggregated outcome of one measurement run, ready to
// be reported and/or printed.
type Result struct {
	PingNs        int64
	DownloadHmbps int64 // hundredths of Mbps
	UploadHmbps   int64
	Envelopes     []string
}

// Orchestrator runs one measurement against a configured server, per
// §4.4: parallel streams, per-stream phase schedules, cross-stream
// aggregation, and an optional report POST.
type Orchestrator struct {
	cfg    *Config
	logger *zap.SugaredLogger
}

// New builds an Orchestrator. A nil logger is replaced with a no-op one.
func New(cfg *Config, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = rmbtlog.Nop()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Run opens cfg.Threads parallel connections, waits for all of them to
// complete their command schedule, aggregates the result, and — if
// cfg.ReportURL is set — posts it to the control collaborator.
func (o *Orchestrator) Run() (*Result, error) {
	if o.cfg.Threads <= 0 {
		return nil, fmt.Errorf("client: thread count must be positive, got %d", o.cfg.Threads)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*streamResult
		firstErr error
	)

	for i := 0; i < o.cfg.Threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := runStream(o.cfg, o.cfg.Token)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.Debugw("stream failed", "err", err)
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results = append(results, res)
		}()
	}
	wg.Wait()

	if len(results) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("client: every parallel stream failed")
	}

	result := aggregate(results)

	if o.cfg.ReportURL != "" {
		if err := o.report(result); err != nil {
			o.logger.Warnw("reporting result failed", "err", err)
		}
	}
	return result, nil
}

// aggregate folds every stream's contribution into the three reported
// numbers, per §4.4.
func aggregate(results []*streamResult) *Result {
	var pings []int64
	var download, upload [][]protocol.Sample
	var envelopes []string

	for _, r := range results {
		for _, d := range r.PingSamples {
			pings = append(pings, d.Nanoseconds())
		}
		download = append(download, r.DownloadSeries)
		upload = append(upload, r.UploadSeries)
		if r.Envelope != "" {
			envelopes = append(envelopes, r.Envelope)
		}
	}

	return &Result{
		PingNs:        medianPing(pings),
		DownloadHmbps: alignedThroughput(download),
		UploadHmbps:   alignedThroughput(upload),
		Envelopes:     envelopes,
	}
}

func (o *Orchestrator) report(result *Result) error {
	host, _, err := net.SplitHostPort(o.cfg.ServerAddr)
	if err != nil {
		host = o.cfg.ServerAddr
	}
	r := &Report{
		ClientUUID:     mustIdentity(o.cfg.ConfigFilePath),
		ConnectionType: o.cfg.ConnectionType(),
		ThreadCount:    o.cfg.Threads,
		BuildHash:      buildHash(),
		ServerIP:       host,
		PingNs:         result.PingNs,
		DownloadHmbps:  result.DownloadHmbps,
		UploadHmbps:    result.UploadHmbps,
		Envelopes:      result.Envelopes,
		TimestampNs:    time.Now().UnixNano(),
	}
	return postReport(o.cfg.ReportURL, r, o.logger)
}

func mustIdentity(path string) string {
	id, err := LoadOrCreateClientUUID(path)
	if err != nil {
		return ""
	}
	return id
}
