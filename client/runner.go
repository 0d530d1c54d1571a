package client

import (
	"time"

	"github.com/rmbt-go/rmbt/protocol"
)

// streamResult holds everything one parallel connection contributed to
// the aggregate measurement, per §4.4.
type streamResult struct {
	PingSamples    []time.Duration
	DownloadSeries []protocol.Sample
	UploadSeries   []protocol.Sample
	GetTimeBytes   int64
	GetTimeNs      int64
	PutBytes       int64
	PutNs          int64
	Envelope       string
}

// commandSchedule drives one stream's command sequence: a fixed number of
// pings, a pre-download sizing loop, one timed download, one timed
// upload, and (when a reporting endpoint is configured) a signed result,
// per §4.4's "Ping, GetChunks, GetTime, Put, and optionally SignedResult".
//
// next is called by protocol.ClientStep exactly once per return to
// AcceptCommandSend, i.e. exactly at the boundary between one completed
// command's result and the next command's request — so state.SampleSeries
// still holds the just-finished timed phase's samples when next inspects
// it, before the following BeginTimedPhase call clears it.
type commandSchedule struct {
	cfg *Config

	pingsSent int

	getChunksDone   bool
	lastN, lastSize int
	getChunksRounds int

	getTimeDone bool
	putDone     bool
	signedDone  bool

	wantSignedResult bool

	downloadSeries []protocol.Sample
	uploadSeries   []protocol.Sample
}

// maxGetChunksRounds bounds the pre-download warm-up loop so a server
// that never reports a duration past PreDownloadDurationNs can't spin
// the client forever.
const maxGetChunksRounds = 16

func newCommandSchedule(cfg *Config, wantSignedResult bool) *commandSchedule {
	return &commandSchedule{cfg: cfg, wantSignedResult: wantSignedResult}
}

// next implements protocol.ClientConfig.NextCommand.
func (c *commandSchedule) next(s *protocol.State) (string, []int, bool, bool) {
	if c.pingsSent < c.cfg.PingCount {
		c.pingsSent++
		return "PING", nil, false, false
	}

	if !c.getChunksDone {
		if c.getChunksRounds == 0 {
			c.lastN, c.lastSize = 1, s.ChunkSize
			c.getChunksRounds++
			return "GETCHUNKS", []int{c.lastN, c.lastSize}, false, false
		}
		grew := s.RequestedN != c.lastN || s.RequestedChunkSize != c.lastSize
		c.lastN, c.lastSize = s.RequestedN, s.RequestedChunkSize
		if grew && c.getChunksRounds < maxGetChunksRounds {
			c.getChunksRounds++
			return "GETCHUNKS", []int{c.lastN, c.lastSize}, false, false
		}
		c.getChunksDone = true
	}

	if !c.getTimeDone {
		c.getTimeDone = true
		return "GETTIME", []int{int(c.cfg.TestDuration.Seconds()), c.lastSize}, false, false
	}

	if !c.putDone {
		c.downloadSeries = cloneSamples(s)
		c.putDone = true
		return "PUT", []int{c.lastSize, int(c.cfg.TestDuration.Seconds())}, false, false
	}

	if c.uploadSeries == nil {
		c.uploadSeries = cloneSamples(s)
	}

	if c.wantSignedResult && !c.signedDone {
		c.signedDone = true
		return "SIGNEDRESULT", nil, false, false
	}

	return "", nil, false, true
}

// cloneSamples defensively copies the connection's current SampleSeries:
// BeginTimedPhase reuses the backing array across GETTIME and PUT, so the
// slice must not be aliased once the connection moves past this phase.
func cloneSamples(s *protocol.State) []protocol.Sample {
	out := make([]protocol.Sample, len(s.SampleSeries))
	copy(out, s.SampleSeries)
	return out
}

// runStream opens one connection, drives it through the full command
// schedule via protocol.ClientStep, and returns its contribution to the
// aggregate result.
func runStream(cfg *Config, token string) (*streamResult, error) {
	st, err := openStream(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	state := protocol.NewState(0, st, true)
	sched := newCommandSchedule(cfg, cfg.ReportURL != "")
	pcfg := protocol.ClientConfig{Token: token, NextCommand: sched.next}

	for !state.Closed {
		advanced, err := protocol.ClientStep(state, pcfg)
		if err != nil {
			return nil, err
		}
		if !advanced {
			time.Sleep(time.Millisecond)
		}
	}

	return &streamResult{
		PingSamples:    state.PingSamples,
		DownloadSeries: sched.downloadSeries,
		UploadSeries:   sched.uploadSeries,
		GetTimeBytes:   state.GetTimeBytes,
		GetTimeNs:      state.GetTimeNs,
		PutBytes:       state.PutBytes,
		PutNs:          state.PutNs,
		Envelope:       state.Envelope,
	}, nil
}
