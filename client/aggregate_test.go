package client

import (
	"testing"

	"github.com/rmbt-go/rmbt/protocol"
)

func TestMedianPingOddAndEven(t *testing.T) {
	if got := medianPing([]int64{30, 10, 20}); got != 20 {
		t.Fatalf("odd median = %d, want 20", got)
	}
	if got := medianPing([]int64{10, 20, 30, 40}); got != 25 {
		t.Fatalf("even median = %d, want 25", got)
	}
	if got := medianPing(nil); got != 0 {
		t.Fatalf("empty median = %d, want 0", got)
	}
}

func TestAlignedThroughputConstantRate(t *testing.T) {
	// Each stream delivers 1 MiB/s for one second. One stream reads about
	// 8.39 Mbps (839 in hundredths of Mbps) and two read about twice that;
	// assert the single-stream figure is positive and the two-stream figure
	// is higher.
	series := func(mbPerSec int64) []protocol.Sample {
		var s []protocol.Sample
		for i := int64(1); i <= 10; i++ {
			s = append(s, protocol.Sample{
				ElapsedNs: i * 100_000_000, // every 100ms
				Bytes:     i * mbPerSec * 1024 * 1024 / 10,
			})
		}
		return s
	}

	single := alignedThroughput([][]protocol.Sample{series(1)})
	double := alignedThroughput([][]protocol.Sample{series(1), series(1)})

	if single <= 0 {
		t.Fatalf("expected positive throughput, got %d", single)
	}
	if double <= single {
		t.Fatalf("combining two equal streams should roughly double throughput: single=%d double=%d", single, double)
	}
}

func TestAlignedThroughputEmpty(t *testing.T) {
	if got := alignedThroughput(nil); got != 0 {
		t.Fatalf("empty input = %d, want 0", got)
	}
	if got := alignedThroughput([][]protocol.Sample{nil, nil}); got != 0 {
		t.Fatalf("all-empty series = %d, want 0", got)
	}
}

func TestCommandScheduleSequence(t *testing.T) {
	cfg := &Config{PingCount: 2, TestDuration: 1}
	sched := newCommandSchedule(cfg, true)
	s := &protocol.State{ChunkSize: 4096}

	name, _, _, quit := sched.next(s)
	if name != "PING" || quit {
		t.Fatalf("expected first command PING, got %q quit=%v", name, quit)
	}
	name, _, _, _ = sched.next(s)
	if name != "PING" {
		t.Fatalf("expected second command PING, got %q", name)
	}
	name, args, _, _ := sched.next(s)
	if name != "GETCHUNKS" || args[0] != 1 || args[1] != 4096 {
		t.Fatalf("expected GETCHUNKS 1 4096, got %q %v", name, args)
	}

	// simulate no further growth: RequestedN/RequestedChunkSize unchanged.
	s.RequestedN, s.RequestedChunkSize = 1, 4096
	name, args, _, _ = sched.next(s)
	if name != "GETTIME" {
		t.Fatalf("expected GETTIME after pre-download settles, got %q %v", name, args)
	}
	name, _, _, _ = sched.next(s)
	if name != "PUT" {
		t.Fatalf("expected PUT after GETTIME, got %q", name)
	}
	name, _, _, _ = sched.next(s)
	if name != "SIGNEDRESULT" {
		t.Fatalf("expected SIGNEDRESULT after PUT, got %q", name)
	}
	_, _, _, quit = sched.next(s)
	if !quit {
		t.Fatal("expected quit after SIGNEDRESULT")
	}
}
