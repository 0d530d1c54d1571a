package client

import (
	"math"
	"sort"

	"github.com/rmbt-go/rmbt/protocol"
)

// medianPing computes the median round-trip time across every stream's
// ping samples, in nanoseconds, per §4.4: "Median ping is computed from
// the union of per-stream ping samples."
func medianPing(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// alignedThroughput implements §4.4's aligned sample_series aggregation:
// at a uniform grid of timestamps spanning the widest stream's timed
// phase, per-stream cumulative bytes are summed, and the slope over the
// stable middle 60% of the window (discarding the first and last 20%)
// yields bits per second. The result is rounded to hundredths of Mbps,
// per "round(value_mbps × 100)".
func alignedThroughput(perStream [][]protocol.Sample) int64 {
	maxElapsed := int64(0)
	any := false
	for _, series := range perStream {
		if len(series) == 0 {
			continue
		}
		any = true
		if last := series[len(series)-1].ElapsedNs; last > maxElapsed {
			maxElapsed = last
		}
	}
	if !any || maxElapsed == 0 {
		return 0
	}

	const gridPoints = 101
	grid := make([]int64, gridPoints)
	for i := range grid {
		grid[i] = maxElapsed * int64(i) / int64(gridPoints-1)
	}

	aggregate := make([]int64, gridPoints)
	for _, series := range perStream {
		for i, t := range grid {
			aggregate[i] += cumulativeBytesAt(series, t)
		}
	}

	lo := gridPoints / 5      // discard first 20%
	hi := gridPoints - lo - 1 // discard last 20%
	if hi <= lo {
		lo, hi = 0, gridPoints-1
	}

	dt := grid[hi] - grid[lo]
	if dt <= 0 {
		return 0
	}
	dBytes := aggregate[hi] - aggregate[lo]

	bitsPerSecond := float64(dBytes) * 8 * 1e9 / float64(dt)
	mbps := bitsPerSecond / 1e6
	return int64(math.Round(mbps * 100))
}

// cumulativeBytesAt returns the last recorded cumulative byte count at or
// before elapsed t, per the step-function nature of chunk-boundary
// samples (0 before the first sample arrives).
func cumulativeBytesAt(series []protocol.Sample, t int64) int64 {
	idx := sort.Search(len(series), func(i int) bool { return series[i].ElapsedNs > t })
	if idx == 0 {
		return 0
	}
	return series[idx-1].Bytes
}
