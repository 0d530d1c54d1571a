package protocol

import (
	"time"

	"github.com/rmbt-go/rmbt/stream"
)

// Sample is one (elapsed_ns, cumulative_bytes) point captured at a chunk
// boundary during a timed phase.
type Sample struct {
	ElapsedNs int64
	Bytes     int64
}

// State is the per-connection state machine record described in the data
// model: one instance per open connection, mutated exclusively by the
// worker or client driver that owns it, never aliased or shared.
type State struct {
	Token uintptr
	Stream stream.Stream
	Phase  Phase

	ReadBuffer  [8192]byte
	WriteBuffer [8192]byte
	ReadPos     int
	WritePos    int
	// PendingWrite holds the message currently being flushed across
	// possibly several non-blocking Write calls; WritePos indexes into it.
	PendingWrite string

	ChunkBuffer []byte
	ChunkSize   int
	TotalChunks int

	PhaseStartTime time.Time
	BytesTransferred int64
	SampleSeries     []Sample
	PingSamples      []time.Duration

	Envelope string

	ConnectionStart time.Time

	// SigKey is server-only: lazily generated on first SIGNEDRESULT.
	SigKey []byte

	// IsClient distinguishes driver direction; the phase enum and chunk
	// terminator logic are shared, but command issuance/parsing swap
	// roles depending on this flag.
	IsClient bool

	// pingSentAt records the client-side send time of the outstanding
	// PING, so the client's PhasePingSend step can compute the round trip
	// when PONG arrives.
	pingSentAt time.Time

	// PutNoResult remembers which PUT variant started the current upload
	// cycle, since PutSendChunk doesn't carry the command name forward.
	PutNoResult bool

	// ChunkPos tracks progress through the current chunk transfer, reset
	// whenever a new chunk begins.
	ChunkPos int
	// ChunksRemaining counts chunks left to send/receive in a GETCHUNKS
	// pre-download cycle (starts at RequestedN; unused in timed phases,
	// which instead compare against DurationDeadline).
	ChunksRemaining int
	// DurationDeadline is the wall-clock instant a timed GETTIME/PUT
	// cycle's sender should stop, computed from the requested duration.
	DurationDeadline time.Time

	// Results accumulated for the signed envelope, populated as GETTIME
	// and PUT complete; ClientIP is set by the server worker on admission.
	GetTimeBytes int64
	GetTimeNs    int64
	PutBytes     int64
	PutNs        int64
	ClientIP     string

	// RequestedChunkSize/RequestedN carry the just-parsed GETCHUNKS/
	// GETTIME/PUT arguments from AcceptCommandReceive into the phase that
	// executes them.
	RequestedChunkSize int
	RequestedN         int
	RequestedSeconds   int

	// LastCommandEcho holds the raw line most recently rejected, for the
	// ERR <echo> reply.
	LastCommandEcho string

	// Closed signals to the driver loop that this connection should be
	// torn down after the current step returns, set on QUIT. An
	// unrecoverable error is reported through the step's error return
	// instead and leaves Closed false.
	Closed bool
}

// NewState builds a fresh connection state bound to s, in the first phase
// appropriate for role.
func NewState(token uintptr, s stream.Stream, isClient bool) *State {
	now := time.Now()
	st := &State{
		Token:           token,
		Stream:          s,
		Phase:           PhaseGreetingSendVersion,
		ChunkSize:       stream.DefaultChunkSize,
		ChunkBuffer:     make([]byte, stream.DefaultChunkSize),
		ConnectionStart: now,
		IsClient:        isClient,
	}
	return st
}

// ResetMessageCursors clears the write side as the first action of a new
// phase: no phase handler may assume a stale PendingWrite/WritePos from the
// previous phase. ReadPos is untouched: ReadLine already shifts any bytes
// past the consumed line to the front of ReadBuffer before returning, so
// ReadPos reflects genuinely buffered, unread bytes (for example a second
// control line the peer coalesced into the same write) that the next
// phase's ReadLine must still see rather than silently overwrite.
func (s *State) ResetMessageCursors() {
	s.WritePos = 0
	s.PendingWrite = ""
}

// ResizeChunkBuffer grows or shrinks ChunkBuffer to match a newly
// negotiated chunk_size, preserving the §3 invariant that its length
// always equals ChunkSize during a timed phase.
func (s *State) ResizeChunkBuffer(size int) {
	s.ChunkSize = size
	if cap(s.ChunkBuffer) >= size {
		s.ChunkBuffer = s.ChunkBuffer[:size]
		return
	}
	s.ChunkBuffer = make([]byte, size)
}

// BeginTimedPhase resets the byte counter and sample series and stamps
// PhaseStartTime, marking the start of a GETTIME/PUT cycle.
func (s *State) BeginTimedPhase() {
	s.PhaseStartTime = time.Now()
	s.BytesTransferred = 0
	s.SampleSeries = s.SampleSeries[:0]
}

// RecordSample appends a chunk-boundary sample with a timestamp
// guaranteed (by construction: time.Now() is monotonic within a process)
// to be non-decreasing relative to the previous one, per §3's invariant.
func (s *State) RecordSample() {
	elapsed := time.Since(s.PhaseStartTime).Nanoseconds()
	s.SampleSeries = append(s.SampleSeries, Sample{ElapsedNs: elapsed, Bytes: s.BytesTransferred})
}
