package protocol

import (
	"fmt"
	"time"

	"github.com/rmbt-go/rmbt/rmbterr"
)

// ServerConfig parametrises the server-side directional driver.
type ServerConfig struct {
	Version          string
	ChunkSizeDefault int
	ChunkSizeMin     int
	ChunkSizeMax     int
	// Token is the opaque uuid_start_hmac string associated with this
	// connection. ServerStep does not compare it with the client's TOKEN
	// line: any TOKEN line is accepted, since authentication policy lives
	// outside the state machine's scope.
	Token string
}

// ServerStep advances s by exactly one non-blocking I/O operation's worth
// of progress and returns whether the phase changed. A (false, nil)
// result means the step would have blocked; interest stays as-is and the
// caller returns control to its poller. A non-nil error is fatal to this
// connection; the caller closes the stream. s.Closed being true after a
// (true, nil) return means the connection finished cleanly (QUIT) and
// should also be closed, but without logging it as an error.
func ServerStep(s *State, cfg ServerConfig) (bool, error) {
	switch s.Phase {

	case PhaseGreetingSendVersion:
		ok, err := WriteMessage(s, GreetingLine(cfg.Version)+cmdAcceptTokenQuit)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseGreetingReceiveToken
		return true, nil

	case PhaseGreetingReceiveToken:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || (pc.Name != "TOKEN" && pc.Name != "QUIT") {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		if pc.Name == "QUIT" {
			s.Closed = true
			return true, nil
		}
		s.ResetMessageCursors()
		s.Phase = PhaseGreetingSendChunkSize
		return true, nil

	case PhaseGreetingSendChunkSize:
		ok, err := WriteMessage(s, ChunksizeLine(cfg.ChunkSizeDefault, cfg.ChunkSizeMin, cfg.ChunkSizeMax))
		if !ok || err != nil {
			return false, err
		}
		s.ResizeChunkBuffer(cfg.ChunkSizeDefault)
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandSend
		return true, nil

	case PhaseAcceptCommandSend:
		ok, err := WriteMessage(s, cmdAcceptTest)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandReceive
		return true, nil

	case PhaseAcceptCommandReceive:
		return serverAcceptCommand(s)

	case PhasePingSend:
		ok, err := WriteMessage(s, cmdPong)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhasePingReceivePong
		return true, nil

	case PhasePingReceivePong:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "OK" {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		s.ResetMessageCursors()
		s.Phase = phasePingSendTime
		return true, nil

	case phasePingSendTime:
		ok, err := WriteMessage(s, TimeLine(0))
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandSend
		return true, nil

	case PhaseGetChunksSendCommand:
		// Server never sends GETCHUNKS; this phase value is only used by
		// the client driver. Reaching it here is a programming error.
		return false, fmt.Errorf("protocol: server reached client-only phase %s", s.Phase)

	case PhaseGetChunksReceiveChunk:
		return serverSendPreDownloadChunk(s)

	case PhaseGetChunksSendOk:
		// Server doesn't send OK for GETCHUNKS; client does. This value is
		// repurposed below as "server waiting for client's OK".
		return serverAwaitOk(s, phaseAfterGetChunksOk)

	case phaseAfterGetChunksOk:
		ok, err := WriteMessage(s, TimeLine(time.Since(s.PhaseStartTime).Nanoseconds()))
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandSend
		return true, nil

	case PhaseGetTimeSendCommand:
		return false, fmt.Errorf("protocol: server reached client-only phase %s", s.Phase)

	case PhaseGetTimeReceiveChunk:
		return serverSendTimedChunk(s)

	case PhaseGetTimeSendOk:
		return serverAwaitOk(s, phaseAfterGetTimeOk)

	case phaseAfterGetTimeOk:
		elapsed := time.Since(s.PhaseStartTime).Nanoseconds()
		s.GetTimeBytes = s.BytesTransferred
		s.GetTimeNs = elapsed
		ok, err := WriteMessage(s, TimeLine(elapsed))
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandSend
		return true, nil

	case PhasePutSendCommand:
		ok, err := WriteMessage(s, cmdOK)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.BeginTimedPhase()
		s.ChunkPos = 0
		s.Phase = PhasePutReceiveOk
		return true, nil

	case PhasePutReceiveOk:
		return serverReceiveTimedChunk(s)

	case PhasePutSendChunk:
		return false, fmt.Errorf("protocol: server reached client-only phase %s", s.Phase)

	case PhasePutReceiveTime:
		elapsed := time.Since(s.PhaseStartTime).Nanoseconds()
		s.PutBytes = s.BytesTransferred
		s.PutNs = elapsed
		ok, err := WriteMessage(s, TimeLine(elapsed))
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandSend
		return true, nil

	case PhaseSignedResult:
		if len(s.SigKey) == 0 {
			key, err := NewSigKey()
			if err != nil {
				return false, err
			}
			s.SigKey = key
		}
		msg := EnvelopeMessage(s.GetTimeBytes, s.GetTimeNs, s.PutBytes, s.PutNs, s.ClientIP, NowNs())
		line := SignEnvelope(s.SigKey, msg)
		ok, err := WriteMessage(s, line)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = phaseAfterSignedResultAck
		return true, nil

	case phaseAfterSignedResultAck:
		return serverAwaitOk(s, PhaseAcceptCommandSend)

	case PhaseQuit, PhaseClosed:
		s.Closed = true
		return true, nil

	default:
		return false, fmt.Errorf("protocol: server driver reached unhandled phase %s", s.Phase)
	}
}

// phasePingSendTime and phaseAfterGetChunksOk/phaseAfterGetTimeOk are
// server-only internal sub-phases not named in the public Phase
// enumeration's happy-path list; they exist so the generic "reply with
// TIME and return to command accept" tail is reachable from three
// distinct entry points without duplicating the WriteMessage dance three
// times under the same public Phase constant.
const (
	phasePingSendTime Phase = 1000 + iota
	phaseAfterGetChunksOk
	phaseAfterGetTimeOk
	phaseAfterSignedResultAck
)

// ServerIsWriteState reports whether phase is a server-side send state,
// i.e. its next I/O operation is a Write, so the worker pool can set the
// poller interest correctly after each transition per §4.2: "each state
// is either a send state (poll interest = writable) or a receive state
// (readable)." Every phase not listed here is a server-side receive
// state.
func ServerIsWriteState(p Phase) bool {
	switch p {
	case PhaseGreetingSendVersion,
		PhaseGreetingSendChunkSize,
		PhaseAcceptCommandSend,
		PhasePingSend,
		phasePingSendTime,
		PhaseGetChunksReceiveChunk, // server is the chunk sender here
		phaseAfterGetChunksOk,
		PhaseGetTimeReceiveChunk, // server is the chunk sender here
		phaseAfterGetTimeOk,
		PhasePutSendCommand,
		PhasePutReceiveTime, // server writes the final TIME reply
		PhaseSignedResult:
		return true
	default:
		return false
	}
}

func serverAcceptCommand(s *State) (bool, error) {
	line, ok, err := ReadLine(s)
	if !ok || err != nil {
		return false, err
	}
	pc, perr := ParseLine(line)
	if perr != nil {
		s.LastCommandEcho = line
		return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
	}
	s.ResetMessageCursors()
	switch pc.Name {
	case "PING":
		s.Phase = PhasePingSend
	case "GETCHUNKS":
		n, size, perr := parseTwoInts(pc.Args)
		if perr != nil || !ValidChunkSize(size) {
			return rejectCommand(s, line)
		}
		s.RequestedN, s.RequestedChunkSize = n, size
		s.ResizeChunkBuffer(size)
		s.ChunksRemaining = n
		s.ChunkPos = 0
		s.BeginTimedPhase()
		s.Phase = PhaseGetChunksReceiveChunk
	case "GETTIME":
		seconds, size, perr := parseTwoInts(pc.Args)
		if perr != nil || !ValidChunkSize(size) {
			return rejectCommand(s, line)
		}
		s.RequestedSeconds, s.RequestedChunkSize = seconds, size
		s.ResizeChunkBuffer(size)
		s.ChunkPos = 0
		s.BeginTimedPhase()
		s.DurationDeadline = time.Now().Add(time.Duration(seconds) * time.Second)
		s.Phase = PhaseGetTimeReceiveChunk
	case "PUT", "PUTNORESULT":
		if len(pc.Args) != 1 {
			return rejectCommand(s, line)
		}
		size, perr := ParseInt(pc.Args[0])
		if perr != nil || !ValidChunkSize(size) {
			return rejectCommand(s, line)
		}
		s.RequestedChunkSize = size
		s.ResizeChunkBuffer(size)
		s.PutNoResult = pc.Name == "PUTNORESULT"
		s.Phase = PhasePutSendCommand
	case "SIGNEDRESULT":
		s.Phase = PhaseSignedResult
	case "QUIT":
		s.Closed = true
		return true, nil
	default:
		return rejectCommand(s, line)
	}
	return true, nil
}

// rejectCommand makes a single best-effort write of the ERR reply before
// reporting the fatal protocol error that closes the connection; per §4.2
// "Failure semantics", the error is never retried, so a WouldBlock on this
// write is simply dropped rather than buffered.
func rejectCommand(s *State, line string) (bool, error) {
	s.LastCommandEcho = line
	s.Stream.Write([]byte(ErrLine(trimNewline(line))))
	return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}

func parseTwoInts(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("protocol: expected 2 arguments, got %d", len(args))
	}
	a, err := ParseInt(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := ParseInt(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// serverSendPreDownloadChunk sends one GETCHUNKS chunk, flipping the
// terminator to TerminatorEnd on the last of s.RequestedN.
func serverSendPreDownloadChunk(s *State) (bool, error) {
	if s.ChunkPos == 0 {
		last := s.ChunksRemaining == 1
		SetTerminator(s, last)
	}
	done, err := WriteChunk(s, &s.ChunkPos)
	if err != nil || !done {
		return false, err
	}
	s.BytesTransferred += int64(len(s.ChunkBuffer))
	s.ChunkPos = 0
	s.ChunksRemaining--
	if s.ChunksRemaining > 0 {
		return true, nil // stay in PhaseGetChunksReceiveChunk for the next chunk
	}
	s.Phase = PhaseGetChunksSendOk
	return true, nil
}

// serverSendTimedChunk streams GETTIME chunks until the wall clock
// reaches s.DurationDeadline, then marks the final chunk with
// TerminatorEnd.
func serverSendTimedChunk(s *State) (bool, error) {
	if s.ChunkPos == 0 {
		SetTerminator(s, !time.Now().Before(s.DurationDeadline))
	}
	done, err := WriteChunk(s, &s.ChunkPos)
	if err != nil || !done {
		return false, err
	}
	s.BytesTransferred += int64(len(s.ChunkBuffer))
	s.RecordSample()
	end, terr := Terminator(s)
	if terr != nil {
		return false, terr
	}
	s.ChunkPos = 0
	if end {
		s.Phase = PhaseGetTimeSendOk
	}
	return true, nil
}

// serverReceiveTimedChunk reads PUT chunks until the client marks one
// TerminatorEnd.
func serverReceiveTimedChunk(s *State) (bool, error) {
	done, err := ReadChunk(s, &s.ChunkPos)
	if err != nil || !done {
		return false, err
	}
	s.BytesTransferred += int64(len(s.ChunkBuffer))
	if !s.PutNoResult {
		s.RecordSample()
	}
	end, terr := Terminator(s)
	if terr != nil {
		return false, terr
	}
	s.ChunkPos = 0
	if end {
		s.Phase = PhasePutReceiveTime
	}
	return true, nil
}

// serverAwaitOk reads the client's OK acknowledgement and transitions to
// next on success.
func serverAwaitOk(s *State, next Phase) (bool, error) {
	line, ok, err := ReadLine(s)
	if !ok || err != nil {
		return false, err
	}
	pc, perr := ParseLine(line)
	if perr != nil || pc.Name != "OK" {
		return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
	}
	s.ResetMessageCursors()
	s.Phase = next
	return true, nil
}
