package protocol

import (
	"fmt"
	"time"

	"github.com/rmbt-go/rmbt/rmbterr"
)

// ClientConfig parametrises the client-side directional driver for one
// connection's command schedule. NextCommand selects which test command
// AcceptCommandSend issues next; the orchestrator (package client)
// advances it as phases complete.
type ClientConfig struct {
	Token string

	NextCommand func(s *State) (name string, args []int, noResult bool, quit bool)
}

// ClientStep mirrors ServerStep from the opposite side of each
// interaction: it speaks where the server listens and vice versa. Return
// semantics match ServerStep exactly.
func ClientStep(s *State, cfg ClientConfig) (bool, error) {
	switch s.Phase {

	case PhaseGreetingSendVersion:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		_ = line // version string itself isn't branched on client-side
		s.ResetMessageCursors()
		s.Phase = PhaseGreetingReceiveToken
		return true, nil

	case PhaseGreetingReceiveToken:
		// The server's "ACCEPT TOKEN QUIT" banner is its own line.
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "ACCEPT" {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		s.ResetMessageCursors()
		s.PendingWrite = TokenLine(cfg.Token)
		s.Phase = clientPhaseSendToken
		return true, nil

	case clientPhaseSendToken:
		ok, err := WriteMessage(s, s.PendingWrite)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseGreetingSendChunkSize
		return true, nil

	case PhaseGreetingSendChunkSize:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "CHUNKSIZE" || len(pc.Args) != 3 {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		def, derr := ParseInt(pc.Args[0])
		if derr != nil {
			return false, derr
		}
		s.ResizeChunkBuffer(def)
		s.ResetMessageCursors()
		// The server follows CHUNKSIZE with its first ACCEPT banner.
		s.Phase = PhaseAcceptCommandReceive
		return true, nil

	case PhaseAcceptCommandSend:
		return clientSendNextCommand(s, cfg)

	case PhaseAcceptCommandReceive:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "ACCEPT" {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandSend
		return true, nil

	case PhasePingSend:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "PONG" {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		rtt := time.Since(s.pingSentAt)
		s.PingSamples = append(s.PingSamples, rtt)
		s.ResetMessageCursors()
		s.PendingWrite = cmdOK
		s.Phase = PhasePingReceivePong
		return true, nil

	case PhasePingReceivePong:
		ok, err := WriteMessage(s, s.PendingWrite)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = phasePingSendTime
		return true, nil

	case phasePingSendTime:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		if pc, perr := ParseLine(line); perr != nil || pc.Name != "TIME" {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandReceive
		return true, nil

	case PhaseGetChunksReceiveChunk:
		return clientReceivePreDownloadChunk(s)

	case preDownloadAckPhase:
		return clientSendPreDownloadAck(s)

	case phaseAfterGetChunksOk:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "TIME" || len(pc.Args) != 1 {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		ns, _ := ParseInt(pc.Args[0])
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandReceive
		onPreDownloadTimeReceived(s, int64(ns))
		return true, nil

	case PhaseGetTimeReceiveChunk:
		return clientReceiveTimedChunk(s)

	case getTimeAckPhase:
		return clientSendGetTimeAck(s)

	case phaseAfterGetTimeOk:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "TIME" || len(pc.Args) != 1 {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		ns, _ := ParseInt(pc.Args[0])
		s.GetTimeNs = ns64(ns)
		s.GetTimeBytes = s.BytesTransferred
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandReceive
		return true, nil

	case PhasePutReceiveOk:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "OK" {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		s.ResetMessageCursors()
		s.BeginTimedPhase()
		s.ChunkPos = 0
		s.DurationDeadline = time.Now().Add(time.Duration(s.RequestedSeconds) * time.Second)
		s.Phase = PhasePutSendChunk
		return true, nil

	case PhasePutSendChunk:
		return clientSendTimedChunk(s)

	case PhasePutReceiveTime:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		pc, perr := ParseLine(line)
		if perr != nil || pc.Name != "TIME" || len(pc.Args) != 1 {
			return false, rmbterr.WrapCommand(line, rmbterr.ErrProtocol)
		}
		ns, _ := ParseInt(pc.Args[0])
		s.PutNs = ns64(ns)
		s.PutBytes = s.BytesTransferred
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandReceive
		return true, nil

	case PhaseSignedResult:
		line, ok, err := ReadLine(s)
		if !ok || err != nil {
			return false, err
		}
		s.Envelope = line
		s.ResetMessageCursors()
		s.PendingWrite = cmdOK
		s.Phase = clientPhaseAckEnvelope
		return true, nil

	case clientPhaseAckEnvelope:
		ok, err := WriteMessage(s, s.PendingWrite)
		if !ok || err != nil {
			return false, err
		}
		s.ResetMessageCursors()
		s.Phase = PhaseAcceptCommandReceive
		return true, nil

	case PhaseQuit, PhaseClosed:
		s.Closed = true
		return true, nil

	default:
		return false, fmt.Errorf("protocol: client driver reached unhandled phase %s", s.Phase)
	}
}

// clientPhaseSendToken and clientPhaseAckEnvelope are client-only
// sub-phases, analogous to the server-only ones in server.go.
const (
	clientPhaseSendToken Phase = 2000 + iota
	clientPhaseAckEnvelope
)

func ns64(n int) int64 { return int64(n) }

func clientSendNextCommand(s *State, cfg ClientConfig) (bool, error) {
	if s.PendingWrite == "" && s.WritePos == 0 {
		name, args, noResult, quit := cfg.NextCommand(s)
		switch {
		case quit:
			s.PendingWrite = cmdQuit
		case name == "PING":
			s.PendingWrite = cmdPing
		case name == "GETCHUNKS":
			s.RequestedN, s.RequestedChunkSize = args[0], args[1]
			s.PendingWrite = GetChunksLine(args[0], args[1])
		case name == "GETTIME":
			s.RequestedSeconds, s.RequestedChunkSize = args[0], args[1]
			s.PendingWrite = GetTimeLine(args[0], args[1])
		case name == "PUT":
			s.RequestedChunkSize = args[0]
			if len(args) > 1 {
				s.RequestedSeconds = args[1]
			}
			s.PutNoResult = noResult
			s.PendingWrite = PutLine(args[0], noResult)
		case name == "SIGNEDRESULT":
			s.PendingWrite = cmdSignedResult
		default:
			s.PendingWrite = cmdQuit
		}
	}
	// Captured before WriteMessage, which clears PendingWrite once flushed.
	sent := s.PendingWrite
	ok, err := WriteMessage(s, s.PendingWrite)
	if !ok || err != nil {
		return false, err
	}
	s.ResetMessageCursors()

	switch {
	case sent == cmdQuit:
		s.Closed = true
	case sent == cmdPing:
		s.pingSentAt = time.Now()
		s.Phase = PhasePingSend
	case sent == cmdSignedResult:
		s.Phase = PhaseSignedResult
	default:
		pc, _ := ParseLine(sent)
		switch pc.Name {
		case "GETCHUNKS":
			s.ResizeChunkBuffer(s.RequestedChunkSize)
			s.ChunksRemaining = s.RequestedN
			s.ChunkPos = 0
			s.BeginTimedPhase()
			s.Phase = PhaseGetChunksReceiveChunk
		case "GETTIME":
			s.ResizeChunkBuffer(s.RequestedChunkSize)
			s.ChunkPos = 0
			s.BeginTimedPhase()
			s.Phase = PhaseGetTimeReceiveChunk
		case "PUT", "PUTNORESULT":
			s.ResizeChunkBuffer(s.RequestedChunkSize)
			s.Phase = PhasePutReceiveOk
		default:
			s.Phase = PhaseAcceptCommandReceive
		}
	}
	return true, nil
}

func clientReceivePreDownloadChunk(s *State) (bool, error) {
	done, err := ReadChunk(s, &s.ChunkPos)
	if err != nil || !done {
		return false, err
	}
	s.BytesTransferred += int64(len(s.ChunkBuffer))
	end, terr := Terminator(s)
	if terr != nil {
		return false, terr
	}
	s.ChunkPos = 0
	if !end {
		return true, nil // stay, read next chunk
	}
	s.ChunksRemaining = 0
	s.PendingWrite = cmdOK
	s.Phase = preDownloadAckPhase
	return true, nil
}

// preDownloadAckPhase sends the client's OK after the last GETCHUNKS
// chunk arrives, then waits for the server's TIME reply.
const preDownloadAckPhase Phase = 3000

func clientSendPreDownloadAck(s *State) (bool, error) {
	ok, err := WriteMessage(s, s.PendingWrite)
	if !ok || err != nil {
		return false, err
	}
	s.ResetMessageCursors()
	s.Phase = phaseAfterGetChunksOk
	return true, nil
}

// onPreDownloadTimeReceived applies §4.2's pre-download growth policy:
// while the server-reported duration stays under the warm-up target, grow
// total_chunks (up to MaxChunksBeforeSizeIncrease) or else chunk_size (up
// to MaxChunkSize), and the caller schedules another GETCHUNKS.
func onPreDownloadTimeReceived(s *State, ns int64) {
	if ns >= PreDownloadDurationNs {
		return
	}
	if s.RequestedN < MaxChunksBeforeSizeIncrease {
		s.RequestedN *= 2
		return
	}
	if s.RequestedChunkSize < MaxChunkSize {
		s.RequestedChunkSize *= 2
	}
}

func clientReceiveTimedChunk(s *State) (bool, error) {
	done, err := ReadChunk(s, &s.ChunkPos)
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
	if !end {
		return true, nil
	}
	s.PendingWrite = cmdOK
	s.Phase = getTimeAckPhase
	return true, nil
}

const getTimeAckPhase Phase = 3001

func clientSendGetTimeAck(s *State) (bool, error) {
	ok, err := WriteMessage(s, s.PendingWrite)
	if !ok || err != nil {
		return false, err
	}
	s.ResetMessageCursors()
	s.Phase = phaseAfterGetTimeOk
	return true, nil
}

func clientSendTimedChunk(s *State) (bool, error) {
	if s.ChunkPos == 0 {
		SetTerminator(s, !time.Now().Before(s.DurationDeadline))
	}
	done, err := WriteChunk(s, &s.ChunkPos)
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
