package protocol

import (
	"errors"
	"io"

	"github.com/rmbt-go/rmbt/rmbterr"
)

// WriteMessage drives s.PendingWrite (set by the caller on phase entry) to
// completion across possibly several non-blocking calls. Returns
// (true, nil) once fully flushed, (false, nil) on WouldBlock (interest
// should stay writable and the caller returns control to the poller), or
// (false, err) on a fatal transport error.
func WriteMessage(s *State, msg string) (bool, error) {
	if s.PendingWrite == "" && s.WritePos == 0 {
		s.PendingWrite = msg
	}
	for s.WritePos < len(s.PendingWrite) {
		n, err := s.Stream.Write([]byte(s.PendingWrite[s.WritePos:]))
		if err != nil {
			if rmbterr.IsWouldBlock(err) {
				return false, nil
			}
			return false, err
		}
		s.WritePos += n
	}
	s.PendingWrite = ""
	s.WritePos = 0
	return true, nil
}

// ReadLine accumulates bytes into ReadBuffer until a '\n' terminator is
// found, per the control-line framing in §4.2/§6. Returns (line, true,
// nil) once a full line is available, (_, false, nil) on WouldBlock, or
// (_, false, err) on a fatal transport error or an overlong line (control
// lines never exceed the 8 KiB scratch buffer, per §3).
func ReadLine(s *State) (string, bool, error) {
	for {
		for i := 0; i < s.ReadPos; i++ {
			if s.ReadBuffer[i] == '\n' {
				line := string(s.ReadBuffer[:i+1])
				remaining := s.ReadPos - (i + 1)
				copy(s.ReadBuffer[:remaining], s.ReadBuffer[i+1:s.ReadPos])
				s.ReadPos = remaining
				return line, true, nil
			}
		}
		if s.ReadPos >= len(s.ReadBuffer) {
			return "", false, errors.New("protocol: control line exceeds buffer without terminator")
		}
		n, err := s.Stream.Read(s.ReadBuffer[s.ReadPos:])
		if err != nil {
			if rmbterr.IsWouldBlock(err) {
				return "", false, nil
			}
			return "", false, err
		}
		if n == 0 {
			return "", false, io.EOF
		}
		s.ReadPos += n
	}
}

// Progress through one chunk_size-length payload across non-blocking calls
// is not kept in ReadPos, which control-line framing owns; chunk phases
// pass their own cursor (State.ChunkPos) to ReadChunk/WriteChunk below.

// ReadChunk reads exactly len(s.ChunkBuffer) bytes into it, returning
// (true, nil) once complete. The terminator byte (last byte of the
// buffer) is left in place for the caller to inspect; it is not treated
// specially as it were a non-terminating "mistake", it's a given
// application byte.
func ReadChunk(s *State, pos *int) (bool, error) {
	for *pos < len(s.ChunkBuffer) {
		n, err := s.Stream.Read(s.ChunkBuffer[*pos:])
		if err != nil {
			if rmbterr.IsWouldBlock(err) {
				return false, nil
			}
			return false, err
		}
		if n == 0 {
			return false, io.EOF
		}
		*pos += n
	}
	return true, nil
}

// WriteChunk writes len(s.ChunkBuffer) bytes from it, returning (true,
// nil) once complete.
func WriteChunk(s *State, pos *int) (bool, error) {
	for *pos < len(s.ChunkBuffer) {
		n, err := s.Stream.Write(s.ChunkBuffer[*pos:])
		if err != nil {
			if rmbterr.IsWouldBlock(err) {
				return false, nil
			}
			return false, err
		}
		*pos += n
	}
	return true, nil
}

// Terminator byte values, per §4.2's chunk framing.
const (
	TerminatorContinue byte = 0x00
	TerminatorEnd      byte = 0xFF
)

// SetTerminator stamps the last byte of the chunk buffer.
func SetTerminator(s *State, end bool) {
	if end {
		s.ChunkBuffer[len(s.ChunkBuffer)-1] = TerminatorEnd
	} else {
		s.ChunkBuffer[len(s.ChunkBuffer)-1] = TerminatorContinue
	}
}

// Terminator reads back the last byte of the chunk buffer, validating it
// is one of the two legal values per §8's quantified invariant.
func Terminator(s *State) (end bool, err error) {
	b := s.ChunkBuffer[len(s.ChunkBuffer)-1]
	switch b {
	case TerminatorContinue:
		return false, nil
	case TerminatorEnd:
		return true, nil
	default:
		return false, rmbterr.Wrap(rmbterr.KindProtocol, rmbterr.ErrFraming)
	}
}
