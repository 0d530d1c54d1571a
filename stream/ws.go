// File: stream/ws.go
//
// WebSocket ByteStream variant. Wraps an underlying plain or TLS Stream,
// transparently wrapping/unwrapping RFC 6455 frames: Read returns the
// payload of exactly one text or binary frame per call, silently consuming
// ping/pong/close control frames in between; Write wraps one payload in one
// frame, picking text vs binary per the size heuristic in §4.1 — binary for
// payloads smaller than 2 bytes or larger than chunkThreshold-3 bytes, text
// otherwise, because some historical intermediate proxies handle the
// control-message-sized range better as text.
//
// A WS frame's length field is fixed once its header is written, so unlike
// TCP/TLS a partial write can't be resumed by re-presenting a shorter
// slice: this wrapper buffers the fully-encoded frame internally and the
// caller must re-present the identical src on a WouldBlock retry, exactly
// as the TLS wrapper's sentinel note in §9 describes for its own buffered
// outbound bytes.
package stream

import (
	"io"

	"github.com/rmbt-go/rmbt/reactor"
	"github.com/rmbt-go/rmbt/rmbterr"
)

type wsStream struct {
	under    Stream
	isClient bool

	buf     []byte // accumulated, not-yet-parsed bytes read from under
	readTmp []byte

	// pendingIn holds a decoded frame's payload bytes that didn't fit in
	// the caller's dst on the call that decoded them, so they must be
	// delivered before any further frame is decoded.
	pendingIn []byte

	pendingOut  []byte // fully-encoded frame awaiting flush
	pendingOff  int
	pendingLen  int // logical payload length of the pending frame
	closeSent   bool

	chunkThreshold int // DefaultChunkSize unless changed via SetChunkThreshold
}

func newWSStream(under Stream, isClient bool) *wsStream {
	return &wsStream{
		under:          under,
		isClient:       isClient,
		readTmp:        make([]byte, 64*1024),
		chunkThreshold: DefaultChunkSize,
	}
}

// SetChunkThreshold updates the text/binary opcode threshold to match the
// connection's currently negotiated chunk size.
func (w *wsStream) SetChunkThreshold(n int) { w.chunkThreshold = n }

func (w *wsStream) Read(dst []byte) (int, error) {
	if len(w.pendingIn) > 0 {
		n := copy(dst, w.pendingIn)
		w.pendingIn = w.pendingIn[n:]
		return n, nil
	}
	for {
		frame, consumed, err := decodeWSFrame(w.buf)
		if err != nil {
			return 0, rmbterr.Wrap(rmbterr.KindFatal, err)
		}
		if frame != nil {
			w.buf = w.buf[consumed:]
			switch frame.opcode {
			case OpcodePing:
				w.sendControlBestEffort(OpcodePong, frame.payload)
				continue
			case OpcodePong:
				continue
			case OpcodeClose:
				if !w.closeSent {
					w.sendControlBestEffort(OpcodeClose, frame.payload)
					w.closeSent = true
				}
				return 0, io.EOF
			case OpcodeText, OpcodeBinary, OpcodeContinuation:
				n := copy(dst, frame.payload)
				if n < len(frame.payload) {
					w.pendingIn = frame.payload[n:]
				}
				return n, nil
			default:
				continue // unknown control opcode, ignore
			}
		}

		// Need more bytes to complete the frame above.
		n, err := w.under.Read(w.readTmp)
		if err != nil {
			return 0, err
		}
		w.buf = append(w.buf, w.readTmp[:n]...)
	}
}

// Write encodes src as one frame (on first call) and drains it over
// possibly several calls. It returns either (len(src), nil) once the whole
// frame is flushed, or (0, rmbterr.ErrWouldBlock) — in the latter case the
// caller must call Write again with the same src.
func (w *wsStream) Write(src []byte) (int, error) {
	if w.pendingOut == nil {
		opcode := OpcodeText
		if len(src) < 2 || len(src) > w.chunkThreshold-3 {
			opcode = OpcodeBinary
		}
		encoded, err := encodeWSFrame(opcode, src, w.isClient)
		if err != nil {
			return 0, err
		}
		w.pendingOut = encoded
		w.pendingOff = 0
		w.pendingLen = len(src)
	}

	n, err := w.under.Write(w.pendingOut[w.pendingOff:])
	w.pendingOff += n
	if err != nil {
		if rmbterr.IsWouldBlock(err) {
			return 0, rmbterr.ErrWouldBlock
		}
		w.pendingOut = nil
		return 0, err
	}
	if w.pendingOff < len(w.pendingOut) {
		return 0, rmbterr.ErrWouldBlock
	}

	logical := w.pendingLen
	w.pendingOut = nil
	return logical, nil
}

// sendControlBestEffort attempts a single non-blocking write of a control
// frame and drops it silently on WouldBlock: pong/close replies are not
// part of the measured protocol and are not worth the bookkeeping a
// resumable write would need.
func (w *wsStream) sendControlBestEffort(opcode byte, payload []byte) {
	encoded, err := encodeWSFrame(opcode, payload, w.isClient)
	if err != nil {
		return
	}
	w.under.Write(encoded)
}

func (w *wsStream) Flush() error { return w.under.Flush() }

func (w *wsStream) Close() error {
	if !w.closeSent {
		w.sendControlBestEffort(OpcodeClose, nil)
		w.closeSent = true
	}
	return w.under.Close()
}

func (w *wsStream) Register(r reactor.Reactor, token uintptr, interests reactor.Interest) error {
	return w.under.Register(r, token, interests)
}

func (w *wsStream) Reregister(r reactor.Reactor, token uintptr, interests reactor.Interest) error {
	return w.under.Reregister(r, token, interests)
}

func (w *wsStream) RawFD() (uintptr, bool) { return w.under.RawFD() }
