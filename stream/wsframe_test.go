package stream

import "testing"

func TestEncodeDecodeWSFrameRoundTrip(t *testing.T) {
	payload := []byte("hello measurement chunk")
	encoded, err := encodeWSFrame(OpcodeBinary, payload, true)
	if err != nil {
		t.Fatalf("encodeWSFrame: %v", err)
	}

	frame, consumed, err := decodeWSFrame(encoded)
	if err != nil {
		t.Fatalf("decodeWSFrame: %v", err)
	}
	if frame == nil {
		t.Fatal("expected a complete frame")
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d, want %d", consumed, len(encoded))
	}
	if string(frame.payload) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", frame.payload, payload)
	}
	if frame.opcode != OpcodeBinary {
		t.Fatalf("opcode mismatch: got %x", frame.opcode)
	}
}

func TestDecodeWSFrameIncomplete(t *testing.T) {
	payload := make([]byte, 200)
	encoded, err := encodeWSFrame(OpcodeBinary, payload, false)
	if err != nil {
		t.Fatalf("encodeWSFrame: %v", err)
	}
	frame, consumed, err := decodeWSFrame(encoded[:len(encoded)-50])
	if err != nil {
		t.Fatalf("unexpected error on partial frame: %v", err)
	}
	if frame != nil || consumed != 0 {
		t.Fatalf("expected incomplete decode, got frame=%v consumed=%d", frame, consumed)
	}
}

func TestDecodeWSFrameRejectsOversizedPayload(t *testing.T) {
	hdr := []byte{0x82, 127, 0, 0, 0, 0, 0, 0, 0, 0}
	// length field claims far more than MaxFramePayload
	hdr[2] = 0xFF
	if _, _, err := decodeWSFrame(hdr); err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}

func TestServerFramesAreUnmasked(t *testing.T) {
	encoded, err := encodeWSFrame(OpcodeText, []byte("ok"), false)
	if err != nil {
		t.Fatalf("encodeWSFrame: %v", err)
	}
	if encoded[1]&maskBit != 0 {
		t.Fatal("server-to-client frame must not be masked")
	}
}

func TestClientFramesAreMasked(t *testing.T) {
	encoded, err := encodeWSFrame(OpcodeText, []byte("ok"), true)
	if err != nil {
		t.Fatalf("encodeWSFrame: %v", err)
	}
	if encoded[1]&maskBit == 0 {
		t.Fatal("client-to-server frame must be masked")
	}
}
