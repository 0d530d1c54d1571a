package protocol

import "testing"

func TestSignAndVerifyEnvelope(t *testing.T) {
	key, err := NewSigKey()
	if err != nil {
		t.Fatalf("NewSigKey: %v", err)
	}
	msg := EnvelopeMessage(1048576, 1000000000, 2097152, 2000000000, "198.51.100.7", 1700000000000000000)
	line := SignEnvelope(key, msg)

	if !VerifyEnvelope(key, line) {
		t.Fatal("expected envelope to verify with the signing key")
	}

	wrongKey, _ := NewSigKey()
	if VerifyEnvelope(wrongKey, line) {
		t.Fatal("expected envelope to fail verification with a different key")
	}
}

func TestEnvelopeMessageExactFormat(t *testing.T) {
	got := EnvelopeMessage(10, 20, 30, 40, "10.0.0.1", 50)
	want := "GETTIME:(10 20); PUTTIMERESULT:(30 40); CLIENT_IP:10.0.0.1; TIMESTAMP:50;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
