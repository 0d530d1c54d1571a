package rmbterr

import (
	"errors"
	"testing"
)

func TestWrapUnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindFatal, cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected Wrap to preserve the cause for errors.Is")
	}
	if err.Kind != KindFatal {
		t.Fatalf("expected KindFatal, got %v", err.Kind)
	}
}

func TestWrapCommandEchoesCommand(t *testing.T) {
	err := WrapCommand("GETCHUNKS", ErrProtocol)
	if err.Command != "GETCHUNKS" {
		t.Fatalf("expected command echoed, got %q", err.Command)
	}
	if err.Kind != KindProtocol {
		t.Fatalf("expected KindProtocol, got %v", err.Kind)
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected a non-empty error string")
	}
}

func TestIsWouldBlock(t *testing.T) {
	if !IsWouldBlock(ErrWouldBlock) {
		t.Fatal("expected ErrWouldBlock to report IsWouldBlock")
	}
	wrapped := Wrap(KindTransient, ErrWouldBlock)
	if !IsWouldBlock(wrapped) {
		t.Fatal("expected wrapped ErrWouldBlock to report IsWouldBlock")
	}
	if IsWouldBlock(ErrClosed) {
		t.Fatal("did not expect ErrClosed to report IsWouldBlock")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Wrap(KindTransient, errors.New("x"))) {
		t.Fatal("expected KindTransient error to report IsTransient")
	}
	if IsTransient(Wrap(KindFatal, errors.New("x"))) {
		t.Fatal("did not expect KindFatal error to report IsTransient")
	}
	if !IsTransient(ErrWouldBlock) {
		t.Fatal("expected bare ErrWouldBlock to report IsTransient")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindTransient:     "transient",
		KindFatal:         "fatal",
		KindProtocol:      "protocol",
		KindConfiguration: "configuration",
		KindReporting:     "reporting",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
