package protocol

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// NewSigKey generates a fresh 32-byte HMAC secret, lazily on first need
// per §9's envelope key lifecycle: generated on first need, attached to
// the state, discarded when the connection closes.
func NewSigKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// EnvelopeMessage formats the unsigned envelope body, exact per §6:
// "GETTIME:(<bytes> <ns>); PUTTIMERESULT:(<bytes> <ns>); CLIENT_IP:<addr>; TIMESTAMP:<ns>;"
func EnvelopeMessage(getTimeBytes, getTimeNs, putBytes, putNs int64, clientIP string, timestampNs int64) string {
	return fmt.Sprintf(
		"GETTIME:(%d %d); PUTTIMERESULT:(%d %d); CLIENT_IP:%s; TIMESTAMP:%d;",
		getTimeBytes, getTimeNs, putBytes, putNs, clientIP, timestampNs,
	)
}

// SignEnvelope appends ":<base64(HMAC-SHA256(key, message))>\n" to
// message, producing the full wire line the server sends for
// SIGNEDRESULT.
func SignEnvelope(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return message + ":" + sig + "\n"
}

// VerifyEnvelope splits a signed envelope line on its final ":<sig>" and
// checks the HMAC, per §8's quantified invariant. line must include its
// trailing newline as produced by SignEnvelope.
func VerifyEnvelope(key []byte, line string) bool {
	trimmed := line
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	idx := lastColon(trimmed)
	if idx < 0 {
		return false
	}
	message, sigB64 := trimmed[:idx], trimmed[idx+1:]
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hmac.Equal(sig, mac.Sum(nil))
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// NowNs returns the current wall-clock time in nanoseconds since epoch,
// for TIMESTAMP fields.
func NowNs() int64 { return time.Now().UnixNano() }
