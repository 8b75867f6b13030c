package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature headers.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	signatureVersion = "v1"
	secretPrefix     = "whsec_"
)

// Verification errors.
var (
	ErrMissingHeaders   = errors.New("missing webhook headers")
	ErrInvalidTimestamp = errors.New("invalid webhook timestamp")
	ErrTimestampTooOld  = errors.New("webhook timestamp outside tolerance")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Verifier validates signed webhook envelopes. The signature is an
// HMAC-SHA256 over "id.timestamp.body" with the shared secret, base64
// encoded and carried as a space-separated list of "v1,<sig>" entries.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewVerifier creates a verifier for the shared secret. A "whsec_" prefix
// on the secret is stripped and the remainder base64-decoded, matching the
// common webhook secret format; anything else is used as raw bytes.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	key := []byte(secret)
	if trimmed, ok := strings.CutPrefix(secret, secretPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decode webhook secret: %w", err)
		}
		key = decoded
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret is empty")
	}

	return &Verifier{
		secret:    key,
		tolerance: tolerance,
	}, nil
}

// Sign computes the signature for an envelope. Used by tests and tooling.
func (v *Verifier) Sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the envelope's signature and timestamp. It must pass before
// any workflow is started.
func (v *Verifier) Verify(id, timestamp, signatures string, body []byte) error {
	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if v.tolerance > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > v.tolerance || age < -v.tolerance {
			return ErrTimestampTooOld
		}
	}

	expected := v.Sign(id, timestamp, body)
	_, expectedSig, _ := strings.Cut(expected, ",")

	for _, candidate := range strings.Fields(signatures) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}
