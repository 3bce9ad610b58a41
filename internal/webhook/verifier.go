package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider-specific signature headers.
const (
	headerID        = "svix-id"
	headerTimestamp = "svix-timestamp"
	headerSignature = "svix-signature"
)

// tolerance is the accepted clock skew on the delivery timestamp. Anything
// older (replay) or newer (broken clock) is rejected.
const tolerance = 5 * time.Minute

// ErrInvalidSignature covers every trust failure: missing headers, stale
// timestamp, tampered body. Callers must not distinguish between them in the
// response — that would leak which check failed to an attacker.
var ErrInvalidSignature = errors.New("webhook: invalid signature")

// Verifier validates delivery signatures against the shared signing secret.
type Verifier struct {
	secret []byte
	// now is stubbed in tests to exercise the timestamp window.
	now func() time.Time
}

// NewVerifier builds a Verifier from the provider-issued signing secret.
// The secret is base64 after an optional "whsec_" prefix.
func NewVerifier(secret string) (*Verifier, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook: decoding signing secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook: signing secret is empty")
	}
	return &Verifier{secret: key, now: time.Now}, nil
}

// Verify checks the delivery's signature headers against body and, on
// success, parses the payload into a typed Event.
//
// The signed content is "{id}.{timestamp}.{body}", MACed with HMAC-SHA256.
// The signature header holds space-separated "v1,<base64>" entries (the
// provider sends several during secret rotation); the delivery is authentic
// if any entry matches. Comparison is constant-time.
func (v *Verifier) Verify(headers http.Header, body []byte) (*Event, error) {
	id := headers.Get(headerID)
	ts := headers.Get(headerTimestamp)
	sigHeader := headers.Get(headerSignature)
	if id == "" || ts == "" || sigHeader == "" {
		return nil, ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age > tolerance || age < -tolerance {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s.", id, ts)
	mac.Write(body)
	want := mac.Sum(nil)

	for _, entry := range strings.Fields(sigHeader) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, want) {
			return parseEvent(id, body)
		}
	}

	return nil, ErrInvalidSignature
}
