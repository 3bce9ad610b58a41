package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testSecret = "whsec_dGVzdC1zaWduaW5nLXNlY3JldC0xMjM0NQ==" // base64("test-signing-secret-12345")

// signedHeaders builds a valid header set for body, signed with testSecret.
func signedHeaders(t *testing.T, id string, ts time.Time, body []byte) http.Header {
	t.Helper()

	key, err := base64.StdEncoding.DecodeString("dGVzdC1zaWduaW5nLXNlY3JldC0xMjM0NQ==")
	if err != nil {
		t.Fatalf("decoding test secret: %v", err)
	}

	tsStr := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, tsStr)
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", tsStr)
	h.Set("svix-signature", "v1,"+sig)
	return h
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerify_ValidUserCreated(t *testing.T) {
	v := newTestVerifier(t)

	body := []byte(`{
		"type": "user.created",
		"data": {
			"id": "user_abc",
			"first_name": "Ada",
			"last_name": "Lovelace",
			"primary_email_address_id": "em_1",
			"email_addresses": [
				{"id": "em_1", "email_address": "ada@x.com", "verification": {"status": "verified"}}
			]
		}
	}`)

	ev, err := v.Verify(signedHeaders(t, "msg_1", time.Now(), body), body)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ev.Type != EventUserCreated {
		t.Errorf("Type = %q, want %q", ev.Type, EventUserCreated)
	}
	if ev.DeliveryID != "msg_1" {
		t.Errorf("DeliveryID = %q, want %q", ev.DeliveryID, "msg_1")
	}
	if !ev.Handled() {
		t.Error("Handled() = false for user.created")
	}
	if ev.User == nil || ev.User.ID != "user_abc" {
		t.Fatalf("User = %+v, want ID user_abc", ev.User)
	}
	email, ok := ev.User.PrimaryEmail()
	if !ok || email.EmailAddress != "ada@x.com" {
		t.Errorf("PrimaryEmail() = %+v, %v; want ada@x.com, true", email, ok)
	}
}

func TestVerify_UnhandledEventType(t *testing.T) {
	v := newTestVerifier(t)

	body := []byte(`{"type": "session.created", "data": {"id": "sess_1"}}`)
	ev, err := v.Verify(signedHeaders(t, "msg_2", time.Now(), body), body)
	if err != nil {
		t.Fatalf("Verify() error = %v, unknown types must verify fine", err)
	}
	if ev.Handled() {
		t.Error("Handled() = true for session.created, want false")
	}
	if ev.User != nil {
		t.Errorf("User = %+v, want nil for unhandled event", ev.User)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := newTestVerifier(t)
	body := []byte(`{"type": "user.deleted", "data": {"id": "user_abc"}}`)

	tests := []struct {
		name   string
		mutate func(h http.Header) (http.Header, []byte)
	}{
		{
			name: "tampered body",
			mutate: func(h http.Header) (http.Header, []byte) {
				return h, []byte(`{"type": "user.deleted", "data": {"id": "user_EVIL"}}`)
			},
		},
		{
			name: "missing signature header",
			mutate: func(h http.Header) (http.Header, []byte) {
				h.Del("svix-signature")
				return h, body
			},
		},
		{
			name: "missing id header",
			mutate: func(h http.Header) (http.Header, []byte) {
				h.Del("svix-id")
				return h, body
			},
		},
		{
			name: "garbage signature",
			mutate: func(h http.Header) (http.Header, []byte) {
				h.Set("svix-signature", "v1,not-base64!!!")
				return h, body
			},
		},
		{
			name: "unknown signature version only",
			mutate: func(h http.Header) (http.Header, []byte) {
				h.Set("svix-signature", "v2,"+base64.StdEncoding.EncodeToString([]byte("nope")))
				return h, body
			},
		},
		{
			name: "non-numeric timestamp",
			mutate: func(h http.Header) (http.Header, []byte) {
				h.Set("svix-timestamp", "yesterday")
				return h, body
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, b := tt.mutate(signedHeaders(t, "msg_3", time.Now(), body))
			if _, err := v.Verify(h, b); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerify_TimestampWindow(t *testing.T) {
	v := newTestVerifier(t)
	body := []byte(`{"type": "user.updated", "data": {"id": "user_abc"}}`)

	// Freeze the verifier's clock so the window edges are deterministic.
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{"current", now, false},
		{"4 minutes old", now.Add(-4 * time.Minute), false},
		{"6 minutes old (replay)", now.Add(-6 * time.Minute), true},
		{"6 minutes in the future", now.Add(6 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(signedHeaders(t, "msg_4", tt.at, body), body)
			if tt.wantErr && !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Verify() error = %v, want nil", err)
			}
		})
	}
}

func TestVerify_SecondSignatureEntryMatches(t *testing.T) {
	v := newTestVerifier(t)
	body := []byte(`{"type": "user.deleted", "data": {"id": "user_abc"}}`)
	h := signedHeaders(t, "msg_5", time.Now(), body)

	// During secret rotation the provider sends multiple entries; a stale one
	// first must not mask the valid one.
	valid := h.Get("svix-signature")
	h.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString([]byte("stale-key-sig"))+" "+valid)

	if _, err := v.Verify(h, body); err != nil {
		t.Fatalf("Verify() error = %v, want nil when any entry matches", err)
	}
}

func TestNewVerifier_BadSecret(t *testing.T) {
	if _, err := NewVerifier("whsec_***not-base64***"); err == nil {
		t.Error("NewVerifier accepted a non-base64 secret")
	}
	if _, err := NewVerifier(""); err == nil {
		t.Error("NewVerifier accepted an empty secret")
	}
}
