package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rulescraft/cursorrulescraft/internal/webhook"
)

// base64 of "test-signing-secret-12345".
const testSecret = "whsec_dGVzdC1zaWduaW5nLXNlY3JldC0xMjM0NQ=="

// spyProcessor records whether processing ran and can be told to fail.
type spyProcessor struct {
	events []*webhook.Event
	err    error
}

func (s *spyProcessor) ProcessEvent(ctx context.Context, ev *webhook.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func signDelivery(t *testing.T, id string, body []byte) http.Header {
	t.Helper()

	secret, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(testSecret, "whsec_"))
	if err != nil {
		t.Fatal(err)
	}

	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.%s.%s", id, ts, body)

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", ts)
	h.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func userCreatedBody(t *testing.T, userID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type": "user.created",
		"data": map[string]any{
			"id":                       userID,
			"first_name":               "Ada",
			"primary_email_address_id": "em_1",
			"email_addresses": []map[string]any{
				{"id": "em_1", "email_address": "ada@x.com"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func newWebhookHandler(t *testing.T, processor *spyProcessor) *WebhookHandler {
	t.Helper()
	verifier, err := webhook.NewVerifier(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebhookHandler(verifier, processor, logger)
}

func postDelivery(h *WebhookHandler, headers http.Header, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks", strings.NewReader(string(body)))
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.HandleDelivery(rec, req)
	return rec
}

func TestHandleDelivery_ValidEventProcessedAndAcked(t *testing.T) {
	processor := &spyProcessor{}
	h := newWebhookHandler(t, processor)

	body := userCreatedBody(t, "user_1")
	rec := postDelivery(h, signDelivery(t, "msg_1", body), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(processor.events) != 1 {
		t.Fatalf("processed events = %d, want 1", len(processor.events))
	}
	ev := processor.events[0]
	if ev.DeliveryID != "msg_1" || ev.Type != webhook.EventUserCreated {
		t.Errorf("event = %+v, want msg_1/user.created", ev)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("body = %s, want success ack", rec.Body.String())
	}
}

func TestHandleDelivery_AcksDespiteProcessingFailure(t *testing.T) {
	// The delivery is authenticated; a storage failure during processing
	// must not turn into a non-2xx that would trigger endless redelivery.
	processor := &spyProcessor{err: errors.New("database is on fire")}
	h := newWebhookHandler(t, processor)

	body := userCreatedBody(t, "user_1")
	rec := postDelivery(h, signDelivery(t, "msg_1", body), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when processing fails", rec.Code)
	}
}

func TestHandleDelivery_ForgedSignatureHasNoSideEffects(t *testing.T) {
	processor := &spyProcessor{}
	h := newWebhookHandler(t, processor)

	body := userCreatedBody(t, "user_1")
	headers := signDelivery(t, "msg_1", body)

	// Attacker tampers with the payload after signing.
	tampered := userCreatedBody(t, "attacker_1")
	rec := postDelivery(h, headers, tampered)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(processor.events) != 0 {
		t.Fatalf("forged delivery reached the processor: %+v", processor.events)
	}
}

func TestHandleDelivery_MissingHeadersRejected(t *testing.T) {
	processor := &spyProcessor{}
	h := newWebhookHandler(t, processor)

	rec := postDelivery(h, http.Header{}, userCreatedBody(t, "user_1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(processor.events) != 0 {
		t.Fatal("unsigned delivery reached the processor")
	}
}
