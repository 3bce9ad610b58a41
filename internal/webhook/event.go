// Package webhook verifies and parses identity-provider webhook deliveries.
//
// The provider signs every delivery with a shared secret. Verify checks the
// signature and timestamp and returns a typed Event; nothing in this package
// touches storage or the network — it is pure validation and parsing, so the
// HTTP handler can reject forged requests before any side effects happen.
package webhook

import (
	"encoding/json"
	"fmt"
)

// EventType is the discriminator for the delivery payload.
type EventType string

const (
	EventUserCreated EventType = "user.created"
	EventUserUpdated EventType = "user.updated"
	EventUserDeleted EventType = "user.deleted"
)

// Event is a verified, parsed webhook delivery.
//
// User is populated for the three user lifecycle types. Any other type is
// carried through with Handled() == false so the caller can log and ignore
// it rather than error — the provider adds event types over time and an
// unknown type must not break the endpoint.
type Event struct {
	// DeliveryID is the provider's unique ID for this delivery, taken from
	// the webhook-id header. Redelivered events reuse the same ID, which is
	// what the processed-delivery ledger deduplicates on.
	DeliveryID string
	Type       EventType
	User       *UserData
}

// Handled reports whether this event type is one the sync pipeline acts on.
func (e *Event) Handled() bool {
	switch e.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return true
	}
	return false
}

// UserData is the user snapshot embedded in user.* events.
// Field names follow the provider's payload; email addresses arrive as a
// list with a pointer to the primary one.
type UserData struct {
	ID               string            `json:"id"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Username         string            `json:"username"`
	ImageURL         string            `json:"image_url"`
	PrimaryEmailID   string            `json:"primary_email_address_id"`
	EmailAddresses   []EmailAddress    `json:"email_addresses"`
	ExternalAccounts []ExternalAccount `json:"external_accounts"`
}

// EmailAddress is one entry of the user's email list.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

// ExternalAccount records a linked social login (github, google, ...).
type ExternalAccount struct {
	Provider string `json:"provider"`
}

// PrimaryEmail returns the user's primary email address, or ("", false) when
// the payload has none. A missing primary-email pointer falls back to the
// first listed address.
func (u *UserData) PrimaryEmail() (EmailAddress, bool) {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailID {
			return e, true
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0], true
	}
	return EmailAddress{}, false
}

// envelope is the outer payload shape: a type tag plus a type-specific body.
type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// parseEvent decodes a verified payload into an Event.
func parseEvent(deliveryID string, body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("webhook: decoding payload: %w", err)
	}

	ev := &Event{DeliveryID: deliveryID, Type: env.Type}

	if ev.Handled() {
		var u UserData
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return nil, fmt.Errorf("webhook: decoding %s data: %w", env.Type, err)
		}
		if u.ID == "" {
			return nil, fmt.Errorf("webhook: %s event has no user id", env.Type)
		}
		ev.User = &u
	}

	return ev, nil
}
