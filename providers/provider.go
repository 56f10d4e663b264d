// Package providers defines the per-provider send/receive translation
// spec.md §4 calls the Provider Adapter: one interface, two concrete
// implementations (channel-A, WhatsApp-style; channel-B,
// Messenger-style), normalizing heterogeneous provider payloads to one
// internal message shape. Grounded on the teacher's
// tools/whatsapp.go / tools/waba.go / tools/whatsapp_registration.go
// thin-client shape: a small struct carrying per-tenant credentials
// with a `.post()`/`.Send()` method, rather than a shared client with
// credentials threaded through every call.
package providers

import (
	"context"
	"time"
)

// InboundMessage is the normalized shape of one inbound message,
// already discriminated by Type per spec.md §9's "tagged variant, not
// an open map" note.
type InboundMessage struct {
	ProviderMessageID string
	FromAddressingID   string // the contact's provider-side address (phone / PSID)
	Type               string // text | image | audio | video | document | location | fallback
	Body               *string
	MediaRef           *string
	MediaType          *string
	Timestamp          time.Time
	RawJSON            []byte
}

// StatusCallback is a normalized delivery-status update for a message
// we previously sent.
type StatusCallback struct {
	ProviderMessageID string
	Status            string // sent | delivered | read | failed
	ErrorCode         *string
	ErrorMessage      *string
	WatermarkOnly      bool // channel-B read receipts are watermark-based, see spec.md §9
}

// NormalizedPayload is the result of parsing one webhook delivery. It
// carries the addressing id (phoneNumberId / pageId) found in the
// payload. Nothing reads AddressingID: the owning Channel comes from
// the channel id in the webhook path, and a payload whose addressing
// id differs from that channel's configured id is processed anyway.
type NormalizedPayload struct {
	AddressingID string
	Messages     []InboundMessage
	Statuses     []StatusCallback
}

// OutboundMessage is what the Outbound Send Pipeline hands to an
// Adapter once a Channel, Contact and Message have been loaded.
type OutboundMessage struct {
	ToAddressingID string
	Body           *string
	MediaRef       *string
	MediaType      *string
}

// SendResult is what a successful provider send returns.
type SendResult struct {
	ProviderMessageID string
}

// Credentials is the decoded per-channel config an Adapter needs to
// call out. Callers build this from models.ChannelConfig.
type Credentials struct {
	AccessToken   string
	ApiVersion    string
	PhoneNumberID string // channel-A
	WabaID        string // channel-A
	PageID        string // channel-B
	PageToken     string // channel-B
}

// Adapter is the one interface both provider variants implement.
type Adapter interface {
	Name() string
	ParseWebhook(raw []byte) (NormalizedPayload, error)
	Send(ctx context.Context, creds Credentials, msg OutboundMessage) (SendResult, error)
}
