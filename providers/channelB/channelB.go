// Package channelB implements providers.Adapter for the Messenger-style
// provider (Meta Send/Webhook API for Pages), the second concrete
// variant behind providers.Adapter. Structured the same way as
// providers/channelA: credentials-carrying struct, Bearer-less
// page-token-as-query-param auth (matching the Send API's own
// convention), per-call context deadline.
package channelB

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/penelope/inbox/providers"
)

const Name = "channel_b"

type Adapter struct {
	HTTPClient *http.Client
}

func New() *Adapter {
	return &Adapter{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

func (a *Adapter) Name() string { return Name }

// webhookPayload mirrors the Messenger Platform webhook envelope:
// "entry[].messaging[]", each carrying either a "message" or a
// "delivery"/"read" receipt, generalized the same way
// providers/channelA treats its "entry[].changes[]" shape.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Timestamp int64 `json:"timestamp"`
			Message   *struct {
				MID        string `json:"mid"`
				Text       string `json:"text,omitempty"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments,omitempty"`
			} `json:"message,omitempty"`
			Delivery *struct {
				MIDs []string `json:"mids"`
			} `json:"delivery,omitempty"`
			Read *struct {
				Watermark int64 `json:"watermark"`
			} `json:"read,omitempty"`
		} `json:"messaging"`
	} `json:"entry"`
}

func (a *Adapter) ParseWebhook(raw []byte) (providers.NormalizedPayload, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return providers.NormalizedPayload{}, fmt.Errorf("channel_b: invalid json: %w", err)
	}

	var out providers.NormalizedPayload
	for _, entry := range payload.Entry {
		if out.AddressingID == "" {
			out.AddressingID = strings.TrimSpace(entry.ID)
		}
		for _, m := range entry.Messaging {
			ts := time.Now().UTC()
			if m.Timestamp > 0 {
				ts = time.UnixMilli(m.Timestamp).UTC()
			}

			switch {
			case m.Message != nil:
				inbound := providers.InboundMessage{
					ProviderMessageID: strings.TrimSpace(m.Message.MID),
					FromAddressingID:  strings.TrimSpace(m.Sender.ID),
					Timestamp:         ts,
				}
				if len(m.Message.Attachments) > 0 {
					att := m.Message.Attachments[0]
					url := att.Payload.URL
					mediaType := att.Type
					inbound.Type = mediaType
					inbound.MediaRef = &url
					inbound.MediaType = &mediaType
				} else {
					inbound.Type = "text"
					body := m.Message.Text
					inbound.Body = &body
				}
				out.Messages = append(out.Messages, inbound)

			case m.Delivery != nil:
				for _, mid := range m.Delivery.MIDs {
					out.Statuses = append(out.Statuses, providers.StatusCallback{
						ProviderMessageID: strings.TrimSpace(mid),
						Status:            "delivered",
					})
				}

			case m.Read != nil:
				// Messenger read receipts are a watermark over the
				// conversation, not a per-message id. Surfaced as a
				// single watermark-only callback; webhook/processor.go
				// records it without regressing any message's status.
				out.Statuses = append(out.Statuses, providers.StatusCallback{
					ProviderMessageID: strings.TrimSpace(m.Sender.ID),
					Status:            "read",
					WatermarkOnly:     true,
				})
			}
		}
	}
	return out, nil
}

func (a *Adapter) Send(ctx context.Context, creds providers.Credentials, msg providers.OutboundMessage) (providers.SendResult, error) {
	reqBody := map[string]any{
		"recipient": map[string]string{"id": msg.ToAddressingID},
	}
	switch {
	case msg.MediaRef != nil:
		mediaType := "file"
		if msg.MediaType != nil {
			mediaType = *msg.MediaType
		}
		reqBody["message"] = map[string]any{
			"attachment": map[string]any{
				"type":    mediaType,
				"payload": map[string]any{"url": *msg.MediaRef, "is_reusable": true},
			},
		}
	case msg.Body != nil:
		reqBody["message"] = map[string]any{"text": *msg.Body}
	default:
		return providers.SendResult{}, fmt.Errorf("channel_b: outbound message has neither body nor media")
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return providers.SendResult{}, err
	}

	endpoint := "https://graph.facebook.com/v24.0/me/messages?" + url.Values{
		"access_token": {strings.TrimSpace(creds.PageToken)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return providers.SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return providers.SendResult{}, fmt.Errorf("channel_b: transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return providers.SendResult{}, fmt.Errorf("channel_b: api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return providers.SendResult{}, fmt.Errorf("channel_b: invalid response json: %w", err)
	}
	if parsed.MessageID == "" {
		return providers.SendResult{}, fmt.Errorf("channel_b: api response had no message id")
	}
	return providers.SendResult{ProviderMessageID: parsed.MessageID}, nil
}
