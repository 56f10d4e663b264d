// Package channelA implements providers.Adapter for the WhatsApp-style
// provider (Meta Graph API shape), generalizing the teacher's
// tools/whatsapp.go (SendWhatsAppText), tools/waba.go (WabaClient) and
// controllers/webhook.go (WebhookPayload) from a single hardcoded
// tenant to the per-channel Credentials the Outbound Send Pipeline
// resolves at dispatch time.
package channelA

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/penelope/inbox/providers"
	"github.com/penelope/inbox/tools"
)

const Name = "channel_a"

const defaultApiVersion = "v24.0"

type Adapter struct {
	HTTPClient *http.Client
}

func New() *Adapter {
	return &Adapter{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

func (a *Adapter) Name() string { return Name }

// webhookPayload mirrors the Graph API "entry[].changes[].value"
// webhook envelope, generalized from controllers/webhook.go's
// WebhookPayload to every message type spec.md §4.2 step 3 enumerates,
// plus status callbacks.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
					Image *struct {
						ID       string `json:"id"`
						MimeType string `json:"mime_type"`
					} `json:"image,omitempty"`
					Audio *struct {
						ID       string `json:"id"`
						MimeType string `json:"mime_type"`
					} `json:"audio,omitempty"`
					Video *struct {
						ID       string `json:"id"`
						MimeType string `json:"mime_type"`
					} `json:"video,omitempty"`
					Document *struct {
						ID       string `json:"id"`
						MimeType string `json:"mime_type"`
						Filename string `json:"filename"`
					} `json:"document,omitempty"`
					Location *struct {
						Latitude  float64 `json:"latitude"`
						Longitude float64 `json:"longitude"`
					} `json:"location,omitempty"`
				} `json:"messages"`
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Errors []struct {
						Code  int    `json:"code"`
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (a *Adapter) ParseWebhook(raw []byte) (providers.NormalizedPayload, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return providers.NormalizedPayload{}, fmt.Errorf("channel_a: invalid json: %w", err)
	}

	var out providers.NormalizedPayload
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if strings.TrimSpace(change.Field) != "" && change.Field != "messages" {
				continue
			}
			if out.AddressingID == "" {
				out.AddressingID = strings.TrimSpace(change.Value.Metadata.PhoneNumberID)
			}

			for _, m := range change.Value.Messages {
				inbound := providers.InboundMessage{
					ProviderMessageID: strings.TrimSpace(m.ID),
					FromAddressingID:  strings.TrimSpace(m.From),
					Type:              strings.ToLower(strings.TrimSpace(m.Type)),
					Timestamp:         parseUnixSeconds(m.Timestamp),
				}
				switch inbound.Type {
				case "text":
					if m.Text != nil {
						body := m.Text.Body
						inbound.Body = &body
					}
				case "image":
					if m.Image != nil {
						inbound.MediaRef = &m.Image.ID
						inbound.MediaType = &m.Image.MimeType
					}
				case "audio":
					if m.Audio != nil {
						inbound.MediaRef = &m.Audio.ID
						inbound.MediaType = &m.Audio.MimeType
					}
				case "video":
					if m.Video != nil {
						inbound.MediaRef = &m.Video.ID
						inbound.MediaType = &m.Video.MimeType
					}
				case "document":
					if m.Document != nil {
						inbound.MediaRef = &m.Document.ID
						inbound.MediaType = &m.Document.MimeType
					}
				case "location":
					if m.Location != nil {
						body := fmt.Sprintf("%f,%f", m.Location.Latitude, m.Location.Longitude)
						inbound.Body = &body
					}
				default:
					inbound.Type = "fallback"
				}
				out.Messages = append(out.Messages, inbound)
			}

			for _, s := range change.Value.Statuses {
				cb := providers.StatusCallback{
					ProviderMessageID: strings.TrimSpace(s.ID),
					Status:            mapChannelAStatus(s.Status),
				}
				if len(s.Errors) > 0 {
					code := fmt.Sprintf("%d", s.Errors[0].Code)
					msg := s.Errors[0].Title
					cb.ErrorCode = &code
					cb.ErrorMessage = &msg
				}
				out.Statuses = append(out.Statuses, cb)
			}
		}
	}
	return out, nil
}

func mapChannelAStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent", "delivered", "read", "failed":
		return strings.ToLower(raw)
	default:
		return ""
	}
}

func parseUnixSeconds(s string) time.Time {
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil || secs == 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

func (a *Adapter) Send(ctx context.Context, creds providers.Credentials, msg providers.OutboundMessage) (providers.SendResult, error) {
	apiVersion := strings.TrimSpace(creds.ApiVersion)
	if apiVersion == "" {
		apiVersion = defaultApiVersion
	}
	url := fmt.Sprintf("https://graph.facebook.com/%s/%s/messages", apiVersion, strings.TrimSpace(creds.PhoneNumberID))

	to, err := tools.NormalizeChannelAPhone(msg.ToAddressingID)
	if err != nil {
		return providers.SendResult{}, fmt.Errorf("channel_a: %w", err)
	}

	reqBody := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
	}
	switch {
	case msg.MediaRef != nil:
		mediaType := "document"
		if msg.MediaType != nil {
			mediaType = *msg.MediaType
		}
		reqBody["type"] = mediaType
		reqBody[mediaType] = map[string]any{"id": *msg.MediaRef}
	case msg.Body != nil:
		reqBody["type"] = "text"
		reqBody["text"] = map[string]any{"body": *msg.Body}
	default:
		return providers.SendResult{}, fmt.Errorf("channel_a: outbound message has neither body nor media")
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return providers.SendResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return providers.SendResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(creds.AccessToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return providers.SendResult{}, fmt.Errorf("channel_a: transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return providers.SendResult{}, fmt.Errorf("channel_a: api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return providers.SendResult{}, fmt.Errorf("channel_a: invalid response json: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return providers.SendResult{}, fmt.Errorf("channel_a: api response had no message id")
	}
	return providers.SendResult{ProviderMessageID: parsed.Messages[0].ID}, nil
}
