package channelB

import "testing"

func TestParseWebhookTextMessage(t *testing.T) {
	raw := []byte(`{
		"entry": [{
			"id": "page1",
			"messaging": [{
				"sender": {"id": "psid1"},
				"recipient": {"id": "page1"},
				"timestamp": 1700000000000,
				"message": {"mid": "mid.1", "text": "hi there"}
			}]
		}]
	}`)

	a := New()
	out, err := a.ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook: unexpected error: %v", err)
	}
	if out.AddressingID != "page1" {
		t.Fatalf("expected AddressingID page1, got %q", out.AddressingID)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}
	m := out.Messages[0]
	if m.ProviderMessageID != "mid.1" || m.FromAddressingID != "psid1" || m.Type != "text" || m.Body == nil || *m.Body != "hi there" {
		t.Fatalf("unexpected parsed message: %+v", m)
	}
}

func TestParseWebhookAttachment(t *testing.T) {
	raw := []byte(`{
		"entry": [{
			"id": "page1",
			"messaging": [{
				"sender": {"id": "psid1"},
				"message": {
					"mid": "mid.2",
					"attachments": [{"type": "image", "payload": {"url": "https://example.com/a.jpg"}}]
				}
			}]
		}]
	}`)

	a := New()
	out, err := a.ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook: unexpected error: %v", err)
	}
	m := out.Messages[0]
	if m.Type != "image" || m.MediaRef == nil || *m.MediaRef != "https://example.com/a.jpg" {
		t.Fatalf("unexpected parsed attachment message: %+v", m)
	}
}

func TestParseWebhookDeliveryReceipt(t *testing.T) {
	raw := []byte(`{
		"entry": [{
			"messaging": [{
				"sender": {"id": "psid1"},
				"delivery": {"mids": ["mid.1", "mid.2"]}
			}]
		}]
	}`)

	a := New()
	out, err := a.ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook: unexpected error: %v", err)
	}
	if len(out.Statuses) != 2 {
		t.Fatalf("expected 2 status callbacks, got %d", len(out.Statuses))
	}
	for _, cb := range out.Statuses {
		if cb.Status != "delivered" || cb.WatermarkOnly {
			t.Fatalf("unexpected delivery callback: %+v", cb)
		}
	}
}

func TestParseWebhookReadReceiptIsWatermarkOnly(t *testing.T) {
	raw := []byte(`{
		"entry": [{
			"messaging": [{
				"sender": {"id": "psid1"},
				"read": {"watermark": 1700000000000}
			}]
		}]
	}`)

	a := New()
	out, err := a.ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook: unexpected error: %v", err)
	}
	if len(out.Statuses) != 1 {
		t.Fatalf("expected 1 status callback, got %d", len(out.Statuses))
	}
	cb := out.Statuses[0]
	if !cb.WatermarkOnly || cb.ProviderMessageID != "psid1" {
		t.Fatalf("expected a watermark-only callback keyed by sender, got %+v", cb)
	}
}
