package channelA

import "testing"

func TestParseWebhookTextMessage(t *testing.T) {
	raw := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "1000"},
					"messages": [{
						"from": "5511999990000",
						"id": "wamid.1",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": "hello"}
					}]
				}
			}]
		}]
	}`)

	a := New()
	out, err := a.ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook: unexpected error: %v", err)
	}
	if out.AddressingID != "1000" {
		t.Fatalf("expected AddressingID 1000, got %q", out.AddressingID)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}
	m := out.Messages[0]
	if m.ProviderMessageID != "wamid.1" || m.Type != "text" || m.Body == nil || *m.Body != "hello" {
		t.Fatalf("unexpected parsed message: %+v", m)
	}
}

func TestParseWebhookStatusCallbackWithError(t *testing.T) {
	raw := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"statuses": [{
						"id": "wamid.2",
						"status": "failed",
						"errors": [{"code": 131026, "title": "undeliverable"}]
					}]
				}
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
	if cb.ProviderMessageID != "wamid.2" || cb.Status != "failed" {
		t.Fatalf("unexpected status callback: %+v", cb)
	}
	if cb.ErrorCode == nil || *cb.ErrorCode != "131026" {
		t.Fatalf("expected error code 131026, got %+v", cb.ErrorCode)
	}
}

func TestParseWebhookUnknownMessageTypeFallsBack(t *testing.T) {
	raw := []byte(`{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [{"from": "5511999990000", "id": "wamid.3", "type": "sticker"}]
				}
			}]
		}]
	}`)

	a := New()
	out, err := a.ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook: unexpected error: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Type != "fallback" {
		t.Fatalf("expected a single fallback message, got %+v", out.Messages)
	}
}

func TestParseWebhookInvalidJSON(t *testing.T) {
	a := New()
	if _, err := a.ParseWebhook([]byte("not json")); err == nil {
		t.Fatal("expected an error for invalid json")
	}
}
