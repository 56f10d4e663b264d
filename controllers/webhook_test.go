package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/penelope/inbox/models"

	"github.com/gin-gonic/gin"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func ginContextWithSignature(sig string) *gin.Context {
	req := httptest.NewRequest(http.MethodPost, "/webhook/chan1", nil)
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestVerifyChannelSignatureSkippedWhenNoSecretConfigured(t *testing.T) {
	channel := models.Channel{AppSecret: ""}
	c := ginContextWithSignature("")

	ok, reason := verifyChannelSignature(c, channel, []byte(`{"a":1}`))
	if !ok {
		t.Fatalf("expected ok=true when no AppSecret is configured, got reason %q", reason)
	}
}

func TestVerifyChannelSignatureAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"entry":[{"id":"123"}]}`)
	channel := models.Channel{AppSecret: "shh"}
	c := ginContextWithSignature(signBody("shh", body))

	ok, reason := verifyChannelSignature(c, channel, body)
	if !ok {
		t.Fatalf("expected valid signature to pass, got reason %q", reason)
	}
}

func TestVerifyChannelSignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"entry":[{"id":"123"}]}`)
	channel := models.Channel{AppSecret: "shh"}
	c := ginContextWithSignature(signBody("different-secret", body))

	ok, _ := verifyChannelSignature(c, channel, body)
	if ok {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestVerifyChannelSignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"entry":[{"id":"123"}]}`)
	channel := models.Channel{AppSecret: "shh"}
	c := ginContextWithSignature(signBody("shh", body))

	ok, _ := verifyChannelSignature(c, channel, []byte(`{"entry":[{"id":"999"}]}`))
	if ok {
		t.Fatal("expected tampered body to fail signature check")
	}
}

func TestVerifyChannelSignatureRejectsMissingHeader(t *testing.T) {
	channel := models.Channel{AppSecret: "shh"}
	c := ginContextWithSignature("")

	ok, reason := verifyChannelSignature(c, channel, []byte(`{}`))
	if ok {
		t.Fatal("expected missing signature header to fail when AppSecret is configured")
	}
	if reason == "" {
		t.Fatal("expected a non-empty rejection reason")
	}
}

func TestVerifyChannelSignatureRejectsMalformedHeader(t *testing.T) {
	channel := models.Channel{AppSecret: "shh"}
	c := ginContextWithSignature("not-the-right-format")

	ok, _ := verifyChannelSignature(c, channel, []byte(`{}`))
	if ok {
		t.Fatal("expected malformed signature header to fail")
	}
}
