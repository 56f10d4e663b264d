// Package authn stands in for the external auth provider collaborator
// spec.md §1 describes: "an auth provider that yields (userId,
// organizationId, role)". Session issuance, password flows, and user
// CRUD are out of scope (spec.md §1); what's here is a generalization
// of the teacher's own hand-rolled HS256 JWT signer/verifier
// (controllers/jwt.go, controllers/auth_middleware.go) into that
// narrow interface, good enough to drive the HTTP and socket auth
// middleware in this repo and to issue dev tokens for tests.
package authn

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Identity is what every authenticated request and socket connection
// carries: the (userId, organizationId, role) triple spec.md §1 names.
type Identity struct {
	AgentID        string `json:"sub"`
	OrganizationID string `json:"org"`
	Role           string `json:"role"`
	Exp            int64  `json:"exp"`
	Iat            int64  `json:"iat"`
}

// Provider verifies a bearer token and yields the caller's Identity.
type Provider interface {
	Verify(token string) (Identity, error)
	Issue(identity Identity, ttl time.Duration) (string, error)
}

// HMACProvider is a dev-mode stand-in: HS256-signed tokens using a
// shared secret, the same unsigned-header+payload-then-HMAC shape as
// the teacher's signHS256JWT/parseAndVerifyJWT.
type HMACProvider struct {
	secret []byte
}

func NewHMACProvider(secret string) *HMACProvider {
	return &HMACProvider{secret: []byte(secret)}
}

func (p *HMACProvider) Issue(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	identity.Iat = now.Unix()
	identity.Exp = now.Add(ttl).Unix()

	header := map[string]any{"alg": "HS256", "typ": "JWT"}
	headB, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadB, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	unsigned := enc.EncodeToString(headB) + "." + enc.EncodeToString(payloadB)
	sig := p.sign(unsigned)
	return unsigned + "." + sig, nil
}

func (p *HMACProvider) Verify(token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, fmt.Errorf("authn: malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	expected := p.sign(signingInput)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Identity{}, fmt.Errorf("authn: signature mismatch")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Identity{}, fmt.Errorf("authn: invalid payload encoding")
	}

	var identity Identity
	if err := json.Unmarshal(payloadBytes, &identity); err != nil {
		return Identity{}, fmt.Errorf("authn: invalid payload json")
	}
	if identity.AgentID == "" || identity.OrganizationID == "" {
		return Identity{}, fmt.Errorf("authn: missing subject/org claim")
	}
	if identity.Exp > 0 && time.Now().Unix() > identity.Exp {
		return Identity{}, fmt.Errorf("authn: token expired")
	}
	return identity, nil
}

func (p *HMACProvider) sign(input string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
