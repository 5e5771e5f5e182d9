// Package session implements the signed-cookie session layer: the token
// codec, the shared-password authenticator, and the request gate used by
// protected endpoints.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 12 * time.Hour

// ErrInvalidToken is returned by Verify for any token that fails
// structural, signature, or expiry checks.
var ErrInvalidToken = errors.New("invalid session token")

// Payload is the signed content of a session token. Tokens are
// self-contained: nothing is stored server-side, and the payload is
// trusted verbatim once the signature validates. There is no revocation
// list, so a stolen still-valid token remains usable until expiry.
type Payload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Codec mints and verifies session tokens. A token is the base64url JSON
// payload joined to its HMAC-SHA256 signature by a single dot.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec creates a Codec signing with the given secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session secret is not set")
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// Mint issues a token for userID with a fresh session ID. The lifetime is
// fixed at issuance; tokens are not renewable.
func (c *Codec) Mint(userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now().Unix()
	payload := Payload{
		SessionID: uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now + int64(ttl/time.Second),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + c.sign(encoded), nil
}

// Verify checks a token and returns its payload, or ErrInvalidToken if the
// token is malformed, carries a bad signature, or has expired. The
// signature comparison is constant-time.
func (c *Codec) Verify(token string) (*Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(parts[1]), []byte(c.sign(parts[0]))) {
		return nil, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if payload.SessionID == "" || payload.UserID == "" {
		return nil, ErrInvalidToken
	}
	if payload.ExpiresAt <= c.now().Unix() {
		return nil, ErrInvalidToken
	}
	return &payload, nil
}

func (c *Codec) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
