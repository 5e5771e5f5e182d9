package session

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxUserIDLength caps the self-asserted login label.
const MaxUserIDLength = 128

// Authenticator validates login attempts against the one shared password.
// There is no user registry: the user ID is a display label chosen by the
// caller, not a verified identity.
type Authenticator struct {
	password string
}

// NewAuthenticator creates an Authenticator for the configured shared
// password.
func NewAuthenticator(sharedPassword string) (*Authenticator, error) {
	if sharedPassword == "" {
		return nil, errors.New("auth password is not set")
	}
	return &Authenticator{password: sharedPassword}, nil
}

// Authenticate reports whether the attempt passes the shared-password
// gate. Both sides are NFKC-normalized before comparing so composed and
// decomposed input forms match. The comparison is not constant-time; the
// shared password is a low-value group credential, unlike the token
// signature check in Verify.
func (a *Authenticator) Authenticate(userID, password string) bool {
	if norm.NFKC.String(password) != norm.NFKC.String(a.password) {
		return false
	}
	cleaned := strings.TrimSpace(userID)
	return cleaned != "" && len(cleaned) <= MaxUserIDLength
}

// CleanUserID returns the canonical form of a submitted login label.
func CleanUserID(userID string) string {
	return strings.TrimSpace(userID)
}
