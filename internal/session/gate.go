package session

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/promptsim/promptsim/internal/audit"
)

// CookieName is the fixed session cookie name.
const CookieName = "psim_session"

type contextKey int

const payloadKey contextKey = iota

// FromContext returns the verified session payload stored by Require, or
// nil when the request was not gated.
func FromContext(ctx context.Context) *Payload {
	if p, ok := ctx.Value(payloadKey).(*Payload); ok {
		return p
	}
	return nil
}

// FromRequest extracts and verifies the session cookie. It returns nil
// when the cookie is absent or the token invalid.
func FromRequest(r *http.Request, codec *Codec) *Payload {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	payload, err := codec.Verify(c.Value)
	if err != nil {
		return nil
	}
	return payload
}

// SetCookie attaches a session cookie carrying token, with a max age
// matching the token TTL.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearCookie expires the session cookie. Logout is purely client-side:
// the token itself stays valid until its natural expiry.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// Require returns middleware that rejects requests lacking a valid
// session token before any handler work runs. Rejections are recorded as
// auth_required events; accepted requests carry the payload in context.
func Require(codec *Codec, log audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload := FromRequest(r, codec)
			if payload == nil {
				log.Write(audit.Record{
					EventType: audit.EventAuthRequired,
					OK:        false,
					ClientIP:  IPFromRequest(r),
					UserAgent: r.UserAgent(),
					Path:      r.URL.Path,
					Method:    r.Method,
				})
				http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), payloadKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP. Behind chi's RealIP
// middleware this is the client address, not the proxy's.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
