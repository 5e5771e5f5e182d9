package session

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/promptsim/promptsim/internal/audit"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureRecorder) Write(rec audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *captureRecorder) Close() error { return nil }

func (c *captureRecorder) all() []audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Record(nil), c.records...)
}

func TestRequireRejectsMissingCookie(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	recorder := &captureRecorder{}

	handlerCalled := false
	gated := Require(codec, recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	w := httptest.NewRecorder()
	gated.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if handlerCalled {
		t.Error("handler must not run for unauthenticated requests")
	}

	records := recorder.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	rec := records[0]
	if rec.EventType != audit.EventAuthRequired || rec.OK {
		t.Errorf("expected auth_required ok:false, got %s ok:%v", rec.EventType, rec.OK)
	}
	if rec.UserID != "" {
		t.Errorf("expected empty userId for unauthenticated attempt, got %q", rec.UserID)
	}
}

func TestRequireRejectsInvalidCookie(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	recorder := &captureRecorder{}

	gated := Require(codec, recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for an invalid token")
	}))

	r := httptest.NewRequest(http.MethodPost, "/chat", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "bogus.token"})
	w := httptest.NewRecorder()
	gated.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if len(recorder.all()) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recorder.all()))
	}
}

func TestRequirePassesValidSession(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	recorder := &captureRecorder{}

	token, err := codec.Mint("alice", time.Hour)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	var got *Payload
	gated := Require(codec, recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/chat", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w := httptest.NewRecorder()
	gated.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if got == nil || got.UserID != "alice" {
		t.Fatalf("expected payload for alice in context, got %+v", got)
	}
	if len(recorder.all()) != 0 {
		t.Errorf("expected no audit records for an accepted request, got %d", len(recorder.all()))
	}
}

func TestCookieFlags(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SetCookie(w, "tok", 12*time.Hour, true)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != "tok" {
		t.Errorf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || !c.Secure {
		t.Errorf("unexpected cookie flags: %+v", c)
	}
	if c.MaxAge != int((12 * time.Hour).Seconds()) {
		t.Errorf("expected max age to match TTL, got %d", c.MaxAge)
	}

	w = httptest.NewRecorder()
	ClearCookie(w, false)
	cleared := w.Result().Cookies()
	if len(cleared) != 1 {
		t.Fatalf("expected 1 clearing cookie, got %d", len(cleared))
	}
	if cleared[0].Value != "" || cleared[0].MaxAge > 0 {
		t.Errorf("expected an expiring empty cookie, got %+v", cleared[0])
	}
}
