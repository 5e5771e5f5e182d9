package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://proxy.example.com/", "https://proxy.example.com/chat/completions"},
		{"https://proxy.example.com", "https://proxy.example.com/chat/completions"},
		{"https://proxy.example.com/v1", "https://proxy.example.com/v1/chat/completions"},
		{"https://proxy.example.com/v1/chat/completions", "https://proxy.example.com/v1/chat/completions"},
		{"https://proxy.example.com/chat/completions", "https://proxy.example.com/chat/completions"},
		{"  https://proxy.example.com//  ", "https://proxy.example.com/chat/completions"},
	}
	for _, tc := range cases {
		if got := resolveEndpoint(tc.in); got != tc.want {
			t.Errorf("resolveEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildMessagesOrdering(t *testing.T) {
	t.Parallel()

	history := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}
	got := BuildMessages("you are a patient", history, "what hurts?")

	want := []Message{
		{Role: "system", Content: "you are a patient"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
		{Role: "user", Content: "what hurts?"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildMessagesSkipsDuplicateUserTurn(t *testing.T) {
	t.Parallel()

	history := []Message{{Role: "user", Content: "same question"}}
	got := BuildMessages("", history, "same question")
	if len(got) != 1 {
		t.Fatalf("expected resend to be deduplicated, got %d messages", len(got))
	}

	// A matching assistant turn is not a duplicate.
	history = []Message{{Role: "assistant", Content: "same question"}}
	got = BuildMessages("", history, "same question")
	if len(got) != 2 {
		t.Fatalf("expected user message appended after assistant turn, got %d messages", len(got))
	}
}

func TestBuildMessagesWithoutSystemPrompt(t *testing.T) {
	t.Parallel()

	got := BuildMessages("", nil, "hello")
	if len(got) != 1 || got[0].Role != "user" || got[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestCompleteParsesChoices(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("x-litellm-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, APIKey: "k-123", Timeout: 5 * time.Second})
	result, err := client.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Assistant != "hi" {
		t.Errorf("expected assistant hi, got %q", result.Assistant)
	}
	if gotAuth != "k-123" {
		t.Errorf("expected api key header, got %q", gotAuth)
	}
}

func TestCompleteFallbackShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"bare message", `{"message":{"content":"from message"}}`, "from message"},
		{"assistant field", `{"assistant":"from assistant"}`, "from assistant"},
		{"raw string", `"just text"`, "just text"},
		{"unknown shape", `{"something":"else"}`, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(Config{URL: srv.URL, Timeout: 5 * time.Second})
			result, err := client.Complete(context.Background(), "m", nil)
			if err != nil {
				t.Fatalf("Complete failed: %v", err)
			}
			if result.Assistant != tc.want {
				t.Errorf("expected %q, got %q", tc.want, result.Assistant)
			}
		})
	}
}

func TestCompleteReturnsUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Complete(context.Background(), "m", nil)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstreamErr.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", upstreamErr.Status)
	}
	body, ok := upstreamErr.Body.(map[string]any)
	if !ok || body["error"] != "overloaded" {
		t.Errorf("expected decoded JSON body, got %#v", upstreamErr.Body)
	}
}

func TestCompleteTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Complete(context.Background(), "m", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestModelFor(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{URL: "https://proxy.example.com", Model: "default-model"})
	if got := client.ModelFor(""); got != "default-model" {
		t.Errorf("expected configured default, got %q", got)
	}
	if got := client.ModelFor("requested"); got != "requested" {
		t.Errorf("expected requested model, got %q", got)
	}
}
