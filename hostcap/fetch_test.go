package hostcap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func fetchGet(t *testing.T, f *Fetch, args map[string]any) (any, *Error) {
	t.Helper()
	return f.Ops()[0].Func(context.Background(), args)
}

func TestFetchAllowedHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	host := mustHostname(t, srv.URL)
	f := NewFetch(FetchConfig{AllowedHosts: []string{host}})

	v, err := fetchGet(t, f, map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	resp := v.(map[string]any)
	if resp["status"] != 200 {
		t.Errorf("expected status 200, got %v", resp["status"])
	}
	if resp["body"] != "hello" {
		t.Errorf("expected body hello, got %v", resp["body"])
	}
}

func TestFetchDisallowedHost(t *testing.T) {
	f := NewFetch(FetchConfig{AllowedHosts: []string{"api.example.com"}})

	_, err := fetchGet(t, f, map[string]any{"url": "http://evil.example.net/"})
	if !IsKind(err, PermissionDenied) {
		t.Errorf("expected PermissionDenied, got %v", err)
	}
}

func TestFetchNoAllowlist(t *testing.T) {
	f := NewFetch(FetchConfig{})

	_, err := fetchGet(t, f, map[string]any{"url": "http://anywhere.example.com/"})
	if !IsKind(err, PermissionDenied) {
		t.Errorf("empty allowlist should deny everything, got %v", err)
	}
}

func TestFetchHostAllowlist(t *testing.T) {
	f := NewFetch(FetchConfig{AllowedHosts: []string{"example.com"}})

	tests := []struct {
		host    string
		allowed bool
	}{
		{"example.com", true},
		{"api.example.com", true},
		{"example.com.evil.net", false},
		{"notexample.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := f.hostAllowed(tt.host); got != tt.allowed {
			t.Errorf("hostAllowed(%q) = %v, want %v", tt.host, got, tt.allowed)
		}
	}
}

func TestFetchValidation(t *testing.T) {
	f := NewFetch(FetchConfig{AllowedHosts: []string{"example.com"}, MaxURLLength: 50})

	tests := []struct {
		name string
		args map[string]any
		kind Kind
	}{
		{"missing url", map[string]any{}, InvalidOperand},
		{"bad scheme", map[string]any{"url": "ftp://example.com/x"}, InvalidOperand},
		{"too long", map[string]any{"url": "http://example.com/" + strings.Repeat("x", 60)}, InvalidOperand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fetchGet(t, f, tt.args)
			if err == nil || err.Kind != tt.kind {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	host := mustHostname(t, srv.URL)
	f := NewFetch(FetchConfig{AllowedHosts: []string{host}, MaxBodySize: 10})

	v, err := fetchGet(t, f, map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	body := v.(map[string]any)["body"].(string)
	if len(body) != 10 {
		t.Errorf("expected body truncated to 10 bytes, got %d", len(body))
	}
}

func mustHostname(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname()
}
