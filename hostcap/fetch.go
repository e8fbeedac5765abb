package hostcap

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultFetchMaxURLLength   = 8192
	DefaultFetchMaxBodySize    = 1 << 20 // 1MB
	DefaultFetchRequestTimeout = 30 * time.Second
)

// FetchConfig configures the outbound fetch capability.
type FetchConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

// Fetch exposes outbound HTTP GET restricted to an allowlist of hosts.
// A request to a non-allowlisted host is PermissionDenied: the allowlist is
// part of the grant, not a transport condition.
type Fetch struct {
	cfg    FetchConfig
	client *http.Client
}

// NewFetch creates the fetch capability. Zero limits fall back to defaults.
func NewFetch(cfg FetchConfig) *Fetch {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultFetchMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultFetchMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultFetchRequestTimeout
	}

	return &Fetch{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Name implements Capability.
func (f *Fetch) Name() string { return "fetch" }

// Ops implements Capability.
func (f *Fetch) Ops() []Op {
	return []Op{
		{Name: "get", Requires: CategoryNetFetch, Func: f.get},
	}
}

func (f *Fetch) get(ctx context.Context, args map[string]any) (any, *Error) {
	const op = "fetch.get"

	rawURL, err := stringArg(op, args, "url")
	if err != nil {
		return nil, err
	}
	if len(rawURL) > f.cfg.MaxURLLength {
		return nil, Errf(InvalidOperand, op, "url exceeds %d bytes", f.cfg.MaxURLLength)
	}

	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return nil, Errf(InvalidOperand, op, "invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, Errf(InvalidOperand, op, "scheme must be http or https")
	}

	host := parsed.Hostname()
	if !f.hostAllowed(host) {
		return nil, Errf(PermissionDenied, op, "host not allowed: %s", host)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if reqErr != nil {
		return nil, Errf(InvalidOperand, op, "bad request: %v", reqErr)
	}

	resp, doErr := f.client.Do(req)
	if doErr != nil {
		return nil, Errf(Unavailable, op, "request failed: %v", doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize))
	if readErr != nil {
		return nil, Errf(Unavailable, op, "read response: %v", readErr)
	}

	return map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	}, nil
}

func (f *Fetch) hostAllowed(host string) bool {
	for _, allowed := range f.cfg.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
