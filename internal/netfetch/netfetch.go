// Package netfetch implements a bounded, SSRF-guarded HTTP fetch used by
// the consult_*/configure_expert tool passthroughs (spec.md §6) for their
// out-of-core web-search capability. Every redirect hop's resolved IP is
// checked against the denylist before bytes flow, per spec.md §5.
//
// Grounded on the teacher's internal/shards/researcher.go http.Client
// construction (bounded redirect count, explicit timeout), generalized
// from a redirect-count cap into a per-hop IP validation.
package netfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"mira/internal/logging"
	"mira/internal/merr"
)

// Config tunes the guarded client, per spec.md §5: "30s hard cap, 2MB
// body cap, redirect chain validated per hop".
type Config struct {
	Timeout     time.Duration
	MaxBytes    int64
	MaxRedirects int
}

// DefaultConfig matches spec.md §5's literal numbers.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxBytes:     2 * 1024 * 1024,
		MaxRedirects: 5,
	}
}

// Client is a guarded HTTP client. The zero value is not usable; use New.
type Client struct {
	cfg    Config
	client *http.Client
}

// New builds a Client whose CheckRedirect hook validates every hop's
// resolved address before following it.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 * 1024 * 1024
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}

	c := &Client{cfg: cfg}
	c.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("netfetch: too many redirects (>%d)", cfg.MaxRedirects)
			}
			if err := validateHost(req.URL.Hostname()); err != nil {
				return err
			}
			return nil
		},
	}
	return c
}

// Get fetches url, validating the initial host and every redirect hop,
// and returns at most cfg.MaxBytes of body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, merr.BadRequestf("netfetch.Get", "invalid url: %v", err)
	}
	if err := validateHost(req.URL.Hostname()); err != nil {
		return nil, merr.Wrap(merr.BadRequest, "netfetch.Get", "SSRF guard rejected host", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, merr.Wrap(merr.External, "netfetch.Get", "request failed", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.cfg.MaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, merr.Wrap(merr.External, "netfetch.Get", "read body failed", err)
	}
	if int64(len(body)) > c.cfg.MaxBytes {
		logging.Get(logging.CategoryTool).Warn("netfetch: body for %s exceeded %d bytes, truncating", url, c.cfg.MaxBytes)
		body = body[:c.cfg.MaxBytes]
	}
	return body, nil
}

// validateHost resolves host and rejects it if any resolved address is
// loopback, private (RFC1918), link-local, ULA, multicast, or an
// IPv4-mapped equivalent of one of those, per spec.md §5's SSRF denylist
// and the "SSRF denial" testable property in spec.md §8.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("netfetch: empty host")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		// Literal IP hosts skip LookupIP in some resolvers; try parsing
		// directly so an IP-literal SSRF attempt isn't missed.
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			return fmt.Errorf("netfetch: resolve %s: %w", host, err)
		}
	}
	for _, ip := range ips {
		if isDenied(ip) {
			return fmt.Errorf("netfetch: host %s resolves to disallowed address %s", host, ip)
		}
	}
	return nil
}

// isDenied reports whether ip falls in the SSRF denylist.
func isDenied(ip net.IP) bool {
	v4 := ip.To4()
	if v4 != nil {
		ip = v4
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	// IPv4-mapped IPv6 (::ffff:a.b.c.d) resolving to a denied v4 address.
	if ip4 := ip.To4(); ip4 == nil {
		if mapped := ip.To16(); mapped != nil {
			if v4mapped := mapped.To4(); v4mapped != nil && isDenied(v4mapped) {
				return true
			}
		}
	}
	return false
}
