// Package tools implements the external data-fetch capabilities the workers
// expose to the model: the parts site pages and the catalog/pricing/store API.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtzanidakis/counterman/internal/metrics"
)

const (
	DefaultSiteURL      = "https://www.partselect.com"
	DefaultTimeout      = 20 * time.Second
	DefaultMaxPageBytes = 60000

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

type Config struct {
	SiteURL      string
	CatalogURL   string
	Timeout      time.Duration
	MaxPageBytes int
}

type Client struct {
	http         *http.Client
	site         *url.URL
	catalog      string
	maxPageBytes int
	metrics      *metrics.Collector
}

func New(cfg Config, m *metrics.Collector) (*Client, error) {
	if cfg.SiteURL == "" {
		cfg.SiteURL = DefaultSiteURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = DefaultMaxPageBytes
	}

	site, err := url.Parse(strings.TrimRight(cfg.SiteURL, "/"))
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", cfg.SiteURL)
	}

	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		site:         site,
		catalog:      strings.TrimRight(cfg.CatalogURL, "/"),
		maxPageBytes: cfg.MaxPageBytes,
		metrics:      m,
	}, nil
}

func (c *Client) siteURL(path string, q url.Values) string {
	u := *c.site
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) catalogURL(path string, q url.Values) (string, error) {
	if c.catalog == "" {
		return "", fmt.Errorf("catalog api is not configured")
	}
	s := c.catalog + path
	if q != nil {
		s += "?" + q.Encode()
	}
	return s, nil
}

// getPage fetches a site page as a browser would and returns its body,
// truncated to the configured size.
func (c *Client) getPage(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "max-age=0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxPageBytes)+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return truncate(string(body), c.maxPageBytes), nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s %s", req.Method, req.URL, resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "\n[truncated]"
}
