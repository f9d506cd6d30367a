// Package twins is a client for the digital twins data-plane REST API.
package twins

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

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vk/twinctl/internal/ctxlog"
)

const (
	DefaultAPIVersion     = "2023-10-31"
	DefaultTimeout        = 30 * time.Second
	DefaultModelCacheSize = 256
)

// Options configures a Client.
type Options struct {
	InstanceURL string
	Token       string
	APIVersion  string
	Timeout     time.Duration
	// HTTPClient replaces the pooled client built from Timeout.
	HTTPClient     *http.Client
	ModelCacheSize int
}

// Client talks to one digital twins instance.
type Client struct {
	base       *url.URL
	token      string
	apiVersion string
	http       *http.Client
	ownsHTTP   bool
	models     *lru.Cache[string, ModelData]
}

// New creates a Client. InstanceURL may omit the scheme, in which case
// https is assumed.
func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.InstanceURL)
	if raw == "" {
		return nil, fmt.Errorf("instance url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid instance url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid instance url '%s': missing host", opts.InstanceURL)
	}

	c := &Client{
		base:       base,
		token:      opts.Token,
		apiVersion: opts.APIVersion,
		http:       opts.HTTPClient,
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = newHTTPClient(timeout)
		c.ownsHTTP = true
	}

	size := opts.ModelCacheSize
	if size <= 0 {
		size = DefaultModelCacheSize
	}
	c.models, err = lru.New[string, ModelData](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Close releases idle connections of the client's own transport.
func (c *Client) Close() error {
	if c.ownsHTTP {
		c.http.CloseIdleConnections()
	}
	return nil
}

// Endpoint returns the instance URL the client talks to.
func (c *Client) Endpoint() string {
	return c.base.String()
}

// endpoint builds a request URL from unescaped path segments.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := *c.base
	var path, rawPath strings.Builder
	path.WriteString(strings.TrimRight(u.Path, "/"))
	rawPath.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	for _, s := range segments {
		path.WriteString("/" + s)
		rawPath.WriteString("/" + url.PathEscape(s))
	}
	u.Path = path.String()
	u.RawPath = rawPath.String()
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	u.RawQuery = query.Encode()
	return u.String()
}

// resolveNextLink turns a nextLink into an absolute URL on the instance.
func (c *Client) resolveNextLink(link string) (string, error) {
	next, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid nextLink: %w", err)
	}
	abs := c.base.ResolveReference(next)
	if abs.Host != c.base.Host {
		return "", fmt.Errorf("nextLink points to foreign host '%s'", abs.Host)
	}
	q := abs.Query()
	if q.Get("api-version") == "" {
		q.Set("api-version", c.apiVersion)
		abs.RawQuery = q.Encode()
	}
	return abs.String(), nil
}

// do sends one request. body, if non-nil, is marshalled as JSON unless it is
// already a json.RawMessage. out, if non-nil, receives the decoded response.
func (c *Client) do(ctx context.Context, op, method, target string, body any, contentType string, out any) error {
	logger := ctxlog.FromContext(ctx)

	var reader io.Reader
	if body != nil {
		var payload []byte
		switch b := body.(type) {
		case json.RawMessage:
			payload = b
		default:
			var err error
			if payload, err = json.Marshal(body); err != nil {
				return fmt.Errorf("%s: failed to encode request: %w", op, err)
			}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if body != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Debug("Sending request.", "op", op, "method", method, "url", target)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, fmt.Errorf("failed to read response body: %w", err))
	}
	logger.Debug("Received response.", "op", op, "status", resp.StatusCode)

	if resp.StatusCode >= 300 {
		return newAPIError(op, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// listAll follows nextLink until the last page.
func listAll[T any](ctx context.Context, c *Client, op, first string) ([]T, error) {
	var all []T
	target := first
	for target != "" {
		var p page[T]
		if err := c.do(ctx, op, http.MethodGet, target, nil, "", &p); err != nil {
			return nil, err
		}
		all = append(all, p.Value...)
		if p.NextLink == "" {
			break
		}
		next, err := c.resolveNextLink(p.NextLink)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		target = next
	}
	return all, nil
}
