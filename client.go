package polyv

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/evilsocket/islazy/log"
	"github.com/levigross/grequests"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:147.0) Gecko/20100101 Firefox/147.0"
	DefaultReferer   = "https://www.google.com/"
	DefaultTimeout   = 100 * time.Second

	debugBodyLimit = 1000
)

// Client performs the HTTP requests of a session. It keeps cookies between
// requests and never follows redirects.
type Client struct {
	http      *http.Client
	stream    *http.Client // no overall deadline, used for long bodies
	jar       http.CookieJar
	timeout   time.Duration
	userAgent string
	headers   map[string]string
	insecure  bool
}

type ClientOption func(*Client)

func defaultClientOptions() []ClientOption {
	return []ClientOption{
		WithTimeout(DefaultTimeout),
		WithUserAgent(DefaultUserAgent),
		WithHeader("Referer", DefaultReferer),
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() ClientOption {
	return func(c *Client) {
		c.insecure = true
	}
}

func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)

	c := &Client{
		jar:     jar,
		headers: map[string]string{},
	}

	for _, opt := range defaultClientOptions() {
		opt(c)
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: c.insecure},
		MaxIdleConnsPerHost:   64,
		ResponseHeaderTimeout: c.timeout,
	}
	noRedirect := func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c.http = &http.Client{
		Jar:           c.jar,
		Timeout:       c.timeout,
		CheckRedirect: noRedirect,
		Transport:     transport,
	}
	c.stream = &http.Client{
		Jar:           c.jar,
		CheckRedirect: noRedirect,
		Transport:     transport,
	}

	return c
}

// SetCookie stores a cookie for domain. A leading dot makes it valid for
// every subdomain.
func (c *Client) SetCookie(name, value, domain string) {
	host := strings.TrimPrefix(domain, ".")
	c.jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, []*http.Cookie{{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   "/",
	}})
}

func (c *Client) requestOptions(ctx context.Context, hc *http.Client) *grequests.RequestOptions {
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}

	return &grequests.RequestOptions{
		UserAgent:  c.userAgent,
		Headers:    headers,
		HTTPClient: hc,
		Context:    ctx,
	}
}

func (c *Client) get(ctx context.Context, u string) (*grequests.Response, error) {
	return c.do(ctx, c.http, u)
}

func (c *Client) do(ctx context.Context, hc *http.Client, u string) (*grequests.Response, error) {
	resp, err := grequests.Get(u, c.requestOptions(ctx, hc))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrFetch, u, err)
	}
	if !resp.Ok {
		_ = resp.Close()
		return nil, fmt.Errorf("%w: get %s: status %d", ErrFetch, u, resp.StatusCode)
	}
	return resp, nil
}

// GetBytes returns the body of u.
func (c *Client) GetBytes(ctx context.Context, u string) ([]byte, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	b := resp.Bytes()
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrFetch, u, resp.Error)
	}

	log.Debug("[%d] %s: %s", resp.StatusCode, u, truncateHex(b, debugBodyLimit))
	return b, nil
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, u string) ([]byte, error) {
	return c.GetBytes(ctx, u)
}

// GetString returns the body of u as text.
func (c *Client) GetString(ctx context.Context, u string) (string, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}

	s := resp.String()
	if resp.Error != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrFetch, u, resp.Error)
	}

	log.Debug("[%d] %s: %s", resp.StatusCode, u, strings.TrimSpace(s))
	return s, nil
}

// GetJSON decodes the JSON body of u into v.
func (c *Client) GetJSON(ctx context.Context, u string, v any) error {
	resp, err := c.get(ctx, u)
	if err != nil {
		return err
	}

	if err = resp.JSON(v); err != nil {
		return fmt.Errorf("%w: unmarshal %s: %w", ErrDecode, u, err)
	}
	return nil
}

// DownloadToFile streams the body of u into path. The client timeout only
// bounds the wait for response headers; reading the body is limited by ctx.
func (c *Client) DownloadToFile(ctx context.Context, u, path string) error {
	resp, err := c.do(ctx, c.stream, u)
	if err != nil {
		return err
	}

	if err = resp.DownloadToFile(path); err != nil {
		return fmt.Errorf("%w: download %s: %w", ErrFetch, u, err)
	}
	return nil
}
