package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/common"
	"golang.org/x/net/http2"
)

const maxBodyBytes = 1 << 20

// HTTPClient talks to the remote service over HTTP/JSON.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client (tests use the one
// from httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// NewHTTPClient returns a client for the service rooted at baseURL. timeout
// bounds every request; zero means no per-request limit.
func NewHTTPClient(baseURL string, timeout time.Duration, tokens TokenSource, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	c := &HTTPClient{baseURL: u, tokens: tokens, timeout: timeout}
	if u.Scheme == "https" {
		c.http = &http.Client{Transport: &http2.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}}
	} else {
		c.http = &http.Client{}
	}

	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *HTTPClient) Login(ctx context.Context, req LoginRequest) (models.AuthResult, error) {
	var out models.AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/login", false, req, &out, loginMessages)
	return out, err
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (models.AuthResult, error) {
	var out models.AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/register", false, req, &out, registerMessages)
	return out, err
}

func (c *HTTPClient) SocialLogin(ctx context.Context, req SocialLoginRequest) (models.AuthResult, error) {
	var out models.AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/social-login", false, req, &out, nil)

	var re *RemoteError
	if req.IsRegistration && errors.As(err, &re) && re.Status == http.StatusBadRequest {
		re.Kind = common.ErrAlreadyRegistered
	}
	return out, err
}

func (c *HTTPClient) LinkSocial(ctx context.Context, provider, providerID string) (models.UserProfile, error) {
	body := linkSocialRequest{Provider: provider, ProviderID: providerID}
	if c.tokens != nil {
		if token, err := c.tokens.Token(ctx); err == nil {
			body.Token = token
		}
	}

	var out userResponse
	err := c.do(ctx, http.MethodPost, "/auth/link-social", true, body, &out, nil)
	return out.User, err
}

func (c *HTTPClient) UpdateLocation(ctx context.Context, coords models.Coordinates, addr models.Address) error {
	return c.do(ctx, http.MethodPut, "/auth/location", true, locationRequest{Coordinates: coords, Address: addr}, nil, nil)
}

func (c *HTTPClient) SubmitScan(ctx context.Context, scan models.Scan) (models.Scan, error) {
	var out scanResponse
	if err := c.do(ctx, http.MethodPost, "/scans", true, scan, &out, nil); err != nil {
		return models.Scan{}, err
	}
	if out.Scan == nil || out.Scan.ID == "" {
		return models.Scan{}, transportError(errors.New("malformed response from POST /scans: no saved scan"))
	}
	return *out.Scan, nil
}

func (c *HTTPClient) ListScans(ctx context.Context) ([]models.Scan, error) {
	var out scansResponse
	err := c.do(ctx, http.MethodGet, "/scans", true, nil, &out, nil)
	return out.Scans, err
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", false, nil, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, authenticated bool, in, out any, messages statusMessages) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated && c.tokens != nil {
		if token, err := c.tokens.Token(ctx); err == nil && token != "" {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return mapStatus(resp.StatusCode, e.Message, messages)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return transportError(fmt.Errorf("malformed response from %s %s: %w", method, path, err))
	}
	return nil
}
