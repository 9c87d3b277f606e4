// Package registryclient is a hand-rolled OCI Distribution HTTP client: URL
// normalization, lazy bearer-token auth, blob/manifest pull, and the
// chunked-upload blob-push handshake. It intentionally does not delegate to
// a higher-level OCI client library — the handshake and auth negotiation it
// implements are the core engineering problem this system solves.
package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/abcxyz/pkg/logging"
	digest "github.com/opencontainers/go-digest"
)

// dockerHub is the canonical host docker.io is rewritten to, per the OCI
// Distribution spec's treatment of the Docker Hub legacy hostname.
const dockerHub = "registry-1.docker.io"

// defaultManifestAccept is sent as the Accept header on a manifest pull
// whenever the caller does not request a narrower media type: either shape
// of artifact (a single manifest or a multi-arch index) is acceptable.
const defaultManifestAccept = "application/vnd.oci.image.manifest.v1+json, application/vnd.oci.image.index.v1+json"

// Client is a scoped OCI Distribution client for a single registry.
// Authentication is attempted lazily on first use and cached for the
// lifetime of the Client. A Client is owned by one operation at a time; it
// carries no concurrency-safety guarantees beyond that.
type Client struct {
	registryURL *url.URL
	username    string
	password    string

	httpClient *http.Client
	authOnce   sync.Once
	authErr    error
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client, e.g. in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New opens a Client for registryURL. A scheme-less URL defaults to https;
// the host "docker.io" is rewritten to "registry-1.docker.io".
func New(registryURL, username, password string, opts ...Option) (*Client, error) {
	u, err := normalizeRegistryURL(registryURL)
	if err != nil {
		return nil, fmt.Errorf("registryclient: %w", err)
	}

	c := &Client{
		registryURL: u,
		username:    username,
		password:    password,
		httpClient: &http.Client{
			CheckRedirect: capRedirects(2),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the Client's underlying HTTP session. A closed Client must
// not be reused.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func normalizeRegistryURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse registry url: %w", err)
	}
	if u.Host == "docker.io" {
		u.Host = dockerHub
	}
	return u, nil
}

func capRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("registryclient: stopped after %d redirects", max)
		}
		return nil
	}
}

// ensureAuth performs the OCI token-auth handshake exactly once per Client,
// on first use: GET /v2/; if the registry answers 401 with a Bearer
// challenge, exchange credentials for a token and cache it for every
// subsequent request.
func (c *Client) ensureAuth(ctx context.Context) error {
	c.authOnce.Do(func() {
		c.authErr = c.authenticate(ctx)
	})
	return c.authErr
}

func (c *Client) authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v2/"), nil)
	if err != nil {
		return fmt.Errorf("registryclient: build auth probe: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registryclient: auth probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return newTransportError(req, resp)
	}

	challenge, err := parseBearerChallenge(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return fmt.Errorf("registryclient: %w", err)
	}
	logging.FromContext(ctx).DebugContext(ctx, "received bearer challenge", "challenge", challenge)

	if c.password == "" {
		return &AuthenticationError{Registry: c.registryURL.Host}
	}

	token, err := c.fetchToken(ctx, challenge)
	if err != nil {
		return err
	}
	c.token = token
	return nil
}

func (c *Client) fetchToken(ctx context.Context, challenge map[string]string) (string, error) {
	tokenURL, err := url.Parse(challenge["realm"])
	if err != nil {
		return "", fmt.Errorf("registryclient: invalid token realm %q: %w", challenge["realm"], err)
	}
	q := tokenURL.Query()
	q.Set("grant_type", "password")
	q.Set("service", challenge["service"])
	q.Set("client_id", c.username)
	if scope := challenge["scope"]; scope != "" {
		q.Set("scope", scope)
	}
	tokenURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("registryclient: build token request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("registryclient: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newTransportError(req, resp)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("registryclient: decode token response: %w", err)
	}
	return body.Token, nil
}

// parseBearerChallenge parses a "Bearer realm=\"...\",service=\"...\",scope=\"...\""
// WWW-Authenticate header into its key/value parameters.
func parseBearerChallenge(header string) (map[string]string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("unsupported WWW-Authenticate scheme: %q", header)
	}
	params := map[string]string{}
	rest := strings.TrimPrefix(header, prefix)
	for rest != "" {
		// Split at the next comma outside double quotes, so a quoted value
		// such as scope="repository:foo:pull,push" stays whole.
		end, quoted := len(rest), false
		for i := 0; i < len(rest); i++ {
			if rest[i] == '"' {
				quoted = !quoted
			} else if rest[i] == ',' && !quoted {
				end = i
				break
			}
		}
		item := rest[:end]
		rest = strings.TrimPrefix(rest[end:], ",")
		kv := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[kv[0]] = strings.Trim(kv[1], `"`)
	}
	if params["realm"] == "" {
		return nil, fmt.Errorf("WWW-Authenticate challenge missing realm: %q", header)
	}
	return params, nil
}

func (c *Client) url(uri string) string {
	return c.registryURL.String() + uri
}

// newAuthenticatedRequest builds a request against this registry, attaching
// the cached bearer token if auth has completed.
func (c *Client) newAuthenticatedRequest(ctx context.Context, method, uri string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(uri), body)
	if err != nil {
		return nil, fmt.Errorf("registryclient: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.ensureAuth(ctx); err != nil {
		return nil, err
	}
	if c.token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// ListTags returns the tags registered for repository name.
func (c *Client) ListTags(ctx context.Context, name string) ([]string, error) {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodGet, "/v2/"+name+"/tags/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registryclient: list tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newTransportError(req, resp)
	}

	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("registryclient: decode tags list: %w", err)
	}
	return body.Tags, nil
}

// PullManifest fetches the manifest or index at name:reference. accept, if
// given, overrides the default Accept header (both manifest and index media
// types).
func (c *Client) PullManifest(ctx context.Context, name, reference string, accept ...string) ([]byte, string, error) {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodGet, "/v2/"+name+"/manifests/"+reference, nil)
	if err != nil {
		return nil, "", err
	}
	if len(accept) > 0 && accept[0] != "" {
		req.Header.Set("Accept", strings.Join(accept, ", "))
	} else {
		req.Header.Set("Accept", defaultManifestAccept)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("registryclient: pull manifest: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("registryclient: read manifest body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.FromContext(ctx).DebugContext(ctx, "pull manifest failed", "status", resp.StatusCode, "headers", resp.Header)
		return nil, "", newTransportErrorBody(req, resp, body)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// PullBlob fetches the raw bytes of the blob addressed by dgst.
func (c *Client) PullBlob(ctx context.Context, name string, dgst digest.Digest) ([]byte, error) {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodGet, "/v2/"+name+"/blobs/"+dgst.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registryclient: pull blob: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("registryclient: read blob body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newTransportErrorBody(req, resp, body)
	}
	return body, nil
}
