package registryclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/abcxyz/pkg/logging"
	digest "github.com/opencontainers/go-digest"
)

const octetStream = "application/octet-stream"

// PushBlob uploads content (addressed by dgst) to repository name using the
// OCI chunked-upload handshake: a HEAD existence check, then a monolithic
// POST+PUT upload if the blob isn't already present. Both the existence
// check and the upload are idempotent: pushing the same blob twice performs
// zero additional PUTs after the first.
func (c *Client) PushBlob(ctx context.Context, name string, dgst digest.Digest, content []byte) error {
	exists, err := c.blobExists(ctx, name, dgst)
	if err != nil {
		return err
	}
	if exists {
		logging.FromContext(ctx).DebugContext(ctx, "blob already exists", "name", name, "digest", dgst)
		return nil
	}

	location, err := c.beginBlobUpload(ctx, name)
	if err != nil {
		return err
	}
	return c.completeBlobUpload(ctx, location, dgst, content)
}

func (c *Client) blobExists(ctx context.Context, name string, dgst digest.Digest) (bool, error) {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodHead, "/v2/"+name+"/blobs/"+dgst.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return false, fmt.Errorf("registryclient: blob existence check: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// beginBlobUpload starts a chunked upload session and returns the Location
// the bytes must be PUT to, as the registry sent it. A relative Location is
// registry-relative; an absolute one may point at an entirely different host
// (some registries redirect uploads to a signed URL).
func (c *Client) beginBlobUpload(ctx context.Context, name string) (string, error) {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodPost, "/v2/"+name+"/blobs/uploads/", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", octetStream)

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("registryclient: begin blob upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", newTransportError(req, resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("registryclient: upload accepted without a Location header")
	}
	return location, nil
}

func (c *Client) completeBlobUpload(ctx context.Context, location string, dgst digest.Digest, content []byte) error {
	// A registry-relative Location is requested against this Client's
	// authenticated session; an absolute (possibly cross-host) Location is
	// requested bare, since the bearer token is scoped to this registry
	// and must not be sent to an arbitrary off-host signed URL.
	relative := strings.HasPrefix(location, "/")
	if relative {
		location = c.registryURL.String() + location
	}
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("registryclient: invalid upload location %q: %w", location, err)
	}
	q := u.Query()
	q.Set("digest", dgst.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("registryclient: build upload completion request: %w", err)
	}
	req.Header.Set("Content-Type", octetStream)
	req.ContentLength = int64(len(content))

	var resp *http.Response
	if relative {
		resp, err = c.do(ctx, req)
	} else {
		resp, err = c.httpClient.Do(req)
	}
	if err != nil {
		return fmt.Errorf("registryclient: complete blob upload: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		logging.FromContext(ctx).ErrorContext(ctx, "blob upload completion returned 404", "body", string(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newTransportErrorBody(req, resp, body)
	}
	return nil
}

// PushManifestTagged pushes content under repository name, tagged as
// reference.
func (c *Client) PushManifestTagged(ctx context.Context, name, reference, mediaType string, content []byte) error {
	return c.pushManifest(ctx, name, reference, mediaType, content)
}

// PushManifestByDigest pushes content addressed only by dgst (no tag). This
// is idempotent: if a manifest is already stored under that digest, the
// HEAD short-circuits and no PUT is sent.
func (c *Client) PushManifestByDigest(ctx context.Context, name, mediaType string, dgst digest.Digest, content []byte) error {
	uri := "/v2/" + name + "/manifests/" + dgst.String()
	req, err := c.newAuthenticatedRequest(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("registryclient: manifest existence check: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		logging.FromContext(ctx).DebugContext(ctx, "manifest already exists", "name", name, "digest", dgst)
		return nil
	}
	return c.pushManifest(ctx, name, dgst.String(), mediaType, content)
}

func (c *Client) pushManifest(ctx context.Context, name, reference, mediaType string, content []byte) error {
	req, err := c.newAuthenticatedRequest(ctx, http.MethodPut, "/v2/"+name+"/manifests/"+reference, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mediaType)
	req.ContentLength = int64(len(content))

	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("registryclient: push manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		if len(body) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			logging.FromContext(ctx).ErrorContext(ctx, "registry rejected manifest push", "body", string(body))
		}
		return newTransportErrorBody(req, resp, body)
	}
	return nil
}
