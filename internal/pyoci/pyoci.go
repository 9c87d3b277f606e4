// Package pyoci implements the three top-level operations PyOCI exposes —
// publish, list, pull — by composing internal/pkgname, internal/ociobj, and
// internal/registryclient. This is the layer every entrypoint (CLI, HTTP
// server) calls into; neither entrypoint talks to a registry directly.
package pyoci

import (
	"context"
	"errors"
	"fmt"

	"github.com/AllexVeldman/pyoci/internal/ociobj"
	"github.com/AllexVeldman/pyoci/internal/pkgname"
	"github.com/AllexVeldman/pyoci/internal/registryclient"
)

// ErrUnknownPackage is returned when a list targets a repository with no
// published versions, or when a pull finds no file published for the
// requested version and architecture.
var ErrUnknownPackage = errors.New("pyoci: unknown package")

// ErrUnknownArtifactType is returned when a pull resolves a manifest whose
// artifactType is not the PyOCI package artifact type.
var ErrUnknownArtifactType = errors.New("pyoci: unknown artifact type")

// registry is the subset of registryclient.Client operations pulled in
// through ociobj.Registry. It embeds ociobj.Registry under a local name so
// that pyoci's godoc names Client's dependency in this package; its method
// set is exactly ociobj.Registry's.
type registry interface {
	ociobj.Registry
}

// Client scopes a registry connection and credentials to a single publish,
// list, or pull call. Open returns a Client that must be Closed by the
// caller; the pattern mirrors registryclient.Client's own scoped-acquisition
// shape. The dependency is held as an interface so tests can substitute an
// in-memory registry double instead of spinning up an httptest.Server.
type Client struct {
	reg    registry
	closer func() error
}

// Open authenticates (lazily) against registryURL and returns a Client
// scoped to that registry.
func Open(registryURL, username, password string) (*Client, error) {
	reg, err := registryclient.New(registryURL, username, password)
	if err != nil {
		return nil, fmt.Errorf("pyoci: %w", err)
	}
	return &Client{reg: reg, closer: reg.Close}, nil
}

// Close releases the underlying registry connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// Publish uploads the distribution file at filename (its bytes given by
// content) under namespace, creating or updating the package version's
// index. Publishing the same file twice is a no-op at the blob and manifest
// layer, and idempotent at the index layer.
func Publish(ctx context.Context, c *Client, filename string, content []byte, namespace string) (*pkgname.PackageIdentity, error) {
	id, err := pkgname.Parse(filename, namespace)
	if err != nil {
		return nil, err
	}

	layer, err := ociobj.LayerFromBytes(content)
	if err != nil {
		return nil, err
	}
	manifestDesc, err := ociobj.NewManifest(layer, map[string]string{
		"org.opencontainers.image.title": filename,
	}).Push(ctx, c.reg, id.OCIName())
	if err != nil {
		return nil, err
	}

	platformDesc := ociobj.PlatformDescriptorFromManifest(manifestDesc, id.Architecture)
	idx := ociobj.PullIndex(ctx, c.reg, id.OCIName(), id.OCIReference())
	idx.AddManifest(ctx, platformDesc)
	if err := idx.Push(ctx, c.reg, id.OCIName(), id.OCIReference()); err != nil {
		return nil, err
	}
	return id, nil
}

// PackageVersion is one version of a package, with every distribution file
// published under it.
type PackageVersion struct {
	Version string
	Files   []string
}

// List returns every published version of distribution (PEP 503 normalized
// name) under namespace, each with its distribution filenames reconstructed
// from the index's per-architecture manifests.
func List(ctx context.Context, c *Client, distribution, namespace string) ([]PackageVersion, error) {
	name := (&pkgname.PackageIdentity{Distribution: distribution, Namespace: namespace}).OCIName()

	tags, err := c.reg.ListTags(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownPackage, distribution, err)
	}

	versions := make([]PackageVersion, 0, len(tags))
	for _, tag := range tags {
		idx := ociobj.PullIndex(ctx, c.reg, name, tag)
		var files []string
		for _, m := range idx.Manifests {
			arch := ""
			if m.Platform != nil {
				arch = m.Platform.Architecture
			}
			id, err := pkgname.FromParts(distribution, tag, arch)
			if err != nil {
				continue
			}
			filename, err := pkgname.Format(id)
			if err != nil {
				continue
			}
			files = append(files, filename)
		}
		versions = append(versions, PackageVersion{Version: tag, Files: files})
	}
	return versions, nil
}

// Pull fetches and decompresses the distribution file identified by id
// (typically parsed from a request path via pkgname.Parse).
func Pull(ctx context.Context, c *Client, id *pkgname.PackageIdentity) ([]byte, error) {
	idx := ociobj.PullIndex(ctx, c.reg, id.OCIName(), id.OCIReference())
	if len(idx.Manifests) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id.OCIName())
	}

	var manifestDesc *ociobj.Built
	for _, m := range idx.Manifests {
		if m.Platform != nil && m.Platform.Architecture == id.Architecture {
			manifestDesc = &ociobj.Built{Descriptor: m}
			break
		}
	}
	if manifestDesc == nil {
		return nil, fmt.Errorf("%w: %s: no file published for architecture %s", ErrUnknownPackage, id.OCIName(), id.Architecture)
	}

	manifest, err := ociobj.PullManifest(ctx, c.reg, id.OCIName(), manifestDesc.Descriptor)
	if err != nil {
		return nil, err
	}
	if manifest.ArtifactType != ociobj.PackageArtifactType {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArtifactType, manifest.ArtifactType)
	}
	if len(manifest.Layers) != 1 {
		return nil, fmt.Errorf("pyoci: manifest for %s has %d layers, want 1", id.OCIName(), len(manifest.Layers))
	}
	return ociobj.PullLayer(ctx, c.reg, id.OCIName(), manifest.Layers[0])
}
