package pyoci

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	digest "github.com/opencontainers/go-digest"

	"github.com/AllexVeldman/pyoci/internal/ociobj"
	"github.com/AllexVeldman/pyoci/internal/pkgname"
)

func newTestClient() *Client {
	return &Client{reg: newFakeRegistry()}
}

func TestPublishThenPullRoundTrips(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	ctx := context.Background()
	content := []byte("sdist tarball bytes")

	id, err := Publish(ctx, c, "some-package-1.0.0.tar.gz", content, "")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got, err := Pull(ctx, c, id)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Pull() = %q, want %q", got, content)
	}
}

func TestPublishTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	ctx := context.Background()
	content := []byte("unchanged across republish")

	if _, err := Publish(ctx, c, "pkg-2.0.0.tar.gz", content, ""); err != nil {
		t.Fatalf("Publish() first error = %v", err)
	}
	id, err := Publish(ctx, c, "pkg-2.0.0.tar.gz", content, "")
	if err != nil {
		t.Fatalf("Publish() second error = %v", err)
	}

	versions, err := List(ctx, c, "pkg", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(versions) != 1 || len(versions[0].Files) != 1 {
		t.Errorf("List() = %+v, want exactly one version with one file", versions)
	}
	if id.OCIReference() != "2.0.0" {
		t.Errorf("OCIReference() = %q, want %q", id.OCIReference(), "2.0.0")
	}
}

func TestPublishMultipleArchitecturesSameVersion(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	ctx := context.Background()

	if _, err := Publish(ctx, c, "pkg-1.0.0.tar.gz", []byte("sdist"), ""); err != nil {
		t.Fatalf("Publish() sdist error = %v", err)
	}
	if _, err := Publish(ctx, c, "pkg-1.0.0-cp311-cp311-manylinux_2_17_x86_64.whl", []byte("wheel"), ""); err != nil {
		t.Fatalf("Publish() wheel error = %v", err)
	}

	versions, err := List(ctx, c, "pkg", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("List() = %d versions, want 1", len(versions))
	}
	if len(versions[0].Files) != 2 {
		t.Errorf("Files = %v, want 2 entries", versions[0].Files)
	}
}

func TestListUnknownPackage(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	if _, err := List(context.Background(), c, "nope", ""); err == nil {
		t.Errorf("List() error = nil, want error for unpublished package")
	}
}

func TestPullMissingArchitecture(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	ctx := context.Background()
	if _, err := Publish(ctx, c, "pkg-1.0.0.tar.gz", []byte("sdist"), ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	id, err := pkgname.FromParts("pkg", "1.0.0", "cp311-cp311-manylinux_2_17_x86_64.whl")
	if err != nil {
		t.Fatalf("FromParts() error = %v", err)
	}
	_, err = Pull(ctx, c, id)
	if !errors.Is(err, ErrUnknownPackage) {
		t.Errorf("Pull() error = %v, want ErrUnknownPackage", err)
	}
}

func TestPullForeignArtifactType(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	ctx := context.Background()
	if _, err := Publish(ctx, c, "pkg-1.0.0.tar.gz", []byte("sdist"), ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	idx := ociobj.PullIndex(ctx, c.reg, "pkg", "1.0.0")
	manifest := ociobj.NewManifest(mustLayer(t, []byte("sdist")), nil)
	foreign, err := manifest.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(foreign.Content, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	raw["artifactType"] = "application/some.other.thing"
	tampered, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	tamperedDigest := digest.FromBytes(tampered)
	if err := c.reg.PushManifestByDigest(ctx, "pkg", ociobj.ManifestMediaType, tamperedDigest, tampered); err != nil {
		t.Fatalf("PushManifestByDigest() error = %v", err)
	}
	idx.Manifests[0].Digest = tamperedDigest
	if err := idx.Push(ctx, c.reg, "pkg", "1.0.0"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	id, err := pkgname.FromParts("pkg", "1.0.0", ".tar.gz")
	if err != nil {
		t.Fatalf("FromParts() error = %v", err)
	}
	_, err = Pull(ctx, c, id)
	if !errors.Is(err, ErrUnknownArtifactType) {
		t.Errorf("Pull() error = %v, want ErrUnknownArtifactType", err)
	}
}

func mustLayer(t *testing.T, content []byte) ociobj.Blob {
	t.Helper()
	layer, err := ociobj.LayerFromBytes(content)
	if err != nil {
		t.Fatalf("LayerFromBytes() error = %v", err)
	}
	return layer
}
