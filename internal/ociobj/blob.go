package ociobj

import (
	"context"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/AllexVeldman/pyoci/internal/blob"
)

// emptyConfigMediaType is used for the config blob of manifests that carry
// no meaningful configuration of their own — PyOCI packages don't run, so
// there is nothing to configure. This mirrors how other artifact-type OCI
// producers (Helm charts, SBOMs) use an empty JSON object as a placeholder
// config.
const emptyConfigMediaType = "application/vnd.oci.empty.v1+json"

// LayerMediaType is the media type of the single content layer a package
// manifest carries: the deterministically gzip-compressed sdist or wheel.
// It is the package artifact type with the "+gzip" suffix that marks a
// descriptor as a layer rather than a manifest or config.
const LayerMediaType = PackageArtifactType + "+gzip"

// Blob pairs an OCI Descriptor with the bytes it describes. Content is never
// embedded in a marshaled Manifest or Index — only Descriptor is — so it is
// safe to carry arbitrarily large payloads here without risking an
// accidental base64 blow-up in a JSON document.
type Blob struct {
	Descriptor ocispec.Descriptor
	Content    []byte
}

func newBlob(mediaType string, content []byte) Blob {
	return Blob{
		Descriptor: ocispec.Descriptor{
			MediaType: mediaType,
			Digest:    blob.DigestOf(content),
			Size:      int64(len(content)),
		},
		Content: content,
	}
}

// EmptyConfig returns the canonical empty config blob shared by every
// package manifest.
func EmptyConfig() Blob {
	return newBlob(emptyConfigMediaType, []byte("{}"))
}

// LayerFromBytes deterministically gzips raw and wraps the result as a
// content layer blob. Compressing the same raw bytes always produces the
// same Blob, which is what keeps republishing an unchanged package a no-op
// at the registry.
func LayerFromBytes(raw []byte) (Blob, error) {
	gzipped, err := blob.GzipDeterministic(raw)
	if err != nil {
		return Blob{}, fmt.Errorf("ociobj: compress layer: %w", err)
	}
	return newBlob(LayerMediaType, gzipped), nil
}

// Push uploads b's content to the registry under name, short-circuiting if
// the registry already holds a blob at this digest.
func (b Blob) Push(ctx context.Context, reg Registry, name string) error {
	if err := reg.PushBlob(ctx, name, b.Descriptor.Digest, b.Content); err != nil {
		return fmt.Errorf("ociobj: push blob %s: %w", b.Descriptor.Digest, err)
	}
	return nil
}

// PullLayer fetches and gunzips the content layer described by desc.
func PullLayer(ctx context.Context, reg Registry, name string, desc ocispec.Descriptor) ([]byte, error) {
	raw, err := reg.PullBlob(ctx, name, desc.Digest)
	if err != nil {
		return nil, fmt.Errorf("ociobj: pull layer blob: %w", err)
	}
	content, err := blob.Gunzip(raw)
	if err != nil {
		return nil, fmt.Errorf("ociobj: decompress layer: %w", err)
	}
	return content, nil
}
