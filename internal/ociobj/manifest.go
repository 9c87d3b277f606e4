package ociobj

import (
	"context"
	"encoding/json"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/AllexVeldman/pyoci/internal/blob"
)

// ManifestMediaType is the media type of a single-package manifest, as
// opposed to the multi-platform index that references it.
const ManifestMediaType = ocispec.MediaTypeImageManifest

// PackageArtifactType identifies a PyOCI package manifest in the
// artifactType field, distinguishing it from unrelated OCI artifacts that
// might share a repository.
const PackageArtifactType = "application/pyoci.package.v1"

// ManifestBuilder assembles the single-platform manifest for one sdist or
// wheel: an empty config plus exactly one content layer.
type ManifestBuilder struct {
	Config      Blob
	Layer       Blob
	Annotations map[string]string
}

// NewManifest returns a builder for a manifest wrapping a single content
// layer, with the shared empty config attached.
func NewManifest(layer Blob, annotations map[string]string) ManifestBuilder {
	return ManifestBuilder{
		Config:      EmptyConfig(),
		Layer:       layer,
		Annotations: annotations,
	}
}

// Built is a manifest rendered to its canonical JSON form, along with the
// Descriptor that addresses it.
type Built struct {
	Descriptor ocispec.Descriptor
	Content    []byte
}

// Build renders the manifest to canonical JSON. encoding/json marshals
// struct fields in declaration order and omits every omitempty field that
// is zero, which is exactly what the OCI Distribution spec requires of a
// manifest digest's input — there is no separate canonicalization step.
func (b ManifestBuilder) Build() (Built, error) {
	m := ocispec.Manifest{
		Versioned:    specsVersioned(),
		MediaType:    ManifestMediaType,
		ArtifactType: PackageArtifactType,
		Config:       b.Config.Descriptor,
		Layers:       []ocispec.Descriptor{b.Layer.Descriptor},
		Annotations:  b.Annotations,
	}
	content, err := json.Marshal(m)
	if err != nil {
		return Built{}, fmt.Errorf("ociobj: marshal manifest: %w", err)
	}
	return Built{
		Descriptor: ocispec.Descriptor{
			MediaType:    ManifestMediaType,
			ArtifactType: PackageArtifactType,
			Digest:       blob.DigestOf(content),
			Size:         int64(len(content)),
		},
		Content: content,
	}, nil
}

// Push uploads the config blob, the layer blob, and finally the manifest
// itself (addressed only by digest — the manifest is never tagged directly,
// only referenced from the index). Returns the manifest's Descriptor for
// the caller to fold into an index.
func (b ManifestBuilder) Push(ctx context.Context, reg Registry, name string) (ocispec.Descriptor, error) {
	built, err := b.Build()
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := b.Config.Push(ctx, reg, name); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := b.Layer.Push(ctx, reg, name); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := reg.PushManifestByDigest(ctx, name, ManifestMediaType, built.Descriptor.Digest, built.Content); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("ociobj: push manifest: %w", err)
	}
	return built.Descriptor, nil
}

// PullManifest fetches and parses the manifest addressed by desc.
func PullManifest(ctx context.Context, reg Registry, name string, desc ocispec.Descriptor) (ocispec.Manifest, error) {
	content, _, err := reg.PullManifest(ctx, name, desc.Digest.String(), ManifestMediaType)
	if err != nil {
		return ocispec.Manifest{}, fmt.Errorf("ociobj: pull manifest: %w", err)
	}
	var m ocispec.Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return ocispec.Manifest{}, fmt.Errorf("ociobj: parse manifest: %w", err)
	}
	return m, nil
}

func specsVersioned() ocispec.Versioned {
	return ocispec.Versioned{SchemaVersion: 2}
}
