package ociobj

import (
	"context"
	"encoding/json"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/abcxyz/pkg/logging"

	"github.com/AllexVeldman/pyoci/internal/blob"
)

// IndexMediaType is the media type of the tagged object listing one
// manifest per wheel-compatibility tag (or the single sdist manifest) for a
// package version.
const IndexMediaType = ocispec.MediaTypeImageIndex

// Index is the multi-platform object a package version is published and
// pulled under. Each entry's Platform.Architecture carries the file's
// architecture as pkgname parses it rather than a CPU architecture: the
// wheel tail (e.g. "cp311-cp311-manylinux_2_17_x86_64.whl") for a wheel, or
// ".tar.gz" for an sdist.
type Index struct {
	ocispec.Index
}

// NewEmptyIndex returns an index with no manifests, ready for AddManifest.
func NewEmptyIndex() *Index {
	return &Index{
		Index: ocispec.Index{
			Versioned:    specsVersioned(),
			MediaType:    IndexMediaType,
			ArtifactType: PackageArtifactType,
			Manifests:    []ocispec.Descriptor{},
		},
	}
}

// PlatformDescriptorFromManifest attaches architecture (a wheel tail, or
// ".tar.gz" for an sdist) to manifestDesc's Platform field so it can be
// folded into an Index.
func PlatformDescriptorFromManifest(manifestDesc ocispec.Descriptor, architecture string) ocispec.Descriptor {
	manifestDesc.Platform = &ocispec.Platform{
		Architecture: architecture,
		OS:           "any",
	}
	return manifestDesc
}

// AddManifest upserts desc into the index by its Platform.Architecture.
//
//   - no existing entry for this architecture: append.
//   - existing entry, same digest: no-op (the idempotent republish case).
//   - existing entry, different digest: overwrite and log a warning — this
//     is the "republish with different content" case and is surprising
//     enough in production to want a trace of it.
func (idx *Index) AddManifest(ctx context.Context, desc ocispec.Descriptor) {
	arch := ""
	if desc.Platform != nil {
		arch = desc.Platform.Architecture
	}

	for i, existing := range idx.Manifests {
		existingArch := ""
		if existing.Platform != nil {
			existingArch = existing.Platform.Architecture
		}
		if existingArch != arch {
			continue
		}
		if existing.Digest == desc.Digest {
			return
		}
		logging.FromContext(ctx).WarnContext(ctx, "architecture already present with different content, overwriting",
			"architecture", arch, "old_digest", existing.Digest, "new_digest", desc.Digest)
		idx.Manifests[i] = desc
		return
	}
	idx.Manifests = append(idx.Manifests, desc)
}

// Build renders the index to canonical JSON and its addressing Descriptor.
func (idx *Index) Build() (Built, error) {
	content, err := json.Marshal(idx.Index)
	if err != nil {
		return Built{}, fmt.Errorf("ociobj: marshal index: %w", err)
	}
	return Built{
		Descriptor: ocispec.Descriptor{
			MediaType:    IndexMediaType,
			ArtifactType: PackageArtifactType,
			Digest:       blob.DigestOf(content),
			Size:         int64(len(content)),
		},
		Content: content,
	}, nil
}

// Push tags the index's canonical JSON as reference (the package version).
// Unlike a manifest, an index is always tagged: it is the object clients
// request by version.
func (idx *Index) Push(ctx context.Context, reg Registry, name, reference string) error {
	built, err := idx.Build()
	if err != nil {
		return err
	}
	if err := reg.PushManifestTagged(ctx, name, reference, IndexMediaType, built.Content); err != nil {
		return fmt.Errorf("ociobj: push index: %w", err)
	}
	return nil
}

// PullIndex fetches the index tagged reference. Any failure — not-found,
// a non-index media type, a parse error — is treated as "no prior index":
// the caller gets a fresh empty index rather than an error, since that
// failure just means this is the first manifest ever published for this
// reference, which is an ordinary and expected publish-time state, not a
// fault.
func PullIndex(ctx context.Context, reg Registry, name, reference string) *Index {
	content, _, err := reg.PullManifest(ctx, name, reference, IndexMediaType)
	if err != nil {
		logging.FromContext(ctx).DebugContext(ctx, "no existing index, starting empty", "name", name, "reference", reference, "reason", err)
		return NewEmptyIndex()
	}

	var idx ocispec.Index
	if err := json.Unmarshal(content, &idx); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "existing index unparsable, starting empty", "name", name, "reference", reference, "reason", err)
		return NewEmptyIndex()
	}
	if idx.MediaType != IndexMediaType {
		logging.FromContext(ctx).WarnContext(ctx, "existing object is not an index, starting empty", "name", name, "reference", reference, "media_type", idx.MediaType)
		return NewEmptyIndex()
	}
	return &Index{Index: idx}
}
