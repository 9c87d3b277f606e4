// Package ociobj models the OCI data objects PyOCI pushes and pulls:
// content-addressed blobs, manifests, and multi-platform indexes. Every type
// here serializes to exactly the JSON the OCI Distribution spec expects —
// declared field order, null fields omitted — since encoding/json already
// marshals struct fields in declaration order, the image-spec types need no
// custom MarshalJSON.
package ociobj

import (
	"context"

	digest "github.com/opencontainers/go-digest"
)

// Registry is the subset of registryclient.Client that ociobj depends on.
// Defining it here, rather than importing the concrete type, keeps this
// package testable against an in-memory fake and keeps registryclient free
// of any OCI-object-shape knowledge.
type Registry interface {
	PushBlob(ctx context.Context, name string, dgst digest.Digest, content []byte) error
	PushManifestTagged(ctx context.Context, name, reference, mediaType string, content []byte) error
	PushManifestByDigest(ctx context.Context, name, mediaType string, dgst digest.Digest, content []byte) error
	PullManifest(ctx context.Context, name, reference string, accept ...string) ([]byte, string, error)
	PullBlob(ctx context.Context, name string, dgst digest.Digest) ([]byte, error)
	ListTags(ctx context.Context, name string) ([]string, error)
}
