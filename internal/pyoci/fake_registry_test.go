package pyoci

import (
	"context"
	"fmt"
	"sync"

	digest "github.com/opencontainers/go-digest"
)

// fakeRegistry is an in-memory registry double, scoped per repository name,
// sufficient to exercise publish/list/pull end to end without a network.
type fakeRegistry struct {
	mu        sync.Mutex
	blobs     map[string]map[digest.Digest][]byte
	manifests map[string]map[string][]byte
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		blobs:     map[string]map[digest.Digest][]byte{},
		manifests: map[string]map[string][]byte{},
	}
}

func (f *fakeRegistry) PushBlob(_ context.Context, name string, dgst digest.Digest, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobs[name] == nil {
		f.blobs[name] = map[digest.Digest][]byte{}
	}
	f.blobs[name][dgst] = content
	return nil
}

func (f *fakeRegistry) PushManifestTagged(_ context.Context, name, reference, _ string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifests[name] == nil {
		f.manifests[name] = map[string][]byte{}
	}
	f.manifests[name][reference] = content
	return nil
}

func (f *fakeRegistry) PushManifestByDigest(ctx context.Context, name, mediaType string, dgst digest.Digest, content []byte) error {
	return f.PushManifestTagged(ctx, name, dgst.String(), mediaType, content)
}

func (f *fakeRegistry) PullManifest(_ context.Context, name, reference string, _ ...string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.manifests[name][reference]
	if !ok {
		return nil, "", fmt.Errorf("fakeRegistry: manifest %s:%s not found", name, reference)
	}
	return content, "", nil
}

func (f *fakeRegistry) PullBlob(_ context.Context, name string, dgst digest.Digest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.blobs[name][dgst]
	if !ok {
		return nil, fmt.Errorf("fakeRegistry: blob %s:%s not found", name, dgst)
	}
	return content, nil
}

func (f *fakeRegistry) ListTags(_ context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.manifests[name]; !ok {
		return nil, fmt.Errorf("fakeRegistry: repository %s not found", name)
	}
	var tags []string
	for ref := range f.manifests[name] {
		// Manifests pushed by digest are stored under their digest; a
		// registry's tag list holds only tags.
		if _, err := digest.Parse(ref); err == nil {
			continue
		}
		tags = append(tags, ref)
	}
	return tags, nil
}
