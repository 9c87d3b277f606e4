package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// fakeOCIRegistry is a minimal, in-memory implementation of the handful of
// OCI Distribution endpoints registryclient.Client speaks, run as a real
// httptest.Server so the full stack (server → pyoci → registryclient →
// HTTP) can be exercised without a real registry. It requires no auth: a
// GET /v2/ always succeeds, matching an anonymous-pull-enabled registry.
type fakeOCIRegistry struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	manifests map[string][]byte
	uploads   map[string]bool
}

func newFakeOCIRegistry() *httptest.Server {
	f := &fakeOCIRegistry{
		blobs:     map[string][]byte{},
		manifests: map[string][]byte{},
		uploads:   map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", f.handle)
	return httptest.NewServer(mux)
}

func (f *fakeOCIRegistry) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/v2/" {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch {
	case matchSuffix(r.URL.Path, "/blobs/uploads/") && r.Method == http.MethodPost:
		id := fmt.Sprintf("upload-%d", len(f.uploads)+1)
		f.uploads[id] = true
		w.Header().Set("Location", r.URL.Path+id)
		w.WriteHeader(http.StatusAccepted)
		return
	case containsSegment(r.URL.Path, "/blobs/uploads/") && r.Method == http.MethodPut:
		dgst := r.URL.Query().Get("digest")
		content, _ := io.ReadAll(r.Body)
		f.blobs[dgst] = content
		w.WriteHeader(http.StatusCreated)
		return
	case containsSegment(r.URL.Path, "/blobs/") && r.Method == http.MethodHead:
		dgst := lastSegment(r.URL.Path)
		if _, ok := f.blobs[dgst]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	case containsSegment(r.URL.Path, "/blobs/") && r.Method == http.MethodGet:
		dgst := lastSegment(r.URL.Path)
		content, ok := f.blobs[dgst]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(content)
		return
	case containsSegment(r.URL.Path, "/manifests/") && r.Method == http.MethodHead:
		ref := lastSegment(r.URL.Path)
		if _, ok := f.manifests[manifestKey(r.URL.Path, ref)]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	case containsSegment(r.URL.Path, "/manifests/") && r.Method == http.MethodPut:
		ref := lastSegment(r.URL.Path)
		content, _ := io.ReadAll(r.Body)
		f.manifests[manifestKey(r.URL.Path, ref)] = content
		w.WriteHeader(http.StatusCreated)
		return
	case containsSegment(r.URL.Path, "/manifests/") && r.Method == http.MethodGet:
		ref := lastSegment(r.URL.Path)
		content, ok := f.manifests[manifestKey(r.URL.Path, ref)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(content)
		return
	case containsSegment(r.URL.Path, "/tags/list") && r.Method == http.MethodGet:
		name := repoNameFromTagsPath(r.URL.Path)
		var tags []string
		for key := range f.manifests {
			if repo, tag, ok := splitManifestKey(key); ok && repo == name {
				tags = append(tags, tag)
			}
		}
		if len(tags) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"tags": tags})
		return
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func manifestKey(path, ref string) string {
	repo := repoNameFromManifestsPath(path)
	return repo + "@" + ref
}

func splitManifestKey(key string) (repo, ref string, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '@' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func repoNameFromManifestsPath(path string) string {
	const suffix = "/manifests/"
	idx := lastIndex(path, suffix)
	return path[len("/v2/"):idx]
}

func repoNameFromTagsPath(path string) string {
	const suffix = "/tags/list"
	idx := lastIndex(path, suffix)
	return path[len("/v2/"):idx]
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func matchSuffix(path, suffix string) bool {
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}

func containsSegment(path, segment string) bool {
	return lastIndex(path, segment) >= 0
}

func lastIndex(s, substr string) int {
	for i := len(s) - len(substr); i >= 0; i-- {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
