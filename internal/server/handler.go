package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"

	"github.com/AllexVeldman/pyoci/internal/cred"
	"github.com/AllexVeldman/pyoci/internal/pkgname"
	"github.com/AllexVeldman/pyoci/internal/pyoci"
	"github.com/AllexVeldman/pyoci/internal/registryclient"
)

const (
	maxUploadBytes = 1 << 30 // 1 GiB, generous for any real sdist/wheel

	// simpleIndexFile is the template used for both the per-package index
	// and, eventually, a landing index; it is embedded rather than read
	// from disk so the binary stays self-contained.
	simpleIndexFile = "simple.html"
)

//go:embed simple.html
var templateFS embed.FS

type indexPage struct {
	Title string
	Files []fileLink
}

type fileLink struct {
	FileName string
	FileURL  string
}

// Handler exposes the PyPI simple-repository protocol backed by an OCI
// registry at registryURL. Every request opens its own pyoci.Client scoped
// to that request's credentials; the Handler itself holds no registry
// session.
type Handler struct {
	registryURL string
	renderer    *renderer.Renderer
}

// NewHandler creates a Handler targeting registryURL.
func NewHandler(registryURL string) (*Handler, error) {
	r, err := renderer.New(context.Background(), templateFS)
	if err != nil {
		return nil, fmt.Errorf("server: create renderer: %w", err)
	}
	return &Handler{registryURL: registryURL, renderer: r}, nil
}

// Mux returns the routed handler for every simple-repository endpoint this
// façade supports.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /{$}", h.handleUpload)
	mux.HandleFunc("POST /{$}", h.handleUpload)

	mux.HandleFunc("GET /simple/{package}/", h.handlePackageIndex)
	mux.HandleFunc("GET /simple/{package}", h.handlePackageIndex)

	mux.HandleFunc("GET /files/{package}/{version}/{filename}", h.handleDownload)
	mux.HandleFunc("HEAD /files/{package}/{version}/{filename}", h.handleDownload)

	return mux
}

func (h *Handler) openClient(ctx context.Context) (*pyoci.Client, error) {
	user, pass := cred.UserPassword(ctx)
	c, err := pyoci.Open(h.registryURL, user, pass)
	if err != nil {
		return nil, fmt.Errorf("server: open registry client: %w", err)
	}
	return c, nil
}

func (h *Handler) handlePackageIndex(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	logger := logging.FromContext(ctx)
	distribution := req.PathValue("package")
	if distribution == "" {
		http.Error(w, "missing package name", http.StatusBadRequest)
		return
	}

	c, err := h.openClient(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open registry client", "error", err)
		http.Error(w, "failed to reach backend registry", http.StatusInternalServerError)
		return
	}
	defer c.Close()

	versions, err := pyoci.List(ctx, c, distribution, "")
	if err != nil {
		writeOperationError(ctx, w, err)
		return
	}

	page := indexPage{Title: distribution}
	for _, v := range versions {
		for _, filename := range v.Files {
			page.Files = append(page.Files, fileLink{
				FileName: filename,
				FileURL:  fmt.Sprintf("/files/%s/%s/%s", url.PathEscape(distribution), url.PathEscape(v.Version), url.PathEscape(filename)),
			})
		}
	}
	h.renderer.RenderHTML(w, simpleIndexFile, page)
}

func (h *Handler) handleDownload(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	logger := logging.FromContext(ctx)
	distribution := req.PathValue("package")
	version := req.PathValue("version")
	filename := req.PathValue("filename")
	if distribution == "" || version == "" || filename == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	// filename already carries its full (unsanitized) version; version is
	// the OCI-tag-safe form used in the URL path, and must match the
	// filename's.
	id, err := pkgname.Parse(filename, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if id.OCIReference() != version {
		http.Error(w, "version in path does not match filename", http.StatusBadRequest)
		return
	}

	c, err := h.openClient(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open registry client", "error", err)
		http.Error(w, "failed to reach backend registry", http.StatusInternalServerError)
		return
	}
	defer c.Close()

	content, err := pyoci.Pull(ctx, c, id)
	if err != nil {
		writeOperationError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if req.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(content); err != nil {
		logger.DebugContext(ctx, "failed to write response body", "error", err)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	logger := logging.FromContext(ctx)

	reader, err := req.MultipartReader()
	if err != nil {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}

	c, err := h.openClient(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to open registry client", "error", err)
		http.Error(w, "failed to reach backend registry", http.StatusInternalServerError)
		return
	}
	defer c.Close()

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, "malformed multipart body", http.StatusBadRequest)
			return
		}
		if part.FormName() != "content" {
			continue
		}

		content, err := io.ReadAll(io.LimitReader(part, maxUploadBytes+1))
		if err != nil {
			http.Error(w, "failed to read uploaded file", http.StatusBadRequest)
			return
		}
		if len(content) > maxUploadBytes {
			http.Error(w, "uploaded file too large", http.StatusRequestEntityTooLarge)
			return
		}

		if _, err := pyoci.Publish(ctx, c, part.FileName(), content, ""); err != nil {
			logger.DebugContext(ctx, "publish failed", "error", err)
			writeOperationError(ctx, w, err)
			return
		}
	}

	w.WriteHeader(http.StatusCreated)
}

func writeOperationError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := logging.FromContext(ctx)
	switch {
	case errors.Is(err, pyoci.ErrUnknownPackage):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pyoci.ErrUnknownArtifactType):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, pkgname.ErrInvalidName), errors.Is(err, pkgname.ErrInvalidArchitecture):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var authErr *registryclient.AuthenticationError
		if errors.As(err, &authErr) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if registryclient.HasStatusCode(err, http.StatusUnauthorized) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if registryclient.HasStatusCode(err, http.StatusForbidden) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		logger.ErrorContext(ctx, "operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
