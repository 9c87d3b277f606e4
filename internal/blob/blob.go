// Package blob provides the content-addressing primitives used throughout
// PyOCI: sha256 digests and deterministic gzip framing for layer blobs.
package blob

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	digest "github.com/opencontainers/go-digest"
)

// SHA256Hex returns the lowercase hex-encoded sha256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestOf returns the "sha256:<hex>" digest of b.
func DigestOf(b []byte) digest.Digest {
	return digest.FromBytes(b)
}

// epoch is the fixed gzip header modification time. Pinning it makes
// GzipDeterministic a pure function of its input: the same content always
// produces byte-identical compressed output, and therefore the same digest.
var epoch = time.Unix(0, 0)

// GzipDeterministic gzip-compresses content with a fixed header (mtime=0,
// no name, no comment) so that identical input always produces identical
// output. Any other gzip.Writer usage in this codebase is a bug: it would
// cause digest drift across republishes of the same file.
func GzipDeterministic(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("blob: create gzip writer: %w", err)
	}
	zw.Header.ModTime = epoch
	zw.Header.Name = ""
	zw.Header.Comment = ""

	if _, err := zw.Write(content); err != nil {
		return nil, fmt.Errorf("blob: gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("blob: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Gunzip reverses GzipDeterministic (or any other gzip stream).
func Gunzip(content []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("blob: create gzip reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("blob: gzip read: %w", err)
	}
	return out, nil
}
