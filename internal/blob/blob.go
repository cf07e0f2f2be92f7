// Package blob stores uploaded dish images on the local filesystem and
// serves them back over HTTP. The Store interface keeps an opening for an
// object-storage backend without touching the handlers.
package blob

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MaxUploadBytes caps a single image upload.
const MaxUploadBytes = 5 * 1024 * 1024 // 5 MiB

// allowedContentTypes maps accepted image MIME types to file extensions.
var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Store persists uploaded blobs and returns a public URL for each.
type Store interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, name string) error
}

// FSStore keeps blobs under a directory and serves them at publicPrefix.
type FSStore struct {
	dir          string
	publicPrefix string
}

// NewFSStore creates the blob directory if needed. publicPrefix is the URL
// path the returned URLs live under, e.g. "/uploads".
func NewFSStore(dir, publicPrefix string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{
		dir:          dir,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
	}, nil
}

// ExtensionFor returns the file extension for an accepted content type, or
// ok=false for anything outside the whitelist.
func ExtensionFor(contentType string) (string, bool) {
	ext, ok := allowedContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// Upload writes a blob via temp file and rename so readers never observe a
// partial image. name must already carry the extension from ExtensionFor.
func (s *FSStore) Upload(_ context.Context, name string, data []byte, contentType string) (string, error) {
	if _, ok := ExtensionFor(contentType); !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload")
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("upload exceeds %d bytes", MaxUploadBytes)
	}
	clean, err := s.safePath(name)
	if err != nil {
		return "", err
	}

	tmpPath := clean + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob temp file: %w", err)
	}
	if err := os.Rename(tmpPath, clean); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename blob into place: %w", err)
	}
	return s.publicPrefix + "/" + filepath.Base(clean), nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *FSStore) Delete(_ context.Context, name string) error {
	clean, err := s.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Handler serves stored blobs read-only at the store's public prefix.
func (s *FSStore) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(s.publicPrefix+"/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fs.ServeHTTP(w, r)
	}))
}

// safePath confines name to the store directory.
func (s *FSStore) safePath(name string) (string, error) {
	base := path.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == "/" || strings.Contains(base, "..") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(s.dir, base), nil
}
