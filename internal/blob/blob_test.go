package blob

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return s
}

func TestUploadAndServe(t *testing.T) {
	s := newTestStore(t)

	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	url, err := s.Upload(context.Background(), "d-abc.jpg", data, "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "/uploads/d-abc.jpg" {
		t.Fatalf("url = %q", url)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("serve status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatalf("served bytes differ")
	}
}

func TestUploadRejectsBadContentType(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Upload(context.Background(), "evil.svg", []byte("<svg/>"), "image/svg+xml"); err == nil {
		t.Fatal("svg upload must be rejected")
	}
	if _, err := s.Upload(context.Background(), "evil.html", []byte("<html>"), "text/html"); err == nil {
		t.Fatal("html upload must be rejected")
	}
}

func TestUploadRejectsOversized(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Upload(context.Background(), "big.png", make([]byte, MaxUploadBytes+1), "image/png"); err == nil {
		t.Fatal("oversized upload must be rejected")
	}
	if _, err := s.Upload(context.Background(), "empty.png", nil, "image/png"); err == nil {
		t.Fatal("empty upload must be rejected")
	}
}

func TestUploadConfinesPath(t *testing.T) {
	s := newTestStore(t)
	url, err := s.Upload(context.Background(), "../../etc/passwd.png", []byte{1}, "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	// Traversal components are stripped; the blob lands inside the store dir.
	if url != "/uploads/passwd.png" {
		t.Fatalf("url = %q", url)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "passwd.png")); err != nil {
		t.Fatalf("blob not in store dir: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Upload(context.Background(), "d-x.webp", []byte{1, 2}, "image/webp"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Delete(context.Background(), "d-x.webp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), "d-x.webp"); err != nil {
		t.Fatalf("Delete of missing blob must not error: %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	if ext, ok := ExtensionFor("image/jpeg"); !ok || ext != ".jpg" {
		t.Fatalf("jpeg = %q, %v", ext, ok)
	}
	if ext, ok := ExtensionFor(" IMAGE/PNG "); !ok || ext != ".png" {
		t.Fatalf("png = %q, %v", ext, ok)
	}
	if _, ok := ExtensionFor("application/pdf"); ok {
		t.Fatal("pdf must not be accepted")
	}
}
