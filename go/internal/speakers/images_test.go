package speakers

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageFilename(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/png", "s1.png"},
		{"image/jpeg", "s1.jpg"},
		{"IMAGE/WEBP", "s1.webp"},
		{"application/pdf", "s1.bin"},
		{"", "s1.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := ImageFilename("s1", tt.contentType); got != tt.want {
				t.Errorf("ImageFilename(%q) = %q, want %q", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestImageContentType(t *testing.T) {
	if got := ImageContentType("a.JPEG"); got != "image/jpeg" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := ImageContentType("a.bin"); got != "application/octet-stream" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestDiskImageStore_SaveOpenDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	store := NewDiskImageStore(dir)
	payload := []byte("\x89PNG fake image")

	if err := store.SaveImage("s1.png", bytes.NewReader(payload)); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := store.OpenImage("s1.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, _ := io.ReadAll(f)
	f.Close()
	if !bytes.Equal(got, payload) {
		t.Errorf("expected stored bytes back, got %q", got)
	}

	if err := store.DeleteImage("s1.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "s1.png")); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected file to be removed")
	}
	if err := store.DeleteImage("s1.png"); err != nil {
		t.Errorf("deleting a missing image should succeed, got %v", err)
	}
}

func TestDiskImageStore_TooLarge(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskImageStore(dir)
	body := io.LimitReader(zeroReader{}, MaxImageBytes+10)

	err := store.SaveImage("big.png", body)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "big.png")); !errors.Is(err, os.ErrNotExist) {
		t.Error("oversized upload must not be left on disk")
	}
}

func TestDiskImageStore_ExactlyMaxSize(t *testing.T) {
	store := NewDiskImageStore(t.TempDir())
	body := io.LimitReader(zeroReader{}, MaxImageBytes)

	if err := store.SaveImage("max.png", body); err != nil {
		t.Errorf("expected upload at the limit to succeed, got %v", err)
	}
}

func TestDiskImageStore_RejectsPaths(t *testing.T) {
	store := NewDiskImageStore(t.TempDir())

	for _, name := range []string{"", ".", "..", "../escape.png", "nested/a.png"} {
		if _, err := store.OpenImage(name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
		if err := store.DeleteImage(name); err == nil {
			t.Errorf("expected delete of %q to be rejected", name)
		}
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestDiskImageStore_FailedReplaceKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskImageStore(dir)
	original := []byte("original face")

	if err := store.SaveImage("s1.png", bytes.NewReader(original)); err != nil {
		t.Fatalf("save: %v", err)
	}

	big := io.LimitReader(zeroReader{}, MaxImageBytes+1)
	if err := store.SaveImage("s1.png", big); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "s1.png"))
	if err != nil {
		t.Fatalf("existing image was removed: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("existing image was modified, got %q", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only s1.png left, got %v", names)
	}
}

func TestDiskImageStore_ReadErrorKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskImageStore(dir)
	if err := store.SaveImage("s1.png", strings.NewReader("original")); err != nil {
		t.Fatal(err)
	}

	broken := io.MultiReader(strings.NewReader("partial"), failingReader{})
	if err := store.SaveImage("s1.png", broken); err == nil {
		t.Fatal("expected error from broken upload")
	}

	got, _ := os.ReadFile(filepath.Join(dir, "s1.png"))
	if string(got) != "original" {
		t.Errorf("expected original image kept, got %q", got)
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}
