package speakers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps a single speaker image upload.
const MaxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DiskImageStore keeps speaker images as flat files in one directory
type DiskImageStore struct {
	dir string
}

// NewDiskImageStore creates an image store rooted at dir
func NewDiskImageStore(dir string) *DiskImageStore {
	return &DiskImageStore{dir: dir}
}

// ImageFilename names the stored file for a speaker and upload content type.
func ImageFilename(speakerID, contentType string) string {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		ext = ".bin"
	}
	return speakerID + ext
}

// ImageContentType guesses the content type of a stored file from its name.
func ImageContentType(filename string) string {
	if ct, ok := imageContentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SaveImage streams body into filename. Uploads over MaxImageBytes are
// rejected with ErrImageTooLarge. The previous file under that name is only
// replaced once the upload is complete.
func (d *DiskImageStore) SaveImage(filename string, body io.Reader) error {
	path, err := d.path(filename)
	if err != nil {
		return err
	}

	err = writeFileAtomic(path, func(w io.Writer) error {
		written, err := io.Copy(w, io.LimitReader(body, MaxImageBytes+1))
		if err != nil {
			return err
		}
		if written > MaxImageBytes {
			return ErrImageTooLarge
		}
		return nil
	})
	if errors.Is(err, ErrImageTooLarge) {
		return ErrImageTooLarge
	}
	if err != nil {
		return fmt.Errorf("failed to save image %s: %w", filename, err)
	}
	return nil
}

// OpenImage opens a stored image for reading.
func (d *DiskImageStore) OpenImage(filename string) (*os.File, error) {
	path, err := d.path(filename)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// DeleteImage removes a stored image. Missing files are not an error.
func (d *DiskImageStore) DeleteImage(filename string) error {
	path, err := d.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete image file: %w", err)
	}
	return nil
}

// path keeps every file inside dir.
func (d *DiskImageStore) path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid image filename %q", filename)
	}
	return filepath.Join(d.dir, filename), nil
}
