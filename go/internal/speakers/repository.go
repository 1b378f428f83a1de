package speakers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lopixlabs/polichrono/go/internal/models"
	"github.com/rs/zerolog/log"
)

// speakerRecord is the durable form of a speaker. Running is always written
// as false so a crash never resumes a run.
type speakerRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FaceURL       string `json:"faceUrl,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
	ElapsedMillis int64  `json:"elapsedMillis"`
	Running       bool   `json:"running"`
}

// FileRepository stores the speaker list as a JSON array in a single file
type FileRepository struct {
	filePath string
}

// NewFileRepository creates a repository backed by filePath
func NewFileRepository(filePath string) *FileRepository {
	return &FileRepository{filePath: filePath}
}

// LoadSpeakers reads the speaker file. A missing file is created holding an
// empty list.
func (r *FileRepository) LoadSpeakers(ctx context.Context) ([]models.Speaker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.filePath)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", r.filePath).Msg("speakers file not found, creating empty list")
		if err := r.write([]byte("[]")); err != nil {
			return nil, err
		}
		return []models.Speaker{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read speakers file: %w", err)
	}

	var records []speakerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse speakers file: %w", err)
	}

	speakers := make([]models.Speaker, 0, len(records))
	for _, rec := range records {
		elapsed := rec.ElapsedMillis
		if elapsed < 0 {
			elapsed = 0
		}
		speakers = append(speakers, models.Speaker{
			ID:                rec.ID,
			Name:              rec.Name,
			FaceURL:           rec.FaceURL,
			ImageFilename:     rec.ImageFilename,
			AccumulatedMillis: elapsed,
		})
	}
	return speakers, nil
}

// SaveSpeakers writes the full list, reduced to durable fields.
func (r *FileRepository) SaveSpeakers(ctx context.Context, speakers []models.Speaker) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records := make([]speakerRecord, len(speakers))
	for i, s := range speakers {
		records[i] = speakerRecord{
			ID:            s.ID,
			Name:          s.Name,
			FaceURL:       s.FaceURL,
			ImageFilename: s.ImageFilename,
			ElapsedMillis: s.AccumulatedMillis,
			Running:       false,
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal speakers: %w", err)
	}
	return r.write(data)
}

// write replaces the speakers file atomically.
func (r *FileRepository) write(data []byte) error {
	return writeFileAtomic(r.filePath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeFileAtomic fills a temp file next to path, syncs it and renames it
// over path. On any error path is left untouched.
func writeFileAtomic(path string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
