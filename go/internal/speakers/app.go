package speakers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lopixlabs/polichrono/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SpeakersRepository defines what the app layer needs from durable storage
type SpeakersRepository interface {
	LoadSpeakers(ctx context.Context) ([]models.Speaker, error)
	SaveSpeakers(ctx context.Context, speakers []models.Speaker) error
}

// ImageRemover deletes a stored speaker image by file name
type ImageRemover interface {
	DeleteImage(filename string) error
}

// Defaults seeds the process-lifetime settings at startup
type Defaults struct {
	AutoStop bool
	Title    string
}

// App owns the ordered speaker list and every timer mutation.
//
// All mutations run under mu, covering read, mutate and save. After each
// mutation an immutable copy of the list is published to snapshot, so List
// and AnyRunning never take mu and never wait on disk I/O.
type App struct {
	repo   SpeakersRepository
	images ImageRemover
	clock  clockwork.Clock

	mu       sync.Mutex
	speakers []*models.Speaker
	snapshot atomic.Pointer[[]models.Speaker]

	settingsMu   sync.RWMutex
	autoStop     bool
	title        string
	adminSize    models.AdminSize
	audienceSize models.UISize
}

// NewApp creates a new speakers App with an empty list. Call Load to read
// persisted speakers.
func NewApp(repo SpeakersRepository, images ImageRemover, clock clockwork.Clock, defaults Defaults) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &App{
		repo:     repo,
		images:   images,
		clock:    clock,
		autoStop: defaults.AutoStop,
		title:    defaults.Title,
		adminSize: models.AdminSize{
			UISize:     models.DefaultUISize(),
			ActionSize: models.DefaultActionSize,
		},
		audienceSize: models.DefaultUISize(),
	}
	a.publishLocked()
	return a
}

// Load replaces the in-memory list with the persisted one. Every loaded
// speaker comes back stopped. On error the list is left empty.
func (a *App) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.speakers = nil
	defer a.publishLocked()

	loaded, err := a.repo.LoadSpeakers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load speakers: %w", err)
	}

	seen := make(map[string]bool, len(loaded))
	for i := range loaded {
		s := loaded[i]
		if s.ID == "" || seen[s.ID] {
			log.Warn().Str("speaker_id", s.ID).Str("name", s.Name).Msg("skipping speaker with empty or duplicate id")
			continue
		}
		seen[s.ID] = true
		s.Sanitize()
		a.speakers = append(a.speakers, &s)
	}

	log.Info().Int("count", len(a.speakers)).Msg("speakers loaded")
	return nil
}

// List returns every speaker in display order with live elapsed time.
func (a *App) List() []models.SpeakerView {
	snap := *a.snapshot.Load()
	now := a.clock.Now()

	views := make([]models.SpeakerView, len(snap))
	for i, s := range snap {
		views[i] = s.View(now)
	}
	return views
}

// Get returns one speaker by id.
func (a *App) Get(id string) (models.SpeakerView, error) {
	for _, s := range *a.snapshot.Load() {
		if s.ID == id {
			return s.View(a.clock.Now()), nil
		}
	}
	return models.SpeakerView{}, ErrSpeakerNotFound
}

// AnyRunning reports whether at least one speaker is running.
func (a *App) AnyRunning() bool {
	for _, s := range *a.snapshot.Load() {
		if s.Running {
			return true
		}
	}
	return false
}

// Create appends a new stopped speaker to the end of the list.
func (a *App) Create(ctx context.Context, name, faceURL string) (models.SpeakerView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &models.Speaker{
		ID:      uuid.New().String(),
		Name:    name,
		FaceURL: faceURL,
	}
	a.speakers = append(a.speakers, s)
	a.publishLocked()

	log.Info().Str("speaker_id", s.ID).Str("name", name).Msg("speaker created")
	return s.View(a.clock.Now()), a.persistLocked(ctx)
}

// Update renames a speaker and replaces its legacy face url.
func (a *App) Update(ctx context.Context, id, name, faceURL string) (models.SpeakerView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, _ := a.findLocked(id)
	if s == nil {
		return models.SpeakerView{}, ErrSpeakerNotFound
	}
	s.Name = name
	s.FaceURL = faceURL
	a.publishLocked()

	log.Info().Str("speaker_id", id).Str("name", name).Msg("speaker updated")
	return s.View(a.clock.Now()), a.persistLocked(ctx)
}

// SetImage records the stored image file of a speaker and returns the one it
// replaces, if any.
func (a *App) SetImage(ctx context.Context, id, filename string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, _ := a.findLocked(id)
	if s == nil {
		return "", ErrSpeakerNotFound
	}
	previous := s.ImageFilename
	s.ImageFilename = filename
	a.publishLocked()

	return previous, a.persistLocked(ctx)
}

// Delete removes a speaker and its stored image. Unknown ids are ignored.
func (a *App) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, idx := a.findLocked(id)
	if s == nil {
		return nil
	}

	s.Stop(a.clock.Now())
	if strings.TrimSpace(s.ImageFilename) != "" && a.images != nil {
		if err := a.images.DeleteImage(s.ImageFilename); err != nil {
			log.Warn().Err(err).Str("speaker_id", id).Str("image", s.ImageFilename).Msg("failed to delete speaker image")
		}
	}
	a.speakers = append(a.speakers[:idx], a.speakers[idx+1:]...)
	a.publishLocked()

	log.Info().Str("speaker_id", id).Str("name", s.Name).Msg("speaker deleted")
	return a.persistLocked(ctx)
}

// Start starts a speaker. With autostop on, every other running speaker is
// stopped first. Starting a running speaker keeps its current run. The list
// is saved on every call.
func (a *App) Start(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	target, _ := a.findLocked(id)
	if target == nil {
		return ErrSpeakerNotFound
	}

	now := a.clock.Now()
	if a.AutoStop() {
		for _, s := range a.speakers {
			if s != target && s.Running {
				s.Stop(now)
				log.Debug().Str("speaker_id", s.ID).Msg("speaker auto-stopped")
			}
		}
	}
	target.Start(now)
	a.publishLocked()

	log.Info().Str("speaker_id", id).Msg("speaker started")
	return a.persistLocked(ctx)
}

// Stop stops a running speaker. Stopping a stopped speaker saves nothing.
func (a *App) Stop(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, _ := a.findLocked(id)
	if s == nil {
		return ErrSpeakerNotFound
	}
	if !s.Running {
		return nil
	}
	s.Stop(a.clock.Now())
	a.publishLocked()

	log.Info().Str("speaker_id", id).Int64("elapsed_ms", s.AccumulatedMillis).Msg("speaker stopped")
	return a.persistLocked(ctx)
}

// StopAll stops every running speaker, saving once if anything changed.
func (a *App) StopAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	changed := 0
	for _, s := range a.speakers {
		if s.Running {
			s.Stop(now)
			changed++
		}
	}
	if changed == 0 {
		return nil
	}
	a.publishLocked()

	log.Info().Int("stopped", changed).Msg("all speakers stopped")
	return a.persistLocked(ctx)
}

// ResetAll zeroes every speaker that is running or has time on it, saving
// once if anything changed.
func (a *App) ResetAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := 0
	for _, s := range a.speakers {
		if !s.IsDefault() {
			s.Reset()
			changed++
		}
	}
	if changed == 0 {
		return nil
	}
	a.publishLocked()

	log.Info().Int("reset", changed).Msg("all speakers reset")
	return a.persistLocked(ctx)
}

// Reorder moves the named speakers to the front in the given order. Speakers
// not named keep their relative order after them; unknown ids are ignored.
func (a *App) Reorder(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	byID := make(map[string]*models.Speaker, len(a.speakers))
	for _, s := range a.speakers {
		byID[s.ID] = s
	}

	reordered := make([]*models.Speaker, 0, len(a.speakers))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			reordered = append(reordered, s)
			delete(byID, id)
		}
	}
	for _, s := range a.speakers {
		if _, ok := byID[s.ID]; ok {
			reordered = append(reordered, s)
		}
	}
	a.speakers = reordered
	a.publishLocked()

	log.Info().Int("count", len(reordered)).Msg("speakers reordered")
	return a.persistLocked(ctx)
}

// findLocked returns the speaker and its index, or nil and -1.
func (a *App) findLocked(id string) (*models.Speaker, int) {
	for i, s := range a.speakers {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// publishLocked stores a value copy of the current list as the read snapshot.
func (a *App) publishLocked() {
	snap := make([]models.Speaker, len(a.speakers))
	for i, s := range a.speakers {
		snap[i] = *s
	}
	a.snapshot.Store(&snap)
}

func (a *App) persistLocked(ctx context.Context) error {
	snap := *a.snapshot.Load()
	if err := a.repo.SaveSpeakers(ctx, snap); err != nil {
		log.Error().Err(err).Msg("failed to persist speakers")
		return fmt.Errorf("failed to persist speakers: %w", errors.Join(ErrPersist, err))
	}
	return nil
}
