package speakers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Service exposes the speakers App over JSON HTTP
type Service struct {
	app         *App
	images      *DiskImageStore
	broadcaster Broadcaster
}

// NewService creates a new speakers HTTP service
func NewService(app *App, images *DiskImageStore, broadcaster Broadcaster) *Service {
	return &Service{
		app:         app,
		images:      images,
		broadcaster: broadcaster,
	}
}

// RegisterRoutes registers the speakers API under /api/speakers
func (s *Service) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/speakers").Subrouter()

	api.HandleFunc("", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/stopAll", s.handleStopAll).Methods(http.MethodPost)
	api.HandleFunc("/resetAll", s.handleResetAll).Methods(http.MethodPost)
	api.HandleFunc("/reorder", s.handleReorder).Methods(http.MethodPost)
	api.HandleFunc("/autoStop", s.handleGetAutoStop).Methods(http.MethodGet)
	api.HandleFunc("/autoStop", s.handleSetAutoStop).Methods(http.MethodPost)
	api.HandleFunc("/title", s.handleGetTitle).Methods(http.MethodGet)
	api.HandleFunc("/title", s.handleSetTitle).Methods(http.MethodPost)
	api.HandleFunc("/size", s.handleGetSize).Methods(http.MethodGet)
	api.HandleFunc("/size", s.handleSetSize).Methods(http.MethodPost)
	api.HandleFunc("/sizeMain", s.handleGetSizeMain).Methods(http.MethodGet)
	api.HandleFunc("/sizeMain", s.handleSetSizeMain).Methods(http.MethodPost)
	api.HandleFunc("/reloadMain", s.handleReloadMain).Methods(http.MethodPost)

	api.HandleFunc("/{id}", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/{id}/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/{id}/image", s.handleUploadImage).Methods(http.MethodPost)
	api.HandleFunc("/{id}/image", s.handleGetImage).Methods(http.MethodGet)

	log.Info().Msg("speakers routes registered")
}

// GET /api/speakers
func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.app.List())
}

// POST /api/speakers
func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req SpeakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	speaker, err := s.app.Create(mutationContext(r), strings.TrimSpace(req.Name), strings.TrimSpace(req.FaceURL))
	if s.finishMutation(w, err) {
		respondWithJSON(w, http.StatusOK, speaker)
	}
}

// PUT /api/speakers/{id}
func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req SpeakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	speaker, err := s.app.Update(mutationContext(r), mux.Vars(r)["id"], strings.TrimSpace(req.Name), strings.TrimSpace(req.FaceURL))
	if s.finishMutation(w, err) {
		respondWithJSON(w, http.StatusOK, speaker)
	}
}

// DELETE /api/speakers/{id}
func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.app.Delete(mutationContext(r), mux.Vars(r)["id"])
	if s.finishMutation(w, err) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /api/speakers/{id}/start
func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	err := s.app.Start(mutationContext(r), mux.Vars(r)["id"])
	if s.finishMutation(w, err) {
		w.WriteHeader(http.StatusOK)
	}
}

// POST /api/speakers/{id}/stop
func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.app.Stop(mutationContext(r), mux.Vars(r)["id"])
	if s.finishMutation(w, err) {
		w.WriteHeader(http.StatusOK)
	}
}

// POST /api/speakers/stopAll
func (s *Service) handleStopAll(w http.ResponseWriter, r *http.Request) {
	err := s.app.StopAll(mutationContext(r))
	if s.finishMutation(w, err) {
		w.WriteHeader(http.StatusOK)
	}
}

// POST /api/speakers/resetAll
func (s *Service) handleResetAll(w http.ResponseWriter, r *http.Request) {
	err := s.app.ResetAll(mutationContext(r))
	if s.finishMutation(w, err) {
		w.WriteHeader(http.StatusOK)
	}
}

// POST /api/speakers/reorder
func (s *Service) handleReorder(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	err := s.app.Reorder(mutationContext(r), ids)
	if s.finishMutation(w, err) {
		w.WriteHeader(http.StatusOK)
	}
}

// GET /api/speakers/autoStop
func (s *Service) handleGetAutoStop(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, AutoStopResponse{Enabled: s.app.AutoStop()})
}

// POST /api/speakers/autoStop
func (s *Service) handleSetAutoStop(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	enabled := s.app.SetAutoStop(boolField(payload, "enabled"))
	s.broadcaster.BroadcastAutoStop()
	log.Info().Bool("enabled", enabled).Msg("autostop changed")
	respondWithJSON(w, http.StatusOK, AutoStopResponse{Enabled: enabled})
}

// GET /api/speakers/title
func (s *Service) handleGetTitle(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, TitleResponse{Title: s.app.Title()})
}

// POST /api/speakers/title
func (s *Service) handleSetTitle(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	var title string
	switch v := payload["title"].(type) {
	case nil:
	case string:
		title = v
	default:
		title = fmt.Sprint(v)
	}

	title = s.app.SetTitle(title)
	s.broadcaster.BroadcastTitle()
	respondWithJSON(w, http.StatusOK, TitleResponse{Title: title})
}

// GET /api/speakers/size
func (s *Service) handleGetSize(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.app.AdminSize())
}

// POST /api/speakers/size
func (s *Service) handleSetSize(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	size := s.app.UpdateAdminSize(intField(payload, "cardWidth"), intField(payload, "textScale"), intField(payload, "actionSize"))
	s.broadcaster.BroadcastSize()
	respondWithJSON(w, http.StatusOK, size)
}

// GET /api/speakers/sizeMain
func (s *Service) handleGetSizeMain(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.app.AudienceSize())
}

// POST /api/speakers/sizeMain
func (s *Service) handleSetSizeMain(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	size := s.app.UpdateAudienceSize(intField(payload, "cardWidth"), intField(payload, "textScale"))
	s.broadcaster.BroadcastSizeMain()
	respondWithJSON(w, http.StatusOK, size)
}

// POST /api/speakers/reloadMain
func (s *Service) handleReloadMain(w http.ResponseWriter, r *http.Request) {
	s.broadcaster.BroadcastReloadMain()
	w.WriteHeader(http.StatusOK)
}

// POST /api/speakers/{id}/image
func (s *Service) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.app.Get(id); err != nil {
		respondWithError(w, http.StatusNotFound, "Speaker not found")
		return
	}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	filename := ImageFilename(id, contentType)

	if err := s.images.SaveImage(filename, r.Body); err != nil {
		if errors.Is(err, ErrImageTooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Image too large (max 5MB)")
			return
		}
		log.Error().Err(err).Str("speaker_id", id).Msg("failed to save image")
		respondWithError(w, http.StatusInternalServerError, "Failed to save image")
		return
	}

	previous, err := s.app.SetImage(mutationContext(r), id, filename)
	if errors.Is(err, ErrSpeakerNotFound) {
		// deleted while uploading
		if delErr := s.images.DeleteImage(filename); delErr != nil {
			log.Warn().Err(delErr).Str("image", filename).Msg("failed to remove orphaned image")
		}
	}
	if previous != "" && previous != filename {
		if delErr := s.images.DeleteImage(previous); delErr != nil {
			log.Warn().Err(delErr).Str("image", previous).Msg("failed to delete replaced image")
		}
	}

	if s.finishMutation(w, err) {
		log.Info().Str("speaker_id", id).Str("image", filename).Msg("speaker image stored")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, filename)
	}
}

// GET /api/speakers/{id}/image
func (s *Service) handleGetImage(w http.ResponseWriter, r *http.Request) {
	speaker, err := s.app.Get(mux.Vars(r)["id"])
	if err != nil || speaker.ImageFilename == "" {
		http.NotFound(w, r)
		return
	}

	f, err := s.images.OpenImage(speaker.ImageFilename)
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("image", speaker.ImageFilename).Msg("failed to open image")
		http.Error(w, "Failed to open image", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		http.Error(w, "Failed to open image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ImageContentType(speaker.ImageFilename))
	http.ServeContent(w, r, speaker.ImageFilename, stat.ModTime(), f)
}

// finishMutation maps a speaker mutation result onto the response and
// broadcasts the new state. It returns true when the caller should write the
// success response. A failed save still broadcasts, since memory already
// holds the change.
func (s *Service) finishMutation(w http.ResponseWriter, err error) bool {
	if errors.Is(err, ErrSpeakerNotFound) {
		respondWithError(w, http.StatusNotFound, "Speaker not found")
		return false
	}

	s.broadcaster.BroadcastState()

	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Change applied but not persisted")
		return false
	}
	return true
}

// mutationContext keeps request values but drops cancellation, so a client
// hanging up cannot abort a save halfway through a mutation.
func mutationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	payload := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}
	return payload, true
}

// boolField accepts a JSON bool or any value whose text parses as one.
func boolField(payload map[string]interface{}, key string) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

// intField returns nil when the key is absent or not an integer.
func intField(payload map[string]interface{}, key string) *int {
	var n int
	switch v := payload[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return nil
		}
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

func respondWithJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, reason string) {
	respondWithJSON(w, statusCode, errorResponse{OK: false, Reason: reason})
}
