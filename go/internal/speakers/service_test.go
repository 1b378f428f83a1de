package speakers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/lopixlabs/polichrono/go/internal/models"
)

type countingBroadcaster struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingBroadcaster() *countingBroadcaster {
	return &countingBroadcaster{counts: map[string]int{}}
}

func (b *countingBroadcaster) inc(kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[kind]++
}

func (b *countingBroadcaster) count(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[kind]
}

func (b *countingBroadcaster) BroadcastState()      { b.inc("state") }
func (b *countingBroadcaster) BroadcastAutoStop()   { b.inc("autoStop") }
func (b *countingBroadcaster) BroadcastTitle()      { b.inc("title") }
func (b *countingBroadcaster) BroadcastSize()       { b.inc("size") }
func (b *countingBroadcaster) BroadcastSizeMain()   { b.inc("sizeMain") }
func (b *countingBroadcaster) BroadcastReloadMain() { b.inc("reloadMain") }

type testServer struct {
	router      *mux.Router
	app         *App
	repo        *memoryRepository
	images      *DiskImageStore
	imagesDir   string
	broadcaster *countingBroadcaster
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	repo := &memoryRepository{}
	images := NewDiskImageStore(dir)
	app := NewApp(repo, images, clockwork.NewFakeClock(), Defaults{AutoStop: true, Title: "Panel"})
	broadcaster := newCountingBroadcaster()

	router := mux.NewRouter()
	NewService(app, images, broadcaster).RegisterRoutes(router)

	return &testServer{
		router:      router,
		app:         app,
		repo:        repo,
		images:      images,
		imagesDir:   dir,
		broadcaster: broadcaster,
	}
}

func (ts *testServer) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return ts.do(method, path, reader, "application/json")
}

func (ts *testServer) create(t *testing.T, name string) models.SpeakerView {
	t.Helper()
	rec := ts.doJSON(http.MethodPost, "/api/speakers", `{"name":"`+name+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create %s: status %d: %s", name, rec.Code, rec.Body.String())
	}
	var s models.SpeakerView
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode created speaker: %v", err)
	}
	return s
}

func TestService_CreateAndList(t *testing.T) {
	ts := newTestServer(t)

	created := ts.create(t, "  Ada  ")
	if created.Name != "Ada" || created.ID == "" {
		t.Errorf("unexpected created speaker %+v", created)
	}
	if ts.broadcaster.count("state") != 1 {
		t.Errorf("expected one state broadcast, got %d", ts.broadcaster.count("state"))
	}

	rec := ts.doJSON(http.MethodGet, "/api/speakers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one speaker, got %d", len(list))
	}
	for _, key := range []string{"id", "name", "elapsedMillis", "running"} {
		if _, ok := list[0][key]; !ok {
			t.Errorf("expected %q in speaker JSON", key)
		}
	}
}

func TestService_CreateInvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(http.MethodPost, "/api/speakers", "{oops")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if ts.broadcaster.count("state") != 0 {
		t.Error("rejected request must not broadcast")
	}
}

func TestService_StartStop(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")
	b := ts.create(t, "B")

	if rec := ts.doJSON(http.MethodPost, "/api/speakers/"+a.ID+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start a: %d", rec.Code)
	}
	if rec := ts.doJSON(http.MethodPost, "/api/speakers/"+b.ID+"/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start b: %d", rec.Code)
	}

	state := running(ts.app)
	if state[a.ID] || !state[b.ID] {
		t.Errorf("expected only B running with autostop, got %v", state)
	}

	if rec := ts.doJSON(http.MethodPost, "/api/speakers/"+b.ID+"/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop b: %d", rec.Code)
	}
	if ts.app.AnyRunning() {
		t.Error("expected nothing running")
	}

	// two creates, two starts, one stop
	if got := ts.broadcaster.count("state"); got != 5 {
		t.Errorf("expected 5 state broadcasts, got %d", got)
	}
}

func TestService_UnknownSpeaker(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/speakers/missing/start", ""},
		{http.MethodPost, "/api/speakers/missing/stop", ""},
		{http.MethodPut, "/api/speakers/missing", `{"name":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := ts.doJSON(tt.method, tt.path, tt.body)
			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404, got %d", rec.Code)
			}
			var body errorResponse
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body.OK || body.Reason == "" {
				t.Errorf("expected error body, got %+v", body)
			}
		})
	}

	if ts.broadcaster.count("state") != 0 {
		t.Error("not-found mutations must not broadcast")
	}
}

func TestService_DeleteUnknownIsNoContent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(http.MethodDelete, "/api/speakers/missing", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestService_PersistFailureStillBroadcasts(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")
	ts.repo.saveErr = errors.New("read-only filesystem")
	before := ts.broadcaster.count("state")

	rec := ts.doJSON(http.MethodPost, "/api/speakers/"+a.ID+"/start", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if ts.broadcaster.count("state") != before+1 {
		t.Error("applied change must still be broadcast")
	}
	if !ts.app.AnyRunning() {
		t.Error("expected speaker running in memory")
	}
}

func TestService_Reorder(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")
	b := ts.create(t, "B")
	c := ts.create(t, "C")

	rec := ts.doJSON(http.MethodPost, "/api/speakers/reorder", `["`+c.ID+`","`+a.ID+`"]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder: %d", rec.Code)
	}

	got := ids(ts.app.List())
	want := []string{c.ID, a.ID, b.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if rec := ts.doJSON(http.MethodPost, "/api/speakers/reorder", `{"not":"a list"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-array body, got %d", rec.Code)
	}
}

func TestService_StopAllAndResetAll(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")
	ts.doJSON(http.MethodPost, "/api/speakers/"+a.ID+"/start", "")

	if rec := ts.doJSON(http.MethodPost, "/api/speakers/stopAll", ""); rec.Code != http.StatusOK {
		t.Fatalf("stopAll: %d", rec.Code)
	}
	if ts.app.AnyRunning() {
		t.Error("expected nothing running")
	}
	if rec := ts.doJSON(http.MethodPost, "/api/speakers/resetAll", ""); rec.Code != http.StatusOK {
		t.Fatalf("resetAll: %d", rec.Code)
	}
}

func TestService_AutoStop(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		body string
		want bool
	}{
		{`{"enabled":false}`, false},
		{`{"enabled":"true"}`, true},
		{`{"enabled":"nope"}`, false},
		{`{}`, false},
	}

	for _, tt := range tests {
		rec := ts.doJSON(http.MethodPost, "/api/speakers/autoStop", tt.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tt.body, rec.Code)
		}
		var resp AutoStopResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Enabled != tt.want {
			t.Errorf("%s: expected enabled=%v, got %v", tt.body, tt.want, resp.Enabled)
		}
	}

	if got := ts.broadcaster.count("autoStop"); got != len(tests) {
		t.Errorf("expected %d autoStop broadcasts, got %d", len(tests), got)
	}
}

func TestService_Title(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(http.MethodGet, "/api/speakers/title", "")
	var resp TitleResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Title != "Panel" {
		t.Errorf("expected default title, got %q", resp.Title)
	}

	rec = ts.doJSON(http.MethodPost, "/api/speakers/title", `{"title":42}`)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Title != "42" {
		t.Errorf("expected stringified title, got %q", resp.Title)
	}

	ts.doJSON(http.MethodPost, "/api/speakers/title", `{"title":""}`)
	if ts.app.Title() != "" {
		t.Errorf("expected empty title to be accepted, got %q", ts.app.Title())
	}
	if ts.broadcaster.count("title") != 2 {
		t.Errorf("expected 2 title broadcasts, got %d", ts.broadcaster.count("title"))
	}
}

func TestService_SizeClamped(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.doJSON(http.MethodPost, "/api/speakers/size", `{"cardWidth":5000,"textScale":"10","actionSize":64}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("size: %d", rec.Code)
	}
	var size models.AdminSize
	json.Unmarshal(rec.Body.Bytes(), &size)
	if size.CardWidth != models.MaxCardWidth || size.TextScale != models.MinTextScale || size.ActionSize != 64 {
		t.Errorf("unexpected clamped size %+v", size)
	}

	rec = ts.doJSON(http.MethodPost, "/api/speakers/sizeMain", `{"textScale":150}`)
	var main models.UISize
	json.Unmarshal(rec.Body.Bytes(), &main)
	if main.CardWidth != models.DefaultCardWidth || main.TextScale != 150 {
		t.Errorf("unexpected audience size %+v", main)
	}

	if ts.broadcaster.count("size") != 1 || ts.broadcaster.count("sizeMain") != 1 {
		t.Errorf("expected one size and one sizeMain broadcast, got %v", ts.broadcaster.counts)
	}
}

func TestService_ReloadMain(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.doJSON(http.MethodPost, "/api/speakers/reloadMain", ""); rec.Code != http.StatusOK {
		t.Fatalf("reloadMain: %d", rec.Code)
	}
	if ts.broadcaster.count("reloadMain") != 1 {
		t.Error("expected reloadMain broadcast")
	}
}

func TestService_ImageUploadAndServe(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")
	payload := []byte("fake png bytes")

	rec := ts.do(http.MethodPost, "/api/speakers/"+a.ID+"/image", bytes.NewReader(payload), "image/png")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != a.ID+".png" {
		t.Errorf("expected stored filename, got %q", rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/api/speakers/"+a.ID+"/image", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get image: %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("unexpected image body %q", rec.Body.Bytes())
	}

	// replacing with another type removes the old file
	rec = ts.do(http.MethodPost, "/api/speakers/"+a.ID+"/image", bytes.NewReader(payload), "image/jpeg")
	if rec.Code != http.StatusOK {
		t.Fatalf("replace: %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(ts.imagesDir, a.ID+".png")); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected replaced image to be removed")
	}

	// deleting the speaker removes its image
	ts.doJSON(http.MethodDelete, "/api/speakers/"+a.ID, "")
	if _, err := os.Stat(filepath.Join(ts.imagesDir, a.ID+".jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected image removed with speaker")
	}
}

func TestService_ImageErrors(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")

	rec := ts.do(http.MethodPost, "/api/speakers/missing/image", strings.NewReader("x"), "image/png")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown speaker, got %d", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/speakers/"+a.ID+"/image", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for speaker without image, got %d", rec.Code)
	}

	big := io.LimitReader(zeroReader{}, MaxImageBytes+1)
	rec = ts.do(http.MethodPost, "/api/speakers/"+a.ID+"/image", big, "image/png")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if got, _ := ts.app.Get(a.ID); got.ImageFilename != "" {
		t.Errorf("oversized upload must not be recorded, got %q", got.ImageFilename)
	}
}

func TestService_OversizedReplaceKeepsServingImage(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t, "A")
	payload := []byte("current face")

	if rec := ts.do(http.MethodPost, "/api/speakers/"+a.ID+"/image", bytes.NewReader(payload), "image/png"); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d", rec.Code)
	}

	big := io.LimitReader(zeroReader{}, MaxImageBytes+1)
	if rec := ts.do(http.MethodPost, "/api/speakers/"+a.ID+"/image", big, "image/png"); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}

	rec := ts.do(http.MethodGet, "/api/speakers/"+a.ID+"/image", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected current image still served, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("unexpected image body %q", rec.Body.Bytes())
	}
}
