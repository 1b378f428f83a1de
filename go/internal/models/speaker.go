package models

import (
	"time"
)

// Speaker is one timed speaker. The zero value is a stopped speaker with no
// accumulated time.
type Speaker struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FaceURL       string `json:"faceUrl,omitempty"` // legacy, read for old files only
	ImageFilename string `json:"imageFilename,omitempty"`
	// AccumulatedMillis is time accrued by earlier runs, not counting the
	// current one.
	AccumulatedMillis int64 `json:"elapsedMillis"`
	Running           bool  `json:"running"`

	startedAt time.Time // set iff Running
}

// SpeakerView is the read-only form handed to clients, with live elapsed time
// already materialized.
type SpeakerView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FaceURL       string `json:"faceUrl,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
	ElapsedMillis int64  `json:"elapsedMillis"`
	Running       bool   `json:"running"`
}

// Start begins a run at now. No-op if already running.
func (s *Speaker) Start(now time.Time) {
	if s.Running {
		return
	}
	s.Running = true
	s.startedAt = now
}

// Stop folds the current run into AccumulatedMillis. No-op if stopped.
func (s *Speaker) Stop(now time.Time) {
	if !s.Running {
		return
	}
	s.AccumulatedMillis += runMillis(s.startedAt, now)
	s.Running = false
	s.startedAt = time.Time{}
}

// Reset clears all accumulated time and stops the speaker.
func (s *Speaker) Reset() {
	s.Running = false
	s.AccumulatedMillis = 0
	s.startedAt = time.Time{}
}

// Sanitize drops any running state, keeping accumulated time as is. Used on
// records read back from storage.
func (s *Speaker) Sanitize() {
	s.Running = false
	s.startedAt = time.Time{}
}

// IsDefault reports whether the speaker is stopped with nothing accumulated.
func (s Speaker) IsDefault() bool {
	return !s.Running && s.AccumulatedMillis == 0
}

// LiveElapsed returns accumulated time plus the current run, if any.
func (s Speaker) LiveElapsed(now time.Time) int64 {
	if !s.Running {
		return s.AccumulatedMillis
	}
	return s.AccumulatedMillis + runMillis(s.startedAt, now)
}

// View materializes the speaker at now.
func (s Speaker) View(now time.Time) SpeakerView {
	return SpeakerView{
		ID:            s.ID,
		Name:          s.Name,
		FaceURL:       s.FaceURL,
		ImageFilename: s.ImageFilename,
		ElapsedMillis: s.LiveElapsed(now),
		Running:       s.Running,
	}
}

// runMillis never goes negative, even if the wall clock stepped back.
func runMillis(from, to time.Time) int64 {
	d := to.Sub(from).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
