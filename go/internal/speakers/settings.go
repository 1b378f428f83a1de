package speakers

import (
	"github.com/lopixlabs/polichrono/go/internal/models"
)

// Settings below live for the process only and are never written to the
// speakers file.

// AutoStop reports whether starting a speaker stops the others.
func (a *App) AutoStop() bool {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.autoStop
}

// SetAutoStop switches autostop and returns the new value.
func (a *App) SetAutoStop(enabled bool) bool {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()
	a.autoStop = enabled
	return a.autoStop
}

// Title returns the event title shown above the speakers.
func (a *App) Title() string {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.title
}

// SetTitle replaces the event title and returns it.
func (a *App) SetTitle(title string) string {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()
	a.title = title
	return a.title
}

// AdminSize returns the admin view sizing.
func (a *App) AdminSize() models.AdminSize {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.adminSize
}

// UpdateAdminSize overwrites the given fields, clamped into range. Nil fields
// keep their current value.
func (a *App) UpdateAdminSize(cardWidth, textScale, actionSize *int) models.AdminSize {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()

	next := a.adminSize
	if cardWidth != nil {
		next.CardWidth = *cardWidth
	}
	if textScale != nil {
		next.TextScale = *textScale
	}
	if actionSize != nil {
		next.ActionSize = *actionSize
	}
	a.adminSize = next.Clamp()
	return a.adminSize
}

// AudienceSize returns the audience (main page) sizing.
func (a *App) AudienceSize() models.UISize {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return a.audienceSize
}

// UpdateAudienceSize is UpdateAdminSize for the audience view.
func (a *App) UpdateAudienceSize(cardWidth, textScale *int) models.UISize {
	a.settingsMu.Lock()
	defer a.settingsMu.Unlock()

	next := a.audienceSize
	if cardWidth != nil {
		next.CardWidth = *cardWidth
	}
	if textScale != nil {
		next.TextScale = *textScale
	}
	a.audienceSize = next.Clamp()
	return a.audienceSize
}
