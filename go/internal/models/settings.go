package models

// Bounds for the UI preferences. Values outside are clamped, never rejected.
const (
	MinCardWidth  = 200
	MaxCardWidth  = 1000
	MinTextScale  = 50
	MaxTextScale  = 200
	MinActionSize = 32
	MaxActionSize = 96

	DefaultCardWidth  = 360
	DefaultTextScale  = 100
	DefaultActionSize = 56
)

// UISize holds the card sizing preferences of one view.
type UISize struct {
	CardWidth int `json:"cardWidth"`
	TextScale int `json:"textScale"`
}

// AdminSize is the admin view sizing, which also carries the action button size.
type AdminSize struct {
	UISize
	ActionSize int `json:"actionSize"`
}

// DefaultUISize returns the startup sizing for a view.
func DefaultUISize() UISize {
	return UISize{CardWidth: DefaultCardWidth, TextScale: DefaultTextScale}
}

// Clamp returns the size with both fields forced into range.
func (u UISize) Clamp() UISize {
	return UISize{
		CardWidth: clamp(u.CardWidth, MinCardWidth, MaxCardWidth),
		TextScale: clamp(u.TextScale, MinTextScale, MaxTextScale),
	}
}

// Clamp returns the admin size with every field forced into range.
func (a AdminSize) Clamp() AdminSize {
	return AdminSize{
		UISize:     a.UISize.Clamp(),
		ActionSize: ClampActionSize(a.ActionSize),
	}
}

// ClampActionSize forces an action button size into range.
func ClampActionSize(v int) int {
	return clamp(v, MinActionSize, MaxActionSize)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
