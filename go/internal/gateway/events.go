package gateway

import (
	"fmt"

	"github.com/lopixlabs/polichrono/go/internal/models"
)

// EventType tags every message sent to viewers
type EventType string

const (
	EventTypeState      EventType = "state"
	EventTypeAutoStop   EventType = "autoStop"
	EventTypeTitle      EventType = "title"
	EventTypeSize       EventType = "size"
	EventTypeSizeMain   EventType = "sizeMain"
	EventTypeReloadMain EventType = "reloadMain"
)

// StateProvider is the read side of the speakers App that events are built from
type StateProvider interface {
	List() []models.SpeakerView
	AnyRunning() bool
	AutoStop() bool
	Title() string
	AdminSize() models.AdminSize
	AudienceSize() models.UISize
}

// Event is one viewer message. Each concrete type serializes flat with its
// "type" field.
type Event interface {
	EventType() EventType
}

// StateEvent carries the full speaker list with live elapsed values
type StateEvent struct {
	Type     EventType            `json:"type"`
	Speakers []models.SpeakerView `json:"speakers"`
}

// AutoStopEvent carries the autostop flag
type AutoStopEvent struct {
	Type    EventType `json:"type"`
	Enabled bool      `json:"enabled"`
}

// TitleEvent carries the event title
type TitleEvent struct {
	Type  EventType `json:"type"`
	Value string    `json:"value"`
}

// SizeEvent carries the admin view sizing
type SizeEvent struct {
	Type EventType `json:"type"`
	models.AdminSize
}

// SizeMainEvent carries the audience view sizing
type SizeMainEvent struct {
	Type EventType `json:"type"`
	models.UISize
}

// ReloadMainEvent asks audience pages to reload
type ReloadMainEvent struct {
	Type EventType `json:"type"`
}

func (StateEvent) EventType() EventType      { return EventTypeState }
func (AutoStopEvent) EventType() EventType   { return EventTypeAutoStop }
func (TitleEvent) EventType() EventType      { return EventTypeTitle }
func (SizeEvent) EventType() EventType       { return EventTypeSize }
func (SizeMainEvent) EventType() EventType   { return EventTypeSizeMain }
func (ReloadMainEvent) EventType() EventType { return EventTypeReloadMain }

// BuildEvent reads the current state of one category from p.
func BuildEvent(p StateProvider, t EventType) (Event, error) {
	switch t {
	case EventTypeState:
		return StateEvent{Type: t, Speakers: p.List()}, nil
	case EventTypeAutoStop:
		return AutoStopEvent{Type: t, Enabled: p.AutoStop()}, nil
	case EventTypeTitle:
		return TitleEvent{Type: t, Value: p.Title()}, nil
	case EventTypeSize:
		return SizeEvent{Type: t, AdminSize: p.AdminSize()}, nil
	case EventTypeSizeMain:
		return SizeMainEvent{Type: t, UISize: p.AudienceSize()}, nil
	case EventTypeReloadMain:
		return ReloadMainEvent{Type: t}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", t)
	}
}

// InitialEventTypes are sent to every viewer right after it connects.
var InitialEventTypes = []EventType{
	EventTypeState,
	EventTypeAutoStop,
	EventTypeTitle,
	EventTypeSize,
	EventTypeSizeMain,
}
