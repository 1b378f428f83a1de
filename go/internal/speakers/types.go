package speakers

// Broadcaster pushes current state to connected viewers. Each method is
// called once after the matching change.
type Broadcaster interface {
	BroadcastState()
	BroadcastAutoStop()
	BroadcastTitle()
	BroadcastSize()
	BroadcastSizeMain()
	BroadcastReloadMain()
}

// SpeakerRequest is the body of create and update calls
type SpeakerRequest struct {
	Name    string `json:"name"`
	FaceURL string `json:"faceUrl"`
}

// AutoStopResponse reports the autostop flag
type AutoStopResponse struct {
	Enabled bool `json:"enabled"`
}

// TitleResponse reports the event title
type TitleResponse struct {
	Title string `json:"title"`
}

type errorResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}
