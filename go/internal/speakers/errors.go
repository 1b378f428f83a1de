package speakers

import "errors"

// ErrSpeakerNotFound is returned when an operation names an unknown speaker id
var ErrSpeakerNotFound = errors.New("speaker not found")

// ErrPersist marks a failed save. The in-memory change it follows is kept.
var ErrPersist = errors.New("speakers not persisted")

// ErrImageTooLarge is returned when an upload exceeds MaxImageBytes
var ErrImageTooLarge = errors.New("image too large")
