package mixer

import "errors"

var (
	// ErrLayerNotFound is returned when a layer handle is not in the mixer.
	ErrLayerNotFound = errors.New("mixer: layer not found")

	// ErrInvalidWeight is returned for a NaN or infinite weight.
	ErrInvalidWeight = errors.New("mixer: invalid weight")

	// ErrInvalidDuration is returned for a fade longer than MaxFadeDuration.
	ErrInvalidDuration = errors.New("mixer: invalid fade duration")

	// ErrInvalidFrameRate is returned for a rate outside [MinFrameRate, MaxFrameRate].
	ErrInvalidFrameRate = errors.New("mixer: invalid frame rate")

	// ErrNoClipSource is returned when a playlist needs a clip but the mixer
	// was built without a clip source.
	ErrNoClipSource = errors.New("mixer: no clip source")

	// ErrEmptyPlaylist is returned by SetPlaylist for a playlist with no entries.
	ErrEmptyPlaylist = errors.New("mixer: empty playlist")

	// ErrNoPlaylist is returned by AdvancePlaylist when no playlist is set.
	ErrNoPlaylist = errors.New("mixer: no playlist set")
)
