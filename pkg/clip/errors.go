package clip

import "errors"

var (
	// ErrClipNotFound is returned when a clip name is not in the library.
	ErrClipNotFound = errors.New("clip: not found")

	// ErrInvalidClip is returned when clip data is malformed.
	ErrInvalidClip = errors.New("clip: invalid clip data")

	// ErrInvalidPlaylist is returned when playlist data is malformed.
	ErrInvalidPlaylist = errors.New("clip: invalid playlist data")

	// ErrMissingActuator is returned when a clip has no track for an actuator.
	ErrMissingActuator = errors.New("clip: missing actuator")

	// ErrFrameOutOfRange is returned for a frame outside [0, frames).
	ErrFrameOutOfRange = errors.New("clip: frame out of range")

	// ErrUnknownActuator is returned by Library.Validate when a clip animates
	// an actuator the rig does not have.
	ErrUnknownActuator = errors.New("clip: unknown actuator")
)
