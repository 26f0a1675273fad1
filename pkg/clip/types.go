// Package clip provides the pre-authored motion data the mixer plays back.
//
// A Clip is a per-actuator table of integer positions sampled once per
// frame. Clips are loaded from JSON once and are immutable afterwards, so a
// single *Clip may be shared by any number of mixer layers.
//
// A Playlist is an ordered list of clip names with a hold time after each
// entry, used by the mixer's playlist sequencer.
package clip

import (
	"fmt"
	"sort"
)

// Clip is an immutable, loaded animation.
type Clip struct {
	name       string
	frameRate  float64
	frameCount int
	positions  map[int][]int
}

// New builds a Clip from already validated data. The positions map and its
// slices are copied so the caller may reuse them.
func New(name string, frameRate float64, frameCount int, positions map[int][]int) (*Clip, error) {
	if frameRate <= 0 {
		return nil, fmt.Errorf("%w: clip %q has fps %v", ErrInvalidClip, name, frameRate)
	}
	if frameCount < 0 {
		return nil, fmt.Errorf("%w: clip %q has negative frame count", ErrInvalidClip, name)
	}

	c := &Clip{
		name:       name,
		frameRate:  frameRate,
		frameCount: frameCount,
		positions:  make(map[int][]int, len(positions)),
	}
	for id, seq := range positions {
		if len(seq) != frameCount {
			return nil, fmt.Errorf("%w: clip %q servo %d has %d positions, want %d",
				ErrInvalidClip, name, id, len(seq), frameCount)
		}
		c.positions[id] = append([]int(nil), seq...)
	}
	return c, nil
}

// Name returns the clip identifier (file name without extension).
func (c *Clip) Name() string { return c.name }

// FrameRate returns the nominal authoring frame rate.
func (c *Clip) FrameRate() float64 { return c.frameRate }

// FrameCount returns the number of frames in every actuator track.
func (c *Clip) FrameCount() int { return c.frameCount }

// Actuators returns the actuator ids the clip animates, sorted.
func (c *Clip) Actuators() []int {
	ids := make([]int, 0, len(c.positions))
	for id := range c.positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// HasActuator reports whether the clip carries a track for id.
func (c *Clip) HasActuator(id int) bool {
	_, ok := c.positions[id]
	return ok
}

// PositionAt returns the position of actuator id at frame.
func (c *Clip) PositionAt(id, frame int) (int, error) {
	seq, ok := c.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: clip %q has no servo %d", ErrMissingActuator, c.name, id)
	}
	if frame < 0 || frame >= len(seq) {
		return 0, fmt.Errorf("%w: clip %q frame %d not in [0,%d)", ErrFrameOutOfRange, c.name, frame, len(seq))
	}
	return seq[frame], nil
}

// Duration returns the nominal length in seconds at the authoring frame rate.
func (c *Clip) Duration() float64 {
	return float64(c.frameCount) / c.frameRate
}

// PlaylistEntry is a single step of a playlist.
type PlaylistEntry struct {
	// ClipName references a clip in the library.
	ClipName string `json:"name"`

	// PostDelayFrames is how many ticks to hold the final pose before the
	// entry counts as finished.
	PostDelayFrames int `json:"post_delay"`

	// PauseWhenFinished holds the sequencer on this entry once it finishes
	// until it is advanced explicitly.
	PauseWhenFinished bool `json:"pause_when_finished"`
}

// Playlist is an immutable ordered list of entries.
type Playlist struct {
	entries []PlaylistEntry
}

// NewPlaylist validates entries and returns a Playlist holding a copy.
func NewPlaylist(entries []PlaylistEntry) (*Playlist, error) {
	for i, e := range entries {
		if e.ClipName == "" {
			return nil, fmt.Errorf("%w: entry %d has no clip name", ErrInvalidPlaylist, i)
		}
		if e.PostDelayFrames < 0 {
			return nil, fmt.Errorf("%w: entry %d (%s) has negative post_delay", ErrInvalidPlaylist, i, e.ClipName)
		}
	}
	return &Playlist{entries: append([]PlaylistEntry(nil), entries...)}, nil
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entry returns the i-th entry.
func (p *Playlist) Entry(i int) PlaylistEntry {
	return p.entries[i]
}

// Entries returns a copy of all entries.
func (p *Playlist) Entries() []PlaylistEntry {
	return append([]PlaylistEntry(nil), p.entries...)
}
