package mixer

import (
	"fmt"

	"github.com/teslashibe/go-animatronic/pkg/clip"
)

// PlaylistState describes playlist progress.
type PlaylistState struct {
	Active  bool   `json:"active"`
	Length  int    `json:"length"`
	Index   int    `json:"index"`
	Clip    string `json:"clip,omitempty"`
	Holding bool   `json:"holding"`
}

// playlistCursor tracks the running playlist. generation is bumped on every
// SetPlaylist and ResetPlaylist so callbacks armed for an older run do nothing.
type playlistCursor struct {
	playlist   *clip.Playlist
	index      int
	generation uint64
	holding    bool
}

// SetPlaylist starts p from its first entry. Each entry's layer fades in
// over the playlist transition and, on completion, hands over to the next
// entry, wrapping at the end. Entries marked pause-when-finished hold until
// AdvancePlaylist is called.
func (c *Controller) SetPlaylist(p *clip.Playlist) error {
	if p.Len() == 0 {
		return ErrEmptyPlaylist
	}

	c.mu.Lock()
	c.clearPlaylistCallbackLocked()
	c.playlist.generation++
	c.playlist.playlist = p
	c.playlist.index = 0
	c.playlist.holding = false
	gen := c.playlist.generation
	c.mu.Unlock()

	if err := c.startEntry(gen, 0); err != nil {
		c.ResetPlaylist()
		return err
	}
	c.logger.Info("playlist set", "entries", p.Len())
	return nil
}

// AdvancePlaylist moves to the next entry now, releasing a pause-when-finished hold.
func (c *Controller) AdvancePlaylist() error {
	c.mu.Lock()
	if c.playlist.playlist == nil {
		c.mu.Unlock()
		return ErrNoPlaylist
	}
	gen := c.playlist.generation
	c.mu.Unlock()
	return c.advancePlaylist(gen)
}

// ResetPlaylist forgets the playlist. Layers keep playing.
func (c *Controller) ResetPlaylist() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearPlaylistCallbackLocked()
	c.playlist.generation++
	c.playlist.playlist = nil
	c.playlist.index = 0
	c.playlist.holding = false
}

// PlaylistState returns playlist progress.
func (c *Controller) PlaylistState() PlaylistState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playlistStateLocked()
}

func (c *Controller) playlistStateLocked() PlaylistState {
	p := c.playlist.playlist
	if p == nil {
		return PlaylistState{}
	}
	return PlaylistState{
		Active:  true,
		Length:  p.Len(),
		Index:   c.playlist.index,
		Clip:    p.Entry(c.playlist.index).ClipName,
		Holding: c.playlist.holding,
	}
}

func (c *Controller) clearPlaylistCallbackLocked() {
	p := c.playlist.playlist
	if p == nil {
		return
	}
	if l := c.layerByNameLocked(p.Entry(c.playlist.index).ClipName); l != nil {
		l.OnComplete(nil)
	}
}

func (c *Controller) startEntry(gen uint64, index int) error {
	c.mu.Lock()
	if gen != c.playlist.generation || c.playlist.playlist == nil {
		c.mu.Unlock()
		return nil
	}
	entry := c.playlist.playlist.Entry(index)

	l := c.layerByNameLocked(entry.ClipName)
	if l == nil {
		if c.clips == nil {
			c.mu.Unlock()
			return ErrNoClipSource
		}
		cl, err := c.clips.Clip(entry.ClipName)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("playlist entry %d: %w", index, err)
		}
		l = c.createLayerLocked(cl, entry.ClipName, 0, false, false)
	}

	l.SetPostDelay(entry.PostDelayFrames)
	l.OnComplete(func(*Layer) {
		c.entryCompleted(gen, index)
	})
	c.playlist.index = index
	c.playlist.holding = false
	err := c.animateLayerWeightLocked(l, 1, c.cfg.PlaylistTransition)
	c.mu.Unlock()

	l.Play()
	c.logger.Debug("playlist entry started", "index", index, "clip", entry.ClipName, "post_delay", entry.PostDelayFrames)
	return err
}

func (c *Controller) entryCompleted(gen uint64, index int) {
	c.mu.Lock()
	if gen != c.playlist.generation || index != c.playlist.index || c.playlist.playlist == nil {
		c.mu.Unlock()
		return
	}
	if c.playlist.playlist.Entry(index).PauseWhenFinished {
		c.playlist.holding = true
		c.mu.Unlock()
		c.logger.Info("playlist holding", "index", index)
		return
	}
	c.mu.Unlock()

	if err := c.advancePlaylist(gen); err != nil {
		c.logger.Error("playlist advance failed", "error", err)
	}
}

func (c *Controller) advancePlaylist(gen uint64) error {
	c.mu.Lock()
	if gen != c.playlist.generation || c.playlist.playlist == nil {
		c.mu.Unlock()
		return nil
	}
	c.clearPlaylistCallbackLocked()
	next := (c.playlist.index + 1) % c.playlist.playlist.Len()
	c.mu.Unlock()

	return c.startEntry(gen, next)
}
