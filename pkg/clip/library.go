package clip

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Library holds the clips available to the rig, keyed by name.
type Library struct {
	mu    sync.RWMutex
	clips map[string]*Clip
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		clips: make(map[string]*Clip),
	}
}

// LoadDir loads every clip in dir into the library and returns how many
// were added.
func (l *Library) LoadDir(ctx context.Context, dir string) (int, error) {
	clips, err := LoadDirectory(ctx, dir)
	if err != nil {
		return 0, err
	}
	for _, c := range clips {
		l.Register(c)
	}
	return len(clips), nil
}

// Register adds a clip, replacing any clip of the same name.
func (l *Library) Register(c *Clip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clips[c.Name()] = c
}

// Unregister removes a clip.
func (l *Library) Unregister(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clips, name)
}

// Get retrieves a clip by name.
func (l *Library) Get(name string) (*Clip, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.clips[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, name)
	}
	return c, nil
}

// Clip is Get under the name the mixer's clip source expects.
func (l *Library) Clip(name string) (*Clip, error) {
	return l.Get(name)
}

// Names returns all clip names, sorted alphabetically.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.clips))
	for name := range l.clips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of clips.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clips)
}

// Validate checks that every clip only animates actuators in known.
func (l *Library) Validate(known []int) error {
	set := make(map[int]bool, len(known))
	for _, id := range known {
		set[id] = true
	}

	for _, name := range l.Names() {
		c, err := l.Get(name)
		if err != nil {
			continue
		}
		for _, id := range c.Actuators() {
			if !set[id] {
				return fmt.Errorf("%w: clip %q animates servo %d", ErrUnknownActuator, name, id)
			}
		}
	}
	return nil
}

// ValidatePlaylist checks that every entry of p names a clip in the library.
func (l *Library) ValidatePlaylist(p *Playlist) error {
	for i := 0; i < p.Len(); i++ {
		if _, err := l.Get(p.Entry(i).ClipName); err != nil {
			return fmt.Errorf("playlist entry %d: %w", i, err)
		}
	}
	return nil
}
