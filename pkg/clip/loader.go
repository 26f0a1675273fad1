package clip

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// clipData is the raw JSON structure of a clip file.
type clipData struct {
	// FPS is the authoring frame rate.
	FPS float64 `json:"fps"`

	// Frames is the number of frames in every servo track.
	Frames *int `json:"frames"`

	// Servos maps a servo channel (as a string) to its track.
	Servos map[string]servoTrack `json:"servos"`
}

type servoTrack struct {
	Positions []int `json:"positions"`
}

// Parse decodes clip JSON into a Clip named name.
func Parse(name string, data []byte) (*Clip, error) {
	var raw clipData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: clip %q: %v", ErrInvalidClip, name, err)
	}
	if raw.Frames == nil {
		return nil, fmt.Errorf("%w: clip %q has no frames field", ErrInvalidClip, name)
	}

	positions := make(map[int][]int, len(raw.Servos))
	for key, track := range raw.Servos {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%w: clip %q servo id %q is not an integer", ErrInvalidClip, name, key)
		}
		positions[id] = track.Positions
	}

	return New(name, raw.FPS, *raw.Frames, positions)
}

// LoadFile loads a clip from a JSON file on disk. The clip is named after
// the file without its extension.
func LoadFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip file: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(name, data)
}

// LoadDirectory loads every *.json clip in dir. Files are decoded in
// parallel; the result is sorted by clip name.
func LoadDirectory(ctx context.Context, dir string) ([]*Clip, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list clip files: %w", err)
	}

	clips := make([]*Clip, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := LoadFile(file)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", file, err)
			}
			clips[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(clips, func(a, b int) bool { return clips[a].Name() < clips[b].Name() })
	return clips, nil
}

// ParsePlaylist decodes a playlist JSON array.
func ParsePlaylist(data []byte) (*Playlist, error) {
	var entries []PlaylistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlaylist, err)
	}
	return NewPlaylist(entries)
}

// LoadPlaylist loads a playlist from a JSON file on disk.
func LoadPlaylist(path string) (*Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist file: %w", err)
	}
	return ParsePlaylist(data)
}
