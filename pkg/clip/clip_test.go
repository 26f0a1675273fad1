package clip

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const waveJSON = `{
	"fps": 60,
	"frames": 4,
	"servos": {
		"10": {"positions": [90, 95, 100, 105]},
		"11": {"positions": [80, 80, 70, 60]}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParse(t *testing.T) {
	c, err := Parse("wave", []byte(waveJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if c.Name() != "wave" {
		t.Errorf("Name: got %q, want wave", c.Name())
	}
	if c.FrameRate() != 60 {
		t.Errorf("FrameRate: got %v, want 60", c.FrameRate())
	}
	if c.FrameCount() != 4 {
		t.Errorf("FrameCount: got %d, want 4", c.FrameCount())
	}

	ids := c.Actuators()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Errorf("Actuators: got %v, want [10 11]", ids)
	}

	pos, err := c.PositionAt(10, 2)
	if err != nil {
		t.Fatalf("PositionAt failed: %v", err)
	}
	if pos != 100 {
		t.Errorf("PositionAt(10, 2): got %d, want 100", pos)
	}
}

func TestPositionAt_Errors(t *testing.T) {
	c, err := Parse("wave", []byte(waveJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := c.PositionAt(3, 0); !errors.Is(err, ErrMissingActuator) {
		t.Errorf("missing servo: got %v, want ErrMissingActuator", err)
	}
	if _, err := c.PositionAt(10, 4); !errors.Is(err, ErrFrameOutOfRange) {
		t.Errorf("frame 4: got %v, want ErrFrameOutOfRange", err)
	}
	if _, err := c.PositionAt(10, -1); !errors.Is(err, ErrFrameOutOfRange) {
		t.Errorf("frame -1: got %v, want ErrFrameOutOfRange", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad json":        `{"fps": 60,`,
		"no frames":       `{"fps": 60, "servos": {}}`,
		"zero fps":        `{"fps": 0, "frames": 1, "servos": {"1": {"positions": [1]}}}`,
		"negative frames": `{"fps": 30, "frames": -1, "servos": {}}`,
		"length mismatch": `{"fps": 30, "frames": 3, "servos": {"1": {"positions": [1, 2]}}}`,
		"servo id":        `{"fps": 30, "frames": 1, "servos": {"left": {"positions": [1]}}}`,
	}

	for name, data := range cases {
		if _, err := Parse(name, []byte(data)); !errors.Is(err, ErrInvalidClip) {
			t.Errorf("%s: got %v, want ErrInvalidClip", name, err)
		}
	}
}

func TestParse_EmptyClip(t *testing.T) {
	c, err := Parse("empty", []byte(`{"fps": 12, "frames": 0, "servos": {}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.FrameCount() != 0 {
		t.Errorf("FrameCount: got %d, want 0", c.FrameCount())
	}
}

func TestNew_CopiesPositions(t *testing.T) {
	track := []int{1, 2}
	c, err := New("copy", 30, 2, map[int][]int{5: track})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	track[0] = 99
	if pos, _ := c.PositionAt(5, 0); pos != 1 {
		t.Errorf("clip mutated through caller slice: got %d, want 1", pos)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wave.json", waveJSON)
	writeFile(t, dir, "idle.json", `{"fps": 12, "frames": 1, "servos": {"10": {"positions": [90]}}}`)
	writeFile(t, dir, "notes.txt", "ignored")

	clips, err := LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}

	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	if clips[0].Name() != "idle" || clips[1].Name() != "wave" {
		t.Errorf("clips not sorted by name: %s, %s", clips[0].Name(), clips[1].Name())
	}
}

func TestLoadDirectory_BadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wave.json", waveJSON)
	writeFile(t, dir, "broken.json", `{"fps": 60}`)

	if _, err := LoadDirectory(context.Background(), dir); !errors.Is(err, ErrInvalidClip) {
		t.Errorf("got %v, want ErrInvalidClip", err)
	}
}

func TestParsePlaylist(t *testing.T) {
	p, err := ParsePlaylist([]byte(`[
		{"name": "wave", "post_delay": 0, "pause_when_finished": false},
		{"name": "idle", "post_delay": 30, "pause_when_finished": true}
	]`))
	if err != nil {
		t.Fatalf("ParsePlaylist failed: %v", err)
	}

	if p.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", p.Len())
	}
	e := p.Entry(1)
	if e.ClipName != "idle" || e.PostDelayFrames != 30 || !e.PauseWhenFinished {
		t.Errorf("Entry(1): got %+v", e)
	}
}

func TestParsePlaylist_Invalid(t *testing.T) {
	cases := []string{
		`{"name": "wave"}`,
		`[{"name": "", "post_delay": 0}]`,
		`[{"name": "wave", "post_delay": -2}]`,
	}
	for _, data := range cases {
		if _, err := ParsePlaylist([]byte(data)); !errors.Is(err, ErrInvalidPlaylist) {
			t.Errorf("%s: got %v, want ErrInvalidPlaylist", data, err)
		}
	}
}

func TestLibrary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wave.json", waveJSON)

	lib := NewLibrary()
	n, err := lib.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if n != 1 || lib.Len() != 1 {
		t.Errorf("got n=%d len=%d, want 1", n, lib.Len())
	}

	if _, err := lib.Clip("wave"); err != nil {
		t.Errorf("Clip(wave) failed: %v", err)
	}
	if _, err := lib.Get("nope"); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("Get(nope): got %v, want ErrClipNotFound", err)
	}

	if err := lib.Validate([]int{10, 11, 12}); err != nil {
		t.Errorf("Validate with all servos: %v", err)
	}
	if err := lib.Validate([]int{10}); !errors.Is(err, ErrUnknownActuator) {
		t.Errorf("Validate missing servo 11: got %v, want ErrUnknownActuator", err)
	}

	p, _ := NewPlaylist([]PlaylistEntry{{ClipName: "wave"}, {ClipName: "hug"}})
	if err := lib.ValidatePlaylist(p); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("ValidatePlaylist: got %v, want ErrClipNotFound", err)
	}

	lib.Unregister("wave")
	if names := lib.Names(); len(names) != 0 {
		t.Errorf("Names after Unregister: got %v", names)
	}
}
