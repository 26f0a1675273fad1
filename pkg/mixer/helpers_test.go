package mixer

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-animatronic/pkg/actuator"
	"github.com/teslashibe/go-animatronic/pkg/clip"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// mockSink records writes for verification.
type mockSink struct {
	mu         sync.Mutex
	registered []int
	writes     map[int][]float64
	writeCalls int
	poweredOff []int
	fail       map[int]error
}

func newMockSink() *mockSink {
	return &mockSink{
		writes: make(map[int][]float64),
		fail:   make(map[int]error),
	}
}

func (s *mockSink) Register(b actuator.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.registered {
		if id == b.ID {
			return actuator.ErrDuplicateActuator
		}
	}
	s.registered = append(s.registered, b.ID)
	return nil
}

func (s *mockSink) Write(id int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	if err := s.fail[id]; err != nil {
		return err
	}
	s.writes[id] = append(s.writes[id], value)
	return nil
}

func (s *mockSink) PowerOff(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poweredOff = append(s.poweredOff, id)
	return nil
}

func (s *mockSink) setFail(id int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[id] = err
}

func (s *mockSink) last(id int) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.writes[id]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

func (s *mockSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls
}

func (s *mockSink) released() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.poweredOff...)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
	return f.t
}

var errBusFault = errors.New("bus fault")

// newTestController builds a controller on a fake clock with actuators
// registered and an initial tick taken so the next tick has a real dt.
func newTestController(t *testing.T, cfg Config, clips ClipSource, ids ...int) (*Controller, *mockSink, *fakeClock) {
	t.Helper()
	sink := newMockSink()
	clk := newFakeClock()
	c := New(sink, clips, cfg)
	c.now = clk.Now
	for _, id := range ids {
		if err := c.RegisterActuator(actuator.Binding{ID: id}); err != nil {
			t.Fatalf("RegisterActuator(%d) failed: %v", id, err)
		}
	}
	c.tick(clk.Now())
	return c, sink, clk
}

// frame advances the fake clock one tick period and ticks.
func frame(c *Controller, clk *fakeClock) {
	c.tick(clk.Advance(time.Duration(float64(time.Second) / c.FrameRate())))
}

func frames(c *Controller, clk *fakeClock, n int) {
	for i := 0; i < n; i++ {
		frame(c, clk)
	}
}

// constClip holds value on every actuator in ids for count frames.
func constClip(t *testing.T, name string, count, value int, ids ...int) *clip.Clip {
	t.Helper()
	positions := make(map[int][]int, len(ids))
	for _, id := range ids {
		seq := make([]int, count)
		for i := range seq {
			seq[i] = value
		}
		positions[id] = seq
	}
	c, err := clip.New(name, 60, count, positions)
	if err != nil {
		t.Fatalf("clip.New(%s) failed: %v", name, err)
	}
	return c
}

// rampClip writes frame index i as position i on actuator id.
func rampClip(t *testing.T, name string, count, id int) *clip.Clip {
	t.Helper()
	seq := make([]int, count)
	for i := range seq {
		seq[i] = i
	}
	c, err := clip.New(name, 60, count, map[int][]int{id: seq})
	if err != nil {
		t.Fatalf("clip.New(%s) failed: %v", name, err)
	}
	return c
}

func noBlendConfig() Config {
	cfg := DefaultConfig()
	cfg.Crossfade = 0
	return cfg
}
