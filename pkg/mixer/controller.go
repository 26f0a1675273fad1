// Package mixer blends layered servo clips into one stream of actuator
// commands at a fixed frame rate.
//
// A Controller owns a set of Layers. Each tick it advances every playing
// layer, steps the active weight interpolation, and writes the weighted sum
// of the layers' sampled positions to every registered actuator. Layer
// weights are kept normalized: changing one layer's weight rescales the
// others so the total stays at 1.
package mixer

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-animatronic/internal/log"
	"github.com/teslashibe/go-animatronic/pkg/actuator"
	"github.com/teslashibe/go-animatronic/pkg/clip"
)

// Default configuration values.
const (
	DefaultFrameRate          = 60.0
	DefaultCrossfade          = time.Second
	DefaultPlaylistTransition = time.Second
	DefaultPosition           = 90.0
)

// Accepted ranges for SetFrameRate and AnimateLayerWeight.
const (
	MinFrameRate    = 1.0
	MaxFrameRate    = 1000.0
	MaxFadeDuration = time.Hour
)

// Sink receives the mixed output. *actuator.Bank satisfies it.
type Sink interface {
	Register(b actuator.Binding) error
	Write(id int, value float64) error
	PowerOff(id int) error
}

// ClipSource resolves clip names for playlists. *clip.Library satisfies it.
type ClipSource interface {
	Clip(name string) (*clip.Clip, error)
}

// Config holds mixer settings.
type Config struct {
	// FrameRate is the tick rate in Hz.
	FrameRate float64

	// Crossfade sets the blend-out window: a layer enters it this long
	// before its last frame.
	Crossfade time.Duration

	// PlaylistTransition is the weight fade used when a playlist entry starts.
	PlaylistTransition time.Duration

	// DefaultPosition is sampled for actuators a clip does not drive.
	DefaultPosition float64

	// ReleaseOnExit powers off every actuator when Run returns.
	ReleaseOnExit bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FrameRate:          DefaultFrameRate,
		Crossfade:          DefaultCrossfade,
		PlaylistTransition: DefaultPlaylistTransition,
		DefaultPosition:    DefaultPosition,
	}
}

type interpolation struct {
	active      bool
	layer       *Layer
	startWeight float64
	endWeight   float64
	start       time.Time
	end         time.Time
}

// Controller is the layer mixer.
type Controller struct {
	sink   Sink
	clips  ClipSource
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	layers    []*Layer
	actuators []int
	frameRate float64
	playing   bool
	interp    interpolation
	playlist  playlistCursor
	lastTick  time.Time
	outputs   map[int]float64

	ticks       atomic.Uint64
	overruns    atomic.Uint64
	writeErrors atomic.Uint64
	panics      atomic.Uint64
	lastErrorAt time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a controller writing to sink. clips may be nil when no
// playlists are used. Zero config fields fall back to DefaultConfig.
func New(sink Sink, clips ClipSource, cfg Config) *Controller {
	def := DefaultConfig()
	if !validFrameRate(cfg.FrameRate) {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.Crossfade < 0 {
		cfg.Crossfade = 0
	}
	if cfg.PlaylistTransition < 0 {
		cfg.PlaylistTransition = 0
	}
	if cfg.DefaultPosition == 0 {
		cfg.DefaultPosition = def.DefaultPosition
	}

	return &Controller{
		sink:      sink,
		clips:     clips,
		cfg:       cfg,
		logger:    log.Component("mixer"),
		now:       time.Now,
		frameRate: cfg.FrameRate,
		outputs:   make(map[int]float64),
		stop:      make(chan struct{}),
	}
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// RegisterActuator binds an actuator through the sink and includes it in
// every subsequent mix.
func (c *Controller) RegisterActuator(b actuator.Binding) error {
	if err := c.sink.Register(b); err != nil {
		return fmt.Errorf("register actuator %d: %w", b.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.actuators = append(c.actuators, b.ID)
	sort.Ints(c.actuators)
	return nil
}

// Actuators returns the registered actuator ids, sorted.
func (c *Controller) Actuators() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.actuators...)
}

// CreateLayer adds a stopped layer for cl. An empty name uses the clip name.
// The weight is clamped to [0, 1] and the other layers are left unchanged.
func (c *Controller) CreateLayer(cl *clip.Clip, name string, weight float64, loop, transient bool) *Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLayerLocked(cl, name, weight, loop, transient)
}

func (c *Controller) createLayerLocked(cl *clip.Clip, name string, weight float64, loop, transient bool) *Layer {
	l := newLayer(cl, name, weight, loop, transient, c.blendOutFramesLocked(), c.cfg.DefaultPosition)
	c.layers = append(c.layers, l)
	c.logger.Debug("layer created", "layer", l.Name(), "id", l.ID(), "weight", l.Weight(), "loop", loop, "transient", transient)
	return l
}

func (c *Controller) blendOutFramesLocked() int {
	return int(math.Round(c.cfg.Crossfade.Seconds() * c.frameRate))
}

// RemoveLayer drops l from the mixer. An interpolation targeting l is cancelled.
func (c *Controller) RemoveLayer(l *Layer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.removeLayerLocked(l) {
		return ErrLayerNotFound
	}
	c.logger.Debug("layer removed", "layer", l.Name(), "id", l.ID())
	return nil
}

func (c *Controller) removeLayerLocked(l *Layer) bool {
	idx := c.indexLocked(l)
	if idx < 0 {
		return false
	}
	c.layers = append(c.layers[:idx], c.layers[idx+1:]...)
	if c.interp.active && c.interp.layer == l {
		c.interp = interpolation{}
	}
	return true
}

func (c *Controller) indexLocked(l *Layer) int {
	for i, existing := range c.layers {
		if existing == l {
			return i
		}
	}
	return -1
}

func (c *Controller) contains(l *Layer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(l) >= 0
}

// Layers returns the current layers in creation order.
func (c *Controller) Layers() []*Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Layer(nil), c.layers...)
}

// LayerByName returns the first layer with the given name, or nil.
func (c *Controller) LayerByName(name string) *Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layerByNameLocked(name)
}

func (c *Controller) layerByNameLocked(name string) *Layer {
	for _, l := range c.layers {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// SetLayerWeight sets l's weight and rescales the other layers so the total
// stays 1. When the other layers carry no weight the remainder is split
// evenly between them.
func (c *Controller) SetLayerWeight(l *Layer, weight float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLayerWeightLocked(l, weight)
}

func (c *Controller) setLayerWeightLocked(l *Layer, weight float64) error {
	if !finite(weight) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	if c.indexLocked(l) < 0 {
		return ErrLayerNotFound
	}
	weight = clampWeight(weight)
	l.setWeight(weight)

	others := make([]*Layer, 0, len(c.layers)-1)
	var sum float64
	for _, other := range c.layers {
		if other == l {
			continue
		}
		others = append(others, other)
		sum += other.Weight()
	}
	if len(others) == 0 {
		return nil
	}

	remaining := 1 - weight
	if sum == 0 {
		share := remaining / float64(len(others))
		for _, other := range others {
			other.setWeight(share)
		}
		return nil
	}

	scale := remaining / sum
	for _, other := range others {
		other.setWeight(other.Weight() * scale)
	}
	return nil
}

// AnimateLayerWeight fades l's weight to target over duration, replacing any
// interpolation in flight. A non-positive duration sets the weight at once.
// Durations above MaxFadeDuration are rejected.
func (c *Controller) AnimateLayerWeight(l *Layer, target float64, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.animateLayerWeightLocked(l, target, duration)
}

func (c *Controller) animateLayerWeightLocked(l *Layer, target float64, duration time.Duration) error {
	if !finite(target) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, target)
	}
	if duration > MaxFadeDuration {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, duration)
	}
	if c.indexLocked(l) < 0 {
		return ErrLayerNotFound
	}
	target = clampWeight(target)
	if duration <= 0 {
		c.interp = interpolation{}
		return c.setLayerWeightLocked(l, target)
	}

	now := c.now()
	c.interp = interpolation{
		active:      true,
		layer:       l,
		startWeight: l.Weight(),
		endWeight:   target,
		start:       now,
		end:         now.Add(duration),
	}
	return nil
}

func (c *Controller) stepInterpolationLocked(now time.Time) {
	if !c.interp.active {
		return
	}
	in := c.interp
	if c.indexLocked(in.layer) < 0 {
		c.interp = interpolation{}
		return
	}
	if !now.Before(in.end) {
		c.setLayerWeightLocked(in.layer, in.endWeight)
		c.interp = interpolation{}
		return
	}
	ratio := clamp(now.Sub(in.start).Seconds()/in.end.Sub(in.start).Seconds(), 0, 1)
	c.setLayerWeightLocked(in.layer, lerp(in.startWeight, in.endWeight, ratio))
}

// Play resumes the mixer.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		c.playing = true
		c.logger.Info("transport playing")
	}
}

// Pause freezes every layer in place. Nothing is written while paused.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		c.playing = false
		c.logger.Info("transport paused")
	}
}

// Stop pauses the mixer and stops every layer. Calling it again is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	for _, l := range c.layers {
		l.Stop()
	}
}

// IsPlaying reports whether the transport is running.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// FrameRate returns the tick rate in Hz.
func (c *Controller) FrameRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameRate
}

// SetFrameRate changes the tick rate, which must lie in
// [MinFrameRate, MaxFrameRate]. Existing layers get a blend-out window
// re-derived for the new rate.
func (c *Controller) SetFrameRate(hz float64) error {
	if !validFrameRate(hz) {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, hz)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameRate = hz
	frames := c.blendOutFramesLocked()
	for _, l := range c.layers {
		l.setBlendOutThreshold(frames)
	}
	c.logger.Info("frame rate changed", "hz", hz, "blend_out_frames", frames)
	return nil
}

func validFrameRate(hz float64) bool {
	return finite(hz) && hz >= MinFrameRate && hz <= MaxFrameRate
}
