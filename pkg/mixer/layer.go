package mixer

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-animatronic/pkg/clip"
)

// frameEpsilon absorbs float error when dt*fps lands just under a whole frame.
const frameEpsilon = 1e-6

// Callback is invoked on layer events. It runs on the tick goroutine with no
// mixer locks held, so it may call back into the Controller.
type Callback func(l *Layer)

// Layer is one clip instance with its own playhead, weight and callbacks.
// Layers are created by Controller.CreateLayer.
type Layer struct {
	id              uuid.UUID
	name            string
	clip            *clip.Clip
	transient       bool
	defaultPosition float64

	mu                sync.Mutex
	currentFrame      int
	frac              float64
	weight            float64
	looping           bool
	playing           bool
	holding           bool
	blendingOut       bool
	blendOutThreshold int
	postDelayFrames   int
	postDelayElapsed  int
	onComplete        Callback
	onStartBlendOut   Callback
}

func newLayer(c *clip.Clip, name string, weight float64, loop, transient bool, threshold int, defaultPosition float64) *Layer {
	if name == "" && c != nil {
		name = c.Name()
	}
	return &Layer{
		id:                uuid.New(),
		name:              name,
		clip:              c,
		transient:         transient,
		defaultPosition:   defaultPosition,
		weight:            clampWeight(weight),
		looping:           loop,
		blendOutThreshold: threshold,
	}
}

// ID returns the layer's unique identifier.
func (l *Layer) ID() uuid.UUID { return l.id }

// Name returns the name the layer was created with.
func (l *Layer) Name() string { return l.name }

// Clip returns the clip the layer plays. It may be nil.
func (l *Layer) Clip() *clip.Clip { return l.clip }

// IsTransient reports whether the layer is removed once it completes.
func (l *Layer) IsTransient() bool { return l.transient }

// CurrentFrame returns the playhead position.
func (l *Layer) CurrentFrame() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentFrame
}

// Weight returns the layer's contribution weight in [0, 1].
func (l *Layer) Weight() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.weight
}

// IsPlaying reports whether the playhead is advancing.
func (l *Layer) IsPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// IsLooping reports whether the layer restarts after completion.
func (l *Layer) IsLooping() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.looping
}

// IsBlendingOut reports whether the playhead is inside the blend-out window.
func (l *Layer) IsBlendingOut() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blendingOut
}

// IsCompleted reports whether a non-looping run reached its last frame and
// finished its post-delay.
func (l *Layer) IsCompleted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completedLocked()
}

func (l *Layer) completedLocked() bool {
	if l.clip == nil || l.clip.FrameCount() == 0 {
		return false
	}
	return !l.playing &&
		l.holding &&
		l.currentFrame == l.clip.FrameCount()-1 &&
		l.postDelayElapsed >= l.postDelayFrames
}

// PostDelay returns the number of ticks held on the last frame before completion.
func (l *Layer) PostDelay() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.postDelayFrames
}

// SetPostDelay sets the hold on the last frame, in ticks.
func (l *Layer) SetPostDelay(frames int) {
	if frames < 0 {
		frames = 0
	}
	l.mu.Lock()
	l.postDelayFrames = frames
	l.mu.Unlock()
}

// SetLooping changes whether the layer restarts after completion.
func (l *Layer) SetLooping(loop bool) {
	l.mu.Lock()
	l.looping = loop
	l.mu.Unlock()
}

// OnComplete replaces the completion callback. nil clears it.
func (l *Layer) OnComplete(fn Callback) {
	l.mu.Lock()
	l.onComplete = fn
	l.mu.Unlock()
}

// OnStartBlendOut replaces the blend-out callback. nil clears it.
func (l *Layer) OnStartBlendOut(fn Callback) {
	l.mu.Lock()
	l.onStartBlendOut = fn
	l.mu.Unlock()
}

// Play starts the layer from frame 0, keeping its looping flag.
func (l *Layer) Play() {
	l.PlayFrom(0)
}

// PlayFrom starts the layer at frame. Out-of-range frames are clamped.
func (l *Layer) PlayFrom(frame int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.restartLocked(frame)
	l.playing = true
}

// PlayLoop starts the layer at frame with the given looping flag.
func (l *Layer) PlayLoop(frame int, loop bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.looping = loop
	l.restartLocked(frame)
	l.playing = true
}

func (l *Layer) restartLocked(frame int) {
	last := 0
	if l.clip != nil && l.clip.FrameCount() > 0 {
		last = l.clip.FrameCount() - 1
	}
	if frame < 0 {
		frame = 0
	}
	if frame > last {
		frame = last
	}
	l.currentFrame = frame
	l.frac = 0
	l.holding = false
	l.blendingOut = false
	l.postDelayElapsed = 0
}

// Pause freezes the playhead.
func (l *Layer) Pause() {
	l.mu.Lock()
	l.playing = false
	l.mu.Unlock()
}

// Resume continues from the current frame.
func (l *Layer) Resume() {
	l.mu.Lock()
	l.playing = true
	l.mu.Unlock()
}

// Stop halts playback. The playhead and weight are left alone.
func (l *Layer) Stop() {
	l.mu.Lock()
	l.playing = false
	l.mu.Unlock()
}

// SampledPosition returns the clip value for actuator id at the current
// frame, or the default pose when the clip has nothing for it.
func (l *Layer) SampledPosition(id int) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sampleLocked(id)
}

func (l *Layer) sampleLocked(id int) float64 {
	if l.clip == nil {
		return l.defaultPosition
	}
	pos, err := l.clip.PositionAt(id, l.currentFrame)
	if err != nil {
		return l.defaultPosition
	}
	return float64(pos)
}

func (l *Layer) setWeight(w float64) {
	l.mu.Lock()
	l.weight = clampWeight(w)
	l.mu.Unlock()
}

func (l *Layer) setBlendOutThreshold(frames int) {
	l.mu.Lock()
	l.blendOutThreshold = frames
	l.mu.Unlock()
}

// advance moves the playhead by dt seconds at frameRate. It returns the
// callbacks that fired, blend-out first; the caller invokes them after the
// layer lock is released.
func (l *Layer) advance(dt, frameRate float64) (blendOut, complete Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.playing || l.clip == nil {
		return nil, nil
	}
	count := l.clip.FrameCount()
	if count == 0 {
		l.playing = false
		return nil, nil
	}

	if dt > 0 && frameRate > 0 {
		l.frac += dt * frameRate
	}
	step := int(math.Floor(l.frac + frameEpsilon))
	if step < 0 {
		step = 0
	}
	l.frac -= float64(step)
	if l.frac < 0 {
		l.frac = 0
	}

	var fireBlend, fireComplete bool

	if !l.holding {
		next := l.currentFrame + step
		if next < count {
			l.currentFrame = next
			if !l.looping && !l.blendingOut && l.blendOutThreshold > 0 && next >= count-l.blendOutThreshold {
				l.blendingOut = true
				fireBlend = true
			}
			return l.fired(fireBlend, false)
		}
		l.currentFrame = count - 1
		l.holding = true
		// A large step can jump over the whole blend-out window.
		if !l.looping && !l.blendingOut && l.blendOutThreshold > 0 {
			l.blendingOut = true
			fireBlend = true
		}
	}

	l.postDelayElapsed++
	if l.postDelayElapsed >= l.postDelayFrames {
		fireComplete = true
		l.blendingOut = false
		if l.looping {
			l.currentFrame = 0
			l.frac = 0
			l.holding = false
			l.postDelayElapsed = 0
		} else {
			l.playing = false
		}
	}
	return l.fired(fireBlend, fireComplete)
}

func (l *Layer) fired(blend, complete bool) (Callback, Callback) {
	var b, c Callback
	if blend {
		b = l.onStartBlendOut
	}
	if complete {
		c = l.onComplete
	}
	return b, c
}
