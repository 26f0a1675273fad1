package mixer

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/teslashibe/go-animatronic/pkg/actuator"
)

func TestController_CreateLayer(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	cl := rampClip(t, "wave", 120, 1)

	l := c.CreateLayer(cl, "", 1.5, true, false)
	if l.Name() != "wave" {
		t.Errorf("Name: got %q, want wave", l.Name())
	}
	if l.Weight() != 1 {
		t.Errorf("Weight: got %v, want clamped 1", l.Weight())
	}
	if l.IsPlaying() {
		t.Error("new layers start stopped")
	}
	if l.blendOutThreshold != 60 {
		t.Errorf("blend-out frames: got %d, want 60", l.blendOutThreshold)
	}

	named := c.CreateLayer(cl, "wave-2", 0, false, true)
	if got := c.LayerByName("wave-2"); got != named {
		t.Error("LayerByName did not find the named layer")
	}
	if got := c.LayerByName("missing"); got != nil {
		t.Errorf("LayerByName(missing): got %v, want nil", got)
	}
	if n := len(c.Layers()); n != 2 {
		t.Errorf("Layers: got %d, want 2", n)
	}
}

func TestController_SetLayerWeight(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	cl := rampClip(t, "wave", 4, 1)

	a := c.CreateLayer(cl, "a", 1, false, false)
	b := c.CreateLayer(cl, "b", 0, false, false)

	if err := c.SetLayerWeight(a, 0.5); err != nil {
		t.Fatalf("SetLayerWeight failed: %v", err)
	}
	if !floatEquals(a.Weight(), 0.5) || !floatEquals(b.Weight(), 0.5) {
		t.Errorf("weights: got a=%v b=%v, want 0.5 and 0.5", a.Weight(), b.Weight())
	}

	if err := c.SetLayerWeight(b, 0.8); err != nil {
		t.Fatalf("SetLayerWeight failed: %v", err)
	}
	if !floatEquals(a.Weight(), 0.2) {
		t.Errorf("a after b=0.8: got %v, want 0.2", a.Weight())
	}

	// Zero-weight siblings share the remainder evenly.
	x := c.CreateLayer(cl, "x", 0, false, false)
	y := c.CreateLayer(cl, "y", 0, false, false)
	z := c.CreateLayer(cl, "z", 0, false, false)
	c.SetLayerWeight(a, 0)
	c.SetLayerWeight(b, 0)
	if err := c.SetLayerWeight(x, 0.4); err != nil {
		t.Fatalf("SetLayerWeight failed: %v", err)
	}
	sum := 0.0
	for _, l := range []*Layer{a, b, y, z} {
		sum += l.Weight()
	}
	if !floatEquals(sum, 0.6) {
		t.Errorf("others sum: got %v, want 0.6", sum)
	}

	if err := c.SetLayerWeight(x, 7); err != nil {
		t.Fatalf("SetLayerWeight failed: %v", err)
	}
	if x.Weight() != 1 {
		t.Errorf("clamped weight: got %v, want 1", x.Weight())
	}
}

func TestController_SetLayerWeight_SingleLayer(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	l := c.CreateLayer(rampClip(t, "solo", 4, 1), "", 1, false, false)

	if err := c.SetLayerWeight(l, 0.3); err != nil {
		t.Fatalf("SetLayerWeight failed: %v", err)
	}
	if !floatEquals(l.Weight(), 0.3) {
		t.Errorf("single layer weight: got %v, want 0.3", l.Weight())
	}
}

func TestController_WeightSumInvariant(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	cl := rampClip(t, "wave", 4, 1)

	layers := []*Layer{
		c.CreateLayer(cl, "a", 1, false, false),
		c.CreateLayer(cl, "b", 0, false, false),
		c.CreateLayer(cl, "c", 0, false, false),
		c.CreateLayer(cl, "d", 0, false, false),
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		l := layers[rng.Intn(len(layers))]
		w := rng.Float64()*1.4 - 0.2
		if err := c.SetLayerWeight(l, w); err != nil {
			t.Fatalf("SetLayerWeight failed: %v", err)
		}

		sum := 0.0
		for _, l := range layers {
			if l.Weight() < 0 || l.Weight() > 1 {
				t.Fatalf("weight out of range: %v", l.Weight())
			}
			sum += l.Weight()
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("step %d: weight sum %v, want 1", i, sum)
		}
	}

	if st := c.Status(); st.WeightSum < 1-1e-6 || st.WeightSum > 1+1e-6 {
		t.Errorf("Status.WeightSum: got %v, want 1", st.WeightSum)
	}
}

func TestController_SetLayerWeight_NotFound(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	l := c.CreateLayer(rampClip(t, "wave", 4, 1), "", 1, false, false)
	if err := c.RemoveLayer(l); err != nil {
		t.Fatalf("RemoveLayer failed: %v", err)
	}

	if err := c.SetLayerWeight(l, 0.5); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("SetLayerWeight: got %v, want ErrLayerNotFound", err)
	}
	if err := c.AnimateLayerWeight(l, 0.5, time.Second); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("AnimateLayerWeight: got %v, want ErrLayerNotFound", err)
	}
	if err := c.RemoveLayer(l); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("second RemoveLayer: got %v, want ErrLayerNotFound", err)
	}
}

func TestController_SetLayerWeight_NonFinite(t *testing.T) {
	c, sink, clk := newTestController(t, noBlendConfig(), nil, 1)
	a := c.CreateLayer(constClip(t, "a", 10, 60, 1), "a", 1, true, false)
	b := c.CreateLayer(constClip(t, "b", 10, 120, 1), "b", 0, true, false)

	for _, w := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := c.SetLayerWeight(b, w); !errors.Is(err, ErrInvalidWeight) {
			t.Errorf("SetLayerWeight(%v): got %v, want ErrInvalidWeight", w, err)
		}
		if err := c.AnimateLayerWeight(b, w, time.Second); !errors.Is(err, ErrInvalidWeight) {
			t.Errorf("AnimateLayerWeight(%v): got %v, want ErrInvalidWeight", w, err)
		}
	}
	if a.Weight() != 1 || b.Weight() != 0 {
		t.Errorf("weights changed by rejected input: a=%v b=%v", a.Weight(), b.Weight())
	}
	if err := c.AnimateLayerWeight(b, 1, MaxFadeDuration+time.Second); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("oversized fade: got %v, want ErrInvalidDuration", err)
	}

	if err := c.SetLayerWeight(b, 0.5); err != nil {
		t.Fatalf("SetLayerWeight(0.5) failed: %v", err)
	}
	if !floatEquals(a.Weight(), 0.5) || !floatEquals(b.Weight(), 0.5) {
		t.Errorf("weights: a=%v b=%v, want 0.5/0.5", a.Weight(), b.Weight())
	}

	nan := c.CreateLayer(constClip(t, "n", 10, 90, 1), "n", math.NaN(), true, false)
	if nan.Weight() != 0 {
		t.Errorf("CreateLayer(NaN): got weight %v, want 0", nan.Weight())
	}

	a.Play()
	b.Play()
	c.Play()
	frame(c, clk)
	if v, ok := sink.last(1); !ok || !floatEquals(v, 90) {
		t.Errorf("mixed output: got %v (%v), want 90", v, ok)
	}
}

func TestController_AnimateLayerWeight(t *testing.T) {
	c, _, clk := newTestController(t, DefaultConfig(), nil, 1)
	cl := rampClip(t, "wave", 4, 1)
	base := c.CreateLayer(cl, "base", 1, false, false)
	l := c.CreateLayer(cl, "fade", 0, false, false)

	if err := c.AnimateLayerWeight(l, 1, 2*time.Second); err != nil {
		t.Fatalf("AnimateLayerWeight failed: %v", err)
	}

	c.tick(clk.Advance(time.Second))
	if !floatEquals(l.Weight(), 0.5) {
		t.Errorf("midpoint weight: got %v, want 0.5", l.Weight())
	}
	if !floatEquals(base.Weight(), 0.5) {
		t.Errorf("base midpoint weight: got %v, want 0.5", base.Weight())
	}
	if !c.Status().Interpolating {
		t.Error("expected interpolation in flight")
	}

	c.tick(clk.Advance(1500 * time.Millisecond))
	if l.Weight() != 1 || base.Weight() != 0 {
		t.Errorf("end weights: got fade=%v base=%v, want 1 and 0", l.Weight(), base.Weight())
	}
	if c.Status().Interpolating {
		t.Error("interpolation should clear when done")
	}
}

func TestController_AnimateLayerWeight_Immediate(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	cl := rampClip(t, "wave", 4, 1)
	a := c.CreateLayer(cl, "a", 1, false, false)
	b := c.CreateLayer(cl, "b", 0, false, false)

	c.AnimateLayerWeight(b, 1, time.Second)
	if err := c.AnimateLayerWeight(a, 0.25, 0); err != nil {
		t.Fatalf("AnimateLayerWeight failed: %v", err)
	}
	if !floatEquals(a.Weight(), 0.25) || !floatEquals(b.Weight(), 0.75) {
		t.Errorf("weights: got a=%v b=%v", a.Weight(), b.Weight())
	}
	if c.Status().Interpolating {
		t.Error("zero duration should replace the running interpolation")
	}
}

func TestController_RemoveLayerCancelsInterpolation(t *testing.T) {
	c, _, clk := newTestController(t, DefaultConfig(), nil, 1)
	cl := rampClip(t, "wave", 4, 1)
	a := c.CreateLayer(cl, "a", 1, false, false)
	b := c.CreateLayer(cl, "b", 0, false, false)

	c.AnimateLayerWeight(b, 1, time.Second)
	c.RemoveLayer(b)
	if c.Status().Interpolating {
		t.Fatal("interpolation should be cancelled with its layer")
	}

	c.tick(clk.Advance(500 * time.Millisecond))
	if a.Weight() != 1 {
		t.Errorf("remaining layer weight: got %v, want 1", a.Weight())
	}
}

func TestController_Mix(t *testing.T) {
	c, sink, clk := newTestController(t, noBlendConfig(), nil, 1, 2)
	a := c.CreateLayer(constClip(t, "high", 10, 100, 1), "high", 1, true, false)
	b := c.CreateLayer(constClip(t, "low", 10, 50, 1), "low", 0, true, false)
	c.SetLayerWeight(a, 0.5)
	a.Play()
	b.Play()
	c.Play()

	frame(c, clk)

	if v, ok := sink.last(1); !ok || !floatEquals(v, 75) {
		t.Errorf("actuator 1: got %v (%v), want 75", v, ok)
	}
	// Neither clip drives actuator 2, so both layers contribute the default pose.
	if v, ok := sink.last(2); !ok || !floatEquals(v, DefaultPosition) {
		t.Errorf("actuator 2: got %v (%v), want %v", v, ok, DefaultPosition)
	}

	st := c.Status()
	if !floatEquals(st.Outputs[1], 75) {
		t.Errorf("Status.Outputs[1]: got %v, want 75", st.Outputs[1])
	}
	if len(st.Layers) != 2 || st.Layers[0].Name != "high" {
		t.Errorf("Status.Layers: got %+v", st.Layers)
	}
}

func TestController_NoLayersNoWrite(t *testing.T) {
	c, sink, clk := newTestController(t, DefaultConfig(), nil, 1, 2)
	c.Play()
	frames(c, clk, 5)

	if n := sink.calls(); n != 0 {
		t.Errorf("writes with no layers: got %d, want 0", n)
	}
}

func TestController_PausedNoWrite(t *testing.T) {
	c, sink, clk := newTestController(t, noBlendConfig(), nil, 1)
	l := c.CreateLayer(rampClip(t, "ramp", 10, 1), "", 1, false, false)
	l.Play()

	frames(c, clk, 3)
	if n := sink.calls(); n != 0 {
		t.Errorf("writes while paused: got %d, want 0", n)
	}
	if l.CurrentFrame() != 0 {
		t.Errorf("layer advanced while paused: frame %d", l.CurrentFrame())
	}

	c.Play()
	frames(c, clk, 2)
	if v, _ := sink.last(1); v != 2 {
		t.Errorf("after play: got %v, want 2", v)
	}
	c.Pause()
	frames(c, clk, 2)
	if l.CurrentFrame() != 2 {
		t.Errorf("layer advanced after pause: frame %d", l.CurrentFrame())
	}
}

func TestController_SinkErrorDoesNotAbort(t *testing.T) {
	c, sink, clk := newTestController(t, noBlendConfig(), nil, 1, 2)
	sink.setFail(1, errBusFault)
	l := c.CreateLayer(constClip(t, "hold", 10, 120, 1, 2), "", 1, true, false)
	l.Play()
	c.Play()

	frames(c, clk, 3)

	if v, ok := sink.last(2); !ok || v != 120 {
		t.Errorf("actuator 2: got %v (%v), want 120", v, ok)
	}
	if got := c.Status().WriteErrors; got != 3 {
		t.Errorf("WriteErrors: got %d, want 3", got)
	}
	if l.CurrentFrame() != 3 {
		t.Errorf("layer frame: got %d, want 3", l.CurrentFrame())
	}
}

func TestController_TransientRemoval(t *testing.T) {
	c, _, clk := newTestController(t, noBlendConfig(), nil, 1)
	base := c.CreateLayer(constClip(t, "idle", 10, 90, 1), "idle", 1, true, false)
	blink := c.CreateLayer(rampClip(t, "blink", 4, 1), "blink", 0, false, true)
	blink.SetPostDelay(2)
	base.Play()
	blink.Play()
	c.Play()

	frames(c, clk, 4)
	if c.LayerByName("blink") == nil {
		t.Fatal("transient removed before post-delay finished")
	}

	frame(c, clk)
	if c.LayerByName("blink") != nil {
		t.Error("completed transient layer should be removed")
	}
	if c.LayerByName("idle") == nil {
		t.Error("looping layer should remain")
	}
}

func TestController_CallbackRemovesOwnLayer(t *testing.T) {
	c, _, clk := newTestController(t, noBlendConfig(), nil, 1)
	l := c.CreateLayer(rampClip(t, "once", 4, 1), "once", 1, false, false)
	l.OnComplete(func(layer *Layer) {
		if err := c.RemoveLayer(layer); err != nil {
			t.Errorf("RemoveLayer from callback failed: %v", err)
		}
	})
	l.Play()
	c.Play()

	done := make(chan struct{})
	go func() {
		frames(c, clk, 4)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick deadlocked when a callback removed its layer")
	}
	if len(c.Layers()) != 0 {
		t.Errorf("layers after self-removal: got %d, want 0", len(c.Layers()))
	}
}

func TestController_BlendOutRemovalSkipsCompletion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crossfade = 50 * time.Millisecond
	c, _, clk := newTestController(t, cfg, nil, 1)
	l := c.CreateLayer(rampClip(t, "jump", 10, 1), "jump", 1, false, false)

	completes := 0
	l.OnStartBlendOut(func(layer *Layer) {
		if err := c.RemoveLayer(layer); err != nil {
			t.Errorf("RemoveLayer from blend-out failed: %v", err)
		}
	})
	l.OnComplete(func(*Layer) { completes++ })
	l.Play()
	c.Play()

	// One long tick jumps past the blend-out window straight to the end.
	c.tick(clk.Advance(time.Second))

	if len(c.Layers()) != 0 {
		t.Errorf("layers: got %d, want 0", len(c.Layers()))
	}
	if completes != 0 {
		t.Errorf("completions on a removed layer: got %d, want 0", completes)
	}
}

func TestController_CallbackRemovesLaterLayer(t *testing.T) {
	c, _, clk := newTestController(t, noBlendConfig(), nil, 1)
	first := c.CreateLayer(rampClip(t, "first", 2, 1), "first", 1, false, false)
	second := c.CreateLayer(rampClip(t, "second", 10, 1), "second", 0, false, false)
	first.OnComplete(func(*Layer) { c.RemoveLayer(second) })
	first.Play()
	second.Play()
	c.Play()

	frames(c, clk, 2)

	if second.CurrentFrame() != 1 {
		t.Errorf("removed layer advanced after removal: frame %d, want 1", second.CurrentFrame())
	}
}

func TestController_CallbackPanicIsolated(t *testing.T) {
	c, sink, clk := newTestController(t, noBlendConfig(), nil, 1)
	bad := c.CreateLayer(rampClip(t, "bad", 2, 1), "bad", 0.5, false, false)
	good := c.CreateLayer(rampClip(t, "good", 10, 1), "good", 0.5, false, false)
	bad.OnComplete(func(*Layer) { panic("boom") })
	bad.Play()
	good.Play()
	c.Play()

	frames(c, clk, 3)

	if good.CurrentFrame() != 3 {
		t.Errorf("good layer frame: got %d, want 3", good.CurrentFrame())
	}
	if got := c.Status().Panics; got != 1 {
		t.Errorf("Panics: got %d, want 1", got)
	}
	if sink.calls() != 3 {
		t.Errorf("writes: got %d, want 3", sink.calls())
	}
}

func TestController_StopIdempotent(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	a := c.CreateLayer(rampClip(t, "a", 4, 1), "", 1, true, false)
	b := c.CreateLayer(rampClip(t, "b", 4, 1), "", 0, false, false)
	a.Play()
	b.Play()
	c.Play()

	c.Stop()
	c.Stop()

	if c.IsPlaying() {
		t.Error("transport should be stopped")
	}
	if a.IsPlaying() || b.IsPlaying() {
		t.Error("every layer should be stopped")
	}
	if len(c.Layers()) != 2 {
		t.Error("Stop should not remove layers")
	}
}

func TestController_SetFrameRate(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1)
	l := c.CreateLayer(rampClip(t, "wave", 120, 1), "", 1, false, false)

	for _, hz := range []float64{0, -30, 1e-12, 5000, math.NaN(), math.Inf(1)} {
		if err := c.SetFrameRate(hz); !errors.Is(err, ErrInvalidFrameRate) {
			t.Errorf("SetFrameRate(%v): got %v, want ErrInvalidFrameRate", hz, err)
		}
	}
	if c.FrameRate() != DefaultFrameRate {
		t.Errorf("rate changed by invalid input: %v", c.FrameRate())
	}

	if err := c.SetFrameRate(30); err != nil {
		t.Fatalf("SetFrameRate(30) failed: %v", err)
	}
	if c.FrameRate() != 30 {
		t.Errorf("FrameRate: got %v, want 30", c.FrameRate())
	}
	if l.blendOutThreshold != 30 {
		t.Errorf("re-derived blend-out frames: got %d, want 30", l.blendOutThreshold)
	}
}

func TestController_RegisterActuatorDuplicate(t *testing.T) {
	c, _, _ := newTestController(t, DefaultConfig(), nil, 1, 3, 2)

	if got := c.Actuators(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Actuators: got %v, want [1 2 3]", got)
	}
	if err := c.RegisterActuator(actuator.Binding{ID: 2}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if got := len(c.Actuators()); got != 3 {
		t.Errorf("failed registration changed actuators: %d", got)
	}
}
