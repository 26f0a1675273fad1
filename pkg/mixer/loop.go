package mixer

import (
	"context"
	"time"
)

// writeErrorLogInterval limits how often sink failures are logged.
const writeErrorLogInterval = 5 * time.Second

// Run ticks the mixer at its frame rate until ctx is cancelled or Shutdown
// is called. Returns ctx.Err() on cancellation and nil on Shutdown.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("mixer started", "hz", c.FrameRate(), "actuators", len(c.Actuators()))
	defer func() {
		if c.cfg.ReleaseOnExit {
			c.releaseAll()
		}
		c.logger.Info("mixer stopped",
			"ticks", c.ticks.Load(),
			"overruns", c.overruns.Load(),
			"write_errors", c.writeErrors.Load())
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	next := c.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-timer.C:
		}

		now := c.now()
		c.tick(now)

		period := time.Duration(float64(time.Second) / c.FrameRate())
		if now.After(next) {
			if now.Sub(next) > period {
				c.overruns.Add(1)
			}
			next = now
		}
		next = next.Add(period)
		timer.Reset(next.Sub(c.now()))
	}
}

// Shutdown makes Run return. It is safe to call more than once.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Controller) releaseAll() {
	for _, id := range c.Actuators() {
		if err := c.sink.PowerOff(id); err != nil {
			c.logger.Warn("power off failed", "actuator", id, "error", err)
		}
	}
}

// tick runs one mixer step at time now.
func (c *Controller) tick(now time.Time) {
	c.mu.Lock()
	var dt float64
	if !c.lastTick.IsZero() {
		dt = now.Sub(c.lastTick).Seconds()
		if dt < 0 {
			dt = 0
		}
	}
	c.lastTick = now
	playing := c.playing
	frameRate := c.frameRate
	snapshot := append([]*Layer(nil), c.layers...)
	c.mu.Unlock()

	if playing {
		for _, l := range snapshot {
			// A callback earlier in this pass may have removed it.
			if !c.contains(l) {
				continue
			}
			c.advanceLayer(l, dt, frameRate)
		}
	}

	c.mu.Lock()
	if playing {
		c.removeCompletedTransientsLocked()
	}
	c.stepInterpolationLocked(now)

	var ids []int
	var values []float64
	if playing && len(c.layers) > 0 {
		ids, values = c.mixLocked()
	}
	c.mu.Unlock()

	c.ticks.Add(1)
	for i, id := range ids {
		if err := c.sink.Write(id, values[i]); err != nil {
			c.writeErrors.Add(1)
			if now.Sub(c.lastErrorAt) >= writeErrorLogInterval {
				c.logger.Warn("actuator write failed", "actuator", id, "value", values[i], "error", err, "total_errors", c.writeErrors.Load())
				c.lastErrorAt = now
			}
		}
	}
}

func (c *Controller) advanceLayer(l *Layer, dt, frameRate float64) {
	blendOut, complete := c.safeAdvance(l, dt, frameRate)
	if blendOut != nil {
		c.invoke(l, "start_blend_out", blendOut)
	}
	// The blend-out callback may have removed the layer.
	if complete != nil && c.contains(l) {
		c.invoke(l, "complete", complete)
	}
}

func (c *Controller) safeAdvance(l *Layer, dt, frameRate float64) (blendOut, complete Callback) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.logger.Error("layer advance panicked", "layer", l.Name(), "panic", r)
		}
	}()
	return l.advance(dt, frameRate)
}

func (c *Controller) invoke(l *Layer, event string, fn Callback) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.logger.Error("layer callback panicked", "layer", l.Name(), "event", event, "panic", r)
		}
	}()
	fn(l)
}

func (c *Controller) removeCompletedTransientsLocked() {
	kept := c.layers[:0]
	var removed []*Layer
	for _, l := range c.layers {
		if l.IsTransient() && l.IsCompleted() {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(c.layers); i++ {
		c.layers[i] = nil
	}
	c.layers = kept

	for _, l := range removed {
		if c.interp.active && c.interp.layer == l {
			c.interp = interpolation{}
		}
		c.logger.Debug("transient layer removed", "layer", l.Name(), "id", l.ID())
	}
}

// mixLocked returns the weighted sum per registered actuator.
func (c *Controller) mixLocked() ([]int, []float64) {
	ids := append([]int(nil), c.actuators...)
	values := make([]float64, len(ids))

	for _, l := range c.layers {
		l.mu.Lock()
		w := l.weight
		for i, id := range ids {
			values[i] += w * l.sampleLocked(id)
		}
		l.mu.Unlock()
	}

	for i, id := range ids {
		c.outputs[id] = values[i]
	}
	return ids, values
}
