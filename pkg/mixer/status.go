package mixer

import "sort"

// LayerInfo is a point-in-time view of one layer.
type LayerInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Clip          string  `json:"clip"`
	Frame         int     `json:"frame"`
	FrameCount    int     `json:"frame_count"`
	Weight        float64 `json:"weight"`
	Playing       bool    `json:"playing"`
	Looping       bool    `json:"looping"`
	Transient     bool    `json:"transient"`
	BlendingOut   bool    `json:"blending_out"`
	Completed     bool    `json:"completed"`
	PostDelay     int     `json:"post_delay"`
	HasOnComplete bool    `json:"has_on_complete"`
}

// Status is a snapshot of the mixer for telemetry.
type Status struct {
	Playing       bool            `json:"playing"`
	FrameRate     float64         `json:"frame_rate"`
	Layers        []LayerInfo     `json:"layers"`
	WeightSum     float64         `json:"weight_sum"`
	Actuators     []int           `json:"actuators"`
	Outputs       map[int]float64 `json:"outputs"`
	Interpolating bool            `json:"interpolating"`
	Playlist      PlaylistState   `json:"playlist"`
	Ticks         uint64          `json:"ticks"`
	Overruns      uint64          `json:"overruns"`
	WriteErrors   uint64          `json:"write_errors"`
	Panics        uint64          `json:"panics"`
}

// Info returns a snapshot of the layer.
func (l *Layer) Info() LayerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := LayerInfo{
		ID:            l.id.String(),
		Name:          l.name,
		Frame:         l.currentFrame,
		Weight:        l.weight,
		Playing:       l.playing,
		Looping:       l.looping,
		Transient:     l.transient,
		BlendingOut:   l.blendingOut,
		Completed:     l.completedLocked(),
		PostDelay:     l.postDelayFrames,
		HasOnComplete: l.onComplete != nil,
	}
	if l.clip != nil {
		info.Clip = l.clip.Name()
		info.FrameCount = l.clip.FrameCount()
	}
	return info
}

// ActiveLayers returns a snapshot of every layer in creation order.
func (c *Controller) ActiveLayers() []LayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]LayerInfo, 0, len(c.layers))
	for _, l := range c.layers {
		infos = append(infos, l.Info())
	}
	return infos
}

// Status returns a snapshot of transport, layers and the last mix.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Playing:       c.playing,
		FrameRate:     c.frameRate,
		Layers:        make([]LayerInfo, 0, len(c.layers)),
		Actuators:     append([]int(nil), c.actuators...),
		Outputs:       make(map[int]float64, len(c.outputs)),
		Interpolating: c.interp.active,
		Playlist:      c.playlistStateLocked(),
		Ticks:         c.ticks.Load(),
		Overruns:      c.overruns.Load(),
		WriteErrors:   c.writeErrors.Load(),
		Panics:        c.panics.Load(),
	}
	for _, l := range c.layers {
		info := l.Info()
		st.WeightSum += info.Weight
		st.Layers = append(st.Layers, info)
	}
	for id, v := range c.outputs {
		st.Outputs[id] = v
	}
	sort.Ints(st.Actuators)
	return st
}
