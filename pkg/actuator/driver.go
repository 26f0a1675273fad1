package actuator

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/teslashibe/go-animatronic/internal/log"
)

// Driver moves physical servos. Implementations wrap a PWM board, a remote
// bridge, or nothing at all.
type Driver interface {
	// SetPosition commands channel ch to value (typically degrees).
	SetPosition(ch int, value float64) error

	// Release stops driving channel ch ("power off").
	Release(ch int) error
}

// LogDriver is a dry-run driver that only logs commands at debug level.
type LogDriver struct {
	logger *slog.Logger
}

// NewLogDriver creates a dry-run driver.
func NewLogDriver() *LogDriver {
	return &LogDriver{logger: log.Component("driver")}
}

// SetPosition logs the command.
func (d *LogDriver) SetPosition(ch int, value float64) error {
	d.logger.Debug("servo", "channel", ch, "value", value)
	return nil
}

// Release logs the release.
func (d *LogDriver) Release(ch int) error {
	d.logger.Debug("servo released", "channel", ch)
	return nil
}

// MemoryDriver records the last command per channel. It backs the
// simulator output and tests.
type MemoryDriver struct {
	mu       sync.Mutex
	values   map[int]float64
	released map[int]bool
	calls    int

	// Fail, when set, is consulted before every SetPosition.
	Fail func(ch int, value float64) error
}

// NewMemoryDriver creates an empty MemoryDriver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		values:   make(map[int]float64),
		released: make(map[int]bool),
	}
}

// SetPosition records value for ch.
func (d *MemoryDriver) SetPosition(ch int, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Fail != nil {
		if err := d.Fail(ch, value); err != nil {
			return err
		}
	}
	d.calls++
	d.values[ch] = value
	delete(d.released, ch)
	return nil
}

// Release marks ch as released.
func (d *MemoryDriver) Release(ch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released[ch] = true
	return nil
}

// Value returns the last value written to ch.
func (d *MemoryDriver) Value(ch int) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[ch]
	return v, ok
}

// Released reports whether ch was released since its last write.
func (d *MemoryDriver) Released(ch int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released[ch]
}

// Calls returns the number of successful SetPosition calls.
func (d *MemoryDriver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Channels returns every channel written so far, sorted.
func (d *MemoryDriver) Channels() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	chs := make([]int, 0, len(d.values))
	for ch := range d.values {
		chs = append(chs, ch)
	}
	sort.Ints(chs)
	return chs
}
