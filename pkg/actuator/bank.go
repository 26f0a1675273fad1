package actuator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-animatronic/internal/log"
)

// errorLogInterval limits how often write failures are logged per actuator.
const errorLogInterval = 5 * time.Second

// Stats is a snapshot of bank counters.
type Stats struct {
	Writes      uint64          `json:"writes"`
	Errors      uint64          `json:"errors"`
	OutOfRange  uint64          `json:"out_of_range"`
	LastWritten map[int]float64 `json:"last_written"`
}

type channel struct {
	binding     Binding
	last        float64
	written     bool
	errorCount  uint64
	lastErrorAt time.Time
}

// Bank is the actuator output sink used by the mixer.
type Bank struct {
	driver Driver
	logger *slog.Logger

	mu       sync.Mutex
	channels map[int]*channel

	writes     uint64
	errors     uint64
	outOfRange uint64
}

// NewBank creates a bank writing through driver.
func NewBank(driver Driver) *Bank {
	return &Bank{
		driver:   driver,
		logger:   log.Component("actuator"),
		channels: make(map[int]*channel),
	}
}

// Register adds a binding.
func (b *Bank) Register(binding Binding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.channels[binding.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateActuator, binding.ID)
	}
	if binding.Remap == nil {
		binding.Remap = Identity
	}
	b.channels[binding.ID] = &channel{binding: binding}

	b.logger.Info("actuator registered", "id", binding.ID, "name", binding.Name, "range", binding.Range)
	return nil
}

// IDs returns the registered actuator ids, sorted.
func (b *Bank) IDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int, 0, len(b.channels))
	for id := range b.channels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Binding returns the binding for id.
func (b *Bank) Binding(id int) (Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[id]
	if !ok {
		return Binding{}, false
	}
	return ch.binding, true
}

// Write remaps value and sends it to the driver. A rejected or failed write
// leaves the actuator at its previous pose.
func (b *Bank) Write(id int, value float64) error {
	b.mu.Lock()
	ch, ok := b.channels[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownActuator, id)
	}
	binding := ch.binding
	b.mu.Unlock()

	// Remap and driver I/O run without the bank lock so a slow bridge or a
	// faulty remap cannot block registration or stats readers.
	remapped, err := remap(binding, value)
	if err != nil {
		b.mu.Lock()
		b.recordErrorLocked(ch, err)
		b.mu.Unlock()
		return err
	}
	if r := binding.Range; r != nil && !r.Contains(remapped) {
		err := &RangeError{ID: id, Value: value, Remapped: remapped, Range: *r}
		b.mu.Lock()
		b.outOfRange++
		b.recordErrorLocked(ch, err)
		b.mu.Unlock()
		return err
	}

	if err := b.driver.SetPosition(id, remapped); err != nil {
		b.mu.Lock()
		b.recordErrorLocked(ch, err)
		b.mu.Unlock()
		return fmt.Errorf("actuator %d: %w", id, err)
	}

	b.mu.Lock()
	b.writes++
	ch.last = remapped
	ch.written = true
	b.mu.Unlock()
	return nil
}

// remap applies the binding's remap, turning a panic into ErrRemapFailed.
func remap(binding Binding, value float64) (out float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: actuator %d: %v", ErrRemapFailed, binding.ID, r)
		}
	}()
	return binding.Remap(value), nil
}

// PowerOff releases the actuator so it stops holding position.
func (b *Bank) PowerOff(id int) error {
	b.mu.Lock()
	_, ok := b.channels[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownActuator, id)
	}

	if err := b.driver.Release(id); err != nil {
		return fmt.Errorf("actuator %d: release: %w", id, err)
	}
	b.logger.Debug("actuator released", "id", id)
	return nil
}

// PowerOffAll releases every registered actuator and returns the joined errors.
func (b *Bank) PowerOffAll() error {
	var errs []error
	for _, id := range b.IDs() {
		if err := b.PowerOff(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the bank counters.
func (b *Bank) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	last := make(map[int]float64, len(b.channels))
	for id, ch := range b.channels {
		if ch.written {
			last[id] = ch.last
		}
	}
	return Stats{
		Writes:      b.writes,
		Errors:      b.errors,
		OutOfRange:  b.outOfRange,
		LastWritten: last,
	}
}

// recordErrorLocked counts an error and logs it at most once per
// errorLogInterval per actuator. Caller holds b.mu.
func (b *Bank) recordErrorLocked(ch *channel, err error) {
	b.errors++
	ch.errorCount++
	if ch.lastErrorAt.IsZero() || time.Since(ch.lastErrorAt) > errorLogInterval {
		b.logger.Warn("actuator write skipped",
			"id", ch.binding.ID, "name", ch.binding.Name, "error", err, "total_errors", ch.errorCount)
		ch.lastErrorAt = time.Now()
	}
}
