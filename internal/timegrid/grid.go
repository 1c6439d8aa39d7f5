// Package timegrid defines the fixed slot lattice of the front-desk calendar:
// the business-day window, the slot step, and the lunch exclusion.
package timegrid

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("timegrid: invalid grid config")

// Config describes the business-day window.
type Config struct {
	StartHour   int
	EndHour     int
	StepMinutes int
	LunchStart  Clock
	LunchEnd    Clock
}

// DefaultConfig is 07:00-17:00 in 15 minute steps with lunch 12:00-13:00.
func DefaultConfig() Config {
	return Config{
		StartHour:   7,
		EndHour:     17,
		StepMinutes: 15,
		LunchStart:  Clock{Hour: 12},
		LunchEnd:    Clock{Hour: 13},
	}
}

// Validate checks that the window is non-empty and divisible by the step.
func (c Config) Validate() error {
	if c.StartHour < 0 || c.EndHour > 24 || c.StartHour >= c.EndHour {
		return fmt.Errorf("%w: window %d-%d", ErrInvalidConfig, c.StartHour, c.EndHour)
	}
	if c.StepMinutes <= 0 {
		return fmt.Errorf("%w: step %d", ErrInvalidConfig, c.StepMinutes)
	}
	if ((c.EndHour-c.StartHour)*60)%c.StepMinutes != 0 {
		return fmt.Errorf("%w: step %d does not divide window", ErrInvalidConfig, c.StepMinutes)
	}
	if !c.LunchStart.Valid() || !c.LunchEnd.Valid() || c.LunchEnd.Before(c.LunchStart) {
		return fmt.Errorf("%w: lunch %s-%s", ErrInvalidConfig, c.LunchStart, c.LunchEnd)
	}
	return nil
}

func (c Config) startMinutes() int { return c.StartHour * 60 }
func (c Config) endMinutes() int   { return c.EndHour * 60 }

func (c Config) isLunch(minutes int) bool {
	return minutes >= c.LunchStart.Minutes() && minutes < c.LunchEnd.Minutes()
}

// TimeSlot is one discrete interval of the grid.
type TimeSlot struct {
	Index   int   `json:"index"`
	Clock   Clock `json:"clock"`
	IsLunch bool  `json:"is_lunch"`
}

// GenerateSlots returns the ordered slot sequence for cfg. It is a pure
// function of cfg; an invalid config yields nil.
func GenerateSlots(cfg Config) []TimeSlot {
	if cfg.Validate() != nil {
		return nil
	}
	count := (cfg.endMinutes() - cfg.startMinutes()) / cfg.StepMinutes
	slots := make([]TimeSlot, 0, count)
	for i := 0; i < count; i++ {
		minutes := cfg.startMinutes() + i*cfg.StepMinutes
		slots = append(slots, TimeSlot{
			Index:   i,
			Clock:   ClockFromMinutes(minutes),
			IsLunch: cfg.isLunch(minutes),
		})
	}
	return slots
}

// PixelOffset is the vertical offset of a slot row.
func PixelOffset(index, slotHeightPx int) int {
	return index * slotHeightPx
}

// TimeOptions lists the start/end choices offered by the time-block form:
// every step boundary from the window start to the window end inclusive.
func TimeOptions(cfg Config) []Clock {
	if cfg.Validate() != nil {
		return nil
	}
	var out []Clock
	for m := cfg.startMinutes(); m <= cfg.endMinutes(); m += cfg.StepMinutes {
		out = append(out, ClockFromMinutes(m))
	}
	return out
}

// Grid is an immutable slot lattice built once from a Config.
type Grid struct {
	cfg   Config
	slots []TimeSlot
}

// NewGrid validates cfg and generates its slots.
func NewGrid(cfg Config) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Grid{cfg: cfg, slots: GenerateSlots(cfg)}, nil
}

// Config returns the grid configuration.
func (g *Grid) Config() Config { return g.cfg }

// Len is the number of slots per provider per day.
func (g *Grid) Len() int { return len(g.slots) }

// StepMinutes is the slot granularity.
func (g *Grid) StepMinutes() int { return g.cfg.StepMinutes }

// StartMinutes is the window start in minutes since midnight.
func (g *Grid) StartMinutes() int { return g.cfg.startMinutes() }

// EndMinutes is the exclusive window end in minutes since midnight.
func (g *Grid) EndMinutes() int { return g.cfg.endMinutes() }

// Slots returns a copy of the slot sequence.
func (g *Grid) Slots() []TimeSlot {
	out := make([]TimeSlot, len(g.slots))
	copy(out, g.slots)
	return out
}

// SlotAt returns the slot at index.
func (g *Grid) SlotAt(index int) (TimeSlot, bool) {
	if index < 0 || index >= len(g.slots) {
		return TimeSlot{}, false
	}
	return g.slots[index], true
}

// SlotIndexForClock maps a wall-clock time to its slot index. Times outside
// the business window return (-1, false). Times between step boundaries map
// to the slot containing them.
func (g *Grid) SlotIndexForClock(hour, minute int) (int, bool) {
	return g.IndexForMinutes(hour*60 + minute)
}

// IndexForMinutes is SlotIndexForClock on minutes since midnight.
func (g *Grid) IndexForMinutes(minutes int) (int, bool) {
	if minutes < g.StartMinutes() || minutes >= g.EndMinutes() {
		return -1, false
	}
	return (minutes - g.StartMinutes()) / g.cfg.StepMinutes, true
}

// OnBoundary reports whether minutes falls exactly on a slot start.
func (g *Grid) OnBoundary(minutes int) bool {
	return (minutes-g.StartMinutes())%g.cfg.StepMinutes == 0
}

// SpanSlots is the number of slots a duration covers, rounded up.
func (g *Grid) SpanSlots(durationMinutes int) int {
	if durationMinutes <= 0 {
		return 0
	}
	step := g.cfg.StepMinutes
	return (durationMinutes + step - 1) / step
}

// IsLunch reports whether the slot at index falls in the lunch window.
func (g *Grid) IsLunch(index int) bool {
	slot, ok := g.SlotAt(index)
	return ok && slot.IsLunch
}

// OverlapsLunch reports whether [startMin, endMin) intersects the lunch window.
func (g *Grid) OverlapsLunch(startMin, endMin int) bool {
	ls, le := g.cfg.LunchStart.Minutes(), g.cfg.LunchEnd.Minutes()
	if ls == le {
		return false
	}
	return startMin < le && endMin > ls
}

// Within reports whether [startMin, endMin) lies inside the business window.
func (g *Grid) Within(startMin, endMin int) bool {
	return startMin >= g.StartMinutes() && endMin <= g.EndMinutes() && startMin < endMin
}

// ClockForIndex returns the clock time of a slot index.
func (g *Grid) ClockForIndex(index int) (Clock, bool) {
	slot, ok := g.SlotAt(index)
	return slot.Clock, ok
}
