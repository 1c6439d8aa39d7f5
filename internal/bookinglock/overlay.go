// Package bookinglock projects the automated agent's in-flight booking
// locks onto the slot grid. The overlay is read-only and derived purely from
// one snapshot: there is no client-side expiry, a lock disappears only when a
// later snapshot no longer carries it.
package bookinglock

import (
	"sort"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

type dayKey struct {
	provider string
	date     clinictime.Date
}

type span struct {
	start int
	end   int
	lock  calendar.BookingLock
}

// Overlay answers "is this provider/day/slot held by the agent?".
type Overlay struct {
	grid  *timegrid.Grid
	spans map[dayKey][]span
	masks map[dayKey][]int
	count int
}

// New builds an overlay for the given locks. Locks with no start time or a
// non-positive duration are ignored.
func New(grid *timegrid.Grid, zone *clinictime.Zone, locks []calendar.BookingLock) *Overlay {
	o := &Overlay{
		grid:  grid,
		spans: make(map[dayKey][]span),
		masks: make(map[dayKey][]int),
	}
	for _, lock := range locks {
		if lock.StartTime.IsZero() || lock.DurationMinutes <= 0 {
			continue
		}
		date, clock := zone.Split(lock.StartTime)
		k := dayKey{provider: lock.ProviderID, date: date}
		start := clock.Minutes()
		end := start + lock.DurationMinutes
		o.spans[k] = append(o.spans[k], span{start: start, end: end, lock: lock})
		o.mark(k, start, end, len(o.spans[k])-1)
		o.count++
	}
	for k := range o.spans {
		sort.SliceStable(o.spans[k], func(i, j int) bool {
			return o.spans[k][i].start < o.spans[k][j].start
		})
		o.rebuildMask(k)
	}
	return o
}

func (o *Overlay) mark(k dayKey, start, end, spanIdx int) {
	mask, ok := o.masks[k]
	if !ok {
		mask = make([]int, o.grid.Len())
		for i := range mask {
			mask[i] = -1
		}
		o.masks[k] = mask
	}
	step := o.grid.StepMinutes()
	for i := range mask {
		slotStart := o.grid.StartMinutes() + i*step
		if start < slotStart+step && end > slotStart && mask[i] < 0 {
			mask[i] = spanIdx
		}
	}
}

func (o *Overlay) rebuildMask(k dayKey) {
	mask := o.masks[k]
	for i := range mask {
		mask[i] = -1
	}
	for idx, s := range o.spans[k] {
		o.mark(k, s.start, s.end, idx)
	}
}

// Count is the number of locks projected onto the grid.
func (o *Overlay) Count() int {
	if o == nil {
		return 0
	}
	return o.count
}

// Covers reports whether any lock touches the slot. Partially covered slots
// count as covered.
func (o *Overlay) Covers(providerID string, date clinictime.Date, slotIndex int) bool {
	_, ok := o.LockAt(providerID, date, slotIndex)
	return ok
}

// LockAt returns the earliest lock covering the slot.
func (o *Overlay) LockAt(providerID string, date clinictime.Date, slotIndex int) (calendar.BookingLock, bool) {
	if o == nil {
		return calendar.BookingLock{}, false
	}
	k := dayKey{provider: providerID, date: date}
	mask, ok := o.masks[k]
	if !ok || slotIndex < 0 || slotIndex >= len(mask) || mask[slotIndex] < 0 {
		return calendar.BookingLock{}, false
	}
	return o.spans[k][mask[slotIndex]].lock, true
}

// Overlaps returns a lock intersecting [startMin, endMin) on that day.
// Touching endpoints do not overlap.
func (o *Overlay) Overlaps(providerID string, date clinictime.Date, startMin, endMin int) (calendar.BookingLock, bool) {
	if o == nil {
		return calendar.BookingLock{}, false
	}
	for _, s := range o.spans[dayKey{provider: providerID, date: date}] {
		if startMin < s.end && endMin > s.start {
			return s.lock, true
		}
	}
	return calendar.BookingLock{}, false
}

// Locks lists the locks for one provider and day in start order.
func (o *Overlay) Locks(providerID string, date clinictime.Date) []calendar.BookingLock {
	if o == nil {
		return nil
	}
	spans := o.spans[dayKey{provider: providerID, date: date}]
	out := make([]calendar.BookingLock, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.lock)
	}
	return out
}

// Mask returns one flag per slot: true where the slot is locked.
func (o *Overlay) Mask(providerID string, date clinictime.Date) []bool {
	if o == nil {
		return nil
	}
	out := make([]bool, o.grid.Len())
	mask, ok := o.masks[dayKey{provider: providerID, date: date}]
	if !ok {
		return out
	}
	for i, v := range mask {
		out[i] = v >= 0
	}
	return out
}
