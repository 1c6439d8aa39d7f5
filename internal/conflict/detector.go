// Package conflict is the single overlap rule shared by drag-drop and the
// booking and time-block forms. Intervals are half-open: an entity ending at
// 09:30 does not conflict with one starting at 09:30.
package conflict

import (
	"fmt"

	"github.com/wolfman30/frontdesk-calendar/internal/bookinglock"
	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// Proposal is a candidate placement for one provider on one clinic-local day.
type Proposal struct {
	ProviderID      string
	Date            clinictime.Date
	Start           timegrid.Clock
	DurationMinutes int
	// ExcludeID skips the entity being moved or edited.
	ExcludeID string
}

// Result of a conflict check. Entity is set when a specific appointment,
// block or lock is in the way; Holiday when the day is closed.
type Result struct {
	Conflict bool
	Reason   calendar.Code
	Message  string
	Entity   calendar.Entity
	Holiday  *calendar.Holiday
}

// Err converts a conflicting result into a *calendar.ValidationError.
func (r Result) Err() error {
	if !r.Conflict {
		return nil
	}
	return &calendar.ValidationError{Code: r.Reason, Reason: r.Message, Conflict: r.Entity}
}

// Detector checks proposals against a snapshot.
type Detector struct {
	Grid *timegrid.Grid
	Zone *clinictime.Zone
}

// HasConflict checks, in order: holiday, business window, lunch, booking
// locks, appointments, time blocks. The first failing rule wins.
func (d Detector) HasConflict(snap *calendar.Snapshot, p Proposal) Result {
	if !p.Start.Valid() {
		return refuse(calendar.CodeInvalidTime, "invalid start time %s", p.Start)
	}
	if p.DurationMinutes <= 0 {
		return refuse(calendar.CodeInvalidRange, "duration must be positive, got %d minutes", p.DurationMinutes)
	}
	start := p.Start.Minutes()
	return d.check(snap, p.ProviderID, p.Date, start, start+p.DurationMinutes, p.ExcludeID)
}

// CheckRange is HasConflict for callers holding a start and end clock, such
// as the time-block form.
func (d Detector) CheckRange(snap *calendar.Snapshot, providerID string, date clinictime.Date, start, end timegrid.Clock, excludeID string) Result {
	if !start.Valid() {
		return refuse(calendar.CodeInvalidTime, "invalid start time %s", start)
	}
	if !end.Valid() {
		return refuse(calendar.CodeInvalidTime, "invalid end time %s", end)
	}
	if !start.Before(end) {
		return refuse(calendar.CodeInvalidRange, "end time %s must be after start time %s", end.Label(), start.Label())
	}
	return d.check(snap, providerID, date, start.Minutes(), end.Minutes(), excludeID)
}

func refuse(code calendar.Code, format string, args ...any) Result {
	return Result{Conflict: true, Reason: code, Message: fmt.Sprintf(format, args...)}
}

func (d Detector) check(snap *calendar.Snapshot, providerID string, date clinictime.Date, start, end int, excludeID string) Result {
	if h, ok := snap.HolidayOn(date); ok {
		res := refuse(calendar.CodeHoliday, "clinic closed on %s (%s)", date, h.Name)
		res.Holiday = h
		return res
	}
	if !d.Grid.Within(start, end) {
		return refuse(calendar.CodeOutsideHours, "%s-%s is outside business hours",
			timegrid.ClockFromMinutes(start).Label(), timegrid.ClockFromMinutes(end).Label())
	}
	if d.Grid.OverlapsLunch(start, end) {
		cfg := d.Grid.Config()
		return refuse(calendar.CodeLunch, "overlaps lunch (%s-%s)", cfg.LunchStart.Label(), cfg.LunchEnd.Label())
	}
	if snap == nil {
		return Result{}
	}

	if len(snap.BookingLocks) > 0 {
		overlay := bookinglock.New(d.Grid, d.Zone, snap.BookingLocks)
		if lock, ok := overlay.Overlaps(providerID, date, start, end); ok {
			res := refuse(calendar.CodeLocked, "slot is being booked by the scheduling assistant")
			res.Entity = lock
			return res
		}
	}

	var best calendar.Entity
	bestStart := 0
	consider := func(e calendar.Entity) {
		if e.Provider() != providerID || e.EntityID() == excludeID {
			return
		}
		s, en, ok := d.Zone.SpanOn(date, e.Start(), e.End())
		if !ok || en <= s || !(start < en && end > s) {
			return
		}
		if best == nil || s < bestStart || (s == bestStart && e.EntityID() < best.EntityID()) {
			best, bestStart = e, s
		}
	}
	for _, a := range snap.Appointments {
		consider(a)
	}
	if best != nil {
		a := best.(calendar.Appointment)
		res := refuse(calendar.CodeConflict, "conflicts with %s at %s", describe(a.PatientName, "appointment"),
			timegrid.ClockFromMinutes(bestStart).Label())
		res.Entity = best
		return res
	}
	for _, b := range snap.TimeBlocks {
		consider(b)
	}
	if best != nil {
		b := best.(calendar.TimeBlock)
		res := refuse(calendar.CodeConflict, "conflicts with %s at %s", describe(b.Label, "time block"),
			timegrid.ClockFromMinutes(bestStart).Label())
		res.Entity = best
		return res
	}
	return Result{}
}

func describe(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
