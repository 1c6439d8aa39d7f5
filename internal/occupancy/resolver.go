// Package occupancy decides, for one provider and one day, which grid slots
// are covered by which entity and how each slot behaves when clicked.
//
// The resolver is pure: the same inputs always produce the same Result, and
// no input is mutated. Overlapping input is rendered with a fixed precedence
// (booking lock over appointment over time block) and is never repaired.
package occupancy

import (
	"sort"

	"github.com/wolfman30/frontdesk-calendar/internal/bookinglock"
	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// State is what a slot shows.
type State string

const (
	StateFree        State = "free"
	StateLunch       State = "lunch"
	StateBlocked     State = "blocked"
	StateAppointment State = "appointment"
	StateLocked      State = "locked"
	StateHoliday     State = "holiday"
)

// LockLabel is shown on slots held by the automated booking agent.
const LockLabel = "Booking in progress"

// Placement is one entity projected onto the grid.
type Placement struct {
	EntityID   string          `json:"entity_id"`
	Kind       calendar.Kind   `json:"kind"`
	ProviderID string          `json:"provider_id"`
	Date       clinictime.Date `json:"date"`
	StartSlot  int             `json:"start_slot"`
	SpanSlots  int             `json:"span_slots"`
	TopPx      int             `json:"top_px"`
	HeightPx   int             `json:"height_px"`
	Label      string          `json:"label"`
	Clickable  bool            `json:"clickable"`
	Clamped    bool            `json:"clamped,omitempty"`
	Automated  bool            `json:"automated,omitempty"`
}

// SlotState is the resolved state of one slot. Clickable means a click
// opens the create dialog; occupied slots open their entity instead.
type SlotState struct {
	Index     int            `json:"index"`
	Clock     timegrid.Clock `json:"clock"`
	State     State          `json:"state"`
	EntityID  string         `json:"entity_id,omitempty"`
	Clickable bool           `json:"clickable"`
}

// Unrenderable records an entity for this provider and day that cannot be
// placed on the grid, typically because it starts outside business hours.
type Unrenderable struct {
	EntityID string        `json:"entity_id"`
	Kind     calendar.Kind `json:"kind"`
	Reason   string        `json:"reason"`
}

// Result is the occupancy of one provider column on one day.
type Result struct {
	Date         clinictime.Date `json:"date"`
	ProviderID   string          `json:"provider_id"`
	Closed       bool            `json:"closed"`
	Holiday      string          `json:"holiday,omitempty"`
	Placements   []Placement     `json:"placements"`
	Slots        []SlotState     `json:"slots"`
	Unrenderable []Unrenderable  `json:"unrenderable,omitempty"`
}

// Resolver places entities on a grid in the clinic's zone.
type Resolver struct {
	Grid         *timegrid.Grid
	Zone         *clinictime.Zone
	SlotHeightPx int
}

const (
	rankNone = iota
	rankBlock
	rankAppointment
	rankLock
)

func kindRank(k calendar.Kind) int {
	switch k {
	case calendar.KindBookingLock:
		return rankLock
	case calendar.KindAppointment:
		return rankAppointment
	case calendar.KindTimeBlock:
		return rankBlock
	}
	return rankNone
}

func stateFor(k calendar.Kind) State {
	switch k {
	case calendar.KindBookingLock:
		return StateLocked
	case calendar.KindAppointment:
		return StateAppointment
	}
	return StateBlocked
}

// ResolveDay computes placements and slot states for providerID on date.
// A holiday closes the whole column and nothing else is rendered.
func (r Resolver) ResolveDay(
	date clinictime.Date,
	providerID string,
	appts []calendar.Appointment,
	blocks []calendar.TimeBlock,
	locks []calendar.BookingLock,
	holiday *calendar.Holiday,
) Result {
	res := Result{Date: date, ProviderID: providerID, Placements: []Placement{}}

	if holiday != nil {
		res.Closed = true
		res.Holiday = holiday.Name
		res.Placements = append(res.Placements, Placement{
			EntityID:   "holiday:" + date.String(),
			Kind:       calendar.KindClosed,
			ProviderID: providerID,
			Date:       date,
			StartSlot:  0,
			SpanSlots:  r.Grid.Len(),
			TopPx:      0,
			HeightPx:   timegrid.PixelOffset(r.Grid.Len(), r.SlotHeightPx),
			Label:      holiday.Name,
		})
		res.Slots = make([]SlotState, 0, r.Grid.Len())
		for _, slot := range r.Grid.Slots() {
			res.Slots = append(res.Slots, SlotState{Index: slot.Index, Clock: slot.Clock, State: StateHoliday})
		}
		return res
	}

	for _, a := range appts {
		if a.ProviderID != providerID {
			continue
		}
		r.place(&res, a, a.PatientName, true, a.BookedByAgent())
	}
	for _, b := range blocks {
		if b.ProviderID != providerID {
			continue
		}
		r.place(&res, b, b.Label, true, false)
	}
	for _, l := range locks {
		if l.ProviderID != providerID {
			continue
		}
		r.place(&res, l, LockLabel, false, true)
	}

	sort.SliceStable(res.Placements, func(i, j int) bool {
		pi, pj := res.Placements[i], res.Placements[j]
		if pi.StartSlot != pj.StartSlot {
			return pi.StartSlot < pj.StartSlot
		}
		if ri, rj := kindRank(pi.Kind), kindRank(pj.Kind); ri != rj {
			return ri > rj
		}
		return pi.EntityID < pj.EntityID
	})
	sort.SliceStable(res.Unrenderable, func(i, j int) bool {
		return res.Unrenderable[i].EntityID < res.Unrenderable[j].EntityID
	})

	res.Slots = r.slotStates(date, providerID, res.Placements, locks)
	return res
}

func (r Resolver) place(res *Result, e calendar.Entity, label string, clickable, automated bool) {
	startMin, endMin, ok := r.Zone.SpanOn(res.Date, e.Start(), e.End())
	if !ok {
		return
	}
	sameDay := r.Zone.DateOf(e.Start()) == res.Date
	skip := func(reason string) {
		res.Unrenderable = append(res.Unrenderable, Unrenderable{EntityID: e.EntityID(), Kind: e.EntityKind(), Reason: reason})
	}
	if sameDay && endMin <= startMin {
		skip("non-positive duration")
		return
	}
	if startMin >= r.Grid.EndMinutes() {
		skip("starts after business hours")
		return
	}
	if endMin <= r.Grid.StartMinutes() {
		if sameDay {
			skip("ends before business hours")
		}
		return
	}

	var startSlot, span int
	clamped := false
	if idx, inWindow := r.Grid.IndexForMinutes(startMin); inWindow {
		startSlot = idx
		span = r.Grid.SpanSlots(endMin - startMin)
	} else {
		clamped = true
		span = r.Grid.SpanSlots(endMin - r.Grid.StartMinutes())
	}
	if span < 1 {
		span = 1
	}
	if startSlot+span > r.Grid.Len() {
		span = r.Grid.Len() - startSlot
		clamped = true
	}

	res.Placements = append(res.Placements, Placement{
		EntityID:   e.EntityID(),
		Kind:       e.EntityKind(),
		ProviderID: e.Provider(),
		Date:       res.Date,
		StartSlot:  startSlot,
		SpanSlots:  span,
		TopPx:      timegrid.PixelOffset(startSlot, r.SlotHeightPx),
		HeightPx:   span * r.SlotHeightPx,
		Label:      label,
		Clickable:  clickable,
		Clamped:    clamped,
		Automated:  automated,
	})
}

func (r Resolver) slotStates(date clinictime.Date, providerID string, placements []Placement, locks []calendar.BookingLock) []SlotState {
	slots := r.Grid.Slots()
	out := make([]SlotState, len(slots))
	ranks := make([]int, len(slots))
	for i, slot := range slots {
		state := StateFree
		if slot.IsLunch {
			state = StateLunch
		}
		out[i] = SlotState{Index: slot.Index, Clock: slot.Clock, State: state}
	}
	for _, p := range placements {
		rank := kindRank(p.Kind)
		for i := p.StartSlot; i < p.StartSlot+p.SpanSlots && i < len(out); i++ {
			if rank > ranks[i] {
				ranks[i] = rank
				out[i].State = stateFor(p.Kind)
				out[i].EntityID = p.EntityID
			}
		}
	}
	// Locks also cover slots they only partially touch.
	overlay := bookinglock.New(r.Grid, r.Zone, locks)
	for i := range out {
		if lock, ok := overlay.LockAt(providerID, date, i); ok && ranks[i] < rankLock {
			ranks[i] = rankLock
			out[i].State = StateLocked
			out[i].EntityID = lock.ID
		}
		out[i].Clickable = out[i].State == StateFree
	}
	return out
}

// Day is every provider column for one date.
type Day struct {
	Date      clinictime.Date `json:"date"`
	Weekday   string          `json:"weekday"`
	Closed    bool            `json:"closed"`
	Holiday   string          `json:"holiday,omitempty"`
	Providers []Result        `json:"providers"`
}

// Week is seven consecutive days starting on Monday.
type Week struct {
	Start clinictime.Date `json:"start"`
	End   clinictime.Date `json:"end"`
	Days  []Day           `json:"days"`
}

// ResolveWeek resolves the Monday-start week containing weekStart for every
// provider, in provider order.
func (r Resolver) ResolveWeek(weekStart clinictime.Date, providers []calendar.Provider, snap *calendar.Snapshot) Week {
	if snap == nil {
		snap = &calendar.Snapshot{}
	}
	start := weekStart.WeekStart()
	week := Week{Start: start, End: start.AddDays(6)}
	for _, date := range start.Week() {
		holiday, _ := snap.HolidayOn(date)
		day := Day{Date: date, Weekday: date.Weekday().String()}
		if holiday != nil {
			day.Closed = true
			day.Holiday = holiday.Name
		}
		for _, p := range providers {
			day.Providers = append(day.Providers, r.ResolveDay(date, p.ID, snap.Appointments, snap.TimeBlocks, snap.BookingLocks, holiday))
		}
		week.Days = append(week.Days, day)
	}
	return week
}
