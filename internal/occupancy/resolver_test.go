package occupancy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

var monday = clinictime.NewDate(2025, time.January, 6)

func newResolver(t *testing.T) Resolver {
	t.Helper()
	grid, err := timegrid.NewGrid(timegrid.DefaultConfig())
	require.NoError(t, err)
	zone, err := clinictime.Load(clinictime.DefaultZone)
	require.NoError(t, err)
	return Resolver{Grid: grid, Zone: zone, SlotHeightPx: 48}
}

func appt(r Resolver, id, provider string, d clinictime.Date, h, m, dur int) calendar.Appointment {
	return calendar.Appointment{
		ID:              id,
		ProviderID:      provider,
		PatientName:     "Patient " + id,
		StartTime:       r.Zone.At(d, timegrid.NewClock(h, m)),
		DurationMinutes: dur,
	}
}

func TestResolveDay_PlacesAppointmentOnGrid(t *testing.T) {
	r := newResolver(t)
	res := r.ResolveDay(monday, "p1", []calendar.Appointment{appt(r, "a1", "p1", monday, 9, 0, 45)}, nil, nil, nil)

	require.Len(t, res.Placements, 1)
	p := res.Placements[0]
	assert.Equal(t, 8, p.StartSlot)
	assert.Equal(t, 3, p.SpanSlots)
	assert.Equal(t, 8*48, p.TopPx)
	assert.Equal(t, 3*48, p.HeightPx)
	assert.True(t, p.Clickable)
	assert.False(t, p.Clamped)

	for i := 8; i < 11; i++ {
		assert.Equal(t, StateAppointment, res.Slots[i].State)
		assert.Equal(t, "a1", res.Slots[i].EntityID)
		assert.False(t, res.Slots[i].Clickable)
	}
	assert.Equal(t, StateFree, res.Slots[11].State)
	assert.True(t, res.Slots[11].Clickable)
	assert.Equal(t, StateLunch, res.Slots[20].State)
	assert.False(t, res.Slots[20].Clickable)
}

func TestResolveDay_PlacesByWallClockAcrossDSTChanges(t *testing.T) {
	grid, err := timegrid.NewGrid(timegrid.DefaultConfig())
	require.NoError(t, err)
	zone, err := clinictime.Load("America/Los_Angeles")
	require.NoError(t, err)
	r := Resolver{Grid: grid, Zone: zone, SlotHeightPx: 48}

	tests := []struct {
		name  string
		date  clinictime.Date
		start time.Time
	}{
		{"spring forward", clinictime.NewDate(2025, time.March, 9), time.Date(2025, time.March, 9, 16, 0, 0, 0, time.UTC)},
		{"day before spring forward", clinictime.NewDate(2025, time.March, 8), time.Date(2025, time.March, 8, 17, 0, 0, 0, time.UTC)},
		{"fall back", clinictime.NewDate(2025, time.November, 2), time.Date(2025, time.November, 2, 17, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := calendar.Appointment{ID: "dst", ProviderID: "p1", StartTime: tt.start, DurationMinutes: 45}
			res := r.ResolveDay(tt.date, "p1", []calendar.Appointment{a}, nil, nil, nil)

			require.Len(t, res.Placements, 1)
			p := res.Placements[0]
			assert.Equal(t, 8, p.StartSlot, "09:00 local is slot 8 on a 07:00 grid")
			assert.Equal(t, 3, p.SpanSlots)
			assert.Equal(t, 8*48, p.TopPx)
			assert.Empty(t, res.Unrenderable)
			assert.Equal(t, StateAppointment, res.Slots[8].State)
			assert.Equal(t, StateFree, res.Slots[7].State)
		})
	}
}

func TestResolveDay_FiltersByProviderAndDate(t *testing.T) {
	r := newResolver(t)
	appts := []calendar.Appointment{
		appt(r, "other-provider", "p2", monday, 9, 0, 30),
		appt(r, "other-day", "p1", monday.AddDays(1), 9, 0, 30),
	}
	res := r.ResolveDay(monday, "p1", appts, nil, nil, nil)
	assert.Empty(t, res.Placements)
	assert.Empty(t, res.Unrenderable)
}

func TestResolveDay_HolidayShortCircuits(t *testing.T) {
	r := newResolver(t)
	holiday := &calendar.Holiday{Date: monday, Name: "Kuhio Day"}
	appts := []calendar.Appointment{appt(r, "a1", "p1", monday, 9, 0, 30)}
	locks := []calendar.BookingLock{{ID: "l1", ProviderID: "p1", StartTime: r.Zone.At(monday, timegrid.NewClock(10, 0)), DurationMinutes: 15}}

	res := r.ResolveDay(monday, "p1", appts, nil, locks, holiday)

	assert.True(t, res.Closed)
	assert.Equal(t, "Kuhio Day", res.Holiday)
	require.Len(t, res.Placements, 1)
	assert.Equal(t, calendar.KindClosed, res.Placements[0].Kind)
	assert.Equal(t, r.Grid.Len(), res.Placements[0].SpanSlots)
	assert.False(t, res.Placements[0].Clickable)
	for _, s := range res.Slots {
		assert.Equal(t, StateHoliday, s.State)
		assert.False(t, s.Clickable)
		assert.Empty(t, s.EntityID)
	}
}

func TestResolveDay_LockOutranksAppointmentOutranksBlock(t *testing.T) {
	r := newResolver(t)
	appts := []calendar.Appointment{appt(r, "a1", "p1", monday, 10, 0, 60)}
	blocks := []calendar.TimeBlock{{
		ID: "b1", ProviderID: "p1", Label: "Meeting",
		StartTime: r.Zone.At(monday, timegrid.NewClock(9, 30)),
		EndTime:   r.Zone.At(monday, timegrid.NewClock(10, 30)),
	}}
	locks := []calendar.BookingLock{{ID: "l1", ProviderID: "p1", StartTime: r.Zone.At(monday, timegrid.NewClock(10, 15)), DurationMinutes: 15}}

	res := r.ResolveDay(monday, "p1", appts, blocks, locks, nil)

	// 9:30 and 9:45 are block only.
	assert.Equal(t, StateBlocked, res.Slots[10].State)
	assert.Equal(t, "b1", res.Slots[10].EntityID)
	// 10:00 has block and appointment.
	assert.Equal(t, StateAppointment, res.Slots[12].State)
	assert.Equal(t, "a1", res.Slots[12].EntityID)
	// 10:15 has all three.
	assert.Equal(t, StateLocked, res.Slots[13].State)
	assert.Equal(t, "l1", res.Slots[13].EntityID)
	assert.False(t, res.Slots[13].Clickable)

	require.Len(t, res.Placements, 3)
	assert.Equal(t, "b1", res.Placements[0].EntityID)
	assert.Equal(t, "a1", res.Placements[1].EntityID)
	assert.Equal(t, "l1", res.Placements[2].EntityID)
	assert.False(t, res.Placements[2].Clickable)
	assert.Equal(t, LockLabel, res.Placements[2].Label)
}

func TestResolveDay_ClampsAndReportsOutOfWindow(t *testing.T) {
	r := newResolver(t)
	appts := []calendar.Appointment{
		appt(r, "early", "p1", monday, 6, 30, 60),
		appt(r, "late-overflow", "p1", monday, 16, 30, 60),
		appt(r, "after-hours", "p1", monday, 17, 0, 30),
		appt(r, "before-hours", "p1", monday, 5, 0, 30),
	}
	res := r.ResolveDay(monday, "p1", appts, nil, nil, nil)

	byID := map[string]Placement{}
	for _, p := range res.Placements {
		byID[p.EntityID] = p
	}
	require.Len(t, byID, 2)

	early := byID["early"]
	assert.True(t, early.Clamped)
	assert.Equal(t, 0, early.StartSlot)
	assert.Equal(t, 2, early.SpanSlots)

	late := byID["late-overflow"]
	assert.True(t, late.Clamped)
	assert.Equal(t, 38, late.StartSlot)
	assert.Equal(t, 2, late.SpanSlots)

	require.Len(t, res.Unrenderable, 2)
	assert.Equal(t, "after-hours", res.Unrenderable[0].EntityID)
	assert.Equal(t, "before-hours", res.Unrenderable[1].EntityID)
}

func TestResolveDay_OffLatticeStartRoundsSpanUp(t *testing.T) {
	r := newResolver(t)
	res := r.ResolveDay(monday, "p1", []calendar.Appointment{appt(r, "a1", "p1", monday, 9, 10, 20)}, nil, nil, nil)
	require.Len(t, res.Placements, 1)
	assert.Equal(t, 8, res.Placements[0].StartSlot)
	assert.Equal(t, 2, res.Placements[0].SpanSlots)
}

func TestResolveDay_MultiDayBlockClampsOnLaterDay(t *testing.T) {
	r := newResolver(t)
	blocks := []calendar.TimeBlock{{
		ID: "conf", ProviderID: "p1", Label: "Conference",
		StartTime: r.Zone.At(monday, timegrid.NewClock(8, 0)),
		EndTime:   r.Zone.At(monday.AddDays(1), timegrid.NewClock(12, 0)),
	}}
	res := r.ResolveDay(monday.AddDays(1), "p1", nil, blocks, nil, nil)
	require.Len(t, res.Placements, 1)
	assert.Equal(t, 0, res.Placements[0].StartSlot)
	assert.Equal(t, 20, res.Placements[0].SpanSlots)
	assert.True(t, res.Placements[0].Clamped)
}

func TestResolveDay_Idempotent(t *testing.T) {
	r := newResolver(t)
	appts := []calendar.Appointment{
		appt(r, "b", "p1", monday, 9, 0, 30),
		appt(r, "a", "p1", monday, 9, 0, 30),
		appt(r, "c", "p1", monday, 14, 0, 15),
	}
	first := r.ResolveDay(monday, "p1", appts, nil, nil, nil)
	second := r.ResolveDay(monday, "p1", appts, nil, nil, nil)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", first.Placements[0].EntityID)
	assert.Equal(t, "b", first.Placements[1].EntityID)
	assert.Equal(t, "a", first.Slots[8].EntityID)
	assert.Equal(t, "b", appts[0].ID, "input is not reordered")
}

func TestResolveWeek(t *testing.T) {
	r := newResolver(t)
	providers := []calendar.Provider{{ID: "p1"}, {ID: "p2"}}
	snap := &calendar.Snapshot{
		Appointments: []calendar.Appointment{appt(r, "a1", "p2", monday.AddDays(2), 9, 0, 30)},
		Holidays:     []calendar.Holiday{{Date: monday.AddDays(4), Name: "Holiday"}},
	}

	week := r.ResolveWeek(monday.AddDays(3), providers, snap)
	assert.Equal(t, monday, week.Start)
	assert.Equal(t, monday.AddDays(6), week.End)
	require.Len(t, week.Days, 7)
	assert.Equal(t, "Monday", week.Days[0].Weekday)

	wed := week.Days[2]
	require.Len(t, wed.Providers, 2)
	assert.Empty(t, wed.Providers[0].Placements)
	require.Len(t, wed.Providers[1].Placements, 1)

	fri := week.Days[4]
	assert.True(t, fri.Closed)
	assert.True(t, fri.Providers[0].Closed)
	assert.True(t, fri.Providers[1].Closed)
}
