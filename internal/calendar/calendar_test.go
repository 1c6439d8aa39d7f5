package calendar

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
)

func TestParseProviders(t *testing.T) {
	got, err := ParseProviders("cherie:Cherie, anna-lia:Anna-Lia ,dr-k")
	require.NoError(t, err)
	assert.Equal(t, []Provider{
		{ID: "cherie", DisplayName: "Cherie"},
		{ID: "anna-lia", DisplayName: "Anna-Lia"},
		{ID: "dr-k", DisplayName: "dr-k"},
	}, got)

	defaults, err := ParseProviders("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProviders, defaults)

	_, err = ParseProviders("a:A,a:Again")
	assert.Error(t, err)
	_, err = ParseProviders(":NoID")
	assert.Error(t, err)
}

func TestProviderSet(t *testing.T) {
	ps := NewProviderSet(DefaultProviders)
	assert.True(t, ps.Has("cherie"))
	assert.False(t, ps.Has("nobody"))
	assert.Equal(t, []string{"cherie", "anna-lia"}, ps.IDs())
	p, ok := ps.Get("anna-lia")
	require.True(t, ok)
	assert.Equal(t, "Anna-Lia", p.DisplayName)
}

func TestSnapshotLookups(t *testing.T) {
	start := time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Appointments: []Appointment{{ID: "a1", ProviderID: "p1", StartTime: start, DurationMinutes: 30}},
		TimeBlocks:   []TimeBlock{{ID: "b1", ProviderID: "p1", StartTime: start, EndTime: start.Add(time.Hour)}},
		BookingLocks: []BookingLock{{ID: "l1", ProviderID: "p1", StartTime: start, DurationMinutes: 15}},
		Holidays:     []Holiday{{Date: clinictime.NewDate(2025, 1, 1), Name: "New Year"}},
	}

	e, ok := snap.Find("a1")
	require.True(t, ok)
	assert.Equal(t, KindAppointment, e.EntityKind())
	assert.Equal(t, start.Add(30*time.Minute), e.End())

	e, ok = snap.Find("b1")
	require.True(t, ok)
	assert.Equal(t, KindTimeBlock, e.EntityKind())

	e, ok = snap.Find("l1")
	require.True(t, ok)
	assert.Equal(t, KindBookingLock, e.EntityKind())

	_, ok = snap.Find("missing")
	assert.False(t, ok)

	h, ok := snap.HolidayOn(clinictime.NewDate(2025, 1, 1))
	require.True(t, ok)
	assert.Equal(t, "New Year", h.Name)
	_, ok = snap.HolidayOn(clinictime.NewDate(2025, 1, 2))
	assert.False(t, ok)

	clone := snap.Clone()
	clone.Appointments[0].PatientName = "changed"
	assert.Empty(t, snap.Appointments[0].PatientName)
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = fmt.Errorf("wrap: %w", NewValidationError(CodeLunch, "slot %s is lunch", "12:00"))
	v, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, CodeLunch, v.Code)
	assert.Contains(t, v.Error(), "12:00")

	cause := errors.New("connection refused")
	err = &MutationFailure{Op: "reschedule", Err: cause}
	m, ok := AsMutation(err)
	require.True(t, ok)
	assert.Equal(t, "reschedule", m.Op)
	assert.ErrorIs(t, err, cause)

	ff := &FetchFailure{At: time.Unix(0, 0).UTC(), Err: cause}
	assert.ErrorIs(t, ff, cause)
	_, ok = AsValidation(ff)
	assert.False(t, ok)
}

func TestCatalogValidators(t *testing.T) {
	assert.True(t, ValidAppointmentType("Follow-up"))
	assert.False(t, ValidAppointmentType("Haircut"))
	assert.True(t, ValidAppointmentDuration(45))
	assert.False(t, ValidAppointmentDuration(20))
	assert.True(t, ValidTimeBlockLabel("Meeting"))
}
