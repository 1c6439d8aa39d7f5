package frontdesk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

func bookingForm() AppointmentForm {
	return AppointmentForm{
		ProviderID:      "cherie",
		Date:            monday,
		Start:           timegrid.NewClock(8, 0),
		DurationMinutes: 30,
		AppointmentType: "Follow-up",
		PatientID:       "42",
		PatientName:     "Akana, Kalani",
		PatientDOB:      "1980-04-02",
	}
}

func TestBookAppointment_CreatesAndRefreshes(t *testing.T) {
	fx := loadedFixture(t)
	fetches := fx.backend.fetchCount()

	appt, err := fx.console.BookAppointment(context.Background(), bookingForm())
	require.NoError(t, err)
	assert.Equal(t, "new-1", appt.ID)

	require.Len(t, fx.backend.created, 1)
	created := fx.backend.created[0]
	assert.True(t, created.Start.Equal(fx.at(monday, 8, 0)))
	assert.Equal(t, "-10:00", created.Start.In(fx.zone.Location()).Format("-07:00"))
	assert.Equal(t, 30, created.DurationMinutes)
	assert.Equal(t, fetches+1, fx.backend.fetchCount())
}

func TestBookAppointment_DefaultsDuration(t *testing.T) {
	fx := loadedFixture(t)
	form := bookingForm()
	form.DurationMinutes = 0

	_, err := fx.console.BookAppointment(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, calendar.DefaultAppointmentDuration, fx.backend.created[0].DurationMinutes)
}

func TestBookAppointment_LocalRefusals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *AppointmentForm)
		want   calendar.Code
	}{
		{"no patient", func(f *AppointmentForm) { f.PatientID, f.PatientName = "", "  " }, calendar.CodeMissingField},
		{"no type", func(f *AppointmentForm) { f.AppointmentType = "" }, calendar.CodeMissingField},
		{"no date", func(f *AppointmentForm) { f.Date = clinictime.Date{} }, calendar.CodeMissingField},
		{"unknown type", func(f *AppointmentForm) { f.AppointmentType = "Massage" }, calendar.CodeInvalidOption},
		{"odd duration", func(f *AppointmentForm) { f.DurationMinutes = 20 }, calendar.CodeInvalidOption},
		{"unknown provider", func(f *AppointmentForm) { f.ProviderID = "nobody" }, calendar.CodeUnknownProvider},
		{"off lattice", func(f *AppointmentForm) { f.Start = timegrid.NewClock(8, 5) }, calendar.CodeInvalidTime},
		{"overlaps appointment", func(f *AppointmentForm) { f.Start = timegrid.NewClock(9, 0); f.DurationMinutes = 45 }, calendar.CodeConflict},
		{"under a lock", func(f *AppointmentForm) { f.Date = tuesday; f.Start = timegrid.NewClock(9, 45) }, calendar.CodeLocked},
		{"over lunch", func(f *AppointmentForm) { f.Start = timegrid.NewClock(11, 30); f.DurationMinutes = 60 }, calendar.CodeLunch},
		{"past closing", func(f *AppointmentForm) { f.Start = timegrid.NewClock(16, 45) }, calendar.CodeOutsideHours},
		{"holiday", func(f *AppointmentForm) { f.Date = monday.AddDays(4) }, calendar.CodeHoliday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := loadedFixture(t)
			form := bookingForm()
			tt.mutate(&form)
			_, err := fx.console.BookAppointment(context.Background(), form)
			assert.Equal(t, tt.want, validationCode(t, err))
			assert.Empty(t, fx.backend.created)
		})
	}
}

func TestBookAppointment_OtherWeekValidatesAgainstThatWeek(t *testing.T) {
	fx := loadedFixture(t)
	form := bookingForm()
	form.Date = monday.AddDays(7)

	_, err := fx.console.BookAppointment(context.Background(), form)
	require.NoError(t, err)
	assert.Contains(t, fx.backend.fetched, monday.AddDays(7))
	// The visible week is unchanged.
	assert.Equal(t, monday, fx.console.WeekStart())
}

func TestBookAppointment_RemoteFailureKeepsGrid(t *testing.T) {
	fx := loadedFixture(t)
	before := fx.console.Snapshot()
	fetches := fx.backend.fetchCount()
	fx.backend.set(func(f *fakeBackend) {
		f.createErr = &calendar.MutationFailure{Op: "create_appointment", Reason: "session expired"}
	})

	_, err := fx.console.BookAppointment(context.Background(), bookingForm())
	m, ok := calendar.AsMutation(err)
	require.True(t, ok)
	assert.Equal(t, "session expired", m.Reason)
	assert.Same(t, before, fx.console.Snapshot())
	assert.Equal(t, fetches, fx.backend.fetchCount())
}

func TestBlockTime(t *testing.T) {
	fx := loadedFixture(t)

	block, err := fx.console.BlockTime(context.Background(), TimeBlockForm{
		ProviderID:  "cherie",
		Date:        monday,
		Start:       timegrid.NewClock(15, 0),
		End:         timegrid.NewClock(16, 0),
		Label:       "Other",
		CustomLabel: "Vendor visit",
		Notes:       "  lab rep  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "tb-new", block.ID)

	require.Len(t, fx.backend.blocks, 1)
	sent := fx.backend.blocks[0]
	assert.Equal(t, "Vendor visit", sent.Label)
	assert.Equal(t, "lab rep", sent.Notes)
	assert.Equal(t, time.Hour, sent.End.Sub(sent.Start))
	assert.True(t, sent.Start.Equal(fx.at(monday, 15, 0)))
}

func TestBlockTime_LocalRefusals(t *testing.T) {
	base := TimeBlockForm{
		ProviderID: "cherie",
		Date:       monday,
		Start:      timegrid.NewClock(15, 0),
		End:        timegrid.NewClock(16, 0),
		Label:      "Meeting",
	}
	tests := []struct {
		name   string
		mutate func(f *TimeBlockForm)
		want   calendar.Code
	}{
		{"other without name", func(f *TimeBlockForm) { f.Label = "Other" }, calendar.CodeMissingField},
		{"no label", func(f *TimeBlockForm) { f.Label = "" }, calendar.CodeMissingField},
		{"unknown label", func(f *TimeBlockForm) { f.Label = "Nap" }, calendar.CodeInvalidOption},
		{"end before start", func(f *TimeBlockForm) { f.End = timegrid.NewClock(14, 0) }, calendar.CodeInvalidRange},
		{"over lunch", func(f *TimeBlockForm) { f.Start = timegrid.NewClock(11, 0); f.End = timegrid.NewClock(12, 30) }, calendar.CodeLunch},
		{"over appointment", func(f *TimeBlockForm) { f.Start = timegrid.NewClock(9, 0); f.End = timegrid.NewClock(10, 0) }, calendar.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := loadedFixture(t)
			form := base
			tt.mutate(&form)
			_, err := fx.console.BlockTime(context.Background(), form)
			assert.Equal(t, tt.want, validationCode(t, err))
			assert.Empty(t, fx.backend.blocks)
		})
	}
}

func TestCancelAppointment(t *testing.T) {
	fx := loadedFixture(t)
	fetches := fx.backend.fetchCount()

	require.NoError(t, fx.console.CancelAppointment(context.Background(), "a1"))
	assert.Equal(t, []string{"a1"}, fx.backend.deleted)
	assert.Equal(t, fetches+1, fx.backend.fetchCount())

	assert.Equal(t, calendar.CodeMissingField, validationCode(t, fx.console.CancelAppointment(context.Background(), " ")))
}

func TestDeleteTimeBlock_WrapsPlainErrors(t *testing.T) {
	fx := loadedFixture(t)
	boom := errors.New("dial tcp: connection refused")
	fx.backend.set(func(f *fakeBackend) { f.deleteErr = boom })

	err := fx.console.DeleteTimeBlock(context.Background(), "tb1")
	m, ok := calendar.AsMutation(err)
	require.True(t, ok)
	assert.Equal(t, "delete_time_block", m.Op)
	assert.ErrorIs(t, err, boom)
}

