package scheduleapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("scheduleapi: id is neither string nor number: %s", data)
	}
	*f = flexID(n.String())
	return nil
}

type envelope struct {
	Success            *bool             `json:"success,omitempty"`
	Error              string            `json:"error,omitempty"`
	Detail             string            `json:"detail,omitempty"`
	Appointments       []wireAppointment `json:"appointments,omitempty"`
	EventBlocks        []wireEventBlock  `json:"event_blocks,omitempty"`
	Holidays           []wireHoliday     `json:"holidays,omitempty"`
	BookingsInProgress []wireBooking     `json:"bookings_in_progress,omitempty"`
	Appointment        *wireAppointment  `json:"appointment,omitempty"`
	EventBlock         *wireEventBlock   `json:"event_block,omitempty"`
	Patients           []wirePatient     `json:"patients,omitempty"`
	Patient            *wirePatient      `json:"patient,omitempty"`
}

func (e envelope) failed() bool { return e.Success != nil && !*e.Success }

func (e envelope) reason() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}

type wireAppointment struct {
	ID              flexID `json:"id"`
	Provider        string `json:"provider"`
	PatientName     string `json:"patient_name"`
	PatientDOB      string `json:"patient_dob"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	AppointmentType string `json:"appointment_type"`
	Reason          string `json:"reason"`
	BookedBy        string `json:"booked_by,omitempty"`
	BookedByAI      bool   `json:"booked_by_ai,omitempty"`
	Color           string `json:"color,omitempty"`
}

type wireEventBlock struct {
	ID        flexID `json:"id"`
	Provider  string `json:"provider"`
	EventName string `json:"event_name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Notes     string `json:"notes,omitempty"`
}

type wireHoliday struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

type wireBooking struct {
	ID              flexID `json:"id"`
	Provider        string `json:"provider"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type wirePatient struct {
	ID          flexID `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

func toPatient(w wirePatient) Patient {
	return Patient{
		ID:          string(w.ID),
		FirstName:   w.FirstName,
		LastName:    w.LastName,
		DateOfBirth: w.DateOfBirth,
		Phone:       w.Phone,
		Email:       w.Email,
	}
}

func toAppointment(zone *clinictime.Zone, w wireAppointment) (calendar.Appointment, error) {
	if w.ID == "" {
		return calendar.Appointment{}, fmt.Errorf("appointment without id")
	}
	start, err := zone.Parse(w.StartTime)
	if err != nil {
		return calendar.Appointment{}, err
	}
	duration := w.DurationMinutes
	if duration <= 0 && w.EndTime != "" {
		end, err := zone.Parse(w.EndTime)
		if err != nil {
			return calendar.Appointment{}, err
		}
		duration = int(end.Sub(start) / time.Minute)
	}
	if duration <= 0 {
		return calendar.Appointment{}, fmt.Errorf("appointment %s has no duration", w.ID)
	}
	source := calendar.SourceStaff
	if w.BookedByAI || strings.EqualFold(w.BookedBy, "ai") || strings.EqualFold(w.BookedBy, string(calendar.SourceAutomated)) {
		source = calendar.SourceAutomated
	}
	return calendar.Appointment{
		ID:              string(w.ID),
		ProviderID:      strings.TrimSpace(w.Provider),
		PatientName:     w.PatientName,
		PatientDOB:      w.PatientDOB,
		StartTime:       start,
		DurationMinutes: duration,
		AppointmentType: w.AppointmentType,
		Reason:          w.Reason,
		BookedBy:        source,
		ColorTag:        w.Color,
	}, nil
}

func toTimeBlock(zone *clinictime.Zone, w wireEventBlock) (calendar.TimeBlock, error) {
	if w.ID == "" {
		return calendar.TimeBlock{}, fmt.Errorf("event block without id")
	}
	start, err := zone.Parse(w.StartTime)
	if err != nil {
		return calendar.TimeBlock{}, err
	}
	end, err := zone.Parse(w.EndTime)
	if err != nil {
		return calendar.TimeBlock{}, err
	}
	if !end.After(start) {
		return calendar.TimeBlock{}, fmt.Errorf("event block %s ends before it starts", w.ID)
	}
	return calendar.TimeBlock{
		ID:         string(w.ID),
		ProviderID: strings.TrimSpace(w.Provider),
		Label:      w.EventName,
		StartTime:  start,
		EndTime:    end,
		Notes:      w.Notes,
	}, nil
}

func toHoliday(w wireHoliday) (calendar.Holiday, error) {
	raw := w.Date
	if len(raw) > len("2006-01-02") {
		raw = raw[:len("2006-01-02")]
	}
	d, err := clinictime.ParseDate(raw)
	if err != nil {
		return calendar.Holiday{}, err
	}
	return calendar.Holiday{Date: d, Name: w.Name}, nil
}

// toBookingLock accepts either a full timestamp in start_time or a wall
// clock paired with date.
func toBookingLock(zone *clinictime.Zone, w wireBooking) (calendar.BookingLock, error) {
	if w.DurationMinutes <= 0 {
		return calendar.BookingLock{}, fmt.Errorf("booking in progress without duration")
	}
	start, err := zone.Parse(w.StartTime)
	if err != nil {
		date, dateErr := clinictime.ParseDate(w.Date)
		clock, clockErr := timegrid.ParseClock(w.StartTime)
		if dateErr != nil || clockErr != nil {
			return calendar.BookingLock{}, err
		}
		start = zone.At(date, clock)
	}
	id := string(w.ID)
	if id == "" {
		id = fmt.Sprintf("lock:%s:%s", w.Provider, zone.Format(start))
	}
	return calendar.BookingLock{
		ID:              id,
		ProviderID:      strings.TrimSpace(w.Provider),
		Date:            zone.DateOf(start),
		StartTime:       start,
		DurationMinutes: w.DurationMinutes,
	}, nil
}
