// Package calendar holds the front-desk domain model: providers, the three
// schedulable entity variants, holidays, and the week snapshot that the grid
// renders from.
package calendar

import (
	"time"

	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
)

// Kind identifies what occupies a span of the grid.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindTimeBlock   Kind = "time_block"
	KindBookingLock Kind = "booking_lock"
	KindClosed      Kind = "closed"
)

// BookingSource records who booked an appointment.
type BookingSource string

const (
	SourceStaff     BookingSource = "staff"
	SourceAutomated BookingSource = "automated"
)

// Entity is the capability shared by appointments, time blocks and booking
// locks: something that occupies a provider's time on one day.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	Provider() string
	Start() time.Time
	End() time.Time
}

// Provider is a clinician whose column appears in the grid.
type Provider struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Appointment is a booked patient visit.
type Appointment struct {
	ID              string        `json:"id"`
	ProviderID      string        `json:"provider_id"`
	PatientName     string        `json:"patient_name"`
	PatientDOB      string        `json:"patient_dob"`
	StartTime       time.Time     `json:"start_time"`
	DurationMinutes int           `json:"duration_minutes"`
	AppointmentType string        `json:"appointment_type"`
	Reason          string        `json:"reason"`
	BookedBy        BookingSource `json:"booked_by"`
	ColorTag        string        `json:"color_tag"`
}

func (a Appointment) EntityID() string { return a.ID }
func (a Appointment) EntityKind() Kind { return KindAppointment }
func (a Appointment) Provider() string { return a.ProviderID }
func (a Appointment) Start() time.Time { return a.StartTime }
func (a Appointment) End() time.Time { return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute) }
func (a Appointment) BookedByAgent() bool { return a.BookedBy == SourceAutomated }

// TimeBlock marks a provider unavailable (meeting, training, lunch override).
type TimeBlock struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Label      string    `json:"label"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Notes      string    `json:"notes,omitempty"`
}

func (b TimeBlock) EntityID() string { return b.ID }
func (b TimeBlock) EntityKind() Kind { return KindTimeBlock }
func (b TimeBlock) Provider() string { return b.ProviderID }
func (b TimeBlock) Start() time.Time { return b.StartTime }
func (b TimeBlock) End() time.Time { return b.EndTime }

// DurationMinutes is the block length in whole minutes.
func (b TimeBlock) DurationMinutes() int {
	return int(b.EndTime.Sub(b.StartTime) / time.Minute)
}

// BookingLock is a server-asserted claim on a slot by the automated booking
// agent. The console only observes locks; it never creates or expires them.
type BookingLock struct {
	ID              string          `json:"id"`
	ProviderID      string          `json:"provider_id"`
	Date            clinictime.Date `json:"date"`
	StartTime       time.Time       `json:"start_time"`
	DurationMinutes int             `json:"duration_minutes"`
}

func (l BookingLock) EntityID() string { return l.ID }
func (l BookingLock) EntityKind() Kind { return KindBookingLock }
func (l BookingLock) Provider() string { return l.ProviderID }
func (l BookingLock) Start() time.Time { return l.StartTime }
func (l BookingLock) End() time.Time { return l.StartTime.Add(time.Duration(l.DurationMinutes) * time.Minute) }

// Holiday closes the whole day for every provider.
type Holiday struct {
	Date clinictime.Date `json:"date"`
	Name string          `json:"name"`
}
