package calendar

import (
	"time"

	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
)

// Snapshot is one atomic fetch of a week's entities. It is replaced
// wholesale on every refresh and never mutated in place.
type Snapshot struct {
	WeekStart    clinictime.Date `json:"week_start"`
	WeekEnd      clinictime.Date `json:"week_end"`
	Appointments []Appointment   `json:"appointments"`
	TimeBlocks   []TimeBlock     `json:"time_blocks"`
	Holidays     []Holiday       `json:"holidays"`
	BookingLocks []BookingLock   `json:"booking_locks"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// HolidayOn returns the holiday for date, if any.
func (s *Snapshot) HolidayOn(date clinictime.Date) (*Holiday, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Holidays {
		if s.Holidays[i].Date == date {
			h := s.Holidays[i]
			return &h, true
		}
	}
	return nil, false
}

// Appointment looks up an appointment by id.
func (s *Snapshot) Appointment(id string) (Appointment, bool) {
	if s == nil {
		return Appointment{}, false
	}
	for _, a := range s.Appointments {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

// TimeBlock looks up a time block by id.
func (s *Snapshot) TimeBlock(id string) (TimeBlock, bool) {
	if s == nil {
		return TimeBlock{}, false
	}
	for _, b := range s.TimeBlocks {
		if b.ID == id {
			return b, true
		}
	}
	return TimeBlock{}, false
}

// Find looks up any occupying entity by id.
func (s *Snapshot) Find(id string) (Entity, bool) {
	if a, ok := s.Appointment(id); ok {
		return a, true
	}
	if b, ok := s.TimeBlock(id); ok {
		return b, true
	}
	if s != nil {
		for _, l := range s.BookingLocks {
			if l.ID == id {
				return l, true
			}
		}
	}
	return nil, false
}

// Empty reports whether the snapshot has never been filled.
func (s *Snapshot) Empty() bool {
	return s == nil || s.FetchedAt.IsZero()
}

// Clone returns a deep copy so callers outside the owning store can hold
// a snapshot without sharing its slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Appointments = append([]Appointment(nil), s.Appointments...)
	out.TimeBlocks = append([]TimeBlock(nil), s.TimeBlocks...)
	out.Holidays = append([]Holiday(nil), s.Holidays...)
	out.BookingLocks = append([]BookingLock(nil), s.BookingLocks...)
	return out
}
